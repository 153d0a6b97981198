package selection

import (
	"sync"

	"go.uber.org/zap"

	"github.com/temirov/gather/internal/classify"
	"github.com/temirov/gather/internal/tokencount"
	"github.com/temirov/gather/internal/utils"
)

// CountObserver is notified whenever a displayed item's token count is
// finalized or a folder's running total advances. Observers are invoked from
// worker goroutines without any service lock held.
type CountObserver func(path string, tokenTotal int)

// Service owns the selection state: root paths, deletions, the filtered
// forest, navigation, the current view, and the background token
// aggregation. Navigation and tree building are synchronous on the caller;
// only token counting runs in the background.
type Service struct {
	logger  *zap.Logger
	builder *Builder
	tokens  *tokencount.Service
	pool    *workerPool

	stateMutex        sync.Mutex
	basePaths         map[string]struct{}
	deletedPaths      map[string]struct{}
	filterConfig      FilterConfig
	showTokenCounts   bool
	forest            *TreeNode
	flatFiles         []string
	navigation        navigationState
	selectedRow       int
	viewItems         []*ViewItem
	itemsByPath       map[string]*ViewItem
	folderNodesByPath map[string]*TreeNode
	generation        uint64
	aggregation       *aggregationState
	countObserver     CountObserver
	outstandingTasks  int
	idleCond          *sync.Cond
}

// NewService constructs a Service with an empty selection and a running
// worker pool. Close must be called to drain the pool.
func NewService(classifier *classify.Classifier, tokens *tokencount.Service, filterConfig FilterConfig, logger *zap.Logger) *Service {
	service := &Service{
		logger:            logger,
		builder:           NewBuilder(classifier, logger),
		tokens:            tokens,
		basePaths:         make(map[string]struct{}),
		deletedPaths:      make(map[string]struct{}),
		filterConfig:      filterConfig,
		showTokenCounts:   true,
		forest:            newTreeNode(),
		itemsByPath:       make(map[string]*ViewItem),
		folderNodesByPath: make(map[string]*TreeNode),
		aggregation:       newAggregationState(),
	}
	service.idleCond = sync.NewCond(&service.stateMutex)
	service.pool = newWorkerPool(countWorkerCount(), service.runCountTask)
	return service
}

// WaitForCounts blocks until no background count tasks remain outstanding
// for the current view generation.
func (service *Service) WaitForCounts() {
	service.stateMutex.Lock()
	for service.outstandingTasks > 0 {
		service.idleCond.Wait()
	}
	service.stateMutex.Unlock()
}

// SetCountObserver registers the count-change notification callback.
func (service *Service) SetCountObserver(observer CountObserver) {
	service.stateMutex.Lock()
	service.countObserver = observer
	service.stateMutex.Unlock()
}

// Close drains pending background work and stops the worker pool.
func (service *Service) Close() {
	service.pool.Close()
}

// AddRoots merges paths into the selection's root set, clears deletions and
// navigation history, rebuilds the tree, and populates the root view.
func (service *Service) AddRoots(paths []string) {
	service.stateMutex.Lock()
	for _, rootPath := range paths {
		service.basePaths[utils.NormalizeAbsolutePath(rootPath)] = struct{}{}
	}
	service.deletedPaths = make(map[string]struct{})
	service.navigation.reset()
	service.selectedRow = 0
	service.rebuildLocked()
	populated := service.populateViewLocked()
	service.stateMutex.Unlock()
	service.dispatch(populated)
}

// SetFilter replaces the filter configuration, rebuilds the tree, and
// repopulates the current location, falling back to the root view when the
// current folder no longer resolves.
func (service *Service) SetFilter(filterConfig FilterConfig) {
	service.stateMutex.Lock()
	service.filterConfig = filterConfig
	service.rebuildLocked()
	service.resolveLocationLocked()
	populated := service.populateViewLocked()
	service.stateMutex.Unlock()
	service.dispatch(populated)
}

// Filter returns the active filter configuration snapshot.
func (service *Service) Filter() FilterConfig {
	service.stateMutex.Lock()
	defer service.stateMutex.Unlock()
	return service.filterConfig
}

// Delete marks paths as excluded, rebuilds the tree, and repopulates the
// current location, preserving the selected row as best effort. A deleted
// root stays in the root set and is filtered out at build time.
func (service *Service) Delete(paths []string) {
	service.stateMutex.Lock()
	for _, deletedPath := range paths {
		if deletedPath == SyntheticUpPath {
			continue
		}
		service.deletedPaths[utils.NormalizeAbsolutePath(deletedPath)] = struct{}{}
	}
	preservedRow := service.selectedRow
	service.rebuildLocked()
	service.resolveLocationLocked()
	populated := service.populateViewLocked()
	service.selectedRow = clampRow(preservedRow, len(service.viewItems))
	service.stateMutex.Unlock()
	service.dispatch(populated)
}

// NavigateInto descends into folderPath and repopulates the view from the
// already-built tree. Unknown folders produce an empty listing rather than
// an error.
func (service *Service) NavigateInto(folderPath string) {
	service.stateMutex.Lock()
	normalizedFolderPath := utils.NormalizeAbsolutePath(folderPath)
	service.navigation.descend(normalizedFolderPath)
	service.selectedRow = 0
	populated := service.populateViewLocked()
	service.stateMutex.Unlock()
	service.dispatch(populated)
}

// NavigateUp returns to the most recent parent location. Reports whether a
// parent location was available.
func (service *Service) NavigateUp() bool {
	service.stateMutex.Lock()
	if !service.navigation.ascend() {
		service.stateMutex.Unlock()
		return false
	}
	service.selectedRow = 0
	populated := service.populateViewLocked()
	service.stateMutex.Unlock()
	service.dispatch(populated)
	return true
}

// Clear resets the selection to its initial empty state.
func (service *Service) Clear() {
	service.stateMutex.Lock()
	service.basePaths = make(map[string]struct{})
	service.deletedPaths = make(map[string]struct{})
	service.navigation.reset()
	service.selectedRow = 0
	service.rebuildLocked()
	_ = service.populateViewLocked()
	service.stateMutex.Unlock()
}

// SetShowTokenCounts toggles token counting. Disabling clears displayed
// counts and invalidates in-flight work; enabling schedules a fresh
// population of the current view.
func (service *Service) SetShowTokenCounts(showTokenCounts bool) {
	service.stateMutex.Lock()
	if service.showTokenCounts == showTokenCounts {
		service.stateMutex.Unlock()
		return
	}
	service.showTokenCounts = showTokenCounts
	populated := service.populateViewLocked()
	service.stateMutex.Unlock()
	service.dispatch(populated)
}

// ViewItems returns a snapshot of the current displayable list, including
// the synthetic up entry when navigation history is available.
func (service *Service) ViewItems() []ViewItem {
	service.stateMutex.Lock()
	defer service.stateMutex.Unlock()
	itemSnapshots := make([]ViewItem, len(service.viewItems))
	for itemIndex, viewItem := range service.viewItems {
		itemSnapshots[itemIndex] = *viewItem
	}
	return itemSnapshots
}

// AllIncludedFiles returns the sorted flat list of every file included in
// the current tree, for downstream artifact generation.
func (service *Service) AllIncludedFiles() []string {
	service.stateMutex.Lock()
	defer service.stateMutex.Unlock()
	flatCopy := make([]string, len(service.flatFiles))
	copy(flatCopy, service.flatFiles)
	return flatCopy
}

// SelectedRow returns the current selection index into ViewItems.
func (service *Service) SelectedRow() int {
	service.stateMutex.Lock()
	defer service.stateMutex.Unlock()
	return service.selectedRow
}

// SetSelectedRow moves the selection index, clamped to the view bounds.
func (service *Service) SetSelectedRow(rowIndex int) {
	service.stateMutex.Lock()
	service.selectedRow = clampRow(rowIndex, len(service.viewItems))
	service.stateMutex.Unlock()
}

// rebuildLocked discards the old tree and rebuilds the forest and flat file
// list from disk under the current roots, filters, and deletions.
func (service *Service) rebuildLocked() {
	service.forest, service.flatFiles = service.builder.Build(service.basePaths, service.filterConfig, service.deletedPaths)
}

// resolveLocationLocked falls back to the root view when the current folder
// is no longer part of the rebuilt tree.
func (service *Service) resolveLocationLocked() {
	if service.navigation.atRoot() {
		return
	}
	if service.forest.FindSubtree(service.navigation.currentFolder) == nil {
		service.logger.Warn("current folder left the tree, returning to root view",
			zap.String("path", service.navigation.currentFolder))
		service.navigation.reset()
	}
}

// populateViewLocked projects the current location into view items under a
// new generation and returns the background count tasks to submit plus the
// synchronously finalized counts. In-flight results from prior generations
// are dropped on arrival.
func (service *Service) populateViewLocked() populateResult {
	service.generation++

	var listingNode *TreeNode
	if service.navigation.atRoot() {
		listingNode = service.forest
	} else {
		listingNode = service.forest.FindSubtree(service.navigation.currentFolder)
		if listingNode == nil {
			service.logger.Warn("folder missing from built tree, showing empty listing",
				zap.String("path", service.navigation.currentFolder))
		}
	}

	projectedItems, folderNodesByPath := projectListing(listingNode, len(service.navigation.history) > 0)
	service.viewItems = projectedItems
	service.folderNodesByPath = folderNodesByPath
	service.itemsByPath = make(map[string]*ViewItem, len(projectedItems))
	for _, viewItem := range projectedItems {
		if !viewItem.Synthetic {
			service.itemsByPath[viewItem.Path] = viewItem
		}
	}

	scheduledTasks, immediateNotifications := service.scheduleCountsLocked()
	service.outstandingTasks = len(scheduledTasks)
	if service.outstandingTasks == 0 {
		service.idleCond.Broadcast()
	}
	return populateResult{
		tasks:         scheduledTasks,
		notifications: immediateNotifications,
		observer:      service.countObserver,
	}
}

// populateResult carries the background tasks and the synchronously
// finalized counts produced by one view population. Dispatched after the
// service mutex is released.
type populateResult struct {
	tasks         []countTask
	notifications []countNotification
	observer      CountObserver
}

// dispatch submits background work and reports synchronously finalized
// counts to the observer.
func (service *Service) dispatch(result populateResult) {
	service.pool.Submit(result.tasks)
	if result.observer == nil {
		return
	}
	for _, notification := range result.notifications {
		result.observer(notification.path, notification.tokens)
	}
}

// clampRow bounds rowIndex to [0, itemCount-1], or 0 for an empty view.
func clampRow(rowIndex int, itemCount int) int {
	if itemCount == 0 || rowIndex < 0 {
		return 0
	}
	if rowIndex >= itemCount {
		return itemCount - 1
	}
	return rowIndex
}
