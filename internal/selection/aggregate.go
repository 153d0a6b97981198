package selection

import (
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// maxCountWorkers bounds the background pool; token counting is I/O bound,
// so a small pool suffices.
const maxCountWorkers = 4

// countWorkerCount returns the worker pool size for this machine.
func countWorkerCount() int {
	processorCount := runtime.NumCPU()
	if processorCount > maxCountWorkers {
		return maxCountWorkers
	}
	if processorCount < 1 {
		return 1
	}
	return processorCount
}

// countTask asks the pool to count one file on behalf of one view generation.
type countTask struct {
	generation uint64
	filePath   string
}

// countNotification is a finalized count to report to the registered observer.
type countNotification struct {
	path   string
	tokens int
}

// workerPool runs count tasks on a fixed set of goroutines. Submission never
// blocks; Close drains the queue and waits for the workers to exit.
type workerPool struct {
	runTask func(task countTask)

	queueMutex sync.Mutex
	queueCond  *sync.Cond
	queue      []countTask
	closed     bool
	workerWait sync.WaitGroup
}

// newWorkerPool starts workerCount goroutines executing runTask.
func newWorkerPool(workerCount int, runTask func(task countTask)) *workerPool {
	pool := &workerPool{runTask: runTask}
	pool.queueCond = sync.NewCond(&pool.queueMutex)
	for workerIndex := 0; workerIndex < workerCount; workerIndex++ {
		pool.workerWait.Add(1)
		go pool.workerLoop()
	}
	return pool
}

// Submit appends tasks to the queue and wakes the workers.
func (pool *workerPool) Submit(tasks []countTask) {
	if len(tasks) == 0 {
		return
	}
	pool.queueMutex.Lock()
	if !pool.closed {
		pool.queue = append(pool.queue, tasks...)
	}
	pool.queueMutex.Unlock()
	pool.queueCond.Broadcast()
}

// Close stops accepting tasks, lets queued work finish, and waits for the
// workers to exit.
func (pool *workerPool) Close() {
	pool.queueMutex.Lock()
	pool.closed = true
	pool.queueMutex.Unlock()
	pool.queueCond.Broadcast()
	pool.workerWait.Wait()
}

func (pool *workerPool) workerLoop() {
	defer pool.workerWait.Done()
	for {
		pool.queueMutex.Lock()
		for len(pool.queue) == 0 && !pool.closed {
			pool.queueCond.Wait()
		}
		if len(pool.queue) == 0 && pool.closed {
			pool.queueMutex.Unlock()
			return
		}
		nextTask := pool.queue[0]
		pool.queue = pool.queue[1:]
		pool.queueMutex.Unlock()
		pool.runTask(nextTask)
	}
}

// aggregationState is the per-generation bookkeeping behind live folder
// totals. It is wholly replaced every time the view is repopulated; the
// generation counter invalidates results computed for a superseded view.
type aggregationState struct {
	pendingFilesByFolder   map[string]map[string]struct{}
	knownSubtotalByFolder  map[string]int
	folderMembershipByFile map[string][]string
}

// newAggregationState constructs empty bookkeeping.
func newAggregationState() *aggregationState {
	return &aggregationState{
		pendingFilesByFolder:   make(map[string]map[string]struct{}),
		knownSubtotalByFolder:  make(map[string]int),
		folderMembershipByFile: make(map[string][]string),
	}
}

// registerPending records that folderPath is waiting on filePath.
func (state *aggregationState) registerPending(folderPath string, filePath string) {
	pendingSet := state.pendingFilesByFolder[folderPath]
	if pendingSet == nil {
		pendingSet = make(map[string]struct{})
		state.pendingFilesByFolder[folderPath] = pendingSet
	}
	if _, alreadyPending := pendingSet[filePath]; alreadyPending {
		return
	}
	pendingSet[filePath] = struct{}{}
	state.folderMembershipByFile[filePath] = append(state.folderMembershipByFile[filePath], folderPath)
}

// scheduleCountsLocked partitions the current view items into cached and
// pending work. Cached counts are applied immediately and reported through
// the returned notifications; the returned tasks cover each distinct pending
// file once. Must be called with the service mutex held.
func (service *Service) scheduleCountsLocked() ([]countTask, []countNotification) {
	service.aggregation = newAggregationState()
	if !service.showTokenCounts {
		return nil, nil
	}

	pendingFileSet := make(map[string]struct{})
	var notifications []countNotification

	for _, viewItem := range service.viewItems {
		if viewItem.Synthetic {
			continue
		}
		if !viewItem.IsDirectory {
			if cachedTokens, isFresh := service.tokens.CachedCount(viewItem.Path); isFresh {
				viewItem.TokenCount = cachedTokens
				viewItem.HasTokenCount = true
				notifications = append(notifications, countNotification{path: viewItem.Path, tokens: cachedTokens})
			} else {
				pendingFileSet[viewItem.Path] = struct{}{}
			}
			continue
		}

		folderNode := service.folderNodesByPath[viewItem.Path]
		if folderNode == nil {
			continue
		}
		folderSubtotal := 0
		for _, memberFilePath := range folderNode.CollectFiles() {
			if cachedTokens, isFresh := service.tokens.CachedCount(memberFilePath); isFresh {
				folderSubtotal += cachedTokens
				continue
			}
			service.aggregation.registerPending(viewItem.Path, memberFilePath)
			pendingFileSet[memberFilePath] = struct{}{}
		}
		service.aggregation.knownSubtotalByFolder[viewItem.Path] = folderSubtotal
		viewItem.TokenCount = folderSubtotal
		viewItem.HasTokenCount = true
		notifications = append(notifications, countNotification{path: viewItem.Path, tokens: folderSubtotal})
	}

	scheduledTasks := make([]countTask, 0, len(pendingFileSet))
	for pendingFilePath := range pendingFileSet {
		scheduledTasks = append(scheduledTasks, countTask{generation: service.generation, filePath: pendingFilePath})
	}
	return scheduledTasks, notifications
}

// runCountTask executes one background count. Results tagged with a stale
// generation are discarded unconditionally; the generation pre-check merely
// avoids wasted reads.
func (service *Service) runCountTask(task countTask) {
	service.stateMutex.Lock()
	liveGeneration := service.generation
	service.stateMutex.Unlock()
	if task.generation != liveGeneration {
		return
	}

	fileTokens, countError := service.tokens.CountFile(task.filePath)
	service.deliverCount(task, fileTokens, countError != nil)
}

// deliverCount merges one completed count into the live view: the file's own
// item when still displayed, and the running subtotal of every folder that
// depends on the file. Folder totals grow monotonically as results arrive.
func (service *Service) deliverCount(task countTask, fileTokens int, countFailed bool) {
	var notifications []countNotification

	service.stateMutex.Lock()
	if task.generation != service.generation {
		service.stateMutex.Unlock()
		return
	}

	if fileItem := service.itemsByPath[task.filePath]; fileItem != nil && !fileItem.IsDirectory {
		fileItem.TokenCount = fileTokens
		fileItem.HasTokenCount = true
		fileItem.CountFailed = countFailed
		notifications = append(notifications, countNotification{path: task.filePath, tokens: fileTokens})
	}

	for _, folderPath := range service.aggregation.folderMembershipByFile[task.filePath] {
		pendingSet := service.aggregation.pendingFilesByFolder[folderPath]
		if pendingSet == nil {
			continue
		}
		if _, isPending := pendingSet[task.filePath]; !isPending {
			continue
		}
		delete(pendingSet, task.filePath)
		service.aggregation.knownSubtotalByFolder[folderPath] += fileTokens
		if folderItem := service.itemsByPath[folderPath]; folderItem != nil {
			folderItem.TokenCount = service.aggregation.knownSubtotalByFolder[folderPath]
			folderItem.HasTokenCount = true
			notifications = append(notifications, countNotification{path: folderPath, tokens: folderItem.TokenCount})
		}
	}
	countObserver := service.countObserver
	service.outstandingTasks--
	if service.outstandingTasks == 0 {
		service.idleCond.Broadcast()
	}
	service.stateMutex.Unlock()

	if countFailed {
		service.logger.Warn("token count failed, contributing zero tokens",
			zap.String("path", task.filePath))
	}
	if countObserver != nil {
		for _, notification := range notifications {
			countObserver(notification.path, notification.tokens)
		}
	}
}
