package selection_test

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/temirov/gather/internal/classify"
	"github.com/temirov/gather/internal/selection"
	"github.com/temirov/gather/internal/tokencount"
)

// runeCounter counts one token per rune so expected totals are just content
// lengths.
type runeCounter struct{}

func (runeCounter) Name() string { return "rune" }

func (runeCounter) CountString(input string) (int, error) { return len([]rune(input)), nil }

// gatedCounter blocks counting of content containing slowMarker until the
// gate channel is closed.
type gatedCounter struct {
	gate       chan struct{}
	slowMarker string
}

func (counter gatedCounter) Name() string { return "gated" }

func (counter gatedCounter) CountString(input string) (int, error) {
	if strings.Contains(input, counter.slowMarker) {
		<-counter.gate
	}
	return len([]rune(input)), nil
}

func newSelectionService(counter tokencount.Counter) *selection.Service {
	testLogger := zap.NewNop()
	return selection.NewService(
		classify.NewClassifier(),
		tokencount.NewService(counter, testLogger),
		selection.FilterConfig{TextOnly: true, HideEmptyFolders: true},
		testLogger,
	)
}

func viewPaths(viewItems []selection.ViewItem) []string {
	paths := make([]string, len(viewItems))
	for itemIndex, viewItem := range viewItems {
		paths[itemIndex] = viewItem.Path
	}
	return paths
}

func TestRootViewListsScenarioProject(testingHandle *testing.T) {
	projectDirectory, rootTextPath, rootBinaryPath, subTextPath := writeScenarioProject(testingHandle)
	selectionService := newSelectionService(runeCounter{})
	defer selectionService.Close()

	selectionService.AddRoots([]string{projectDirectory})
	selectionService.NavigateInto(projectDirectory)
	selectionService.WaitForCounts()

	viewItems := selectionService.ViewItems()
	subDirectoryPath := filepath.Join(projectDirectory, subDirectoryName)
	expectedPaths := []string{selection.SyntheticUpPath, subDirectoryPath, rootTextPath}
	if !equalStrings(viewPaths(viewItems), expectedPaths) {
		testingHandle.Fatalf("expected view paths %v, got %v", expectedPaths, viewPaths(viewItems))
	}
	for _, viewItem := range viewItems {
		switch viewItem.Path {
		case subDirectoryPath:
			if !viewItem.HasTokenCount || viewItem.TokenCount != len(textSubContent) {
				testingHandle.Fatalf("expected folder total %d, got %+v", len(textSubContent), viewItem)
			}
		case rootTextPath:
			if !viewItem.HasTokenCount || viewItem.TokenCount != len(textRootContent) {
				testingHandle.Fatalf("expected file count %d, got %+v", len(textRootContent), viewItem)
			}
		}
	}
	if pathsContain(viewPaths(viewItems), rootBinaryPath) {
		testingHandle.Fatalf("expected binary file to be filtered from the view")
	}
	expectedFlat := []string{rootTextPath, subTextPath}
	if !equalStrings(selectionService.AllIncludedFiles(), expectedFlat) {
		testingHandle.Fatalf("expected included files %v, got %v", expectedFlat, selectionService.AllIncludedFiles())
	}
}

func TestFolderTotalAggregatesTransitiveFiles(testingHandle *testing.T) {
	projectDirectory, _, _, _ := writeScenarioProject(testingHandle)
	selectionService := newSelectionService(runeCounter{})
	defer selectionService.Close()

	selectionService.AddRoots([]string{projectDirectory})
	selectionService.WaitForCounts()

	viewItems := selectionService.ViewItems()
	if len(viewItems) != 1 || viewItems[0].Path != projectDirectory {
		testingHandle.Fatalf("expected single root folder item, got %v", viewPaths(viewItems))
	}
	expectedTotal := len(textRootContent) + len(textSubContent)
	if !viewItems[0].HasTokenCount || viewItems[0].TokenCount != expectedTotal {
		testingHandle.Fatalf("expected aggregated total %d, got %+v", expectedTotal, viewItems[0])
	}
}

func TestDeletingLastSubFileRemovesFolder(testingHandle *testing.T) {
	projectDirectory, rootTextPath, _, subTextPath := writeScenarioProject(testingHandle)
	selectionService := newSelectionService(runeCounter{})
	defer selectionService.Close()

	selectionService.AddRoots([]string{projectDirectory})
	selectionService.NavigateInto(projectDirectory)
	selectionService.Delete([]string{subTextPath})
	selectionService.WaitForCounts()

	viewItems := selectionService.ViewItems()
	expectedPaths := []string{selection.SyntheticUpPath, rootTextPath}
	if !equalStrings(viewPaths(viewItems), expectedPaths) {
		testingHandle.Fatalf("expected emptied folder to disappear, got %v", viewPaths(viewItems))
	}
}

func TestNavigateUpReturnsToRootView(testingHandle *testing.T) {
	projectDirectory, _, _, _ := writeScenarioProject(testingHandle)
	selectionService := newSelectionService(runeCounter{})
	defer selectionService.Close()

	selectionService.AddRoots([]string{projectDirectory})
	selectionService.NavigateInto(projectDirectory)
	if !selectionService.NavigateUp() {
		testingHandle.Fatalf("expected NavigateUp to succeed with history available")
	}
	viewItems := selectionService.ViewItems()
	if len(viewItems) != 1 || viewItems[0].Path != projectDirectory {
		testingHandle.Fatalf("expected root view after ascending, got %v", viewPaths(viewItems))
	}
	if selectionService.NavigateUp() {
		testingHandle.Fatalf("expected NavigateUp to fail at the root view")
	}
}

func TestNavigateIntoVanishedFolderShowsEmptyListing(testingHandle *testing.T) {
	projectDirectory, _, _, _ := writeScenarioProject(testingHandle)
	selectionService := newSelectionService(runeCounter{})
	defer selectionService.Close()

	selectionService.AddRoots([]string{projectDirectory})
	selectionService.NavigateInto(filepath.Join(projectDirectory, "missing"))
	selectionService.WaitForCounts()

	viewItems := selectionService.ViewItems()
	if len(viewItems) != 1 || !viewItems[0].Synthetic {
		testingHandle.Fatalf("expected only the synthetic up entry, got %v", viewPaths(viewItems))
	}
}

func TestDeletePreservesClampedSelectedRow(testingHandle *testing.T) {
	projectDirectory, rootTextPath, _, _ := writeScenarioProject(testingHandle)
	selectionService := newSelectionService(runeCounter{})
	defer selectionService.Close()

	selectionService.AddRoots([]string{projectDirectory})
	selectionService.NavigateInto(projectDirectory)
	viewItems := selectionService.ViewItems()
	selectionService.SetSelectedRow(len(viewItems) - 1)

	selectionService.Delete([]string{rootTextPath})
	remainingItems := selectionService.ViewItems()
	selectedRow := selectionService.SelectedRow()
	if selectedRow < 0 || selectedRow >= len(remainingItems) {
		testingHandle.Fatalf("expected selected row clamped to %d items, got %d", len(remainingItems), selectedRow)
	}
}

func TestStaleGenerationResultsAreDropped(testingHandle *testing.T) {
	projectDirectory := testingHandle.TempDir()
	fastFilePath := filepath.Join(projectDirectory, "fast.txt")
	slowFilePath := filepath.Join(projectDirectory, "slow.txt")
	if writeError := os.WriteFile(fastFilePath, []byte("fast"), 0o644); writeError != nil {
		testingHandle.Fatalf("writing fast file: %v", writeError)
	}
	if writeError := os.WriteFile(slowFilePath, []byte("slowpoke"), 0o644); writeError != nil {
		testingHandle.Fatalf("writing slow file: %v", writeError)
	}

	countGate := make(chan struct{})
	selectionService := newSelectionService(gatedCounter{gate: countGate, slowMarker: "slowpoke"})

	selectionService.AddRoots([]string{projectDirectory})
	selectionService.Delete([]string{slowFilePath})
	close(countGate)
	selectionService.WaitForCounts()
	selectionService.Close()

	viewItems := selectionService.ViewItems()
	if len(viewItems) != 1 || viewItems[0].Path != projectDirectory {
		testingHandle.Fatalf("expected single root folder item, got %v", viewPaths(viewItems))
	}
	if !viewItems[0].HasTokenCount || viewItems[0].TokenCount != len("fast") {
		testingHandle.Fatalf("expected stale slow result to be dropped, folder item %+v", viewItems[0])
	}
}

func TestCountObserverReceivesFinalizedCounts(testingHandle *testing.T) {
	projectDirectory, rootTextPath, _, _ := writeScenarioProject(testingHandle)
	selectionService := newSelectionService(runeCounter{})
	defer selectionService.Close()

	var observedMutex sync.Mutex
	observedCounts := make(map[string]int)
	selectionService.SetCountObserver(func(notifiedPath string, tokenTotal int) {
		observedMutex.Lock()
		observedCounts[notifiedPath] = tokenTotal
		observedMutex.Unlock()
	})

	selectionService.AddRoots([]string{projectDirectory})
	selectionService.NavigateInto(projectDirectory)
	selectionService.WaitForCounts()

	observedMutex.Lock()
	defer observedMutex.Unlock()
	if observedCounts[rootTextPath] != len(textRootContent) {
		testingHandle.Fatalf("expected observer to receive %d for %s, observed %v",
			len(textRootContent), rootTextPath, observedCounts)
	}
}

func TestSetShowTokenCountsTogglesCounting(testingHandle *testing.T) {
	projectDirectory, _, _, _ := writeScenarioProject(testingHandle)
	selectionService := newSelectionService(runeCounter{})
	defer selectionService.Close()

	selectionService.AddRoots([]string{projectDirectory})
	selectionService.SetShowTokenCounts(false)
	selectionService.WaitForCounts()
	for _, viewItem := range selectionService.ViewItems() {
		if viewItem.HasTokenCount {
			testingHandle.Fatalf("expected no counts while disabled, got %+v", viewItem)
		}
	}

	selectionService.SetShowTokenCounts(true)
	selectionService.WaitForCounts()
	viewItems := selectionService.ViewItems()
	expectedTotal := len(textRootContent) + len(textSubContent)
	if !viewItems[0].HasTokenCount || viewItems[0].TokenCount != expectedTotal {
		testingHandle.Fatalf("expected counts to return when re-enabled, got %+v", viewItems[0])
	}
}

func TestSetFilterIncludesBinaryWhenTextOnlyDisabled(testingHandle *testing.T) {
	projectDirectory, _, rootBinaryPath, _ := writeScenarioProject(testingHandle)
	selectionService := newSelectionService(runeCounter{})
	defer selectionService.Close()

	selectionService.AddRoots([]string{projectDirectory})
	selectionService.NavigateInto(projectDirectory)
	selectionService.SetFilter(selection.FilterConfig{TextOnly: false, HideEmptyFolders: true})
	selectionService.WaitForCounts()

	if !pathsContain(viewPaths(selectionService.ViewItems()), rootBinaryPath) {
		testingHandle.Fatalf("expected binary file in view with text-only disabled")
	}
}

func equalStrings(actual []string, expected []string) bool {
	if len(actual) != len(expected) {
		return false
	}
	for valueIndex := range actual {
		if actual[valueIndex] != expected[valueIndex] {
			return false
		}
	}
	return true
}

func pathsContain(paths []string, target string) bool {
	for _, candidatePath := range paths {
		if candidatePath == target {
			return true
		}
	}
	return false
}
