package selection

import (
	"path/filepath"
)

// SyntheticUpPath is the path of the synthetic "go up" view entry. The entry
// is not selectable for deletion and carries no token count.
const SyntheticUpPath = ".."

// ViewItem is one displayable entry of the current view. HasTokenCount
// distinguishes "not yet computed" from a computed count of zero;
// CountFailed marks files whose count failed and contributed zero.
type ViewItem struct {
	Path          string
	IsDirectory   bool
	DisplayName   string
	TokenCount    int
	HasTokenCount bool
	CountFailed   bool
	Synthetic     bool
}

// rootLocation denotes the root view in navigation state. The root view
// lists the top-level folders and files of the forest.
const rootLocation = ""

// navigationState holds the current location and the stack of parent
// locations to return to. Locations are absolute folder paths, or
// rootLocation for the root view.
type navigationState struct {
	currentFolder string
	history       []string
}

// descend pushes the current location and moves into folderPath.
func (state *navigationState) descend(folderPath string) {
	state.history = append(state.history, state.currentFolder)
	state.currentFolder = folderPath
}

// ascend pops the most recent parent location. Reports whether a parent
// location was available.
func (state *navigationState) ascend() bool {
	if len(state.history) == 0 {
		return false
	}
	state.currentFolder = state.history[len(state.history)-1]
	state.history = state.history[:len(state.history)-1]
	return true
}

// reset returns to the root view and clears the history.
func (state *navigationState) reset() {
	state.currentFolder = rootLocation
	state.history = nil
}

// atRoot reports whether the current location is the root view.
func (state *navigationState) atRoot() bool {
	return state.currentFolder == rootLocation
}

// projectListing turns a tree node into displayable items: folders before
// files, each sorted lexicographically, preceded by the synthetic up entry
// when history is available. The returned folder nodes parallel the folder
// items for aggregation.
func projectListing(listingNode *TreeNode, includeUpEntry bool) ([]*ViewItem, map[string]*TreeNode) {
	var projectedItems []*ViewItem
	if includeUpEntry {
		projectedItems = append(projectedItems, &ViewItem{
			Path:        SyntheticUpPath,
			IsDirectory: true,
			DisplayName: SyntheticUpPath,
			Synthetic:   true,
		})
	}
	folderNodesByPath := make(map[string]*TreeNode)
	if listingNode == nil {
		return projectedItems, folderNodesByPath
	}

	for _, folderPath := range listingNode.SortedFolderPaths() {
		projectedItems = append(projectedItems, &ViewItem{
			Path:        folderPath,
			IsDirectory: true,
			DisplayName: filepath.Base(folderPath),
		})
		folderNodesByPath[folderPath] = listingNode.Folders[folderPath]
	}
	for _, filePath := range listingNode.Files {
		projectedItems = append(projectedItems, &ViewItem{
			Path:        filePath,
			DisplayName: filepath.Base(filePath),
		})
	}
	return projectedItems, folderNodesByPath
}
