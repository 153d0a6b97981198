// Package selection maintains a user-curated selection of filesystem trees:
// it builds filtered views of the selected roots, supports folder-level
// navigation over the built tree, and keeps per-item token counts current
// through a bounded background worker pool.
package selection

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/gather/internal/classify"
	"github.com/temirov/gather/internal/ignore"
)

// FilterConfig is an immutable snapshot of the filter switches consumed at
// each tree build.
type FilterConfig struct {
	TextOnly         bool
	HideEmptyFolders bool
}

// TreeNode is one folder of the filtered tree. Folders maps absolute child
// folder paths to their subtrees; Files holds absolute child file paths.
// Every path in a built TreeNode existed on disk at build time, was not
// deleted, was not ignore-matched, and satisfied the active filters.
type TreeNode struct {
	Folders map[string]*TreeNode
	Files   []string
}

// newTreeNode constructs an empty TreeNode.
func newTreeNode() *TreeNode {
	return &TreeNode{Folders: make(map[string]*TreeNode)}
}

// FindSubtree returns the node for folderPath anywhere in the tree, checking
// direct children before descending. Returns nil when folderPath is not part
// of the built tree, e.g. because it vanished after the last build.
func (node *TreeNode) FindSubtree(folderPath string) *TreeNode {
	if directChild, isDirectChild := node.Folders[folderPath]; isDirectChild {
		return directChild
	}
	for _, childNode := range node.Folders {
		if foundNode := childNode.FindSubtree(folderPath); foundNode != nil {
			return foundNode
		}
	}
	return nil
}

// CollectFiles returns every file path in the node's transitive closure.
func (node *TreeNode) CollectFiles() []string {
	var collectedFiles []string
	node.appendFiles(&collectedFiles)
	return collectedFiles
}

func (node *TreeNode) appendFiles(collectedFiles *[]string) {
	*collectedFiles = append(*collectedFiles, node.Files...)
	for _, childNode := range node.Folders {
		childNode.appendFiles(collectedFiles)
	}
}

// SortedFolderPaths returns the node's direct subfolder paths in
// lexicographic order.
func (node *TreeNode) SortedFolderPaths() []string {
	folderPaths := make([]string, 0, len(node.Folders))
	for folderPath := range node.Folders {
		folderPaths = append(folderPaths, folderPath)
	}
	sort.Strings(folderPaths)
	return folderPaths
}

// Builder constructs filtered tree forests from a set of root paths.
type Builder struct {
	classifier *classify.Classifier
	logger     *zap.Logger
}

// NewBuilder constructs a Builder. The classifier's memo persists across
// builds; a file changing text-ness mid-session keeps its first verdict.
func NewBuilder(classifier *classify.Classifier, logger *zap.Logger) *Builder {
	return &Builder{classifier: classifier, logger: logger}
}

// Build scans the filesystem once and returns the filtered forest plus the
// sorted flat list of every included file. Root directories are scanned in
// parallel; results are deterministic regardless of scan order.
func (builder *Builder) Build(basePaths map[string]struct{}, filterConfig FilterConfig, deletedPaths map[string]struct{}) (*TreeNode, []string) {
	rootNode := newTreeNode()
	ruleResolver := ignore.NewResolver()

	rootPaths := make([]string, 0, len(basePaths))
	for rootPath := range basePaths {
		rootPaths = append(rootPaths, rootPath)
	}
	sort.Strings(rootPaths)

	var rootFiles []string
	var rootDirectories []string
	for _, rootPath := range rootPaths {
		if _, isDeleted := deletedPaths[rootPath]; isDeleted {
			continue
		}
		rootInfo, statError := os.Stat(rootPath)
		if statError != nil {
			builder.logger.Warn("skipping unreadable root path",
				zap.String("path", rootPath), zap.Error(statError))
			continue
		}
		if rootInfo.IsDir() {
			rootDirectories = append(rootDirectories, rootPath)
			continue
		}
		if !rootInfo.Mode().IsRegular() {
			continue
		}
		if filterConfig.TextOnly && !builder.classifier.IsText(rootPath) {
			continue
		}
		rootFiles = append(rootFiles, rootPath)
	}

	scannedSubtrees := make([]*TreeNode, len(rootDirectories))
	var scanGroup errgroup.Group
	scanGroup.SetLimit(runtime.NumCPU())
	for directoryIndex, directoryPath := range rootDirectories {
		directoryIndex, directoryPath := directoryIndex, directoryPath
		scanGroup.Go(func() error {
			scannedSubtrees[directoryIndex] = builder.scanDirectory(directoryPath, ruleResolver, filterConfig, deletedPaths)
			return nil
		})
	}
	_ = scanGroup.Wait()

	rootNode.Files = rootFiles
	for directoryIndex, directoryPath := range rootDirectories {
		if scannedSubtrees[directoryIndex] != nil {
			rootNode.Folders[directoryPath] = scannedSubtrees[directoryIndex]
		}
	}

	sortTreeFiles(rootNode)
	flatFileList := rootNode.CollectFiles()
	sort.Strings(flatFileList)
	return rootNode, flatFileList
}

// scanDirectory recursively builds the filtered node for directoryPath.
// Returns nil when the directory must be omitted from its parent: empty
// after filtering while hide-empty-folders is active. Unreadable
// directories are treated as empty.
func (builder *Builder) scanDirectory(directoryPath string, ruleResolver *ignore.Resolver, filterConfig FilterConfig, deletedPaths map[string]struct{}) *TreeNode {
	directoryNode := newTreeNode()

	directoryEntries, readDirectoryError := os.ReadDir(directoryPath)
	if readDirectoryError != nil {
		builder.logger.Warn("treating unreadable directory as empty",
			zap.String("path", directoryPath), zap.Error(readDirectoryError))
		directoryEntries = nil
	}

	ruleMatcher := ruleResolver.LoadRules(directoryPath)
	for _, directoryEntry := range directoryEntries {
		if directoryEntry.Name() == ignore.RuleFileName {
			continue
		}
		childPath := filepath.Join(directoryPath, directoryEntry.Name())
		if _, isDeleted := deletedPaths[childPath]; isDeleted {
			continue
		}
		if ignore.Ignored(ruleMatcher, childPath, directoryEntry.IsDir()) {
			continue
		}
		if directoryEntry.IsDir() {
			childNode := builder.scanDirectory(childPath, ruleResolver, filterConfig, deletedPaths)
			if childNode != nil {
				directoryNode.Folders[childPath] = childNode
			}
			continue
		}
		if !directoryEntry.Type().IsRegular() {
			continue
		}
		if filterConfig.TextOnly && !builder.classifier.IsText(childPath) {
			continue
		}
		directoryNode.Files = append(directoryNode.Files, childPath)
	}

	if filterConfig.HideEmptyFolders && len(directoryNode.Files) == 0 && len(directoryNode.Folders) == 0 {
		return nil
	}
	return directoryNode
}

// sortTreeFiles sorts every file sequence in the tree lexicographically.
// Performed once after assembly rather than per directory during the
// parallel scan.
func sortTreeFiles(node *TreeNode) {
	sort.Strings(node.Files)
	for _, childNode := range node.Folders {
		sortTreeFiles(childNode)
	}
}
