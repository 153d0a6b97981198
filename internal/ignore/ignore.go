// Package ignore loads gitignore-style exclusion rules for directories,
// combining every rule file found at and above a directory into one matcher.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gitignore "github.com/monochromegane/go-gitignore"
)

// RuleFileName is the name of the exclusion-pattern file recognized in every directory.
const RuleFileName = ".gitignore"

// commentPrefix marks pattern lines that carry no rule.
const commentPrefix = "#"

// Matcher evaluates paths against a compiled pattern set. A nil Matcher
// matches nothing.
type Matcher = gitignore.IgnoreMatcher

// Resolver builds and caches per-directory matchers. A Resolver is safe for
// concurrent use; cached matchers are never invalidated, so one Resolver is
// intended to live for a single tree-build pass.
type Resolver struct {
	cacheMutex   sync.Mutex
	matcherCache map[string]Matcher
}

// NewResolver constructs a Resolver with an empty matcher cache.
func NewResolver() *Resolver {
	return &Resolver{matcherCache: make(map[string]Matcher)}
}

// LoadRules returns the matcher for directoryPath, compiling the combined
// pattern set of every rule file found from the filesystem root down to
// directoryPath. Outer patterns precede inner ones, so nested rule files
// augment their ancestors. Returns nil when no rule file exists anywhere in
// the ancestry.
func (resolver *Resolver) LoadRules(directoryPath string) Matcher {
	cleanDirectoryPath := filepath.Clean(directoryPath)

	resolver.cacheMutex.Lock()
	cachedMatcher, hasCachedMatcher := resolver.matcherCache[cleanDirectoryPath]
	resolver.cacheMutex.Unlock()
	if hasCachedMatcher {
		return cachedMatcher
	}

	combinedPatterns := collectAncestorPatterns(cleanDirectoryPath)
	var compiledMatcher Matcher
	if len(combinedPatterns) > 0 {
		patternReader := strings.NewReader(strings.Join(combinedPatterns, "\n"))
		compiledMatcher = gitignore.NewGitIgnoreFromReader(cleanDirectoryPath, patternReader)
	}

	resolver.cacheMutex.Lock()
	resolver.matcherCache[cleanDirectoryPath] = compiledMatcher
	resolver.cacheMutex.Unlock()
	return compiledMatcher
}

// Ignored reports whether candidatePath is excluded by matcher. A nil
// matcher excludes nothing.
func Ignored(matcher Matcher, candidatePath string, isDirectory bool) bool {
	if matcher == nil {
		return false
	}
	return matcher.Match(candidatePath, isDirectory)
}

// collectAncestorPatterns gathers rule-file lines from the filesystem root
// down to directoryPath, skipping blank lines and comments.
func collectAncestorPatterns(directoryPath string) []string {
	var ancestorDirectories []string
	currentDirectory := directoryPath
	for {
		ancestorDirectories = append(ancestorDirectories, currentDirectory)
		parentDirectory := filepath.Dir(currentDirectory)
		if parentDirectory == currentDirectory {
			break
		}
		currentDirectory = parentDirectory
	}

	var combinedPatterns []string
	for ancestorIndex := len(ancestorDirectories) - 1; ancestorIndex >= 0; ancestorIndex-- {
		ruleFilePath := filepath.Join(ancestorDirectories[ancestorIndex], RuleFileName)
		combinedPatterns = append(combinedPatterns, readPatternLines(ruleFilePath)...)
	}
	return combinedPatterns
}

// readPatternLines returns the non-comment, non-blank lines of the rule file
// at ruleFilePath, or nil if the file cannot be read.
func readPatternLines(ruleFilePath string) []string {
	fileHandle, openError := os.Open(ruleFilePath)
	if openError != nil {
		return nil
	}
	defer fileHandle.Close()

	var patternLines []string
	lineScanner := bufio.NewScanner(fileHandle)
	for lineScanner.Scan() {
		trimmedLine := strings.TrimSpace(lineScanner.Text())
		if trimmedLine == "" || strings.HasPrefix(trimmedLine, commentPrefix) {
			continue
		}
		patternLines = append(patternLines, trimmedLine)
	}
	return patternLines
}
