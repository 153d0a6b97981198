package tokencount

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// missSizeSentinel marks cache entries recorded for files that could not be
// statted, read, or tokenized; such entries stay stale so the file is
// recounted, and the failure re-reported, on the next lookup.
const missSizeSentinel = int64(-1)

// cacheEntry records one counted file. Fresh iff a new stat still matches
// (modTime, size).
type cacheEntry struct {
	tokens  int
	modTime time.Time
	size    int64
}

// TextFilter reports whether a file should be treated as text. Used by
// CountFolder to honor text-only filtering.
type TextFilter func(filePath string) bool

// Service counts tokens in files, caching results keyed by
// (path, modification time, size). Entries are never evicted; they are only
// treated as stale on the next lookup when the file changed or vanished.
// A Service is safe for concurrent use by the worker pool and the caller.
type Service struct {
	counter    Counter
	logger     *zap.Logger
	cacheMutex sync.Mutex
	cache      map[string]cacheEntry

	// fileReads counts full file reads for cache-stability instrumentation.
	fileReads atomic.Int64
}

// NewService constructs a Service backed by counter. The logger may not be nil.
func NewService(counter Counter, logger *zap.Logger) *Service {
	return &Service{
		counter: counter,
		logger:  logger,
		cache:   make(map[string]cacheEntry),
	}
}

// FileReads returns how many full file reads the service has performed.
func (service *Service) FileReads() int64 {
	return service.fileReads.Load()
}

// CachedCount returns the cached token count for filePath when the cache
// entry is still fresh. A vanished file is recorded and reported as zero
// tokens.
func (service *Service) CachedCount(filePath string) (int, bool) {
	fileInfo, statError := os.Stat(filePath)
	if statError != nil {
		service.storeEntry(filePath, cacheEntry{tokens: 0, size: missSizeSentinel})
		return 0, true
	}

	service.cacheMutex.Lock()
	defer service.cacheMutex.Unlock()
	existingEntry, hasEntry := service.cache[filePath]
	if hasEntry && existingEntry.size == fileInfo.Size() && existingEntry.modTime.Equal(fileInfo.ModTime()) {
		return existingEntry.tokens, true
	}
	return 0, false
}

// CountFile returns the token count for filePath, reading and tokenizing the
// file only when no fresh cache entry exists. Failures are soft: the file
// contributes zero tokens and the error is returned for display purposes
// only. Failed entries never read as fresh, so the failure marker reappears
// whenever the file is counted again.
func (service *Service) CountFile(filePath string) (int, error) {
	fileInfo, statError := os.Stat(filePath)
	if statError != nil {
		service.storeEntry(filePath, cacheEntry{tokens: 0, size: missSizeSentinel})
		return 0, nil
	}

	service.cacheMutex.Lock()
	existingEntry, hasEntry := service.cache[filePath]
	service.cacheMutex.Unlock()
	if hasEntry && existingEntry.size == fileInfo.Size() && existingEntry.modTime.Equal(fileInfo.ModTime()) {
		return existingEntry.tokens, nil
	}

	fileBytes, readError := os.ReadFile(filePath)
	service.fileReads.Add(1)
	if readError != nil {
		service.logger.Warn("failed to read file for token counting",
			zap.String("path", filePath), zap.Error(readError))
		service.storeEntry(filePath, cacheEntry{tokens: 0, size: missSizeSentinel})
		return 0, readError
	}

	fileContent := strings.ToValidUTF8(string(fileBytes), string(utf8.RuneError))
	tokenTotal, countError := service.counter.CountString(fileContent)
	if countError != nil {
		service.logger.Warn("failed to tokenize file",
			zap.String("path", filePath), zap.Error(countError))
		service.storeEntry(filePath, cacheEntry{tokens: 0, size: missSizeSentinel})
		return 0, countError
	}

	service.storeEntry(filePath, cacheEntry{tokens: tokenTotal, modTime: fileInfo.ModTime(), size: fileInfo.Size()})
	return tokenTotal, nil
}

// CountFolder walks the directory tree under folderPath summing per-file
// token counts, pruning deleted paths and honoring textFilter when non-nil.
// This is a convenience fallback; the live view aggregation reuses the
// already-filtered tree instead of re-walking disk.
func (service *Service) CountFolder(folderPath string, deletedPaths map[string]struct{}, textFilter TextFilter) int {
	if _, isDeleted := deletedPaths[filepath.Clean(folderPath)]; isDeleted {
		return 0
	}

	folderTotal := 0
	walkError := filepath.WalkDir(folderPath, func(walkedPath string, directoryEntry fs.DirEntry, accessError error) error {
		if accessError != nil {
			service.logger.Warn("skipping unreadable path during folder count",
				zap.String("path", walkedPath), zap.Error(accessError))
			if directoryEntry != nil && directoryEntry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if _, isDeleted := deletedPaths[walkedPath]; isDeleted {
			if directoryEntry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if directoryEntry.IsDir() {
			return nil
		}
		if textFilter != nil && !textFilter(walkedPath) {
			return nil
		}
		fileTokens, _ := service.CountFile(walkedPath)
		folderTotal += fileTokens
		return nil
	})
	if walkError != nil {
		service.logger.Warn("folder token count incomplete",
			zap.String("path", folderPath), zap.Error(walkError))
	}
	return folderTotal
}

// storeEntry records entry for filePath under the cache mutex.
func (service *Service) storeEntry(filePath string, entry cacheEntry) {
	service.cacheMutex.Lock()
	service.cache[filePath] = entry
	service.cacheMutex.Unlock()
}
