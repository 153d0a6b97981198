// Package classify decides whether files contain text suitable for merging
// and token counting.
package classify

import (
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"
)

// sniffLength defines the maximum number of bytes read when sniffing file content.
const sniffLength = 8192

// textMimePrefix marks MIME types that are treated as text without sniffing.
const textMimePrefix = "text/"

// knownTextExtensions lists lowercase extensions accepted as text without
// any MIME guess or content sniff.
var knownTextExtensions = map[string]struct{}{
	".bash": {}, ".bat": {}, ".c": {}, ".cc": {}, ".cfg": {}, ".conf": {},
	".cpp": {}, ".cs": {}, ".css": {}, ".csv": {}, ".go": {}, ".gradle": {},
	".h": {}, ".hpp": {}, ".html": {}, ".ini": {}, ".java": {}, ".js": {},
	".json": {}, ".jsx": {}, ".kt": {}, ".log": {}, ".lua": {}, ".md": {},
	".php": {}, ".pl": {}, ".properties": {}, ".ps1": {}, ".py": {}, ".rb": {},
	".rs": {}, ".sh": {}, ".sql": {}, ".swift": {}, ".toml": {}, ".ts": {},
	".tsx": {}, ".txt": {}, ".xml": {}, ".yaml": {}, ".yml": {}, ".zsh": {},
}

// Classifier reports whether files are text, memoizing results per path.
// A Classifier is safe for concurrent use. Memoized verdicts are never
// invalidated; a file whose content changes class mid-session keeps its
// original verdict.
type Classifier struct {
	memoMutex sync.Mutex
	memo      map[string]bool
}

// NewClassifier constructs an empty Classifier.
func NewClassifier() *Classifier {
	return &Classifier{memo: make(map[string]bool)}
}

// IsText reports whether the file at filePath is text. Checks short-circuit
// in order: known extension, MIME type guessed from the extension, content
// sniff. Unreadable files are classified as non-text.
func (classifier *Classifier) IsText(filePath string) bool {
	classifier.memoMutex.Lock()
	memoizedVerdict, hasMemoizedVerdict := classifier.memo[filePath]
	classifier.memoMutex.Unlock()
	if hasMemoizedVerdict {
		return memoizedVerdict
	}

	verdict := classifyPath(filePath)

	classifier.memoMutex.Lock()
	classifier.memo[filePath] = verdict
	classifier.memoMutex.Unlock()
	return verdict
}

// classifyPath evaluates the classification checks without consulting the memo.
func classifyPath(filePath string) bool {
	extension := strings.ToLower(filepath.Ext(filePath))
	if _, isKnownExtension := knownTextExtensions[extension]; isKnownExtension {
		return true
	}
	if mimeType := mime.TypeByExtension(extension); strings.HasPrefix(mimeType, textMimePrefix) {
		return true
	}
	return sniffContentIsText(filePath)
}

// sniffContentIsText reads up to sniffLength bytes and reports whether the
// sample is NUL-free valid UTF-8. Any read error classifies the file as
// non-text.
func sniffContentIsText(filePath string) bool {
	fileHandle, openError := os.Open(filePath)
	if openError != nil {
		return false
	}
	defer fileHandle.Close()

	sampleBuffer := make([]byte, sniffLength)
	bytesRead, readError := fileHandle.Read(sampleBuffer)
	if readError != nil && readError != io.EOF {
		return false
	}
	sample := sampleBuffer[:bytesRead]

	for _, sampleByte := range sample {
		if sampleByte == 0 {
			return false
		}
	}

	if bytesRead == sniffLength {
		// The sample may end mid-rune; drop the trailing partial sequence
		// before validating.
		sample = trimPartialTrailingRune(sample)
	}
	return utf8.Valid(sample)
}

// trimPartialTrailingRune removes an incomplete UTF-8 sequence from the end
// of sample, if present.
func trimPartialTrailingRune(sample []byte) []byte {
	for trailingOffset := 1; trailingOffset <= utf8.UTFMax && trailingOffset <= len(sample); trailingOffset++ {
		candidateByte := sample[len(sample)-trailingOffset]
		if utf8.RuneStart(candidateByte) {
			if decodedRune, _ := utf8.DecodeRune(sample[len(sample)-trailingOffset:]); decodedRune == utf8.RuneError {
				return sample[:len(sample)-trailingOffset]
			}
			break
		}
	}
	return sample
}
