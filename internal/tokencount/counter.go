// Package tokencount estimates token counts for file contents and caches
// results keyed by file identity and freshness.
package tokencount

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Counter estimates token counts for text content.
type Counter interface {
	Name() string
	CountString(input string) (int, error)
}

const (
	// DefaultModel selects the tokenizer when no model is configured.
	DefaultModel = "gpt-4o"
	// defaultEncodingName is used when the model has no registered encoding.
	defaultEncodingName = "cl100k_base"
	// legacyEncodingName is the final fallback encoding.
	legacyEncodingName = "p50k_base"
)

type encodingCounter struct {
	encoding *tiktoken.Tiktoken
	name     string
}

func (counter encodingCounter) Name() string {
	return counter.name
}

// CountString tokenizes input and returns the token count. Special token
// text is encoded as ordinary text, never as meta-tokens.
func (counter encodingCounter) CountString(input string) (int, error) {
	if counter.encoding == nil {
		return 0, fmt.Errorf("nil tiktoken encoder")
	}
	tokenIdentifiers := counter.encoding.Encode(input, nil, nil)
	return len(tokenIdentifiers), nil
}

// NewCounter returns a Counter for the requested model name. Unknown models
// fall back to the cl100k_base encoding, then to p50k_base.
func NewCounter(modelName string) (Counter, error) {
	trimmedModelName := strings.TrimSpace(modelName)
	if trimmedModelName == "" {
		trimmedModelName = DefaultModel
	}
	lowerModelName := strings.ToLower(trimmedModelName)

	encoding, encodingError := tiktoken.EncodingForModel(lowerModelName)
	if encodingError == nil && encoding != nil {
		return encodingCounter{encoding: encoding, name: lowerModelName}, nil
	}

	fallbackEncoding, fallbackError := tiktoken.GetEncoding(defaultEncodingName)
	if fallbackError == nil && fallbackEncoding != nil {
		return encodingCounter{encoding: fallbackEncoding, name: defaultEncodingName}, nil
	}

	legacyEncoding, legacyError := tiktoken.GetEncoding(legacyEncodingName)
	if legacyError != nil {
		return nil, fmt.Errorf("initialize fallback tokenizer: %w", legacyError)
	}
	return encodingCounter{encoding: legacyEncoding, name: legacyEncodingName}, nil
}
