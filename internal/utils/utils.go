// Package utils contains general helper functions shared across the gather tool.
package utils

import (
	"path/filepath"
)

// NormalizeAbsolutePath resolves pathValue to a cleaned absolute path.
// The cleaned input is returned unchanged when resolution fails.
func NormalizeAbsolutePath(pathValue string) string {
	absolutePath, absolutePathError := filepath.Abs(pathValue)
	if absolutePathError != nil {
		return filepath.Clean(pathValue)
	}
	return filepath.Clean(absolutePath)
}
