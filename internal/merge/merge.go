// Package merge renders the concatenated text artifact for a list of files.
package merge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/gather/internal/classify"
)

// headerFormat frames each file's normalized forward-slash path.
const headerFormat = "############## %s ##############"

// Renderer merges file contents into one delimited text artifact.
type Renderer struct {
	classifier *classify.Classifier
	logger     *zap.Logger
}

// NewRenderer constructs a Renderer using classifier to skip non-text files.
func NewRenderer(classifier *classify.Classifier, logger *zap.Logger) *Renderer {
	return &Renderer{classifier: classifier, logger: logger}
}

// RenderMergedOutput emits, for each text file in input order, a header line
// with the forward-slash path, the raw file content, and a blank-line
// separator. Non-text and unreadable files are skipped with a logged notice;
// the merge itself never fails.
func (renderer *Renderer) RenderMergedOutput(filePaths []string) string {
	var outputSections []string
	for _, filePath := range filePaths {
		if !renderer.classifier.IsText(filePath) {
			renderer.logger.Info("skipping non-text file in merged output",
				zap.String("path", filePath))
			continue
		}
		fileBytes, readError := os.ReadFile(filePath)
		if readError != nil {
			renderer.logger.Warn("skipping unreadable file in merged output",
				zap.String("path", filePath), zap.Error(readError))
			continue
		}
		headerLine := fmt.Sprintf(headerFormat, filepath.ToSlash(filePath))
		outputSections = append(outputSections, headerLine, string(fileBytes), "")
	}
	return strings.Join(outputSections, "\n")
}
