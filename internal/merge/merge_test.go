package merge_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/temirov/gather/internal/classify"
	"github.com/temirov/gather/internal/merge"
)

func newTestRenderer() *merge.Renderer {
	return merge.NewRenderer(classify.NewClassifier(), zap.NewNop())
}

func TestRenderMergedOutputEmitsHeadersInOrder(testingHandle *testing.T) {
	rootDirectory := testingHandle.TempDir()
	firstFilePath := filepath.Join(rootDirectory, "first.txt")
	secondFilePath := filepath.Join(rootDirectory, "second.txt")
	if writeError := os.WriteFile(firstFilePath, []byte("alpha body"), 0o644); writeError != nil {
		testingHandle.Fatalf("writing first file: %v", writeError)
	}
	if writeError := os.WriteFile(secondFilePath, []byte("beta body"), 0o644); writeError != nil {
		testingHandle.Fatalf("writing second file: %v", writeError)
	}

	mergedOutput := newTestRenderer().RenderMergedOutput([]string{firstFilePath, secondFilePath})

	firstHeader := "############## " + filepath.ToSlash(firstFilePath) + " ##############"
	secondHeader := "############## " + filepath.ToSlash(secondFilePath) + " ##############"
	firstHeaderIndex := strings.Index(mergedOutput, firstHeader)
	secondHeaderIndex := strings.Index(mergedOutput, secondHeader)
	if firstHeaderIndex < 0 || secondHeaderIndex < 0 {
		testingHandle.Fatalf("expected both headers in output:\n%s", mergedOutput)
	}
	if firstHeaderIndex > secondHeaderIndex {
		testingHandle.Fatalf("expected headers in input order")
	}
	if !strings.Contains(mergedOutput, "alpha body") || !strings.Contains(mergedOutput, "beta body") {
		testingHandle.Fatalf("expected raw contents verbatim:\n%s", mergedOutput)
	}
}

func TestRenderMergedOutputSkipsNonTextFiles(testingHandle *testing.T) {
	rootDirectory := testingHandle.TempDir()
	textFilePath := filepath.Join(rootDirectory, "kept.txt")
	binaryFilePath := filepath.Join(rootDirectory, "skipped.zqx")
	if writeError := os.WriteFile(textFilePath, []byte("kept content"), 0o644); writeError != nil {
		testingHandle.Fatalf("writing text file: %v", writeError)
	}
	if writeError := os.WriteFile(binaryFilePath, []byte{0x00, 0x01, 0x02}, 0o644); writeError != nil {
		testingHandle.Fatalf("writing binary file: %v", writeError)
	}

	mergedOutput := newTestRenderer().RenderMergedOutput([]string{binaryFilePath, textFilePath})

	if strings.Contains(mergedOutput, filepath.ToSlash(binaryFilePath)) {
		testingHandle.Fatalf("expected binary file to be skipped:\n%s", mergedOutput)
	}
	if !strings.Contains(mergedOutput, "kept content") {
		testingHandle.Fatalf("expected text file content in output")
	}
}

func TestRenderMergedOutputSkipsUnreadableFiles(testingHandle *testing.T) {
	rootDirectory := testingHandle.TempDir()
	presentFilePath := filepath.Join(rootDirectory, "present.txt")
	missingFilePath := filepath.Join(rootDirectory, "missing.txt")
	if writeError := os.WriteFile(presentFilePath, []byte("present content"), 0o644); writeError != nil {
		testingHandle.Fatalf("writing present file: %v", writeError)
	}

	mergedOutput := newTestRenderer().RenderMergedOutput([]string{missingFilePath, presentFilePath})

	if strings.Contains(mergedOutput, filepath.ToSlash(missingFilePath)) {
		testingHandle.Fatalf("expected missing file to be skipped:\n%s", mergedOutput)
	}
	if !strings.Contains(mergedOutput, "present content") {
		testingHandle.Fatalf("expected surviving file content in output")
	}
}
