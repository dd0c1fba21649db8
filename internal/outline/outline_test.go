package outline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/docexplain/docexplain/internal/testutil"
)

func TestMarkdownReturnsTopLevelTitles(testingHandle *testing.T) {
	source := []byte("intro text\n\n## Ch1 *Light*\n\nbody\n\n### Detail\n\n## Ch2 `code`\n")

	titles := Markdown(source)

	testutil.RequireEqual(testingHandle, titles, []string{"Ch1 Light", "Ch2 code"}, "top-level titles")
}

func TestFileProviderReadsMarkdown(testingHandle *testing.T) {
	dir := testingHandle.TempDir()
	path := filepath.Join(dir, "book.md")
	if err := os.WriteFile(path, []byte("# Ch1\n\ntext\n\n# Ch2\n"), 0o600); err != nil {
		testingHandle.Fatalf("write document: %v", err)
	}

	titles, err := FileProvider{Path: path}.Outline(context.Background())
	testutil.RequireNoError(testingHandle, err, "outline")
	testutil.RequireEqual(testingHandle, titles, []string{"Ch1", "Ch2"}, "titles")
}

func TestFileProviderPlainTextHasNoOutline(testingHandle *testing.T) {
	path := filepath.Join(testingHandle.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("# not a heading here\n"), 0o600); err != nil {
		testingHandle.Fatalf("write document: %v", err)
	}

	titles, err := FileProvider{Path: path}.Outline(context.Background())
	testutil.RequireNoError(testingHandle, err, "outline")
	testutil.RequireEqual(testingHandle, titles, []string{}, "plain text outline")
}

func TestFileProviderMissingFile(testingHandle *testing.T) {
	_, err := FileProvider{Path: filepath.Join(testingHandle.TempDir(), "gone.md")}.Outline(context.Background())
	testutil.RequireError(testingHandle, err, "missing document")
}

func TestStaticReturnsCopy(testingHandle *testing.T) {
	provider := Static{"Ch1"}
	titles, _ := provider.Outline(context.Background())
	titles[0] = "changed"
	again, _ := provider.Outline(context.Background())
	testutil.RequireEqual(testingHandle, again, []string{"Ch1"}, "static outline is immutable")
}
