// Package tempfs creates throwaway directory trees for tests.
package tempfs

import (
	"os"
	"path/filepath"
	"testing"
)

// WithTempFS creates a temporary directory populated with files and calls
// f with its location. Keys of files are slash-separated paths relative to
// the root, values are file contents. The directory is removed when the
// test finishes.
func WithTempFS(t *testing.T, files map[string]string, f func(t *testing.T, root string)) {
	t.Helper()

	root := t.TempDir()

	for path, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	f(t, root)
}
