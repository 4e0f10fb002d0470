// Package tempfs provides file system fixtures for tests.
package tempfs

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
)

// WithTempFS writes files into a fresh temporary directory and calls fn with
// its path. Keys are slash separated paths relative to the root.
func WithTempFS(t *testing.T, files map[string]string, fn func(t *testing.T, root string)) {
	t.Helper()

	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	fn(t, root)
}

// MapFS returns an in-memory file system holding the given files.
func MapFS(m map[string]string) fs.FS {
	m0 := make(map[string]*fstest.MapFile, len(m))
	for p, f := range m {
		m0[p] = &fstest.MapFile{Data: []byte(f)}
	}
	return fstest.MapFS(m0)
}

// ReadAll returns the regular files below root keyed by slash separated
// relative path.
func ReadAll(t *testing.T, root string) map[string]string {
	t.Helper()

	out := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		bs, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(bs)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return out
}
