package fs

import (
	"errors"
	"io/fs"
	"os"
	"strings"
)

// ContainsFiles reports whether fsys holds a file ending in one of the
// suffixes. Without suffixes any file counts.
func ContainsFiles(fsys fs.FS, suffixes ...string) (bool, error) {
	// errFound stops the walk at the first match.
	errFound := os.ErrExist

	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if len(suffixes) == 0 {
			return errFound
		}
		for _, s := range suffixes {
			if strings.HasSuffix(path, s) {
				return errFound
			}
		}
		return nil
	})
	if err == errFound {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	return false, err
}
