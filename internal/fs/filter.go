package fs

import (
	"fmt"
	"io/fs"
	"path"
	"slices"

	"github.com/gobwas/glob"
)

// FilterFS hides files of the wrapped file system. A file is visible when it
// matches one of the included patterns (or there are none) and none of the
// excluded ones. Directories are never hidden by the included patterns, so
// walking still reaches nested matches; an excluded directory hides its whole
// subtree.
type FilterFS struct {
	fsys     fs.FS
	included []glob.Glob
	excluded []glob.Glob
}

var (
	_ fs.ReadDirFS  = (*FilterFS)(nil)
	_ fs.StatFS     = (*FilterFS)(nil)
	_ fs.ReadFileFS = (*FilterFS)(nil)
)

// NewFilterFS wraps fsys. Patterns use '/' as the separator, so "*" stays
// within one path segment and "**" crosses segments.
func NewFilterFS(fsys fs.FS, included, excluded []string) (*FilterFS, error) {
	inc, err := compile(included)
	if err != nil {
		return nil, err
	}
	exc, err := compile(excluded)
	if err != nil {
		return nil, err
	}
	return &FilterFS{fsys: fsys, included: inc, excluded: exc}, nil
}

func compile(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid file pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

func matchAny(globs []glob.Glob, name string) bool {
	return slices.ContainsFunc(globs, func(g glob.Glob) bool { return g.Match(name) })
}

func (f *FilterFS) hidden(name string, dir bool) bool {
	if name == "." {
		return false
	}
	for p := name; p != "."; p = path.Dir(p) {
		if matchAny(f.excluded, p) {
			return true
		}
	}
	if dir || len(f.included) == 0 {
		return false
	}
	return !matchAny(f.included, name)
}

func (f *FilterFS) Open(name string) (fs.File, error) {
	fi, err := fs.Stat(f.fsys, name)
	if err != nil {
		return nil, err
	}
	if f.hidden(name, fi.IsDir()) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return f.fsys.Open(name)
}

func (f *FilterFS) Stat(name string) (fs.FileInfo, error) {
	fi, err := fs.Stat(f.fsys, name)
	if err != nil {
		return nil, err
	}
	if f.hidden(name, fi.IsDir()) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	return fi, nil
}

func (f *FilterFS) ReadFile(name string) ([]byte, error) {
	if _, err := f.Stat(name); err != nil {
		return nil, err
	}
	return fs.ReadFile(f.fsys, name)
}

func (f *FilterFS) ReadDir(name string) ([]fs.DirEntry, error) {
	if _, err := f.Stat(name); err != nil {
		return nil, err
	}
	entries, err := fs.ReadDir(f.fsys, name)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(entries, func(e fs.DirEntry) bool {
		return f.hidden(path.Join(name, e.Name()), e.IsDir())
	}), nil
}
