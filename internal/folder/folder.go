// Package folder resolves the folder hierarchy of a bundle and maps folder
// ids to encoded file system paths.
package folder

import (
	"cmp"
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/gatewaykit/gwbundle/internal/entity"
	"github.com/gatewaykit/gwbundle/internal/pathcodec"
)

// UnknownFolderError is returned when an entity refers to a folder that is
// not part of the tree.
type UnknownFolderError struct {
	ID     string
	Parent string
}

func (e *UnknownFolderError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("unknown folder %s", e.Parent)
	}
	return fmt.Sprintf("folder %s refers to unknown parent %s", e.ID, e.Parent)
}

// CyclicFolderTreeError is returned when following parent links from a
// folder never reaches the root.
type CyclicFolderTreeError struct {
	ID string
}

func (e *CyclicFolderTreeError) Error() string {
	return fmt.Sprintf("folder %s is part of a parent cycle", e.ID)
}

// RootFolderError is returned when a folder set does not have exactly one
// parentless folder.
type RootFolderError struct {
	Roots []string
}

func (e *RootFolderError) Error() string {
	if len(e.Roots) == 0 {
		return "folder tree has no root folder"
	}
	return fmt.Sprintf("folder tree has %d root folders: %s", len(e.Roots), strings.Join(e.Roots, ", "))
}

// Tree is an immutable view over a set of folders. PathOf results are
// cached; a Tree is safe for concurrent use.
type Tree struct {
	root     *entity.Entity
	byID     map[string]*entity.Entity
	children map[string][]*entity.Entity

	mu    sync.Mutex
	paths map[string][]string
}

// Build indexes folders and checks that they form a single tree.
func Build(folders []*entity.Entity) (*Tree, error) {
	t := &Tree{
		byID:     make(map[string]*entity.Entity, len(folders)),
		children: make(map[string][]*entity.Entity),
		paths:    make(map[string][]string),
	}

	var roots []string
	for _, f := range folders {
		t.byID[f.ID] = f
		if f.FolderID == "" {
			roots = append(roots, f.ID)
			t.root = f
		}
	}
	if len(roots) != 1 {
		slices.Sort(roots)
		return nil, &RootFolderError{Roots: roots}
	}

	for _, f := range folders {
		if f.FolderID == "" {
			continue
		}
		if _, ok := t.byID[f.FolderID]; !ok {
			return nil, &UnknownFolderError{ID: f.ID, Parent: f.FolderID}
		}
		t.children[f.FolderID] = append(t.children[f.FolderID], f)
	}

	for _, cs := range t.children {
		slices.SortFunc(cs, func(a, b *entity.Entity) int {
			return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
		})
	}

	for _, f := range folders {
		if _, err := t.ancestors(f.ID); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// ancestors returns the folders from id up to, but excluding, the root.
func (t *Tree) ancestors(id string) ([]*entity.Entity, error) {
	var chain []*entity.Entity
	cur := id
	for steps := 0; cur != t.root.ID; steps++ {
		if steps > len(t.byID) {
			return nil, &CyclicFolderTreeError{ID: id}
		}
		f, ok := t.byID[cur]
		if !ok {
			return nil, &UnknownFolderError{Parent: cur}
		}
		chain = append(chain, f)
		cur = f.FolderID
	}
	return chain, nil
}

func (t *Tree) Root() *entity.Entity {
	return t.root
}

// FolderOf returns the folder with the given id. The empty id denotes the
// root.
func (t *Tree) FolderOf(id string) (*entity.Entity, error) {
	if id == "" {
		return t.root, nil
	}
	f, ok := t.byID[id]
	if !ok {
		return nil, &UnknownFolderError{Parent: id}
	}
	return f, nil
}

// PathOf returns the encoded path segments from the root to the folder. The
// root and the empty id map to an empty path.
func (t *Tree) PathOf(id string) ([]string, error) {
	if id == "" || id == t.root.ID {
		return []string{}, nil
	}

	t.mu.Lock()
	p, ok := t.paths[id]
	t.mu.Unlock()
	if ok {
		return slices.Clone(p), nil
	}

	chain, err := t.ancestors(id)
	if err != nil {
		return nil, err
	}

	p = make([]string, len(chain))
	for i, f := range chain {
		seg, err := pathcodec.Encode(f.Name)
		if err != nil {
			return nil, fmt.Errorf("folder %s: %w", f.ID, err)
		}
		p[len(chain)-1-i] = seg
	}

	t.mu.Lock()
	t.paths[id] = p
	t.mu.Unlock()

	return slices.Clone(p), nil
}

// EntityPath returns the slash separated, encoded path of e: the path of its
// folder followed by its own encoded name. Folders yield their own path.
func (t *Tree) EntityPath(e *entity.Entity) (string, error) {
	if e.Kind == entity.KindFolder {
		p, err := t.PathOf(e.ID)
		if err != nil {
			return "", err
		}
		return path.Join(p...), nil
	}

	p, err := t.PathOf(e.FolderID)
	if err != nil {
		return "", err
	}
	name, err := pathcodec.Encode(e.Name)
	if err != nil {
		return "", fmt.Errorf("%s: %w", e, err)
	}
	return path.Join(append(p, name)...), nil
}

// FolderByPath returns the folder at the given encoded path. An empty path
// yields the root.
func (t *Tree) FolderByPath(segments []string) (*entity.Entity, bool) {
	cur := t.root
	for _, seg := range segments {
		name := pathcodec.Decode(seg)
		var next *entity.Entity
		for _, c := range t.children[cur.ID] {
			if c.Name == name {
				next = c
				break
			}
		}
		if next == nil {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Children returns the direct sub-folders of id, ordered by name.
func (t *Tree) Children(id string) []*entity.Entity {
	if id == "" {
		id = t.root.ID
	}
	return slices.Clone(t.children[id])
}

// Depth returns the number of folders between id and the root.
func (t *Tree) Depth(id string) (int, error) {
	if id == "" || id == t.root.ID {
		return 0, nil
	}
	chain, err := t.ancestors(id)
	if err != nil {
		return 0, err
	}
	return len(chain), nil
}

// Walk visits every folder, parents before children and siblings by name.
// Returning an error from fn stops the walk.
func (t *Tree) Walk(fn func(f *entity.Entity, depth int) error) error {
	type item struct {
		f     *entity.Entity
		depth int
	}
	queue := []item{{t.root, 0}}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		if err := fn(it.f, it.depth); err != nil {
			return err
		}
		for _, c := range t.children[it.f.ID] {
			queue = append(queue, item{c, it.depth + 1})
		}
	}
	return nil
}

func (t *Tree) Len() int {
	return len(t.byID)
}
