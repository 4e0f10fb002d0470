package entity

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// Tree resolves folder ids to their location in a bundle's folder hierarchy.
type Tree interface {
	// PathOf returns the encoded path segments leading to the folder,
	// excluding the root.
	PathOf(folderID string) ([]string, error)
	// FolderByPath returns the folder at the given encoded path.
	FolderByPath(segments []string) (*Entity, bool)
}

// Bundle is a collection of entities bucketed by kind. Every kind has its
// slot allocated up front so loaders may add entities of distinct kinds
// concurrently.
type Bundle struct {
	// Origin names where the bundle came from: a source directory or a
	// dependency file.
	Origin       string
	Dependencies []*Bundle
	Tree         Tree

	slots map[Kind]*slot
}

type slot struct {
	mu   sync.Mutex
	byID map[string]*Entity
	// byName holds, per name, the entity with the smallest id.
	byName map[string]*Entity
}

// index records e under its name. Callers hold s.mu.
func (s *slot) index(e *Entity) {
	if cur, ok := s.byName[e.Name]; !ok || cur.ID >= e.ID {
		s.byName[e.Name] = e
	}
}

// reindex recomputes the entry for name. Callers hold s.mu.
func (s *slot) reindex(name string) {
	delete(s.byName, name)
	for _, e := range s.byID {
		if e.Name == name {
			s.index(e)
		}
	}
}

// DuplicateEntityError is returned when an entity id is added twice.
type DuplicateEntityError struct {
	Existing *Entity
	Entity   *Entity
}

func (e *DuplicateEntityError) Error() string {
	msg := fmt.Sprintf("duplicate %s id %s", e.Entity.Kind, e.Entity.ID)
	if e.Entity.Source != "" || e.Existing.Source != "" {
		msg += fmt.Sprintf(" (in %s and %s)", e.Existing.Source, e.Entity.Source)
	}
	return msg
}

func NewBundle(origin string) *Bundle {
	b := &Bundle{Origin: origin, slots: make(map[Kind]*slot, len(kinds))}
	for k := range kinds {
		b.slots[k] = &slot{byID: make(map[string]*Entity), byName: make(map[string]*Entity)}
	}
	return b
}

// Add stores e. It is safe to call concurrently.
func (b *Bundle) Add(e *Entity) error {
	s, ok := b.slots[e.Kind]
	if !ok {
		return fmt.Errorf("unknown entity kind %q", e.Kind)
	}
	if e.ID == "" {
		return fmt.Errorf("%s %q has no id", e.Kind, e.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byID[e.ID]; ok {
		return &DuplicateEntityError{Existing: existing, Entity: e}
	}
	s.byID[e.ID] = e
	s.index(e)
	return nil
}

// Replace stores e, overwriting any entity of the same kind and id.
func (b *Bundle) Replace(e *Entity) {
	s := b.slots[e.Kind]
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.byID[e.ID]
	s.byID[e.ID] = e
	if ok && old.Name != e.Name {
		s.reindex(old.Name)
	}
	s.index(e)
}

func (b *Bundle) Get(k Kind, id string) (*Entity, bool) {
	s, ok := b.slots[k]
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	return e, ok
}

// ByName returns the entity of kind k named name. When several share the
// name the one with the smallest id is returned.
func (b *Bundle) ByName(k Kind, name string) (*Entity, bool) {
	s, ok := b.slots[k]
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byName[name]
	return e, ok
}

// Entities returns the entities of kind k ordered by name, then id.
func (b *Bundle) Entities(k Kind) []*Entity {
	s, ok := b.slots[k]
	if !ok {
		return nil
	}
	s.mu.Lock()
	out := make([]*Entity, 0, len(s.byID))
	for _, e := range s.byID {
		out = append(out, e)
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b *Entity) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// All returns every entity, grouped by kind in Kinds order.
func (b *Bundle) All() []*Entity {
	var out []*Entity
	for _, k := range Kinds() {
		out = append(out, b.Entities(k)...)
	}
	return out
}

func (b *Bundle) Folders() []*Entity {
	return b.Entities(KindFolder)
}

func (b *Bundle) Len() int {
	n := 0
	for _, s := range b.slots {
		s.mu.Lock()
		n += len(s.byID)
		s.mu.Unlock()
	}
	return n
}

// Count returns the number of entities of kind k.
func (b *Bundle) Count(k Kind) int {
	s, ok := b.slots[k]
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
