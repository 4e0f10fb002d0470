package builder

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/gatewaykit/gwbundle/internal/entity"
	"github.com/gatewaykit/gwbundle/internal/linker"
	"github.com/gatewaykit/gwbundle/internal/logging"
)

// Selection is an entity chosen for output.
type Selection struct {
	Entity *entity.Entity
	Bundle *entity.Bundle
	// FromDependency is set for entities taken from a dependency bundle.
	FromDependency bool
	// Reached is set for entities selected because another selected entity
	// refers to them.
	Reached bool

	path      []string // folders only
	referrers []*Selection
	forced    bool
}

// Unresolved is a reference no bundle could satisfy.
type Unresolved struct {
	From *entity.Entity
	Ref  linker.Reference
}

func (u Unresolved) String() string {
	return fmt.Sprintf("%s refers to unknown %s", u.From, u.Ref)
}

// Resolution is the set of entities to emit, computed from a local bundle
// and its dependency bundles.
type Resolution struct {
	selected   map[entity.Dependency]*Selection
	redirects  map[entity.Dependency]string
	Unresolved []Unresolved
	Notes      []string
}

func (r *Resolution) Get(k entity.Kind, id string) (*Selection, bool) {
	s, ok := r.selected[entity.Dependency{ID: id, Kind: k}]
	return s, ok
}

func (r *Resolution) Len() int {
	return len(r.selected)
}

// Selections returns the selected entities of kind k in emission order:
// folders by depth then path, everything else by name then id.
func (r *Resolution) Selections(k entity.Kind) []*Selection {
	var out []*Selection
	for key, s := range r.selected {
		if key.Kind == k {
			out = append(out, s)
		}
	}

	slices.SortFunc(out, func(a, b *Selection) int {
		if k == entity.KindFolder {
			return cmp.Or(
				cmp.Compare(len(a.path), len(b.path)),
				cmp.Compare(strings.Join(a.path, "/"), strings.Join(b.path, "/")),
				cmp.Compare(a.Entity.ID, b.Entity.ID),
			)
		}
		return cmp.Or(cmp.Compare(a.Entity.Name, b.Entity.Name), cmp.Compare(a.Entity.ID, b.Entity.ID))
	})
	return out
}

// Redirect returns the id that replaces the entity of kind k and id when a
// dependency entity was shadowed by a local one.
func (r *Resolution) Redirect(k entity.Kind, id string) string {
	if to, ok := r.redirects[entity.Dependency{ID: id, Kind: k}]; ok {
		return to
	}
	return id
}

type Resolver struct {
	registry *Registry
	log      *logging.Logger
}

func NewResolver(registry *Registry) *Resolver {
	return &Resolver{registry: registry}
}

func (r *Resolver) WithLogger(log *logging.Logger) *Resolver {
	r.log = log
	return r
}

// Resolve selects every non-excluded local entity and, transitively, every
// entity they refer to. Entities of dependency bundles are selected only when
// reached through a reference or named in forced. A dependency entity sharing
// kind and name with a local one is replaced by the local entity.
func (r *Resolver) Resolve(local *entity.Bundle, forced []linker.Reference) (*Resolution, error) {
	ix, err := linker.NewIndex(append([]*entity.Bundle{local}, local.Dependencies...)...)
	if err != nil {
		return nil, err
	}

	res := &Resolution{
		selected:  make(map[entity.Dependency]*Selection),
		redirects: make(map[entity.Dependency]string),
	}
	r.collisions(res, local)

	var queue []*Selection

	add := func(hit linker.Hit, from *Selection, reached bool) error {
		key := hit.Entity.Key()
		s, ok := res.selected[key]
		if !ok {
			s = &Selection{
				Entity:         hit.Entity,
				Bundle:         hit.Bundle,
				FromDependency: hit.Bundle != local,
			}
		}
		s.Reached = s.Reached || reached
		switch {
		case from == nil && reached:
			s.forced = true
		case from != nil && from != s:
			s.referrers = append(s.referrers, from)
		}
		if ok {
			return nil
		}

		if key.Kind == entity.KindFolder && hit.Bundle.Tree != nil {
			p, err := hit.Bundle.Tree.PathOf(key.ID)
			if err != nil {
				return err
			}
			s.path = p
		}
		res.selected[key] = s
		queue = append(queue, s)
		return nil
	}

	for _, kb := range r.registry.All() {
		for _, e := range local.Entities(kb.Kind) {
			if e.Excluded {
				continue
			}
			if err := add(linker.Hit{Entity: e, Bundle: local}, nil, false); err != nil {
				return nil, err
			}
		}
	}

	for _, ref := range forced {
		hit, ok := ix.Resolve(ref)
		if !ok {
			return nil, fmt.Errorf("included entity %s not found", ref)
		}
		hit, err := r.preferLocal(res, local, hit)
		if err != nil {
			return nil, err
		}
		if err := add(hit, nil, true); err != nil {
			return nil, err
		}
	}

	for len(queue) > 0 {
		var next *Selection
		next, queue = queue[0], queue[1:]

		refs := r.registry.dependencies(next.Entity)
		if next.Entity.Kind.PolicyBearing() {
			scanned, err := linker.References(next.Entity.Policy)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", next.Entity, err)
			}
			refs = append(refs, scanned...)
		}

		for _, ref := range refs {
			hit, ok := ix.Resolve(ref)
			if !ok {
				u := Unresolved{From: next.Entity, Ref: ref}
				r.log.Warnf("%v", u)
				res.Unresolved = append(res.Unresolved, u)
				continue
			}
			hit, err := r.preferLocal(res, local, hit)
			if err != nil {
				return nil, err
			}
			if err := add(hit, next, true); err != nil {
				return nil, err
			}
		}
	}

	deps := 0
	for _, s := range res.selected {
		if s.FromDependency {
			deps++
		}
	}
	r.log.Debugf("resolved %d entities, %d from dependency bundles, %d unresolved references", len(res.selected), deps, len(res.Unresolved))

	return res, nil
}

// preferLocal swaps a dependency entity for the local entity of the same
// kind and name. Folders are matched by path.
func (r *Resolver) preferLocal(res *Resolution, local *entity.Bundle, hit linker.Hit) (linker.Hit, error) {
	if hit.Bundle == local {
		return hit, nil
	}
	e := hit.Entity

	var shadow *entity.Entity
	if e.Kind == entity.KindFolder {
		if hit.Bundle.Tree == nil || local.Tree == nil {
			return hit, nil
		}
		p, err := hit.Bundle.Tree.PathOf(e.ID)
		if err != nil {
			return hit, err
		}
		if f, ok := local.Tree.FolderByPath(p); ok {
			shadow = f
		}
	} else if le, ok := local.ByName(e.Kind, e.Name); ok {
		shadow = le
	}
	if shadow == nil {
		return hit, nil
	}

	if shadow.ID != e.ID {
		res.redirects[e.Key()] = shadow.ID
	}
	return linker.Hit{Entity: shadow, Bundle: local}, nil
}

// collisions records a note for every dependency entity that shares kind and
// name with a local entity.
func (r *Resolver) collisions(res *Resolution, local *entity.Bundle) {
	for _, dep := range local.Dependencies {
		for _, kb := range r.registry.All() {
			if kb.Kind == entity.KindFolder {
				continue
			}
			for _, e := range dep.Entities(kb.Kind) {
				if _, ok := local.ByName(e.Kind, e.Name); !ok {
					continue
				}
				note := fmt.Sprintf("%s from %s is overridden by the local definition", e, dep.Origin)
				res.Notes = append(res.Notes, note)
				r.log.Infof("%s", note)
			}
		}
	}
}
