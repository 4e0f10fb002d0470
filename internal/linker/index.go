package linker

import (
	"fmt"
	"path"

	"github.com/gatewaykit/gwbundle/internal/entity"
	"github.com/gatewaykit/gwbundle/internal/pathcodec"
)

// Hit is an entity found in an Index together with the bundle holding it.
type Hit struct {
	Entity *entity.Entity
	Bundle *entity.Bundle
}

type kindName struct {
	kind entity.Kind
	name string
}

// Index looks up entities across a set of bundles by the identifiers that
// appear in policy references. When several bundles define the same key the
// bundle passed first wins.
type Index struct {
	byID          map[entity.Dependency]Hit
	byName        map[kindName]Hit
	policyByGUID  map[string]Hit
	policyByPath  map[string]Hit
	policyPaths   map[string]string
	encassByGUID  map[string]Hit
	encassByOwner map[string]Hit
}

// NewIndex indexes bundles. Bundles without a folder tree contribute no
// policy paths.
func NewIndex(bundles ...*entity.Bundle) (*Index, error) {
	ix := &Index{
		byID:          make(map[entity.Dependency]Hit),
		byName:        make(map[kindName]Hit),
		policyByGUID:  make(map[string]Hit),
		policyByPath:  make(map[string]Hit),
		policyPaths:   make(map[string]string),
		encassByGUID:  make(map[string]Hit),
		encassByOwner: make(map[string]Hit),
	}

	for _, b := range bundles {
		for _, e := range b.All() {
			hit := Hit{Entity: e, Bundle: b}
			putIfAbsent(ix.byID, e.Key(), hit)
			putIfAbsent(ix.byName, kindName{e.Kind, e.Name}, hit)
		}

		for _, p := range b.Entities(entity.KindPolicy) {
			hit := Hit{Entity: p, Bundle: b}
			if p.GUID != "" {
				putIfAbsent(ix.policyByGUID, p.GUID, hit)
			}
			if b.Tree == nil {
				continue
			}
			pp, err := entityPath(b.Tree, p)
			if err != nil {
				return nil, err
			}
			putIfAbsent(ix.policyByPath, pp, hit)
			putIfAbsent(ix.policyPaths, p.ID, pp)
		}
	}

	// Encapsulated assertions are keyed by their backing policy, which is
	// either an id (wire form) or a path (declarative form).
	for _, b := range bundles {
		for _, ea := range b.Entities(entity.KindEncapsulatedAssertion) {
			hit := Hit{Entity: ea, Bundle: b}
			if ea.GUID != "" {
				putIfAbsent(ix.encassByGUID, ea.GUID, hit)
			}
			if id := ea.StringField("policyId"); id != "" {
				putIfAbsent(ix.encassByOwner, id, hit)
			} else if p, ok := ix.policyByPath[ea.StringField("policy")]; ok {
				putIfAbsent(ix.encassByOwner, p.Entity.ID, hit)
			}
		}
	}

	return ix, nil
}

func putIfAbsent[K comparable, V any](m map[K]V, k K, v V) {
	if _, ok := m[k]; !ok {
		m[k] = v
	}
}

func entityPath(t entity.Tree, e *entity.Entity) (string, error) {
	segs, err := t.PathOf(e.FolderID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", e, err)
	}
	name, err := pathcodec.Encode(e.Name)
	if err != nil {
		return "", fmt.Errorf("%s: %w", e, err)
	}
	return path.Join(append(segs, name)...), nil
}

func (ix *Index) ByID(k entity.Kind, id string) (Hit, bool) {
	h, ok := ix.byID[entity.Dependency{ID: id, Kind: k}]
	return h, ok
}

func (ix *Index) ByName(k entity.Kind, name string) (Hit, bool) {
	h, ok := ix.byName[kindName{k, name}]
	return h, ok
}

func (ix *Index) PolicyByGUID(guid string) (Hit, bool) {
	h, ok := ix.policyByGUID[guid]
	return h, ok
}

func (ix *Index) PolicyByPath(p string) (Hit, bool) {
	h, ok := ix.policyByPath[p]
	return h, ok
}

// PolicyPath returns the folder-relative path of the policy with the given
// id.
func (ix *Index) PolicyPath(id string) (string, bool) {
	p, ok := ix.policyPaths[id]
	return p, ok
}

func (ix *Index) EncassByGUID(guid string) (Hit, bool) {
	h, ok := ix.encassByGUID[guid]
	return h, ok
}

// EncassByPolicyPath returns the encapsulated assertion backed by the policy
// at path p.
func (ix *Index) EncassByPolicyPath(p string) (Hit, bool) {
	pol, ok := ix.policyByPath[p]
	if !ok {
		return Hit{}, false
	}
	h, ok := ix.encassByOwner[pol.Entity.ID]
	return h, ok
}

// EncassPath returns the path of the policy backing ea.
func (ix *Index) EncassPath(ea *entity.Entity) (string, bool) {
	if id := ea.StringField("policyId"); id != "" {
		return ix.PolicyPath(id)
	}
	p := ea.StringField("policy")
	_, ok := ix.policyByPath[p]
	return p, ok
}

// Resolve finds the entity a reference points at.
func (ix *Index) Resolve(ref Reference) (Hit, bool) {
	switch {
	case ref.ID != "":
		return ix.ByID(ref.Kind, ref.ID)
	case ref.GUID != "" && ref.Kind == entity.KindPolicy:
		return ix.PolicyByGUID(ref.GUID)
	case ref.GUID != "" && ref.Kind == entity.KindEncapsulatedAssertion:
		return ix.EncassByGUID(ref.GUID)
	case ref.Path != "" && ref.Kind == entity.KindPolicy:
		return ix.PolicyByPath(ref.Path)
	case ref.Path != "" && ref.Kind == entity.KindEncapsulatedAssertion:
		return ix.EncassByPolicyPath(ref.Path)
	case ref.Name != "":
		return ix.ByName(ref.Kind, ref.Name)
	}
	return Hit{}, false
}
