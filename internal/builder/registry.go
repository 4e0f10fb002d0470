package builder

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/gatewaykit/gwbundle/internal/entity"
	"github.com/gatewaykit/gwbundle/internal/linker"
)

// Mode selects which entity kinds a bundle carries.
type Mode int

const (
	// ModeDeployment bundles deployable logic: folders, policies, services
	// and everything built on them.
	ModeDeployment Mode = iota
	// ModeEnvironment bundles environment and credential configuration.
	ModeEnvironment
)

var ModeIds = map[Mode][]string{
	ModeDeployment:  {"deployment"},
	ModeEnvironment: {"environment"},
}

func (m Mode) String() string {
	if ids, ok := ModeIds[m]; ok {
		return ids[0]
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func ParseMode(s string) (Mode, error) {
	for m, ids := range ModeIds {
		if slices.Contains(ids, s) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// KindBuilder describes how one entity kind takes part in assembly.
type KindBuilder struct {
	Kind entity.Kind
	// Order fixes the position of the kind in the emitted bundle. Order
	// values are distinct across a registry.
	Order int
	Mode  Mode
	// Dependencies returns the structural references of an entity of this
	// kind. References found by scanning policy text are added by the
	// resolver.
	Dependencies func(e *entity.Entity) []linker.Reference
}

// OrderConflictError is returned when two kind builders share an order value
// or a kind.
type OrderConflictError struct {
	First, Second KindBuilder
}

func (e *OrderConflictError) Error() string {
	if e.First.Kind == e.Second.Kind {
		return fmt.Sprintf("kind %s registered twice", e.First.Kind)
	}
	return fmt.Sprintf("kinds %s and %s share order %d", e.First.Kind, e.Second.Kind, e.First.Order)
}

// Registry holds the kind builders of one run, sorted by order.
type Registry struct {
	builders []KindBuilder
}

func NewRegistry(builders ...KindBuilder) (*Registry, error) {
	byOrder := make(map[int]KindBuilder, len(builders))
	byKind := make(map[entity.Kind]KindBuilder, len(builders))
	for _, kb := range builders {
		if other, ok := byKind[kb.Kind]; ok {
			return nil, &OrderConflictError{First: other, Second: kb}
		}
		if other, ok := byOrder[kb.Order]; ok {
			return nil, &OrderConflictError{First: other, Second: kb}
		}
		byOrder[kb.Order] = kb
		byKind[kb.Kind] = kb
	}

	sorted := slices.Clone(builders)
	slices.SortFunc(sorted, func(a, b KindBuilder) int {
		return cmp.Compare(a.Order, b.Order)
	})
	return &Registry{builders: sorted}, nil
}

// DefaultRegistry returns the registry covering every entity kind.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		KindBuilder{Kind: entity.KindFolder, Order: 100, Mode: ModeDeployment},
		KindBuilder{Kind: entity.KindTrustedCert, Order: 200, Mode: ModeEnvironment},
		KindBuilder{Kind: entity.KindPrivateKey, Order: 250, Mode: ModeEnvironment},
		KindBuilder{Kind: entity.KindSecurePassword, Order: 300, Mode: ModeEnvironment},
		KindBuilder{Kind: entity.KindClusterProperty, Order: 350, Mode: ModeEnvironment},
		KindBuilder{Kind: entity.KindIdentityProvider, Order: 400, Mode: ModeEnvironment},
		KindBuilder{Kind: entity.KindJDBCConnection, Order: 450, Mode: ModeEnvironment, Dependencies: jdbcDependencies},
		KindBuilder{Kind: entity.KindListenPort, Order: 500, Mode: ModeEnvironment, Dependencies: listenPortDependencies},
		KindBuilder{Kind: entity.KindPolicy, Order: 600, Mode: ModeDeployment},
		KindBuilder{Kind: entity.KindEncapsulatedAssertion, Order: 700, Mode: ModeDeployment, Dependencies: policyOwnerDependencies},
		KindBuilder{Kind: entity.KindService, Order: 800, Mode: ModeDeployment},
		KindBuilder{Kind: entity.KindScheduledTask, Order: 900, Mode: ModeDeployment, Dependencies: policyOwnerDependencies},
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Builders returns the kind builders of mode m in ascending order.
func (r *Registry) Builders(m Mode) []KindBuilder {
	var out []KindBuilder
	for _, kb := range r.builders {
		if kb.Mode == m {
			out = append(out, kb)
		}
	}
	return out
}

// All returns every kind builder in ascending order.
func (r *Registry) All() []KindBuilder {
	return slices.Clone(r.builders)
}

// Kinds returns the kinds assembled in mode m, in ascending order.
func (r *Registry) Kinds(m Mode) []entity.Kind {
	var out []entity.Kind
	for _, kb := range r.Builders(m) {
		out = append(out, kb.Kind)
	}
	return out
}

func (r *Registry) Get(k entity.Kind) (KindBuilder, bool) {
	for _, kb := range r.builders {
		if kb.Kind == k {
			return kb, true
		}
	}
	return KindBuilder{}, false
}

// dependencies returns every structural reference of e: its folder and the
// kind specific ones.
func (r *Registry) dependencies(e *entity.Entity) []linker.Reference {
	var refs []linker.Reference
	if e.FolderID != "" {
		refs = append(refs, linker.Reference{Kind: entity.KindFolder, ID: e.FolderID})
	}
	if kb, ok := r.Get(e.Kind); ok && kb.Dependencies != nil {
		refs = append(refs, kb.Dependencies(e)...)
	}
	return refs
}

func jdbcDependencies(e *entity.Entity) []linker.Reference {
	if name := e.StringField("passwordRef"); name != "" {
		return []linker.Reference{{Kind: entity.KindSecurePassword, Name: name}}
	}
	return nil
}

func listenPortDependencies(e *entity.Entity) []linker.Reference {
	if alias := e.StringField("keyAlias"); alias != "" {
		return []linker.Reference{{Kind: entity.KindPrivateKey, Name: alias}}
	}
	return nil
}

func policyOwnerDependencies(e *entity.Entity) []linker.Reference {
	if id := e.StringField("policyId"); id != "" {
		return []linker.Reference{{Kind: entity.KindPolicy, ID: id}}
	}
	if p := e.StringField("policy"); p != "" {
		return []linker.Reference{{Kind: entity.KindPolicy, Path: p}}
	}
	return nil
}
