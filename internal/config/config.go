package config

import (
	"cmp"
	"encoding/json"
	"fmt"
	"iter"
	"maps"
	"os"
	"slices"
	"sort"

	"github.com/gobwas/glob"
	"github.com/goccy/go-yaml"

	"github.com/gatewaykit/gwbundle/internal/entity"
)

// Configuration of a gwbundle project. A project builds one or more bundles,
// each from its own source roots.

// Root is the top-level configuration structure.
type Root struct {
	Bundles map[string]*Bundle `json:"bundles,omitempty"`
	// Output is the directory artifacts are written to unless a bundle sets
	// its own.
	Output string `json:"output,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for the Root struct.
// Bundles are configured as a mapping keyed by name; the key is copied into
// each bundle.
func (r *Root) UnmarshalYAML(bs []byte) error {
	type rawRoot Root // avoid recursive calls to UnmarshalYAML by type aliasing
	var raw rawRoot

	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw)
	return r.unmarshal()
}

func (r *Root) UnmarshalJSON(bs []byte) error {
	type rawRoot Root
	var raw rawRoot

	if err := json.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw)
	return r.unmarshal()
}

func (r *Root) unmarshal() error {
	for name := range r.Bundles {
		r.Bundles[name] = cmp.Or(r.Bundles[name], &Bundle{})
		r.Bundles[name].Name = name
	}
	return nil
}

func (r *Root) SortedBundles() iter.Seq2[int, *Bundle] {
	return iterator(r.Bundles, func(b *Bundle) string { return b.Name })
}

// TopologicalSortedBundles returns the bundles ordered so that every bundle
// comes after the bundles it requires. Cycles are treated as errors.
func (r *Root) TopologicalSortedBundles() ([]*Bundle, error) {
	sorter := topologicalSortBundles{
		bundles:    r.Bundles,
		inprogress: make(map[string]struct{}),
		done:       make(map[string]struct{}),
	}

	for _, name := range slices.Sorted(maps.Keys(r.Bundles)) {
		if err := sorter.Visit(r.Bundles[name]); err != nil {
			return nil, err
		}
	}
	return sorter.sorted, nil
}

type topologicalSortBundles struct {
	bundles    map[string]*Bundle
	inprogress map[string]struct{}
	done       map[string]struct{}
	sorted     []*Bundle
}

func (s *topologicalSortBundles) Visit(b *Bundle) error {
	if _, ok := s.inprogress[b.Name]; ok {
		return fmt.Errorf("cycle found on bundle %q", b.Name)
	}
	if _, ok := s.done[b.Name]; ok {
		return nil
	}
	s.inprogress[b.Name] = struct{}{}
	for _, r := range b.Requirements {
		other, ok := s.bundles[r.Bundle]
		if !ok {
			return fmt.Errorf("bundle %q requires unknown bundle %q", b.Name, r.Bundle)
		}
		if err := s.Visit(other); err != nil {
			return err
		}
	}
	s.done[b.Name] = struct{}{}
	delete(s.inprogress, b.Name)
	s.sorted = append(s.sorted, b)
	return nil
}

func iterator[V any](m map[string]V, name func(V) string) func(func(int, V) bool) {
	names := make([]string, 0, len(m))
	for _, v := range m {
		names = append(names, name(v))
	}

	sort.Strings(names)

	return func(yield func(int, V) bool) {
		for i, name := range names {
			if !yield(i, m[name]) {
				return
			}
		}
	}
}

func Validate(data []byte) error {
	var config any
	if err := yaml.Unmarshal(data, &config); err != nil {
		return err
	}

	return rootSchema.Validate(config)
}

// Bundle configures one output bundle.
type Bundle struct {
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
	Mode        Mode   `json:"mode,omitempty"`

	// Sources are the declarative source roots. Later roots override files
	// of earlier ones.
	Sources StringSet `json:"sources"`
	// Dependencies are previously built bundle files whose entities may be
	// referenced from the sources.
	Dependencies StringSet `json:"dependencies,omitempty"`
	// Requirements name other bundles of this configuration whose output is
	// used as a dependency.
	Requirements Requirements `json:"requirements,omitempty"`

	// Excluded are glob patterns over entity keys removing entities from the
	// output unless something else needs them.
	Excluded StringSet `json:"excluded,omitempty"`
	// ExcludedFiles are glob patterns over source file paths that are never
	// read.
	ExcludedFiles StringSet `json:"excluded_files,omitempty"`

	// Include forces entities of dependency bundles into the output.
	Include   []EntityRef `json:"include,omitempty"`
	Overrides []Override  `json:"overrides,omitempty"`

	Output string `json:"output,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

func (s *Bundle) UnmarshalJSON(bs []byte) error {
	type rawBundle Bundle // avoid recursive calls to UnmarshalJSON by type aliasing
	var raw rawBundle

	if err := json.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode bundle: %w", err)
	}

	*s = Bundle(raw)
	return s.validate()
}

func (s *Bundle) UnmarshalYAML(bs []byte) error {
	type rawBundle Bundle
	var raw rawBundle

	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode bundle: %w", err)
	}

	*s = Bundle(raw)
	return s.validate()
}

func (s *Bundle) validate() error {
	for _, patterns := range []StringSet{s.Excluded, s.ExcludedFiles} {
		for _, pattern := range patterns {
			if _, err := glob.Compile(pattern, '/'); err != nil {
				return fmt.Errorf("failed to compile excluded pattern %q: %w", pattern, err)
			}
		}
	}
	for _, ref := range s.Include {
		if _, err := entity.ParseKind(ref.Kind); err != nil {
			return fmt.Errorf("include %q: %w", ref.Name, err)
		}
	}
	for _, o := range s.Overrides {
		if _, err := entity.ParseKind(o.Kind); err != nil {
			return fmt.Errorf("override %q: %w", o.Name, err)
		}
	}
	return nil
}

// ExcludedMatcher compiles the entity exclusion patterns.
func (s *Bundle) ExcludedMatcher() (func(key string) bool, error) {
	globs := make([]glob.Glob, 0, len(s.Excluded))
	for _, pattern := range s.Excluded {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, err
		}
		globs = append(globs, g)
	}
	return func(key string) bool {
		return slices.ContainsFunc(globs, func(g glob.Glob) bool { return g.Match(key) })
	}, nil
}

// Mode is the assembly mode of a bundle: "deployment" or "environment".
type Mode string

const (
	ModeDeployment  Mode = "deployment"
	ModeEnvironment Mode = "environment"
)

func (m Mode) Or(def Mode) Mode {
	return cmp.Or(m, def)
}

type Requirement struct {
	Bundle string `json:"bundle"`

	_ struct{} `additionalProperties:"false"`
}

type Requirements []Requirement

// EntityRef names an entity by kind and name.
type EntityRef struct {
	Kind string `json:"kind"`
	Name string `json:"name"`

	_ struct{} `additionalProperties:"false"`
}

// Override is a JSON patch applied to the structured payload of the entity
// with the given kind and name after loading.
type Override struct {
	Kind  string           `json:"kind"`
	Name  string           `json:"name"`
	Patch []map[string]any `json:"patch"`

	_ struct{} `additionalProperties:"false"`
}

type StringSet []string

func (a StringSet) Add(value string) StringSet {
	if slices.Contains(a, value) {
		return a
	}
	return append(a, value)
}

func ParseFile(filename string) (root *Root, err error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	return Parse(bs)
}

func Parse(bs []byte) (*Root, error) {
	if err := Validate(bs); err != nil {
		return nil, err
	}

	var root Root
	if err := yaml.Unmarshal(bs, &root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &root, nil
}
