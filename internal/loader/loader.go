// Package loader reads the declarative source layout and previously built
// dependency bundles into entity bundles.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gatewaykit/gwbundle/internal/entity"
	"github.com/gatewaykit/gwbundle/internal/folder"
	"github.com/gatewaykit/gwbundle/internal/ids"
	"github.com/gatewaykit/gwbundle/internal/jsonpatch"
	"github.com/gatewaykit/gwbundle/internal/logging"
)

const (
	configDir      = "config"
	policyDir      = "policy"
	envFile        = "env.properties"
	policyExt      = ".policy"
	envPropsPrefix = "ENV."
)

var definitionExts = []string{".yml", ".yaml", ".json"}

// guidSpace is the namespace of the GUIDs derived for policies declared
// without one.
var guidSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://gatewaykit.dev/gwbundle/policy"))

// folderSpace is the namespace of folder ids, which are derived from the
// encoded folder path.
var folderSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://gatewaykit.dev/gwbundle/folder"))

// ParseError reports a source file that could not be read.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// DuplicateConfigError is returned when the same declarative entity is
// defined by more than one file.
type DuplicateConfigError struct {
	What  string
	Files []string
}

func (e *DuplicateConfigError) Error() string {
	return fmt.Sprintf("%s is defined more than once: %s", e.What, strings.Join(e.Files, ", "))
}

// UnknownOverrideError is returned for an override naming no loaded entity.
type UnknownOverrideError struct {
	Kind entity.Kind
	Name string
}

func (e *UnknownOverrideError) Error() string {
	return fmt.Sprintf("override targets unknown %s %q", e.Kind, e.Name)
}

// Override is a JSON patch for the payload of one entity.
type Override struct {
	Kind  entity.Kind
	Name  string
	Patch jsonpatch.Patch
}

// Loader reads one bundle from a source file system.
type Loader struct {
	fsys         fs.FS
	ids          *ids.Generator
	log          *logging.Logger
	excluded     func(key string) bool
	overrides    []Override
	dependencies []string
	bundles      []*entity.Bundle
	origin       string

	mu      sync.Mutex
	folders map[string]string // encoded directory path -> folder id
}

func New(fsys fs.FS) *Loader {
	return &Loader{
		fsys:     fsys,
		ids:      ids.New(),
		excluded: func(string) bool { return false },
		folders:  map[string]string{"": entity.RootFolderID},
	}
}

func (l *Loader) WithIDs(g *ids.Generator) *Loader {
	l.ids = g
	return l
}

func (l *Loader) WithLogger(log *logging.Logger) *Loader {
	l.log = log
	return l
}

func (l *Loader) WithOrigin(origin string) *Loader {
	l.origin = origin
	return l
}

// WithExcluded sets the predicate deciding, by entity key, which entities
// are excluded. Keys are "policy/<folders>/<name>" for entities of the
// folder tree and "<kind file>/<name>" otherwise.
func (l *Loader) WithExcluded(fn func(key string) bool) *Loader {
	if fn != nil {
		l.excluded = fn
	}
	return l
}

func (l *Loader) WithOverrides(overrides ...Override) *Loader {
	l.overrides = append(l.overrides, overrides...)
	return l
}

// WithDependencyFiles adds bundle files to be read as dependencies.
func (l *Loader) WithDependencyFiles(paths ...string) *Loader {
	l.dependencies = append(l.dependencies, paths...)
	return l
}

// WithDependencies adds already loaded dependency bundles. They are placed
// after the bundles read from dependency files.
func (l *Loader) WithDependencies(bundles ...*entity.Bundle) *Loader {
	l.bundles = append(l.bundles, bundles...)
	return l
}

// Load reads the source layout. Entity kinds are loaded concurrently, as are
// the dependency files; the folder tree is built once all folders are known.
func (l *Loader) Load(ctx context.Context) (*entity.Bundle, error) {
	b := entity.NewBundle(l.origin)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.loadFolders(gctx, b) })
	g.Go(func() error { return l.loadPolicies(gctx, b) })
	for _, k := range entity.Kinds() {
		if k.ConfigFile() == "" {
			continue
		}
		g.Go(func() error { return l.loadKind(gctx, b, k) })
	}

	var deps []*entity.Bundle
	g.Go(func() error {
		var err error
		deps, err = LoadDependencies(gctx, l.dependencies...)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	b.Dependencies = append(deps, l.bundles...)

	if err := l.applyOverrides(b); err != nil {
		return nil, err
	}

	for _, e := range b.All() {
		if err := entity.Validate(e); err != nil {
			return nil, err
		}
	}

	tree, err := folder.Build(b.Folders())
	if err != nil {
		return nil, err
	}
	b.Tree = tree

	l.log.Debugf("Loaded %d entities and %d dependency bundles from %s", b.Len(), len(b.Dependencies), l.origin)
	return b, nil
}

// folderID returns the id of the folder at the encoded directory path. Ids
// are derived from the path, so a folder keeps its id across builds and two
// same-named folders under different parents never share one.
func (l *Loader) folderID(dir string) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, ok := l.folders[dir]
	if !ok {
		id = ids.Derive(folderSpace, dir)
		l.folders[dir] = id
	}
	return id
}

func (l *Loader) applyOverrides(b *entity.Bundle) error {
	for _, o := range l.overrides {
		e, ok := b.ByName(o.Kind, o.Name)
		if !ok {
			return &UnknownOverrideError{Kind: o.Kind, Name: o.Name}
		}
		fields, err := jsonpatch.ApplyToFields(o.Patch, e.Fields)
		if err != nil {
			return fmt.Errorf("override of %s: %w", e, err)
		}
		patched := e.Clone()
		patched.Fields = fields
		b.Replace(patched)
		l.log.Debugf("Applied override to %s", e)
	}
	return nil
}

// splitDefinition separates the reserved keys of a declarative definition
// from its payload fields.
func (l *Loader) splitDefinition(e *entity.Entity, key string, def map[string]any) error {
	if id, ok := def["id"].(string); ok && id != "" {
		e.ID = id
	}
	if guid, ok := def["guid"].(string); ok && guid != "" {
		e.GUID = guid
	}
	a, err := entity.ParseAnnotations(def["annotations"])
	if err != nil {
		return err
	}
	e.Annotations = a
	e.Excluded = a.Exclude || l.excluded(key)

	for k, v := range def {
		switch k {
		case "id", "guid", "annotations", "type":
			continue
		}
		e.SetField(k, v)
	}
	if e.ID == "" {
		e.ID = l.ids.Generate()
	}
	return nil
}

func existing(fsys fs.FS, candidates []string) ([]string, error) {
	var found []string
	for _, c := range candidates {
		_, err := fs.Stat(fsys, c)
		switch {
		case err == nil:
			found = append(found, c)
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}
	return slices.Clip(found), nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
