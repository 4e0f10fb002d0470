// Package writer writes decompiled bundles as the declarative source layout
// and produces bundle metadata.
package writer

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/goccy/go-yaml"

	"github.com/gatewaykit/gwbundle/internal/entity"
	"github.com/gatewaykit/gwbundle/internal/folder"
	"github.com/gatewaykit/gwbundle/internal/logging"
	"github.com/gatewaykit/gwbundle/internal/pathcodec"
	"github.com/gatewaykit/gwbundle/internal/progress"
)

// Layout writes a bundle below a directory in the form the loader reads.
type Layout struct {
	dir      string
	log      *logging.Logger
	progress *progress.Bar
	written  []string
}

func NewLayout(dir string) *Layout {
	return &Layout{dir: dir}
}

func (l *Layout) WithLogger(log *logging.Logger) *Layout {
	l.log = log
	return l
}

func (l *Layout) WithProgress(p *progress.Bar) *Layout {
	l.progress = p
	return l
}

// Files returns the slash separated paths written so far, relative to the
// layout directory.
func (l *Layout) Files() []string {
	return slices.Clone(l.written)
}

// Write writes every entity of b. The bundle must have a folder tree.
func (l *Layout) Write(ctx context.Context, b *entity.Bundle) error {
	tree, ok := b.Tree.(*folder.Tree)
	if !ok {
		return fmt.Errorf("bundle %s has no folder tree", b.Origin)
	}

	if err := tree.Walk(func(f *entity.Entity, _ int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.IsRootFolder() {
			return nil
		}
		segs, err := tree.PathOf(f.ID)
		if err != nil {
			return err
		}
		return os.MkdirAll(filepath.Join(l.dir, "policy", filepath.Join(segs...)), 0o755)
	}); err != nil {
		return err
	}

	for _, k := range []entity.Kind{entity.KindPolicy, entity.KindService} {
		for _, e := range b.Entities(k) {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := l.writePolicy(tree, e); err != nil {
				return err
			}
		}
	}

	for _, k := range entity.Kinds() {
		if k.ConfigFile() == "" {
			continue
		}
		if err := l.writeKind(k, b.Entities(k)); err != nil {
			return err
		}
	}

	l.log.Infof("Wrote %d files to %s", len(l.written), l.dir)
	return nil
}

func (l *Layout) writePolicy(tree *folder.Tree, e *entity.Entity) error {
	p, err := tree.EntityPath(e)
	if err != nil {
		return err
	}
	base := filepath.Join("policy", filepath.FromSlash(p))
	if err := l.writeFile(base+".policy", []byte(e.Policy)); err != nil {
		return err
	}

	def := definition(e)
	if e.Kind == entity.KindService {
		def["type"] = "service"
	}
	if len(def) == 0 {
		return nil
	}
	bs, err := yaml.Marshal(def)
	if err != nil {
		return fmt.Errorf("%s: %w", e, err)
	}
	return l.writeFile(base+".yml", bs)
}

func (l *Layout) writeKind(k entity.Kind, entities []*entity.Entity) error {
	if len(entities) == 0 {
		return nil
	}

	defs := make(map[string]any, len(entities))
	for _, e := range entities {
		if _, ok := defs[e.Name]; ok {
			l.log.Warnf("Skipping %s: another %s has the same name", e, k)
			continue
		}
		def := definition(e)
		if k == entity.KindClusterProperty && len(def) == 1 {
			if v, ok := def["value"]; ok {
				defs[e.Name] = v
				continue
			}
		}
		defs[e.Name] = def
	}

	bs, err := yaml.Marshal(defs)
	if err != nil {
		return fmt.Errorf("%s: %w", k.ConfigFile(), err)
	}
	return l.writeFile(filepath.Join("config", k.ConfigFile()+".yml"), bs)
}

// definition is the declarative form of e's payload: its fields, GUID and
// annotations.
func definition(e *entity.Entity) map[string]any {
	def := maps.Clone(e.Fields)
	if def == nil {
		def = map[string]any{}
	}
	if e.GUID != "" {
		def["guid"] = e.GUID
	}
	if list := e.Annotations.List(); len(list) > 0 {
		def["annotations"] = list
	}
	return def
}

func (l *Layout) writeFile(rel string, bs []byte) error {
	p := filepath.Join(l.dir, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(p, bs, 0o644); err != nil {
		return err
	}
	l.written = append(l.written, filepath.ToSlash(rel))
	l.progress.Add(1)
	l.log.Debugf("Wrote %s", rel)
	return nil
}

// FileName returns the lossy, file system safe name of a generated
// artifact.
func FileName(name, version, suffix string) string {
	base := pathcodec.Sanitize(name)
	if version != "" {
		base += "-" + pathcodec.Sanitize(version)
	}
	return base + suffix
}
