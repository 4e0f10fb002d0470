// Package builder turns a local bundle and its dependency bundles into an
// ordered wire document: the resolver decides which entities to emit and the
// builder emits them kind by kind in registry order, each with its installer
// mapping.
package builder

import (
	"context"
	"fmt"
	"io"

	"github.com/gatewaykit/gwbundle/internal/entity"
	"github.com/gatewaykit/gwbundle/internal/logging"
	"github.com/gatewaykit/gwbundle/internal/wire"
)

type Builder struct {
	registry   *Registry
	mode       Mode
	resolution *Resolution
	output     io.Writer
	log        *logging.Logger
	doc        *wire.Document
}

func New(registry *Registry) *Builder {
	return &Builder{registry: registry}
}

func (b *Builder) WithMode(m Mode) *Builder {
	b.mode = m
	return b
}

func (b *Builder) WithResolution(r *Resolution) *Builder {
	b.resolution = r
	return b
}

func (b *Builder) WithOutput(w io.Writer) *Builder {
	b.output = w
	return b
}

func (b *Builder) WithLogger(log *logging.Logger) *Builder {
	b.log = log
	return b
}

// Build assembles the document and, when an output is set, writes it.
func (b *Builder) Build(ctx context.Context) error {
	if b.resolution == nil {
		return fmt.Errorf("build: no resolution")
	}

	doc := &wire.Document{}
	memo := make(map[*Selection]bool)
	for _, kb := range b.registry.All() {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := 0
		for _, s := range b.resolution.Selections(kb.Kind) {
			if !b.emits(s, memo) {
				continue
			}
			doc.Items = append(doc.Items, b.relink(s.Entity))
			doc.Mappings = append(doc.Mappings, mappingFor(s, b.mode))
			n++
		}
		if n > 0 {
			b.log.Debugf("emitted %d %s entities", n, kb.Kind)
		}
	}
	b.doc = doc

	if b.output == nil {
		return nil
	}
	if _, err := doc.WriteTo(b.output); err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	return nil
}

// Document returns the document assembled by the last Build.
func (b *Builder) Document() *wire.Document {
	return b.doc
}

// emits reports whether s belongs in a bundle of the builder's mode.
// Deployment bundles also carry the environment entities that emitted
// entities depend on, as references that must already exist on the target.
func (b *Builder) emits(s *Selection, memo map[*Selection]bool) bool {
	if v, ok := memo[s]; ok {
		return v
	}
	kb, ok := b.registry.Get(s.Entity.Kind)
	if !ok {
		return false
	}
	if kb.Mode == b.mode {
		memo[s] = true
		return true
	}
	if b.mode != ModeDeployment {
		memo[s] = false
		return false
	}

	memo[s] = s.forced // provisional, breaks reference cycles
	for _, r := range s.referrers {
		if b.emits(r, memo) {
			memo[s] = true
			break
		}
	}
	return memo[s]
}

// relink points references to shadowed dependency entities at the local
// entities that replaced them.
func (b *Builder) relink(e *entity.Entity) *entity.Entity {
	out := e
	if id := b.resolution.Redirect(entity.KindFolder, e.FolderID); e.FolderID != "" && id != e.FolderID {
		out = out.Clone()
		out.FolderID = id
	}
	if pid := e.StringField("policyId"); pid != "" {
		if id := b.resolution.Redirect(entity.KindPolicy, pid); id != pid {
			if out == e {
				out = out.Clone()
			}
			out.SetField("policyId", id)
		}
	}
	return out
}
