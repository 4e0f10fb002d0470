package loader

import (
	"context"
	"fmt"
	"io/fs"
	"maps"
	"path"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/magiconair/properties"

	"github.com/gatewaykit/gwbundle/internal/entity"
)

// loadKind reads config/<kind file>.(yml|yaml|json): a mapping from entity
// name to definition.
func (l *Loader) loadKind(ctx context.Context, b *entity.Bundle, k entity.Kind) error {
	candidates := make([]string, 0, len(definitionExts))
	for _, ext := range definitionExts {
		candidates = append(candidates, path.Join(configDir, k.ConfigFile()+ext))
	}
	files, err := existing(l.fsys, candidates)
	if err != nil {
		return err
	}

	switch len(files) {
	case 0:
	case 1:
		if err := l.readKindFile(ctx, b, k, files[0]); err != nil {
			return err
		}
	default:
		return &DuplicateConfigError{What: k.ConfigFile(), Files: files}
	}

	if k == entity.KindClusterProperty {
		return l.loadEnvProperties(b)
	}
	return nil
}

func (l *Loader) readKindFile(ctx context.Context, b *entity.Bundle, k entity.Kind, file string) error {
	bs, err := fs.ReadFile(l.fsys, file)
	if err != nil {
		return &ParseError{File: file, Err: err}
	}

	var defs map[string]any
	if err := yaml.Unmarshal(bs, &defs); err != nil {
		return &ParseError{File: file, Err: err}
	}

	for _, name := range slices.Sorted(maps.Keys(defs)) {
		if err := ctx.Err(); err != nil {
			return err
		}

		var values map[string]any
		switch v := defs[name].(type) {
		case map[string]any:
			values = v
		case nil:
			values = map[string]any{}
		default:
			if k != entity.KindClusterProperty {
				return &ParseError{File: file, Err: fmt.Errorf("%s %q: expected a mapping, got %T", k, name, v)}
			}
			values = map[string]any{"value": v}
		}

		e := &entity.Entity{Kind: k, Name: name, Source: file}
		if err := l.splitDefinition(e, path.Join(k.ConfigFile(), name), values); err != nil {
			return &ParseError{File: file, Err: fmt.Errorf("%s %q: %w", k, name, err)}
		}
		if err := b.Add(e); err != nil {
			return &ParseError{File: file, Err: err}
		}
	}
	return nil
}

// loadEnvProperties applies env.properties: each ENV.<name> key defines the
// value of cluster property <name>, replacing a statically configured value.
func (l *Loader) loadEnvProperties(b *entity.Bundle) error {
	bs, err := fs.ReadFile(l.fsys, envFile)
	if err != nil {
		if isNotExist(err) {
			return nil
		}
		return &ParseError{File: envFile, Err: err}
	}

	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	props, err := loader.LoadBytes(bs)
	if err != nil {
		return &ParseError{File: envFile, Err: err}
	}

	for _, key := range slices.Sorted(slices.Values(props.Keys())) {
		name, ok := strings.CutPrefix(key, envPropsPrefix)
		if !ok || name == "" {
			l.log.Debugf("Ignoring %s key %q", envFile, key)
			continue
		}
		value := props.GetString(key, "")

		if e, ok := b.ByName(entity.KindClusterProperty, name); ok {
			updated := e.Clone()
			updated.SetField("value", value)
			updated.Source = envFile
			b.Replace(updated)
			continue
		}

		e := &entity.Entity{Kind: entity.KindClusterProperty, Name: name, Source: envFile}
		if err := l.splitDefinition(e, path.Join(entity.KindClusterProperty.ConfigFile(), name), map[string]any{"value": value}); err != nil {
			return err
		}
		if err := b.Add(e); err != nil {
			return err
		}
	}
	return nil
}
