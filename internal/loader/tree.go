package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"path"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"

	"github.com/gatewaykit/gwbundle/internal/entity"
	"github.com/gatewaykit/gwbundle/internal/pathcodec"
)

// walkPolicyTree calls fn for every entry below the policy directory with
// its path relative to that directory. A missing policy directory is not an
// error.
func (l *Loader) walkPolicyTree(ctx context.Context, fn func(rel string, d fs.DirEntry) error) error {
	err := fs.WalkDir(l.fsys, policyDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == policyDir {
			return nil
		}
		return fn(strings.TrimPrefix(p, policyDir+"/"), d)
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (l *Loader) loadFolders(ctx context.Context, b *entity.Bundle) error {
	if err := b.Add(&entity.Entity{
		Kind: entity.KindFolder,
		ID:   entity.RootFolderID,
		Name: entity.RootFolderName,
	}); err != nil {
		return err
	}

	return l.walkPolicyTree(ctx, func(rel string, d fs.DirEntry) error {
		if !d.IsDir() {
			return nil
		}
		parent := path.Dir(rel)
		if parent == "." {
			parent = ""
		}
		e := &entity.Entity{
			Kind:     entity.KindFolder,
			ID:       l.folderID(rel),
			Name:     pathcodec.Decode(d.Name()),
			FolderID: l.folderID(parent),
			Source:   path.Join(policyDir, rel),
		}
		e.Excluded = l.excluded(path.Join(policyDir, rel))
		return b.Add(e)
	})
}

func (l *Loader) loadPolicies(ctx context.Context, b *entity.Bundle) error {
	policies := map[string]string{}      // extension-less rel path -> policy file
	definitions := map[string][]string{} // extension-less rel path -> definition files

	err := l.walkPolicyTree(ctx, func(rel string, d fs.DirEntry) error {
		if d.IsDir() {
			return nil
		}
		ext := path.Ext(rel)
		base := strings.TrimSuffix(rel, ext)
		switch {
		case ext == policyExt:
			policies[base] = rel
		case slices.Contains(definitionExts, ext):
			definitions[base] = append(definitions[base], rel)
		default:
			l.log.Debugf("Ignoring %s", path.Join(policyDir, rel))
		}
		return nil
	})
	if err != nil {
		return err
	}

	for base, defs := range definitions {
		if len(defs) > 1 {
			slices.Sort(defs)
			return &DuplicateConfigError{What: "policy " + base, Files: prefixAll(policyDir, defs)}
		}
		if _, ok := policies[base]; !ok {
			return &ParseError{File: path.Join(policyDir, defs[0]), Err: errors.New("definition without policy file")}
		}
	}

	for _, base := range slices.Sorted(maps.Keys(policies)) {
		var def string
		if defs := definitions[base]; len(defs) == 1 {
			def = defs[0]
		}
		e, err := l.readPolicy(base, policies[base], def)
		if err != nil {
			return err
		}
		if err := b.Add(e); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) readPolicy(base, file, def string) (*entity.Entity, error) {
	source := path.Join(policyDir, file)
	bs, err := fs.ReadFile(l.fsys, source)
	if err != nil {
		return nil, &ParseError{File: source, Err: err}
	}

	dir := path.Dir(base)
	if dir == "." {
		dir = ""
	}
	key := path.Join(policyDir, base)

	e := &entity.Entity{
		Kind:     entity.KindPolicy,
		Name:     pathcodec.Decode(path.Base(base)),
		FolderID: l.folderID(dir),
		Policy:   string(bs),
		Source:   source,
	}

	values := map[string]any{}
	if def != "" {
		source = path.Join(policyDir, def)
		bs, err := fs.ReadFile(l.fsys, source)
		if err != nil {
			return nil, &ParseError{File: source, Err: err}
		}
		if err := yaml.Unmarshal(bs, &values); err != nil {
			return nil, &ParseError{File: source, Err: err}
		}
	}

	switch typ, _ := values["type"].(string); typ {
	case "", "policy":
	case "service":
		e.Kind = entity.KindService
	default:
		return nil, &ParseError{File: source, Err: fmt.Errorf("unknown definition type %q", typ)}
	}

	if err := l.splitDefinition(e, key, values); err != nil {
		return nil, &ParseError{File: source, Err: err}
	}
	if e.Kind == entity.KindPolicy && e.GUID == "" {
		e.GUID = uuid.NewSHA1(guidSpace, []byte(base)).String()
	}
	return e, nil
}

func prefixAll(dir string, files []string) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = path.Join(dir, f)
	}
	return out
}
