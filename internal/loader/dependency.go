package loader

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/gatewaykit/gwbundle/internal/entity"
	"github.com/gatewaykit/gwbundle/internal/folder"
	"github.com/gatewaykit/gwbundle/internal/wire"
)

// LoadDependencies reads the given bundle files concurrently. The result has
// the order of paths.
func LoadDependencies(ctx context.Context, paths ...string) ([]*entity.Bundle, error) {
	bundles := make([]*entity.Bundle, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f, err := os.Open(p)
			if err != nil {
				return &ParseError{File: p, Err: err}
			}
			defer f.Close()

			b, err := ReadBundle(f, p)
			if err != nil {
				return err
			}
			bundles[i] = b
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return bundles, nil
}

// ReadBundle parses a bundle document and builds the folder tree of its
// items. Bundles without folders get a tree holding only the root.
func ReadBundle(r io.Reader, origin string) (*entity.Bundle, error) {
	doc, err := wire.Read(r)
	if err != nil {
		return nil, &ParseError{File: origin, Err: err}
	}
	b, err := doc.Bundle(origin)
	if err != nil {
		return nil, &ParseError{File: origin, Err: err}
	}
	if err := AttachTree(b); err != nil {
		return nil, &ParseError{File: origin, Err: err}
	}
	return b, nil
}

// AttachTree builds the folder tree of b. A missing root folder is added
// implicitly, as bundles reference the root without carrying it.
func AttachTree(b *entity.Bundle) error {
	folders := b.Folders()
	hasRoot := false
	for _, f := range folders {
		if f.IsRootFolder() {
			hasRoot = true
			break
		}
	}
	if !hasRoot {
		root := &entity.Entity{Kind: entity.KindFolder, ID: entity.RootFolderID, Name: entity.RootFolderName}
		folders = append(folders, root)
		if err := b.Add(root); err != nil {
			return err
		}
	}

	tree, err := folder.Build(folders)
	if err != nil {
		return fmt.Errorf("folder tree: %w", err)
	}
	b.Tree = tree
	return nil
}
