package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/akedrou/textdiff"
	"github.com/goccy/go-yaml"

	"github.com/gatewaykit/gwbundle/internal/entity"
	"github.com/gatewaykit/gwbundle/internal/logging"
	"github.com/gatewaykit/gwbundle/internal/progress"
	"github.com/gatewaykit/gwbundle/internal/wire"
	"github.com/gatewaykit/gwbundle/internal/writer"
)

const (
	bundleSuffix = ".bundle"
	keysSuffix   = ".keys.yml"
)

// Artifact is everything produced by one bundle build.
type Artifact struct {
	Document *wire.Document
	Metadata *writer.Metadata
	// Keys are the private key entries of the bundle. Their key material is
	// provisioned by an external keystore tool.
	Keys []*entity.Entity
}

// Packager turns a built artifact into deliverable files.
type Packager interface {
	Package(ctx context.Context, a *Artifact) ([]string, error)
}

// DirectoryPackager writes the bundle document, the metadata sidecar and,
// when the bundle has private keys, a key manifest into a directory.
type DirectoryPackager struct {
	dir  string
	diff io.Writer
	log  *logging.Logger
	bar  *progress.Bar
}

func NewDirectoryPackager(dir string) *DirectoryPackager {
	return &DirectoryPackager{dir: dir}
}

// WithDiff makes the packager write a unified diff between the previous and
// the new bundle document to w.
func (p *DirectoryPackager) WithDiff(w io.Writer) *DirectoryPackager {
	p.diff = w
	return p
}

func (p *DirectoryPackager) WithLogger(log *logging.Logger) *DirectoryPackager {
	p.log = log
	return p
}

func (p *DirectoryPackager) WithProgress(bar *progress.Bar) *DirectoryPackager {
	p.bar = bar
	return p
}

type keyManifestEntry struct {
	Alias            string   `yaml:"alias"`
	ID               string   `yaml:"id"`
	KeystoreID       string   `yaml:"keystoreId,omitempty"`
	Algorithm        string   `yaml:"algorithm,omitempty"`
	KeySize          int      `yaml:"keySize,omitempty"`
	CertificateChain []string `yaml:"certificateChain,omitempty"`
}

func (p *DirectoryPackager) Package(ctx context.Context, a *Artifact) ([]string, error) {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return nil, err
	}

	stem := writer.FileName(a.Metadata.Name, a.Metadata.Version, "."+a.Metadata.Type)

	var doc bytes.Buffer
	if _, err := a.Document.WriteTo(&doc); err != nil {
		return nil, err
	}

	var files []string
	bundleFile := stem + bundleSuffix
	if err := p.diffAgainst(bundleFile, doc.String()); err != nil {
		return nil, err
	}
	if err := p.write(ctx, bundleFile, doc.Bytes()); err != nil {
		return nil, err
	}
	files = append(files, bundleFile)

	var meta bytes.Buffer
	if _, err := a.Metadata.WriteTo(&meta); err != nil {
		return nil, err
	}
	if err := p.write(ctx, a.Metadata.FileName(), meta.Bytes()); err != nil {
		return nil, err
	}
	files = append(files, a.Metadata.FileName())

	if len(a.Keys) > 0 {
		manifest := make([]keyManifestEntry, 0, len(a.Keys))
		for _, k := range a.Keys {
			pk, err := entity.Decode[entity.PrivateKey](k)
			if err != nil {
				return nil, err
			}
			manifest = append(manifest, keyManifestEntry{
				Alias:            k.Name,
				ID:               k.ID,
				KeystoreID:       pk.KeystoreID,
				Algorithm:        pk.Algorithm,
				KeySize:          pk.KeySize,
				CertificateChain: pk.CertificateChain,
			})
		}
		bs, err := yaml.Marshal(map[string]any{"keys": manifest})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal key manifest: %w", err)
		}
		keysFile := stem + keysSuffix
		if err := p.write(ctx, keysFile, bs); err != nil {
			return nil, err
		}
		files = append(files, keysFile)
	}

	return slices.Clip(files), nil
}

func (p *DirectoryPackager) diffAgainst(name, content string) error {
	if p.diff == nil {
		return nil
	}
	old, err := os.ReadFile(filepath.Join(p.dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	diff := textdiff.Unified(filepath.Join("a", name), filepath.Join("b", name), string(old), content)
	if diff == "" {
		p.log.Infof("%s is unchanged", name)
		return nil
	}
	_, err = io.WriteString(p.diff, diff)
	return err
}

func (p *DirectoryPackager) write(ctx context.Context, name string, bs []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(p.dir, name), bs, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	p.bar.Add(1)
	p.log.Debugf("Wrote %s", filepath.Join(p.dir, name))
	return nil
}
