package writer

import (
	"fmt"
	"io"
	"maps"

	"github.com/goccy/go-yaml"

	"github.com/gatewaykit/gwbundle/internal/entity"
	"github.com/gatewaykit/gwbundle/internal/wire"
)

// MetadataSuffix ends the file name of a metadata sidecar, after the mode.
const MetadataSuffix = ".metadata.yml"

// Metadata describes a built bundle for the tools installing it.
type Metadata struct {
	Type            string          `yaml:"type"`
	Name            string          `yaml:"name"`
	Version         string          `yaml:"version,omitempty"`
	Description     string          `yaml:"description,omitempty"`
	Hints           map[string]any  `yaml:"hints,omitempty"`
	DefinedEntities []DefinedEntity `yaml:"definedEntities"`
}

// DefinedEntity is an entity a bundle provides to its consumers: every
// encapsulated assertion and every entity annotated with @bundle.
type DefinedEntity struct {
	Type      entity.Kind             `yaml:"type"`
	Name      string                  `yaml:"name"`
	ID        string                  `yaml:"id"`
	Arguments []entity.EncassArgument `yaml:"arguments,omitempty"`
	Results   []entity.EncassResult   `yaml:"results,omitempty"`
}

// NewMetadata collects the metadata of doc. Local items carry their
// @bundle-hints into the metadata; later items win on conflicting keys.
func NewMetadata(mode, name, version, description string, doc *wire.Document) (*Metadata, error) {
	m := &Metadata{
		Type:            mode,
		Name:            name,
		Version:         version,
		Description:     description,
		DefinedEntities: []DefinedEntity{},
	}

	for _, e := range doc.Items {
		if len(e.Annotations.Hints) > 0 {
			if m.Hints == nil {
				m.Hints = map[string]any{}
			}
			maps.Copy(m.Hints, e.Annotations.Hints)
		}

		switch {
		case e.Kind == entity.KindEncapsulatedAssertion:
			ea, err := entity.Decode[entity.EncapsulatedAssertion](e)
			if err != nil {
				return nil, err
			}
			m.DefinedEntities = append(m.DefinedEntities, DefinedEntity{
				Type:      e.Kind,
				Name:      e.Name,
				ID:        e.ID,
				Arguments: ea.Arguments,
				Results:   ea.Results,
			})
		case e.Annotations.Bundle:
			m.DefinedEntities = append(m.DefinedEntities, DefinedEntity{Type: e.Kind, Name: e.Name, ID: e.ID})
		}
	}
	return m, nil
}

// FileName returns the sidecar file name: <name>-<version>.<mode>.metadata.yml.
func (m *Metadata) FileName() string {
	return FileName(m.Name, m.Version, "."+m.Type+MetadataSuffix)
}

func (m *Metadata) WriteTo(w io.Writer) (int64, error) {
	bs, err := yaml.Marshal(m)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	n, err := w.Write(bs)
	return int64(n), err
}

// ReadMetadata parses a metadata sidecar.
func ReadMetadata(r io.Reader) (*Metadata, error) {
	bs, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var m Metadata
	if err := yaml.Unmarshal(bs, &m); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &m, nil
}
