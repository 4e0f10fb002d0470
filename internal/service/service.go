// Package service runs gwbundle operations end to end: building the bundles
// of a configuration and decompiling bundle documents.
package service

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"

	"github.com/gatewaykit/gwbundle/internal/builder"
	"github.com/gatewaykit/gwbundle/internal/config"
	"github.com/gatewaykit/gwbundle/internal/entity"
	"github.com/gatewaykit/gwbundle/internal/ids"
	"github.com/gatewaykit/gwbundle/internal/logging"
	"github.com/gatewaykit/gwbundle/internal/progress"
)

const defaultOutput = "dist"

// Service builds the bundles of a configuration. Bundles are built in
// dependency order so that the output of a required bundle is available to
// the bundles requiring it.
type Service struct {
	config   *config.Root
	baseDir  string
	output   string
	mode     *builder.Mode
	selected []string
	diff     io.Writer
	log      *logging.Logger
	bar      *progress.Bar
	registry *builder.Registry
}

func New() *Service {
	return &Service{registry: builder.DefaultRegistry()}
}

func (s *Service) WithConfig(root *config.Root) *Service {
	s.config = root
	return s
}

// WithBaseDir sets the directory relative paths of the configuration are
// resolved against, usually the directory of the configuration file.
func (s *Service) WithBaseDir(dir string) *Service {
	s.baseDir = dir
	return s
}

// WithOutput overrides the configured output directory.
func (s *Service) WithOutput(dir string) *Service {
	s.output = dir
	return s
}

func (s *Service) WithMode(m builder.Mode) *Service {
	s.mode = &m
	return s
}

// WithBundles restricts the run to the named bundles and the bundles they
// require.
func (s *Service) WithBundles(names ...string) *Service {
	s.selected = append(s.selected, names...)
	return s
}

func (s *Service) WithDiff(w io.Writer) *Service {
	s.diff = w
	return s
}

func (s *Service) WithLogger(log *logging.Logger) *Service {
	s.log = log
	return s
}

func (s *Service) WithProgress(bar *progress.Bar) *Service {
	s.bar = bar
	return s
}

func (s *Service) WithRegistry(r *builder.Registry) *Service {
	s.registry = r
	return s
}

// Report is the result of building one bundle.
type Report struct {
	Bundle string
	Status Status
}

// Run builds the selected bundles. The first failure stops the run.
func (s *Service) Run(ctx context.Context) ([]Report, error) {
	if s.config == nil {
		return nil, fmt.Errorf("no configuration")
	}

	sorted, err := s.config.TopologicalSortedBundles()
	if err != nil {
		return nil, err
	}
	sorted, err = s.selection(sorted)
	if err != nil {
		return nil, err
	}

	generator := ids.New()
	outputs := make(map[string]*entity.Bundle, len(sorted))
	reports := make([]Report, 0, len(sorted))

	for _, b := range sorted {
		if err := ctx.Err(); err != nil {
			return reports, err
		}

		var requirements []*entity.Bundle
		for _, r := range b.Requirements {
			requirements = append(requirements, outputs[r.Bundle])
		}

		worker := NewBundleWorker(b, s.log, s.bar).
			WithBaseDir(s.baseDir).
			WithRegistry(s.registry).
			WithIDs(generator).
			WithRequirements(requirements...).
			WithPackager(s.packager(b))
		if s.mode != nil {
			worker = worker.WithMode(*s.mode)
		}

		err := worker.Execute(ctx)
		reports = append(reports, Report{Bundle: b.Name, Status: worker.Status()})
		if err != nil {
			return reports, err
		}
		outputs[b.Name] = worker.Output()
		s.log.Infof("Built bundle %q (%d items)", b.Name, worker.Status().Items)
	}

	return reports, nil
}

func (s *Service) packager(b *config.Bundle) Packager {
	dir := cmp.Or(s.output, b.Output, s.config.Output, defaultOutput)
	if !filepath.IsAbs(dir) && s.baseDir != "" && s.output == "" {
		dir = filepath.Join(s.baseDir, dir)
	}
	return NewDirectoryPackager(dir).
		WithDiff(s.diff).
		WithLogger(s.log).
		WithProgress(s.bar)
}

// selection keeps the selected bundles and everything they require,
// preserving the order of sorted.
func (s *Service) selection(sorted []*config.Bundle) ([]*config.Bundle, error) {
	if len(s.selected) == 0 {
		return sorted, nil
	}

	keep := map[string]bool{}
	var visit func(name string) error
	visit = func(name string) error {
		if keep[name] {
			return nil
		}
		b, ok := s.config.Bundles[name]
		if !ok {
			return fmt.Errorf("unknown bundle %q", name)
		}
		keep[name] = true
		for _, r := range b.Requirements {
			if err := visit(r.Bundle); err != nil {
				return err
			}
		}
		return nil
	}
	for _, name := range s.selected {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	return slices.DeleteFunc(slices.Clone(sorted), func(b *config.Bundle) bool { return !keep[b.Name] }), nil
}
