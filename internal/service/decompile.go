package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gatewaykit/gwbundle/internal/entity"
	"github.com/gatewaykit/gwbundle/internal/linker"
	"github.com/gatewaykit/gwbundle/internal/loader"
	"github.com/gatewaykit/gwbundle/internal/logging"
	"github.com/gatewaykit/gwbundle/internal/metrics"
	"github.com/gatewaykit/gwbundle/internal/progress"
	"github.com/gatewaykit/gwbundle/internal/writer"
)

// Decompiler writes bundle documents back as the declarative source layout.
type Decompiler struct {
	dir          string
	dependencies []string
	log          *logging.Logger
	bar          *progress.Bar
}

func NewDecompiler(dir string) *Decompiler {
	return &Decompiler{dir: dir}
}

// WithDependencyFiles adds bundles whose entities may be referenced by the
// decompiled bundle. References into them are simplified too.
func (d *Decompiler) WithDependencyFiles(paths ...string) *Decompiler {
	d.dependencies = append(d.dependencies, paths...)
	return d
}

func (d *Decompiler) WithLogger(log *logging.Logger) *Decompiler {
	d.log = log
	return d
}

func (d *Decompiler) WithProgress(bar *progress.Bar) *Decompiler {
	d.bar = bar
	return d
}

// DecompileResult lists what a decompile produced.
type DecompileResult struct {
	Entities int
	Files    []string
	Warnings []linker.Warning
}

// Decompile reads the bundle document from r and writes its layout. origin
// names the document in messages.
func (d *Decompiler) Decompile(ctx context.Context, r io.Reader, origin string) (_ *DecompileResult, err error) {
	startTime := time.Now()
	defer func() { metrics.Decompiled(startTime, err) }()

	b, err := loader.ReadBundle(r, origin)
	if err != nil {
		return nil, err
	}

	deps, err := loader.LoadDependencies(ctx, d.dependencies...)
	if err != nil {
		return nil, err
	}
	b.Dependencies = deps

	ix, err := linker.NewIndex(append([]*entity.Bundle{b}, deps...)...)
	if err != nil {
		return nil, err
	}
	warnings, err := linker.New(ix).SimplifyBundle(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", origin, err)
	}
	for _, w := range warnings {
		d.log.Warnf("Left policy fragment untouched: %v", w)
	}
	metrics.LinkerWarnings(len(warnings))

	layout := writer.NewLayout(d.dir).WithLogger(d.log).WithProgress(d.bar)
	if err := layout.Write(ctx, b); err != nil {
		return nil, err
	}

	return &DecompileResult{Entities: b.Len(), Files: layout.Files(), Warnings: warnings}, nil
}
