package service

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gatewaykit/gwbundle/internal/builder"
	"github.com/gatewaykit/gwbundle/internal/config"
	"github.com/gatewaykit/gwbundle/internal/entity"
	gwfs "github.com/gatewaykit/gwbundle/internal/fs"
	"github.com/gatewaykit/gwbundle/internal/ids"
	"github.com/gatewaykit/gwbundle/internal/jsonpatch"
	"github.com/gatewaykit/gwbundle/internal/linker"
	"github.com/gatewaykit/gwbundle/internal/loader"
	"github.com/gatewaykit/gwbundle/internal/logging"
	"github.com/gatewaykit/gwbundle/internal/metrics"
	"github.com/gatewaykit/gwbundle/internal/progress"
	"github.com/gatewaykit/gwbundle/internal/wire"
	"github.com/gatewaykit/gwbundle/internal/writer"
)

// BundleWorker builds one configured bundle: it loads the sources and
// dependencies, links and resolves references, assembles the bundle
// document and hands it to a packager.
type BundleWorker struct {
	bundleConfig *config.Bundle
	baseDir      string
	registry     *builder.Registry
	mode         *builder.Mode
	ids          *ids.Generator
	requirements []*entity.Bundle
	packager     Packager
	log          *logging.Logger
	bar          *progress.Bar
	status       Status
	document     *wire.Document
	output       *entity.Bundle
}

func NewBundleWorker(b *config.Bundle, logger *logging.Logger, bar *progress.Bar) *BundleWorker {
	return &BundleWorker{
		bundleConfig: b,
		registry:     builder.DefaultRegistry(),
		ids:          ids.New(),
		log:          logger,
		bar:          bar,
	}
}

// WithBaseDir sets the directory relative source and dependency paths are
// resolved against.
func (w *BundleWorker) WithBaseDir(dir string) *BundleWorker {
	w.baseDir = dir
	return w
}

func (w *BundleWorker) WithRegistry(r *builder.Registry) *BundleWorker {
	w.registry = r
	return w
}

// WithMode overrides the configured assembly mode.
func (w *BundleWorker) WithMode(m builder.Mode) *BundleWorker {
	w.mode = &m
	return w
}

func (w *BundleWorker) WithIDs(g *ids.Generator) *BundleWorker {
	w.ids = g
	return w
}

// WithRequirements adds the output of previously built bundles as
// dependencies.
func (w *BundleWorker) WithRequirements(bundles ...*entity.Bundle) *BundleWorker {
	w.requirements = append(w.requirements, bundles...)
	return w
}

func (w *BundleWorker) WithPackager(p Packager) *BundleWorker {
	w.packager = p
	return w
}

func (w *BundleWorker) Status() Status {
	return w.status
}

// Document returns the built bundle document, or nil before a successful
// Execute.
func (w *BundleWorker) Document() *wire.Document {
	return w.document
}

// Output returns the built bundle as a dependency for other bundles.
func (w *BundleWorker) Output() *entity.Bundle {
	return w.output
}

// Execute runs one build.
func (w *BundleWorker) Execute(ctx context.Context) error {
	startTime := time.Now() // Used for timing metric

	defer w.bar.Add(1)

	cfg := w.bundleConfig
	log := w.log.With("bundle", cfg.Name)

	mode, err := w.resolveMode()
	if err != nil {
		return w.report(BuildStateConfigError, mode, startTime, err)
	}

	version, err := config.ResolveVersion(ctx, cfg.Version, map[string]any{"name": cfg.Name, "mode": mode.String()})
	if err != nil {
		return w.report(BuildStateConfigError, mode, startTime, err)
	}
	w.status.Version = version

	l, err := w.newLoader(log)
	if err != nil {
		return w.report(BuildStateConfigError, mode, startTime, err)
	}

	local, err := l.Load(ctx)
	if err != nil {
		log.Warnf("failed to load bundle %q: %v", cfg.Name, err)
		return w.report(BuildStateLoadFailed, mode, startTime, err)
	}

	ix, err := linker.NewIndex(append([]*entity.Bundle{local}, local.Dependencies...)...)
	if err != nil {
		return w.report(BuildStateLinkFailed, mode, startTime, err)
	}
	warnings, err := linker.New(ix).RestoreBundle(local)
	if err != nil {
		log.Warnf("failed to link bundle %q: %v", cfg.Name, err)
		return w.report(BuildStateLinkFailed, mode, startTime, err)
	}
	for _, warning := range warnings {
		log.Warnf("Unresolved policy reference: %v", warning)
		w.status.Warnings = append(w.status.Warnings, warning.String())
	}
	metrics.LinkerWarnings(len(warnings))

	forced := make([]linker.Reference, 0, len(cfg.Include))
	for _, ref := range cfg.Include {
		k, err := entity.ParseKind(ref.Kind)
		if err != nil {
			return w.report(BuildStateConfigError, mode, startTime, err)
		}
		forced = append(forced, linker.Reference{Kind: k, Name: ref.Name})
	}

	res, err := builder.NewResolver(w.registry).WithLogger(log).Resolve(local, forced)
	if err != nil {
		log.Warnf("failed to resolve dependencies of bundle %q: %v", cfg.Name, err)
		return w.report(BuildStateResolveFailed, mode, startTime, err)
	}
	for _, u := range res.Unresolved {
		w.status.Unresolved = append(w.status.Unresolved, u.String())
	}
	w.status.Notes = res.Notes
	metrics.UnresolvedReferences(cfg.Name, len(res.Unresolved))

	b := builder.New(w.registry).
		WithMode(mode).
		WithResolution(res).
		WithLogger(log)
	if err := b.Build(ctx); err != nil {
		log.Warnf("failed to build bundle %q: %v", cfg.Name, err)
		return w.report(BuildStateBuildFailed, mode, startTime, err)
	}
	doc := b.Document()

	metadata, err := writer.NewMetadata(mode.String(), cfg.Name, version, cfg.Description, doc)
	if err != nil {
		return w.report(BuildStateBuildFailed, mode, startTime, err)
	}

	if w.packager != nil {
		artifact := &Artifact{Document: doc, Metadata: metadata}
		for _, item := range doc.Items {
			if item.Kind == entity.KindPrivateKey {
				artifact.Keys = append(artifact.Keys, item)
			}
		}
		files, err := w.packager.Package(ctx, artifact)
		if err != nil {
			log.Warnf("failed to package bundle %q: %v", cfg.Name, err)
			return w.report(BuildStatePackageFailed, mode, startTime, err)
		}
		w.status.Files = files
	}

	output, err := doc.Bundle(cfg.Name)
	if err != nil {
		return w.report(BuildStateInternalError, mode, startTime, err)
	}
	if err := loader.AttachTree(output); err != nil {
		return w.report(BuildStateInternalError, mode, startTime, err)
	}

	w.document = doc
	w.output = output
	w.status.Items = len(doc.Items)

	counts := map[string]int{}
	for _, item := range doc.Items {
		counts[item.Kind.String()]++
	}
	metrics.BundleItems(cfg.Name, counts)

	log.Debugf("Bundle %q built with %d items.", cfg.Name, len(doc.Items))
	return w.report(BuildStateSuccess, mode, startTime, nil)
}

func (w *BundleWorker) resolveMode() (builder.Mode, error) {
	if w.mode != nil {
		return *w.mode, nil
	}
	return builder.ParseMode(string(w.bundleConfig.Mode.Or(config.ModeDeployment)))
}

func (w *BundleWorker) newLoader(log *logging.Logger) (*loader.Loader, error) {
	cfg := w.bundleConfig

	fsys, err := loader.SourceFS(w.paths(cfg.Sources), cfg.ExcludedFiles)
	if err != nil {
		return nil, err
	}

	if found, err := gwfs.ContainsFiles(fsys, ".policy", ".yml", ".yaml", ".json", ".properties"); err != nil {
		return nil, err
	} else if !found {
		log.Warnf("Bundle %q has no source files.", cfg.Name)
	}

	excluded, err := cfg.ExcludedMatcher()
	if err != nil {
		return nil, err
	}

	overrides := make([]loader.Override, 0, len(cfg.Overrides))
	for _, o := range cfg.Overrides {
		k, err := entity.ParseKind(o.Kind)
		if err != nil {
			return nil, err
		}
		patch, err := jsonpatch.Decode(o.Patch)
		if err != nil {
			return nil, fmt.Errorf("override of %s %q: %w", k, o.Name, err)
		}
		overrides = append(overrides, loader.Override{Kind: k, Name: o.Name, Patch: patch})
	}

	return loader.New(fsys).
		WithOrigin(cfg.Name).
		WithIDs(w.ids).
		WithLogger(log).
		WithExcluded(excluded).
		WithOverrides(overrides...).
		WithDependencyFiles(w.paths(cfg.Dependencies)...).
		WithDependencies(w.requirements...), nil
}

func (w *BundleWorker) paths(ps []string) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		if filepath.IsAbs(p) || w.baseDir == "" {
			out[i] = p
			continue
		}
		out[i] = filepath.Join(w.baseDir, p)
	}
	return out
}

func (w *BundleWorker) report(state BuildState, mode builder.Mode, startTime time.Time, err error) error {
	w.status.State = state
	if err != nil {
		w.status.Message = err.Error()
		metrics.BundleBuildFailed(w.bundleConfig.Name, state.String())
		return fmt.Errorf("bundle %q: %w", w.bundleConfig.Name, err)
	}

	metrics.BundleBuildSucceeded(w.bundleConfig.Name, mode.String(), startTime)
	return nil
}
