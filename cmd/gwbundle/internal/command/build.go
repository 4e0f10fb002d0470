package command

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/thediveo/enumflag/v2"

	"github.com/gatewaykit/gwbundle/internal/builder"
	"github.com/gatewaykit/gwbundle/internal/config"
	"github.com/gatewaykit/gwbundle/internal/metrics"
	"github.com/gatewaykit/gwbundle/internal/progress"
	"github.com/gatewaykit/gwbundle/internal/service"
)

type buildParams struct {
	configFiles  []string
	bundles      []string
	sources      []string
	dependencies []string
	name         string
	version      string
	output       string
	mode         builder.Mode
	diff         bool
	progress     bool
	metricsFile  string
}

func init() {
	var params buildParams

	build := &cobra.Command{
		Use:   "build",
		Short: "Build bundles",
		Long: `Build the bundles of a configuration file, or a single bundle from source
directories given on the command line.

Artifacts are written to the output directory: the bundle document, its
metadata sidecar and, for bundles carrying private keys, a key manifest.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd, params)
		},
	}

	flags := build.Flags()
	flags.StringSliceVarP(&params.configFiles, "config", "c", nil, "configuration file(s) or directories; several are merged")
	flags.StringSliceVarP(&params.bundles, "bundle", "b", nil, "only build the named bundles (and the bundles they require)")
	flags.StringSliceVarP(&params.sources, "source", "s", nil, "source directory of an unconfigured bundle; later directories override earlier ones")
	flags.StringSliceVarP(&params.dependencies, "dependency", "d", nil, "dependency bundle file of an unconfigured bundle")
	flags.StringVar(&params.name, "name", "", "name of an unconfigured bundle (default: base name of the first source)")
	flags.StringVar(&params.version, "version", "", "version of an unconfigured bundle")
	flags.StringVarP(&params.output, "output", "o", "", "output directory (default: configured output or ./dist)")
	flags.Var(enumflag.New(&params.mode, "mode", builder.ModeIds, enumflag.EnumCaseInsensitive), "mode", "assembly mode (deployment, environment); overrides the configuration")
	flags.BoolVar(&params.diff, "diff", false, "print a unified diff against the previously built bundle")
	addProgressFlag(flags, &params.progress)
	flags.StringVar(&params.metricsFile, "metrics-file", "", "write Prometheus metrics of the run to this file")
	build.MarkFlagsMutuallyExclusive("config", "source")

	RootCommand.AddCommand(build)
}

func runBuild(cmd *cobra.Command, params buildParams) error {
	log := newLogger(cmd.ErrOrStderr())

	root, baseDir, err := buildConfig(params)
	if err != nil {
		return err
	}

	svc := service.New().
		WithConfig(root).
		WithBaseDir(baseDir).
		WithOutput(params.output).
		WithBundles(params.bundles...).
		WithLogger(log)

	if cmd.Flags().Changed("mode") {
		svc = svc.WithMode(params.mode)
	}
	if params.diff {
		svc = svc.WithDiff(cmd.OutOrStdout())
	}
	if params.progress {
		svc = svc.WithProgress(progress.New(cmd.ErrOrStderr(), -1, "building"))
	}

	reports, err := svc.Run(cmd.Context())

	if params.metricsFile != "" {
		if err := metrics.WriteToTextfile(params.metricsFile); err != nil {
			log.Warnf("failed to write metrics: %v", err)
		}
	}

	for _, r := range reports {
		for _, n := range r.Status.Notes {
			log.Infof("%s: %s", r.Bundle, n)
		}
		for _, f := range r.Status.Files {
			fmt.Fprintln(cmd.OutOrStdout(), f)
		}
	}
	return err
}

// buildConfig returns the configuration to build and the directory its
// relative paths are resolved against.
func buildConfig(params buildParams) (*config.Root, string, error) {
	if len(params.sources) > 0 {
		name := cmp.Or(params.name, filepath.Base(filepath.Clean(params.sources[0])))
		return &config.Root{
			Bundles: map[string]*config.Bundle{
				name: {
					Name:         name,
					Version:      params.version,
					Sources:      params.sources,
					Dependencies: params.dependencies,
				},
			},
		}, "", nil
	}

	files := params.configFiles
	if len(files) == 0 {
		files = []string{"gwbundle.yaml"}
	}

	if len(files) == 1 {
		root, err := config.ParseFile(files[0])
		if err != nil {
			return nil, "", err
		}
		return root, configDir(files[0]), nil
	}

	bs, err := config.Merge(files, true)
	if err != nil {
		return nil, "", err
	}
	root, err := config.Parse(bs)
	if err != nil {
		return nil, "", err
	}
	return root, configDir(files[0]), nil
}

func configDir(path string) string {
	fi, err := os.Stat(path)
	if err == nil && fi.IsDir() {
		return path
	}
	return filepath.Dir(path)
}
