package command

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gatewaykit/gwbundle/internal/progress"
	"github.com/gatewaykit/gwbundle/internal/service"
)

type decompileParams struct {
	output       string
	dependencies []string
	progress     bool
}

func init() {
	var params decompileParams

	decompile := &cobra.Command{
		Use:   "decompile <bundle>",
		Short: "Write a bundle document back as a source directory",
		Long: `Decompile reads a bundle document and writes the declarative source layout
it was built from: folders, policy files with their definitions, and the
configuration files of the remaining entities.

References to entities of the dependency bundles are rewritten to names as
well, so the written layout builds again with the same dependencies.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecompile(cmd, args[0], params)
		},
	}

	flags := decompile.Flags()
	flags.StringVarP(&params.output, "output", "o", ".", "directory to write the source layout to")
	flags.StringSliceVarP(&params.dependencies, "dependency", "d", nil, "dependency bundle file(s)")
	addProgressFlag(flags, &params.progress)

	RootCommand.AddCommand(decompile)
}

func runDecompile(cmd *cobra.Command, path string, params decompileParams) error {
	log := newLogger(cmd.ErrOrStderr())

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	d := service.NewDecompiler(params.output).
		WithDependencyFiles(params.dependencies...).
		WithLogger(log)
	if params.progress {
		d = d.WithProgress(progress.New(cmd.ErrOrStderr(), -1, "decompiling"))
	}

	result, err := d.Decompile(cmd.Context(), f, path)
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		log.Warnf("%s", w)
	}
	log.Infof("decompiled %d entities into %d files", result.Entities, len(result.Files))
	for _, name := range result.Files {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}
