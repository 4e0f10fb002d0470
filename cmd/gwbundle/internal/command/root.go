// Package command implements the gwbundle command line.
package command

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thediveo/enumflag/v2"

	"github.com/gatewaykit/gwbundle/internal/logging"
)

// RootCommand is the gwbundle command. Subcommands register themselves in
// init.
var RootCommand = &cobra.Command{
	Use:           "gwbundle",
	Short:         "Compile gateway configuration bundles from declarative sources, and back",
	SilenceUsage:  true,
	SilenceErrors: true,
}

type logParams struct {
	level  logging.Level
	format logging.Format
}

var rootParams = logParams{level: logging.LevelInfo, format: logging.FormatText}

func init() {
	flags := RootCommand.PersistentFlags()
	flags.Var(enumflag.New(&rootParams.level, "log-level", logging.LevelIds, enumflag.EnumCaseInsensitive), "log-level", "set log level (error, warn, info, debug)")
	flags.Var(enumflag.New(&rootParams.format, "log-format", logging.FormatIds, enumflag.EnumCaseInsensitive), "log-format", "set log format (text, json)")
}

func newLogger(w io.Writer) *logging.Logger {
	return logging.NewLogger(logging.Config{Level: rootParams.level, Format: rootParams.format, Output: w})
}

func addProgressFlag(fs *pflag.FlagSet, progress *bool) {
	fs.BoolVar(progress, "progress", false, "show a progress bar on stderr")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := RootCommand.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
