// Package cli implements the nugetbzl command-line interface.
//
// # Commands
//
//   - repository: generate the BUILD files of an external NuGet repository
//   - resolve: print the resolved dependency graph
//   - diff: compare lock files, or a lock file with a fresh resolution
//   - projects: generate BUILD files for the C# projects of a workspace
//   - shim: create a native launcher from an apphost template
//
// Settings come from flags, then nugetbzl.toml, then built-in defaults.
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging. The logger is
// carried in the command context and handed to the library as a slog handler.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  string
	date    string
)

// SetVersion sets the version information displayed by --version.
// This is typically called by the main package with values injected via
// ldflags at build time.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the nugetbzl CLI with the process arguments.
func Execute(ctx context.Context) error {
	return newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "nugetbzl",
		Short:         "nugetbzl generates Bazel BUILD files for NuGet packages",
		Long:          `nugetbzl resolves NuGet package references with NuGet's version rules and generates an external Bazel repository with one BUILD file per package.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := log.InfoLevel
			if verbose {
				level = log.DebugLevel
			}
			cmd.SetContext(withLogger(cmd.Context(), newLogger(stderr, level)))
		},
	}

	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate(fmt.Sprintf("nugetbzl %s\ncommit: %s\nbuilt: %s\n", version, commit, date))
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newRepositoryCmd())
	root.AddCommand(newResolveCmd())
	root.AddCommand(newDiffCmd())
	root.AddCommand(newProjectsCmd())
	root.AddCommand(newShimCmd())

	return root
}
