package cli

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/go-nugetbzl/apphost"
)

func newShimCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "shim <apphost> <dll>",
		Short: "Create a native launcher for an application assembly",
		Long: `Patch an apphost template so that it starts the given assembly. The
launcher is written next to the assembly with an .exe extension unless
--output is set.

Examples:
  nugetbzl shim sdk/apphost bazel-bin/app/App.dll
  nugetbzl shim sdk/apphost App.dll -o App`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			template, dll := args[0], args[1]
			dest := output
			if dest == "" {
				dest = strings.TrimSuffix(dll, filepath.Ext(dll)) + ".exe"
			}
			if err := apphost.Create(template, dll, dest); err != nil {
				return err
			}
			loggerFromContext(cmd.Context()).Info("Created launcher", "path", dest, "assembly", dll)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "launcher path")
	return cmd
}
