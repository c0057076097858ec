package cli

import (
	"fmt"
	"path"

	"github.com/spf13/cobra"

	nugetbzl "github.com/albertocavalcante/go-nugetbzl"
)

func newRepositoryCmd() *cobra.Command {
	s := defaultSettings()

	cmd := &cobra.Command{
		Use:   "repository [nuget.config]",
		Short: "Generate the BUILD files of a NuGet repository",
		Long: `Generate an external Bazel repository for the packages referenced by
Packages.props files or project directories.

Examples:
  nugetbzl repository nuget.config -p Packages.props
  nugetbzl repository -p src -t net8.0 -t net48 -o external/nuget
  nugetbzl repository -s ./feed -p Packages.props --lock-file packages.lock.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				s.nugetConfig = args[0]
				_ = cmd.Flags().Set("nuget-config", args[0])
			}
			if err := s.load(cmd.Flags()); err != nil {
				return err
			}
			files, err := s.packageFiles()
			if err != nil {
				return err
			}

			logger := loggerFromContext(cmd.Context())
			p := newProgress(logger)
			opts := append(s.options(),
				nugetbzl.WithLogger(slogger(logger)),
				nugetbzl.WithProgress(p.report),
			)

			res, err := nugetbzl.GenerateFiles(cmd.Context(), files, opts...)
			if err != nil {
				return err
			}

			for _, w := range res.Warnings {
				logger.Warn(w)
			}
			for _, c := range res.Report.Changes {
				logger.Info("Changed target", "target", "//"+path.Dir(c.Path)+":"+c.Target,
					"from", c.OldVersion, "to", c.NewVersion, "added", c.AddedDeps, "removed", c.RemovedDeps)
			}
			if res.LockFileWritten {
				logger.Info("Wrote lock file", "path", s.lockFile)
			}
			p.done(fmt.Sprintf("Generated %d packages into %s: %d written, %d unchanged, %d links",
				res.Summary.TotalPackages, s.output, len(res.Report.Written), len(res.Report.Unchanged), len(res.Links)))
			return nil
		},
	}

	s.register(cmd.Flags())
	cmd.Flags().StringVarP(&s.output, "output", "o", s.output, "output directory of the repository")
	cmd.Flags().StringVar(&s.ruleFile, "rule-file", "", ".bzl file of the import rule")
	cmd.Flags().StringVar(&s.rule, "rule", "", "rule used for package targets")

	return cmd
}
