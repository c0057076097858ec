package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	nugetbzl "github.com/albertocavalcante/go-nugetbzl"
	"github.com/albertocavalcante/go-nugetbzl/graph"
)

type resolveOpts struct {
	format  string
	target  string
	explain string
	out     string
}

func newResolveCmd() *cobra.Command {
	s := defaultSettings()
	var opts resolveOpts

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the resolved dependency graph",
		Long: `Resolve package references without downloading assets and print the
dependency graph of one target.

Examples:
  nugetbzl resolve -p Packages.props
  nugetbzl resolve -p Packages.props -t net8.0 -r "" --format dot | dot -Tsvg > deps.svg
  nugetbzl resolve -p Packages.props --explain System.Memory`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.load(cmd.Flags()); err != nil {
				return err
			}
			files, err := s.packageFiles()
			if err != nil {
				return err
			}

			logger := loggerFromContext(cmd.Context())
			p := newProgress(logger)
			res, err := nugetbzl.ResolveFiles(cmd.Context(), files, append(s.options(),
				nugetbzl.WithLogger(slogger(logger)),
				nugetbzl.WithProgress(p.report),
			)...)
			if err != nil {
				return err
			}
			for _, w := range res.Warnings {
				logger.Warn(w)
			}
			p.done(fmt.Sprintf("Resolved %d packages", res.Summary.TotalPackages))

			g, err := pickGraph(res, opts.target)
			if err != nil {
				return err
			}

			var data []byte
			if opts.explain != "" {
				text, err := g.ToExplainText(opts.explain)
				if err != nil {
					return err
				}
				data = []byte(text)
			} else if data, err = g.Encode(graph.Format(opts.format)); err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.out, data)
		},
	}

	s.register(cmd.Flags())
	cmd.Flags().StringVarP(&opts.format, "format", "f", string(graph.FormatText), "output format: "+formatNames())
	cmd.Flags().StringVar(&opts.target, "target", "", `graph to print, e.g. "net8.0" or "net8.0/linux-x64" (default: first)`)
	cmd.Flags().StringVar(&opts.explain, "explain", "", "explain why a package version was selected")
	cmd.Flags().StringVarP(&opts.out, "output", "o", "", "output file (stdout if empty)")

	return cmd
}

func pickGraph(res *nugetbzl.Resolution, target string) (*graph.Graph, error) {
	if target != "" {
		g, ok := res.Graph(target)
		if !ok {
			return nil, fmt.Errorf("no graph for target %q", target)
		}
		return g, nil
	}
	graphs := res.DependencyGraphs()
	if len(graphs) == 0 {
		return nil, fmt.Errorf("resolution has no graphs")
	}
	return graphs[0], nil
}

func formatNames() string {
	names := make([]string, 0, len(graph.Formats()))
	for _, f := range graph.Formats() {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
