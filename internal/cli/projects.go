package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/go-nugetbzl/label"
	"github.com/albertocavalcante/go-nugetbzl/project"
)

// workspaceEnv is set by `bazel run` to the workspace root.
const workspaceEnv = "BUILD_WORKSPACE_DIRECTORY"

func newProjectsCmd() *cobra.Command {
	var (
		root        string
		repository  string
		exports     string
		imports     []string
		search      []string
		appendFiles []string
		visibility  []string
		rulesFile   string
		testRules   string
		contextData string
	)

	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Generate BUILD files for the C# projects of a workspace",
		Long: `Generate a BUILD file next to every *.csproj below the workspace root.

Package references point into the NuGet repository named by --workspace.
Run through bazel run, the workspace root defaults to $BUILD_WORKSPACE_DIRECTORY.

Examples:
  nugetbzl projects -p . -w nuget --search src
  nugetbzl projects --visibility "src/Internal/**=//src/Internal:__subpackages__"
  nugetbzl projects -e .exports -i @shared=external/shared/.exports`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if root == "" {
				root = os.Getenv(workspaceEnv)
			}
			if root == "" {
				return errors.New("workspace root is required: set --path or " + workspaceEnv)
			}

			parsed, err := label.ParseImports(imports, nil)
			if err != nil {
				return err
			}
			var rules []project.VisibilityRule
			for _, v := range visibility {
				r, err := project.ParseVisibility(v)
				if err != nil {
					return err
				}
				rules = append(rules, r)
			}
			var appendix []string
			for _, f := range appendFiles {
				data, err := os.ReadFile(f)
				if err != nil {
					return fmt.Errorf("read append file: %w", err)
				}
				appendix = append(appendix, string(data))
			}

			logger := loggerFromContext(cmd.Context())
			p := newProgress(logger)
			g, err := project.New(root,
				project.WithRepository(repository),
				project.WithRulesFile(rulesFile),
				project.WithTestRulesFile(testRules),
				project.WithContextData(contextData),
				project.WithImports(parsed),
				project.WithSearch(search...),
				project.WithVisibility(rules...),
				project.WithAppend(strings.Join(appendix, "\n")),
				project.WithExports(exports),
				project.WithLogger(slogger(logger)),
			)
			if err != nil {
				return err
			}
			res, err := g.Generate(cmd.Context())
			if err != nil {
				return err
			}

			for _, c := range res.Changes {
				logger.Info("Changed target", "target", c.Target, "added", c.AddedDeps, "removed", c.RemovedDeps)
			}
			p.done(fmt.Sprintf("Generated %d projects: %d written, %d unchanged, %d skipped",
				len(res.Projects), len(res.Written), len(res.Unchanged), len(res.Skipped)))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&root, "path", "p", "", "workspace root (default $"+workspaceEnv+")")
	f.StringVarP(&repository, "workspace", "w", project.DefaultRepository, "repository to load NuGet packages from")
	f.StringVarP(&exports, "exports", "e", "", "write {project}={label} lines for the generated projects to this file")
	f.StringArrayVarP(&imports, "imports", "i", nil, "import mapping {repo}={exports_file}[={config_setting}] (repeatable)")
	f.StringArrayVar(&search, "search", nil, "folder to search for projects (repeatable)")
	f.StringArrayVar(&appendFiles, "append", nil, "file whose contents are appended to every BUILD file (repeatable)")
	f.StringArrayVar(&visibility, "visibility", nil, "{glob}={label}[,{label}] visibility of matching projects (repeatable)")
	f.StringVar(&rulesFile, "rule-file", project.DefaultRulesFile, ".bzl file of the project rules")
	f.StringVar(&testRules, "test-rule-file", "", ".bzl file of the test rule (default --rule-file)")
	f.StringVar(&contextData, "context-data", "", "dotnet_context_data label of every rule")

	return cmd
}
