package project

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/albertocavalcante/go-nugetbzl/label"
	"github.com/albertocavalcante/go-nugetbzl/render"
	"github.com/albertocavalcante/go-nugetbzl/workspace"
)

// Defaults of a Generator.
const (
	DefaultRepository = "nuget"
	DefaultRulesFile  = render.DefaultRulesFile
)

// DefaultAssemblyDeps are framework assemblies every project depends on.
var DefaultAssemblyDeps = []string{
	"@io_bazel_rules_dotnet//dotnet/stdlib.core:netstandard.dll",
	"@io_bazel_rules_dotnet//dotnet/stdlib.core:microsoft.csharp.dll",
	"@io_bazel_rules_dotnet//dotnet/stdlib.core:system.reflection.dll",
}

// Generator writes BUILD files for the projects below a workspace root.
type Generator struct {
	root            string
	repository      string
	rulesFile       string
	testRulesFile   string
	contextData     string
	assemblyDeps    []string
	imports         label.Imports
	search          []string
	visibilityRules []VisibilityRule
	appendix        string
	exportsFile     string
	concurrency     int
	logger          *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithRepository sets the name of the external NuGet repository.
func WithRepository(name string) Option {
	return func(g *Generator) {
		if name != "" {
			g.repository = name
		}
	}
}

// WithRulesFile sets the .bzl file that defines the project rules.
func WithRulesFile(file string) Option {
	return func(g *Generator) {
		if file != "" {
			g.rulesFile = file
		}
	}
}

// WithTestRulesFile sets the .bzl file of the test rule, when it differs
// from the rules file.
func WithTestRulesFile(file string) Option {
	return func(g *Generator) { g.testRulesFile = file }
}

// WithContextData sets the dotnet_context_data label of every rule.
func WithContextData(l string) Option {
	return func(g *Generator) { g.contextData = l }
}

// WithAssemblyDeps replaces [DefaultAssemblyDeps].
func WithAssemblyDeps(labels ...string) Option {
	return func(g *Generator) { g.assemblyDeps = labels }
}

// WithImports redirects package and project references to other repositories.
func WithImports(imports label.Imports) Option {
	return func(g *Generator) { g.imports = imports }
}

// WithSearch limits discovery to folders relative to the root. Missing
// folders are ignored.
func WithSearch(folders ...string) Option {
	return func(g *Generator) { g.search = folders }
}

// WithVisibility adds visibility rules. The first matching rule applies.
func WithVisibility(rules ...VisibilityRule) Option {
	return func(g *Generator) { g.visibilityRules = append(g.visibilityRules, rules...) }
}

// WithAppend appends Starlark content to every BUILD file, after a
// `name = "<project>"` assignment.
func WithAppend(content string) Option {
	return func(g *Generator) { g.appendix = content }
}

// WithExports writes "{project}={label}" lines for every generated project
// to file, relative to the root. Another repository imports them with
// [label.ParseImports].
func WithExports(file string) Option {
	return func(g *Generator) { g.exportsFile = file }
}

// WithConcurrency bounds how many project files are parsed at once.
func WithConcurrency(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.concurrency = n
		}
	}
}

// WithLogger sets the logger for generation diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// New returns a generator for the workspace at root.
func New(root string, opts ...Option) (*Generator, error) {
	if root == "" {
		return nil, errors.New("workspace root is required")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", root)
	}
	g := &Generator{
		root:         filepath.Clean(root),
		repository:   DefaultRepository,
		rulesFile:    DefaultRulesFile,
		assemblyDeps: DefaultAssemblyDeps,
		concurrency:  8,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.testRulesFile == "" {
		g.testRulesFile = g.rulesFile
	}
	return g, nil
}

// Result summarizes a generation run.
type Result struct {
	// Projects are the generated projects in path order.
	Projects []*Definition

	// Skipped are .NET Standard projects, which get no BUILD file.
	Skipped []string

	Written   []string
	Unchanged []string
	Changes   []workspace.TargetChange
}

// Discover returns the slash-separated paths of the project files below the
// search folders, sorted. Bazel output folders are not searched.
func (g *Generator) Discover() ([]string, error) {
	roots := []string{"."}
	if len(g.search) > 0 {
		roots = roots[:0]
		for _, s := range g.search {
			s = path.Clean(normalize(s))
			info, err := os.Stat(filepath.Join(g.root, filepath.FromSlash(s)))
			if err != nil || !info.IsDir() {
				g.logger.Debug("skipping missing search folder", "folder", s)
				continue
			}
			roots = append(roots, s)
		}
	}

	var files []string
	fsys := os.DirFS(g.root)
	for _, r := range roots {
		err := fs.WalkDir(fsys, r, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p != r && strings.HasPrefix(d.Name(), "bazel-") {
					return fs.SkipDir
				}
				return nil
			}
			if strings.EqualFold(path.Ext(p), Extension) {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to search project files: %w", err)
		}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

// Generate writes a BUILD file next to every discovered project and, when
// configured, the exports file. Files whose content is unchanged are not
// rewritten.
func (g *Generator) Generate(ctx context.Context) (*Result, error) {
	files, err := g.Discover()
	if err != nil {
		return nil, err
	}

	defs := make([]*Definition, len(files))
	builds := make([][]byte, len(files))
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for i, rel := range files {
		eg.Go(func() error {
			if err := egctx.Err(); err != nil {
				return err
			}
			d, err := ParseFile(g.root, rel, g.imports)
			if err != nil {
				return err
			}
			defs[i] = d
			if d.IsNetStandard() {
				return nil
			}
			content, err := g.BuildFile(d)
			if err != nil {
				return fmt.Errorf("%s: %w", rel, err)
			}
			builds[i] = content
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	ws, err := workspace.New(g.root, workspace.WithLogger(g.logger))
	if err != nil {
		return nil, err
	}
	res := &Result{}
	written := map[string]string{}
	for i, d := range defs {
		if builds[i] == nil {
			g.logger.Debug("skipping .NET Standard project", "project", d.Path)
			res.Skipped = append(res.Skipped, d.Path)
			continue
		}
		buildPath := path.Join(d.Dir(), "BUILD")
		if other, dup := written[buildPath]; dup {
			return nil, fmt.Errorf("projects %s and %s share the folder %s", other, d.Path, d.Dir())
		}
		written[buildPath] = d.Path
		res.Projects = append(res.Projects, d)

		if err := g.write(ws, render.File{Path: buildPath, Content: builds[i]}, res); err != nil {
			return nil, err
		}
	}

	if g.exportsFile != "" {
		if err := g.write(ws, render.File{Path: normalize(g.exportsFile), Content: Exports(res.Projects)}, res); err != nil {
			return nil, err
		}
	}
	g.logger.Debug("projects generated", "projects", len(res.Projects), "skipped", len(res.Skipped), "written", len(res.Written))
	return res, nil
}

func (g *Generator) write(ws *workspace.Workspace, f render.File, res *Result) error {
	prev, err := os.ReadFile(filepath.Join(g.root, filepath.FromSlash(f.Path)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	changed, err := ws.WriteFile(f)
	if err != nil {
		return err
	}
	if !changed {
		res.Unchanged = append(res.Unchanged, f.Path)
		return nil
	}
	res.Written = append(res.Written, f.Path)
	if prev != nil && path.Base(f.Path) == "BUILD" {
		res.Changes = append(res.Changes, workspace.Changes(f.Path, prev, f.Content)...)
	}
	return nil
}

// Exports renders "{project}={label}" lines sorted by project name.
func Exports(defs []*Definition) []byte {
	lines := make([]string, 0, len(defs))
	for _, d := range defs {
		lines = append(lines, d.Name+"="+d.Label())
	}
	slices.Sort(lines)
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}
