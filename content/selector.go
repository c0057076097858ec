package content

import (
	"log/slog"
	"path"
	"strings"

	"github.com/albertocavalcante/go-nugetbzl/framework"
	"github.com/albertocavalcante/go-nugetbzl/nuget"
	"github.com/albertocavalcante/go-nugetbzl/runtimegraph"
	"github.com/albertocavalcante/go-nugetbzl/sdk"
	"github.com/albertocavalcante/go-nugetbzl/store"
)

// Selection is the per-target asset selection of one package. Every group's
// TargetFramework is the target framework it was selected for, and at most
// one group per framework exists in each category.
type Selection struct {
	Package *store.LocalPackage

	Refs         []nuget.FrameworkSpecificGroup
	Runtime      []nuget.FrameworkSpecificGroup
	DebugRuntime []nuget.FrameworkSpecificGroup
	ContentFiles []nuget.FrameworkSpecificGroup
	Analyzers    []nuget.FrameworkSpecificGroup
	Tools        []nuget.FrameworkSpecificGroup

	// Dependencies merges the nearest nuspec dependency group and the
	// nearest framework reference group, after SDK edge filtering.
	Dependencies []nuget.PackageDependencyGroup
}

// ID returns the package ID.
func (s *Selection) ID() string { return s.Package.Identity.ID }

// HasRuntime reports whether any runtime group has items.
func (s *Selection) HasRuntime() bool { return anyItems(s.Runtime) }

// HasAnalyzers reports whether any analyzer group has items.
func (s *Selection) HasAnalyzers() bool { return anyItems(s.Analyzers) }

// DependenciesFor returns the dependency edges selected for fw.
func (s *Selection) DependenciesFor(fw framework.Moniker) ([]nuget.PackageDependency, bool) {
	for _, g := range s.Dependencies {
		if g.TargetFramework == fw {
			return g.Packages, true
		}
	}
	return nil, false
}

func anyItems(groups []nuget.FrameworkSpecificGroup) bool {
	for _, g := range groups {
		if len(g.Items) > 0 {
			return true
		}
	}
	return false
}

// Selector picks asset groups for packages. It is safe for concurrent use.
type Selector struct {
	conventions *Conventions
	sdk         *sdk.Config
	graph       *runtimegraph.Graph
	firstMatch  bool
	logger      *slog.Logger
}

// Option configures a Selector.
type Option func(*Selector)

// WithConventions replaces the default pattern sets.
func WithConventions(c *Conventions) Option {
	return func(s *Selector) {
		if c != nil {
			s.conventions = c
		}
	}
}

// WithSDK sets the SDK description used for edge filtering.
func WithSDK(c *sdk.Config) Option {
	return func(s *Selector) {
		if c != nil {
			s.sdk = c
		}
	}
}

// WithRuntimeGraph sets the graph used to expand runtime identifiers.
func WithRuntimeGraph(g *runtimegraph.Graph) Option {
	return func(s *Selector) {
		s.graph = g
	}
}

// WithFirstMatchFallback makes ambiguous single-valued categories pick the
// nearest group and log a warning instead of failing.
func WithFirstMatchFallback(enabled bool) Option {
	return func(s *Selector) {
		s.firstMatch = enabled
	}
}

// WithLogger sets the logger for selection warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Selector) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSelector builds a Selector.
func NewSelector(opts ...Option) *Selector {
	s := &Selector{
		conventions: DefaultConventions(),
		sdk:         sdk.Default(),
		graph:       runtimegraph.Default(),
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select computes the asset groups of pkg for each target. Targets sharing a
// framework contribute once; the first one wins.
func (s *Selector) Select(pkg *store.LocalPackage, targets []nuget.Target) (*Selection, error) {
	files := NewCollection(pkg.Files)
	sel := &Selection{Package: pkg}
	conv := s.conventions

	seen := make(map[framework.Moniker]bool, len(targets))
	for _, target := range targets {
		fw := target.Framework
		if seen[fw] {
			continue
		}
		seen[fw] = true
		criteria := Criteria(fw, target.RuntimeIdentifier, s.graph)

		addGroup(&sel.Refs, fw, files.FindBestItemGroup(criteria, conv.CompileRef, conv.BuildRef, conv.CompileLib), nil)
		addGroup(&sel.Runtime, fw, files.FindBestItemGroup(criteria, conv.Runtime, conv.Native, conv.Build), isDLL)

		debug, err := s.single(pkg, "debug runtime", target, files.FindSingleItemGroup(conv.DebugRuntime, fw))
		if err != nil {
			return nil, err
		}
		addGroup(&sel.DebugRuntime, fw, debug, isDLL)

		addGroup(&sel.ContentFiles, fw, files.FindBestItemGroup(criteria, conv.ContentFiles), nil)
		addGroup(&sel.Analyzers, fw, s.analyzers(pkg, files), nil)
		addGroup(&sel.Tools, fw, files.FindBestItemGroup(toolCriteria(criteria), conv.Tools), nil)

		if deps, ok := s.dependencies(pkg, fw); ok {
			sel.Dependencies = append(sel.Dependencies, deps)
		}
	}
	return sel, nil
}

func (s *Selector) single(pkg *store.LocalPackage, category string, target nuget.Target, m Match) (*Group, error) {
	switch m.Kind {
	case MatchOk:
		return m.Group, nil
	case MatchAmbiguous:
		names := make([]string, len(m.Candidates))
		for i, g := range m.Candidates {
			names[i] = describeGroup(g)
		}
		if !s.firstMatch {
			return nil, &AmbiguousCategoryError{
				Package:  pkg.Identity.String(),
				Category: category,
				Target:   target.String(),
				Groups:   names,
			}
		}
		s.logger.Warn("ambiguous asset groups, using the nearest",
			"package", pkg.Identity.String(), "category", category, "target", target.String(), "groups", names)
		return m.Candidates[0], nil
	}
	return nil, nil
}

// analyzers returns the first analyzer group. Packages shipping analyzers
// for several language buckets are not disambiguated further.
func (s *Selector) analyzers(pkg *store.LocalPackage, files *Collection) *Group {
	groups := files.FindItemGroups(s.conventions.Analyzers)
	if len(groups) == 0 {
		return nil
	}
	if len(groups) > 1 {
		s.logger.Debug("multiple analyzer groups, using the first", "package", pkg.Identity.String())
	}
	return groups[0]
}

// toolCriteria lets RID-less targets use the portable "any" tools folder.
func toolCriteria(criteria []Criterion) []Criterion {
	last := criteria[len(criteria)-1]
	for _, c := range criteria {
		if c.RID == runtimegraph.AnyRID {
			return criteria
		}
	}
	out := append([]Criterion(nil), criteria[:len(criteria)-1]...)
	return append(out, Criterion{Framework: last.Framework, RID: runtimegraph.AnyRID}, last)
}

func (s *Selector) dependencies(pkg *store.LocalPackage, fw framework.Moniker) (nuget.PackageDependencyGroup, bool) {
	spec := pkg.Nuspec
	if spec == nil {
		return nuget.PackageDependencyGroup{}, false
	}

	var packages []nuget.PackageDependency
	found := false

	refMonikers := make([]framework.Moniker, len(spec.FrameworkReferenceGroups))
	for i, g := range spec.FrameworkReferenceGroups {
		refMonikers[i] = g.TargetFramework
	}
	if i := framework.Nearest(fw, refMonikers); i >= 0 {
		found = true
		for _, name := range spec.FrameworkReferenceGroups[i].References {
			packID, ok := s.sdk.TargetingPack(name)
			if !ok {
				s.logger.Warn("unknown framework reference", "package", pkg.Identity.String(), "reference", name)
				continue
			}
			packages = append(packages, nuget.PackageDependency{ID: packID})
		}
	}

	depMonikers := make([]framework.Moniker, len(spec.DependencyGroups))
	for i, g := range spec.DependencyGroups {
		depMonikers[i] = g.TargetFramework
	}
	if i := framework.Nearest(fw, depMonikers); i >= 0 {
		found = true
		for _, dep := range spec.DependencyGroups[i].Packages {
			if edge, keep := s.filterEdge(dep, fw); keep {
				packages = append(packages, edge)
			}
		}
	}

	if !found {
		return nuget.PackageDependencyGroup{}, false
	}
	return nuget.PackageDependencyGroup{TargetFramework: fw, Packages: packages}, true
}

// filterEdge drops netstandard.library and SDK assemblies, or redirects the
// latter to the stdlib label on .NET Framework.
func (s *Selector) filterEdge(dep nuget.PackageDependency, fw framework.Moniker) (nuget.PackageDependency, bool) {
	if strings.EqualFold(dep.ID, sdk.NETStandardLibrary) {
		return dep, false
	}
	if !s.sdk.IsSDKAssembly(dep.ID) {
		return dep, true
	}
	if !sdk.RedirectsSDKAssemblies(fw) {
		return dep, false
	}
	dep.Label = s.sdk.StdlibLabel(dep.ID)
	return dep, true
}

func addGroup(dst *[]nuget.FrameworkSpecificGroup, fw framework.Moniker, g *Group, keep func(string) bool) {
	if g == nil {
		return
	}
	items := make([]string, 0, len(g.Items))
	for _, p := range g.Paths() {
		if keep == nil || keep(p) {
			items = append(items, p)
		}
	}
	*dst = append(*dst, nuget.FrameworkSpecificGroup{TargetFramework: fw, Items: items})
}

// isDLL filters native asset matches, which also admit symbols and other files.
func isDLL(p string) bool {
	return strings.EqualFold(path.Ext(p), ".dll")
}

func describeGroup(g *Group) string {
	var parts []string
	if !g.Framework.IsZero() {
		parts = append(parts, g.Framework.String())
	}
	if g.RID != "" {
		parts = append(parts, g.RID)
	}
	if len(parts) == 0 {
		if len(g.Items) > 0 {
			return path.Dir(g.Items[0].Path)
		}
		return "(none)"
	}
	return strings.Join(parts, "/")
}
