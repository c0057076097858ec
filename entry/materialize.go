package entry

import (
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/albertocavalcante/go-nugetbzl/content"
	"github.com/albertocavalcante/go-nugetbzl/framework"
	"github.com/albertocavalcante/go-nugetbzl/nuget"
)

// Index maps lowercase package IDs to their selections. It is read-only
// once built.
type Index map[string]*content.Selection

// NewIndex indexes selections by package ID. Later selections for the same
// ID replace earlier ones.
func NewIndex(sels ...*content.Selection) Index {
	idx := make(Index, len(sels))
	for _, s := range sels {
		idx[strings.ToLower(s.ID())] = s
	}
	return idx
}

// Lookup returns the selection for id.
func (x Index) Lookup(id string) (*content.Selection, bool) {
	s, ok := x[strings.ToLower(id)]
	return s, ok
}

// Materializer turns selections into entries.
type Materializer struct {
	exclude func(id string) bool
	logger  *slog.Logger
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithExclude skips the selections of package IDs for which fn returns
// true. Edges to them are left to the selector's edge policy.
func WithExclude(fn func(id string) bool) Option {
	return func(m *Materializer) {
		m.exclude = fn
	}
}

// WithLogger sets the logger for materialization diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(m *Materializer) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMaterializer builds a Materializer.
func NewMaterializer(opts ...Option) *Materializer {
	m := &Materializer{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MaterializeAll materializes every selection against an index of all of
// them and returns the entries sorted.
func (m *Materializer) MaterializeAll(sels []*content.Selection) []*Entry {
	idx := NewIndex(sels...)
	var out []*Entry
	for _, s := range sels {
		if m.exclude != nil && m.exclude(s.ID()) {
			m.logger.Debug("skipping SDK package", "package", s.Package.Identity.String())
			continue
		}
		out = append(out, m.Materialize(s, idx)...)
	}
	Sort(out)
	return out
}

// Materialize builds the entries of one selection.
//
// A package with neither runtime items nor dependency groups yields nothing.
// Dependency edges to packages in idx that carry no runtime or analyzer
// items are replaced by that package's own dependencies for the same
// framework. A package shipping several runtime binaries is split into a
// main entry plus one entry per additional binary, and the main entry
// depends on each of them.
func (m *Materializer) Materialize(sel *content.Selection, idx Index) []*Entry {
	if !sel.HasRuntime() && len(sel.Dependencies) == 0 {
		m.logger.Debug("skipping empty package", "package", sel.Package.Identity.String())
		return nil
	}

	pkg := sel.Package
	deps := make([]nuget.PackageDependencyGroup, len(sel.Dependencies))
	for i, g := range sel.Dependencies {
		deps[i] = nuget.PackageDependencyGroup{
			TargetFramework: g.TargetFramework,
			Packages:        pruneAll(g.Packages, g.TargetFramework, idx, []string{strings.ToLower(sel.ID())}),
		}
	}

	main := &Entry{
		Identity:            pkg.Identity,
		Name:                pkg.Identity.ID,
		Kind:                KindPackage,
		ExpandedPath:        pkg.ExpandedPath,
		Files:               pkg.Files,
		FrameworkReferences: frameworkReferences(sel),
		Refs:                sel.Refs,
		Runtime:             sel.Runtime,
		DebugRuntime:        sel.DebugRuntime,
		ContentFiles:        sel.ContentFiles,
		Analyzers:           sel.Analyzers,
		Tools:               sel.Tools,
		Dependencies:        deps,
	}

	binaries := binaryNames(sel.Runtime)
	if len(binaries) <= 1 {
		return []*Entry{main}
	}

	primary := binaries[0]
	for _, b := range binaries {
		if strings.EqualFold(b, pkg.Identity.ID) {
			primary = b
			break
		}
	}
	m.logger.Debug("splitting package binaries", "package", pkg.Identity.String(), "main", primary, "binaries", binaries)

	isPrimary := func(p string) bool { return strings.EqualFold(binaryName(p), primary) }
	notAdditional := func(p string) bool {
		n := binaryName(p)
		return strings.EqualFold(n, primary) || !slices.ContainsFunc(binaries, func(b string) bool { return strings.EqualFold(b, n) })
	}
	main.Runtime = filterGroups(sel.Runtime, isPrimary)
	main.DebugRuntime = filterGroups(sel.DebugRuntime, isPrimary)
	main.Refs = filterGroups(sel.Refs, notAdditional)

	out := []*Entry{main}
	var edges []nuget.PackageDependency
	for _, b := range binaries {
		if b == primary {
			continue
		}
		isBinary := func(p string) bool { return strings.EqualFold(binaryName(p), b) }
		out = append(out, &Entry{
			Identity:     pkg.Identity,
			Name:         b,
			Kind:         KindBinary,
			ExpandedPath: pkg.ExpandedPath,
			Files:        pkg.Files,
			Refs:         filterGroups(sel.Refs, isBinary),
			Runtime:      filterGroups(sel.Runtime, isBinary),
		})
		edges = append(edges, nuget.PackageDependency{ID: b, Label: BinaryLabel(pkg.Identity.ID, b)})
	}
	main.Dependencies = withEdges(main.Dependencies, sel.Runtime, edges)
	return out
}

// BinaryLabel is the label of the split target for binary in package id.
func BinaryLabel(id, binary string) string {
	return "//" + strings.ToLower(id) + ":" + strings.ToLower(binary)
}

// pruneAll applies prune to each edge and removes duplicate IDs, keeping
// the first occurrence. stack holds the lowercase IDs already being expanded.
func pruneAll(deps []nuget.PackageDependency, fw framework.Moniker, idx Index, stack []string) []nuget.PackageDependency {
	out := make([]nuget.PackageDependency, 0, len(deps))
	seen := make(map[string]bool, len(deps))
	for _, d := range deps {
		for _, kept := range prune(d, fw, idx, stack) {
			key := strings.ToLower(kept.ID)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, kept)
		}
	}
	return out
}

// prune returns the edges that stand in for dep. Labeled edges, edges to
// packages outside idx, and edges to packages with runtime or analyzer items
// are kept. Any other package is replaced by its own edges for fw. A
// package already on stack yields nothing.
func prune(dep nuget.PackageDependency, fw framework.Moniker, idx Index, stack []string) []nuget.PackageDependency {
	if dep.Label != "" {
		return []nuget.PackageDependency{dep}
	}
	key := strings.ToLower(dep.ID)
	if slices.Contains(stack, key) {
		return nil
	}
	target, ok := idx.Lookup(dep.ID)
	if !ok || target.HasRuntime() || target.HasAnalyzers() {
		return []nuget.PackageDependency{dep}
	}
	next, _ := target.DependenciesFor(fw)
	return pruneAll(next, fw, idx, append(slices.Clip(stack), key))
}

// withEdges appends edges to every dependency group, creating groups for
// the runtime frameworks that have none.
func withEdges(groups []nuget.PackageDependencyGroup, runtime []nuget.FrameworkSpecificGroup, edges []nuget.PackageDependency) []nuget.PackageDependencyGroup {
	out := make([]nuget.PackageDependencyGroup, 0, len(groups))
	have := make(map[framework.Moniker]bool, len(groups))
	for _, g := range groups {
		have[g.TargetFramework] = true
		out = append(out, nuget.PackageDependencyGroup{
			TargetFramework: g.TargetFramework,
			Packages:        append(slices.Clip(g.Packages), edges...),
		})
	}
	for _, r := range runtime {
		if have[r.TargetFramework] {
			continue
		}
		have[r.TargetFramework] = true
		out = append(out, nuget.PackageDependencyGroup{TargetFramework: r.TargetFramework, Packages: slices.Clone(edges)})
	}
	return out
}

// binaryNames returns the distinct runtime file names without extension,
// compared case-insensitively, in first-seen order.
func binaryNames(groups []nuget.FrameworkSpecificGroup) []string {
	var names []string
	for _, g := range groups {
		for _, item := range g.Items {
			n := binaryName(item)
			if !slices.ContainsFunc(names, func(s string) bool { return strings.EqualFold(s, n) }) {
				names = append(names, n)
			}
		}
	}
	return names
}

func binaryName(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

func filterGroups(groups []nuget.FrameworkSpecificGroup, keep func(string) bool) []nuget.FrameworkSpecificGroup {
	if groups == nil {
		return nil
	}
	out := make([]nuget.FrameworkSpecificGroup, len(groups))
	for i, g := range groups {
		items := make([]string, 0, len(g.Items))
		for _, item := range g.Items {
			if keep(item) {
				items = append(items, item)
			}
		}
		out[i] = nuget.FrameworkSpecificGroup{TargetFramework: g.TargetFramework, Items: items}
	}
	return out
}

func frameworkReferences(sel *content.Selection) []string {
	spec := sel.Package.Nuspec
	if spec == nil {
		return nil
	}
	var refs []string
	for _, g := range spec.FrameworkReferenceGroups {
		for _, r := range g.References {
			if !slices.ContainsFunc(refs, func(s string) bool { return strings.EqualFold(s, r) }) {
				refs = append(refs, r)
			}
		}
	}
	return refs
}
