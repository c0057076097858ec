// Package walker resolves the transitive package graph of a root project for
// each build target.
//
// Walks are breadth-first. All requests for a package ID at the shallowest
// depth where it appears are handed to a selection.Policy together. The
// decided version is final for the rest of the walk, so a deeper request can
// only produce a conflict warning. The dependencies of a resolved package
// come from the nuspec dependency group nearest to the target framework.
//
// For targets with a runtime identifier a second walk is made after the
// framework-independent one: the runtime graphs of every package found by the
// first walk are merged, and RID-specific runtime dependencies become extra
// edges.
package walker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/albertocavalcante/go-nugetbzl/framework"
	"github.com/albertocavalcante/go-nugetbzl/nuget"
	"github.com/albertocavalcante/go-nugetbzl/nuspec"
	"github.com/albertocavalcante/go-nugetbzl/registry"
	"github.com/albertocavalcante/go-nugetbzl/runtimegraph"
	"github.com/albertocavalcante/go-nugetbzl/selection"
	"github.com/albertocavalcante/go-nugetbzl/selection/version"
	"github.com/albertocavalcante/go-nugetbzl/store"
)

const (
	defaultConcurrency = 16
	defaultCacheSize   = 4096
)

// Walker resolves dependency graphs against a feed.
type Walker struct {
	feed        registry.Feed
	store       *store.Store
	policy      selection.Policy
	concurrency int
	exclude     func(id string) bool
	logger      *slog.Logger

	versions *lru.Cache[string, []version.Version]
	nuspecs  *lru.Cache[string, *nuspec.Nuspec]
}

// Option configures a Walker.
type Option func(*Walker)

// WithPolicy replaces the default selection.NuGet policy.
func WithPolicy(p selection.Policy) Option {
	return func(w *Walker) {
		if p != nil {
			w.policy = p
		}
	}
}

// WithConcurrency bounds the feed requests made in parallel per level.
func WithConcurrency(n int) Option {
	return func(w *Walker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithExclude drops every edge to a package ID for which fn returns true.
// Such packages are never looked up on the feed.
func WithExclude(fn func(id string) bool) Option {
	return func(w *Walker) {
		w.exclude = fn
	}
}

// WithLogger sets the logger for walk diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(w *Walker) {
		if l != nil {
			w.logger = l
		}
	}
}

// New returns a Walker reading metadata from feed. st provides runtime
// graphs for RID-specific walks and may be nil when no target has a RID.
func New(feed registry.Feed, st *store.Store, opts ...Option) (*Walker, error) {
	if feed == nil {
		return nil, errors.New("walker: feed is required")
	}
	versions, err := lru.New[string, []version.Version](defaultCacheSize)
	if err != nil {
		return nil, err
	}
	nuspecs, err := lru.New[string, *nuspec.Nuspec](defaultCacheSize)
	if err != nil {
		return nil, err
	}
	w := &Walker{
		feed:        feed,
		store:       st,
		policy:      selection.NuGet{},
		concurrency: defaultConcurrency,
		logger:      slog.New(slog.DiscardHandler),
		versions:    versions,
		nuspecs:     nuspecs,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// ResolveGraphs walks root for every target. Each target yields its
// framework-independent graph, followed by a RID-specific graph when the
// target names a runtime identifier.
func (w *Walker) ResolveGraphs(ctx context.Context, root RootProject) ([]*Graph, error) {
	var graphs []*Graph
	for _, t := range root.Targets {
		independent, err := w.walk(ctx, root, nuget.Target{Framework: t.Framework}, nil)
		if err != nil {
			return nil, err
		}
		graphs = append(graphs, independent)

		if t.RuntimeIdentifier == "" {
			continue
		}
		rg, err := w.runtimeGraph(ctx, independent)
		if err != nil {
			return nil, err
		}
		specific, err := w.walk(ctx, root, t, rg)
		if err != nil {
			return nil, err
		}
		graphs = append(graphs, specific)
	}
	return graphs, nil
}

// ResolvePackage walks a single package version and its dependencies for fw.
// The graph root is a synthetic project referencing exactly that version.
func (w *Walker) ResolvePackage(ctx context.Context, id string, v version.Version, fw framework.Moniker) (*Graph, error) {
	root := RootProject{
		Targets:      []nuget.Target{{Framework: fw}},
		Dependencies: []nuget.PackageDependency{{ID: id, Range: version.Exact(v)}},
	}
	return w.walk(ctx, root, nuget.Target{Framework: fw}, nil)
}

type pendingID struct {
	id       string
	parent   *Node
	requests []selection.Request
}

func (w *Walker) walk(ctx context.Context, root RootProject, target nuget.Target, rg *runtimegraph.Graph) (*Graph, error) {
	policy := w.policy
	if pins := root.Locked[target.String()]; len(pins) > 0 {
		policy = selection.NewPinned(pins, w.policy)
	}

	rootNode := &Node{
		Identity:     root.Identity(),
		Kind:         KindProject,
		Dependencies: w.filter(root.Dependencies),
	}
	g := newGraph(target, rootNode)
	g.RuntimeGraph = rg

	frontier := []*Node{rootNode}
	for depth := 1; len(frontier) > 0; depth++ {
		pending := w.collect(g, frontier, depth)
		if len(pending) == 0 {
			break
		}
		w.logger.Debug("walk level", "target", target.String(), "depth", depth, "packages", len(pending))

		next, err := w.decide(ctx, g, policy, pending, depth)
		if err != nil {
			return nil, err
		}
		frontier = next
	}
	return g, nil
}

// collect groups the outgoing edges of frontier by package ID. Requests for
// IDs decided at a shallower depth are recorded and checked, but not
// re-decided.
func (w *Walker) collect(g *Graph, frontier []*Node, depth int) []*pendingID {
	var order []*pendingID
	byKey := make(map[string]*pendingID)

	for _, n := range frontier {
		parent := ""
		if n.Kind == KindPackage {
			parent = n.Identity.String()
		}
		for _, d := range n.Dependencies {
			req := selection.Request{ID: d.ID, Range: d.Range, Depth: depth, Parent: parent}

			if existing, ok := g.Lookup(d.ID); ok {
				existing.Requests = append(existing.Requests, req)
				choice := selection.Choice{ID: existing.Identity.ID, Version: existing.Identity.Version}
				if !selection.Accepts(choice, req) {
					c := selection.Conflict{ID: existing.Identity.ID, Selected: existing.Identity.Version, Request: req}
					g.Conflicts = append(g.Conflicts, c)
					w.logger.Warn("version conflict", "target", g.Target.String(), "detail", c.String())
				}
				continue
			}

			key := strings.ToLower(d.ID)
			p, ok := byKey[key]
			if !ok {
				p = &pendingID{id: d.ID, parent: n}
				byKey[key] = p
				order = append(order, p)
			}
			p.requests = append(p.requests, req)
		}
	}
	return order
}

func (w *Walker) decide(ctx context.Context, g *Graph, policy selection.Policy, pending []*pendingID, depth int) ([]*Node, error) {
	nodes := make([]*Node, len(pending))
	conflicts := make([][]selection.Conflict, len(pending))
	errs := make([]error, len(pending))

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(w.concurrency)
	for i, p := range pending {
		eg.Go(func() error {
			nodes[i], conflicts[i], errs[i] = w.resolve(egctx, g, policy, p, depth)
			return errs[i]
		})
	}
	waitErr := eg.Wait()

	// Report the first failing reference in walk order, not the first to finish.
	for _, err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			return nil, err
		}
	}
	if waitErr != nil {
		return nil, waitErr
	}

	for i, n := range nodes {
		g.add(n)
		for _, c := range conflicts[i] {
			w.logger.Warn("version conflict", "target", g.Target.String(), "detail", c.String())
		}
		g.Conflicts = append(g.Conflicts, conflicts[i]...)
	}
	return nodes, nil
}

func (w *Walker) resolve(ctx context.Context, g *Graph, policy selection.Policy, p *pendingID, depth int) (*Node, []selection.Conflict, error) {
	unresolvable := func(sentinel, cause error) error {
		return &UnresolvableReferenceError{
			Request: p.requests[0],
			Target:  g.Target,
			Path:    p.parent.Path(),
			Err:     sentinel,
			Cause:   cause,
		}
	}

	available, err := w.listVersions(ctx, p.id)
	if err != nil {
		if registry.IsNotFound(err) {
			return nil, nil, unresolvable(ErrPackageNotFound, err)
		}
		return nil, nil, fmt.Errorf("list versions of %s: %w", p.id, err)
	}

	choice, conflicts, err := policy.Select(p.id, p.requests, available)
	if err != nil {
		var selErr *selection.SelectionError
		if errors.As(err, &selErr) {
			if selErr.Code == selection.CodeNoVersions {
				return nil, nil, unresolvable(ErrPackageNotFound, err)
			}
			return nil, nil, unresolvable(ErrVersionNotFound, err)
		}
		return nil, nil, err
	}

	spec, err := w.nuspec(ctx, choice.ID, choice.Version)
	if err != nil {
		return nil, nil, err
	}

	id := spec.ID
	if id == "" {
		id = choice.ID
	}
	n := &Node{
		Identity: nuget.Identity{ID: id, Version: choice.Version},
		Kind:     KindPackage,
		Depth:    depth,
		Parent:   p.parent,
		Requests: p.requests,
		Nuspec:   spec,
	}
	n.Dependencies = w.filter(edges(spec, g.Target, g.RuntimeGraph))
	return n, conflicts, nil
}

// edges returns the dependencies walked for a package: its nearest
// dependency group plus the runtime dependencies for the target RID.
func edges(spec *nuspec.Nuspec, target nuget.Target, rg *runtimegraph.Graph) []nuget.PackageDependency {
	var out []nuget.PackageDependency
	fws := make([]framework.Moniker, len(spec.DependencyGroups))
	for i, group := range spec.DependencyGroups {
		fws[i] = group.TargetFramework
	}
	if i := framework.Nearest(target.Framework, fws); i >= 0 {
		out = slices.Clone(spec.DependencyGroups[i].Packages)
	}
	if target.RuntimeIdentifier != "" {
		for _, d := range rg.RuntimeDependencies(target.RuntimeIdentifier, spec.ID) {
			out = append(out, nuget.PackageDependency{ID: d.ID, Range: d.Range})
		}
	}
	return out
}

func (w *Walker) filter(deps []nuget.PackageDependency) []nuget.PackageDependency {
	if w.exclude == nil {
		return deps
	}
	return slices.DeleteFunc(slices.Clone(deps), func(d nuget.PackageDependency) bool {
		return w.exclude(d.ID)
	})
}

func (w *Walker) listVersions(ctx context.Context, id string) ([]version.Version, error) {
	key := strings.ToLower(id)
	if vs, ok := w.versions.Get(key); ok {
		return vs, nil
	}
	vs, err := w.feed.ListVersions(ctx, id)
	if err != nil {
		return nil, err
	}
	w.versions.Add(key, vs)
	return vs, nil
}

func (w *Walker) nuspec(ctx context.Context, id string, v version.Version) (*nuspec.Nuspec, error) {
	ident := nuget.Identity{ID: id, Version: v}
	if spec, ok := w.nuspecs.Get(ident.Key()); ok {
		return spec, nil
	}
	data, err := w.feed.GetNuspec(ctx, id, v)
	if err != nil {
		return nil, fmt.Errorf("fetch nuspec %s: %w", ident, err)
	}
	spec, err := nuspec.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("read nuspec %s: %w", ident, err)
	}
	w.nuspecs.Add(ident.Key(), spec)
	return spec, nil
}

// runtimeGraph merges the built-in RID graph with the runtime.json of every
// package in g. Packages are fetched into the store concurrently.
func (w *Walker) runtimeGraph(ctx context.Context, g *Graph) (*runtimegraph.Graph, error) {
	if w.store == nil {
		return nil, fmt.Errorf("walker: runtime-specific walk for %s requires a package store", g.Target)
	}

	graphs := make([]*runtimegraph.Graph, len(g.Nodes)+1)
	graphs[0] = runtimegraph.Default()

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(w.concurrency)
	for i, n := range g.Nodes {
		eg.Go(func() error {
			pkg, err := w.store.Ensure(egctx, n.Identity)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", n.Identity, err)
			}
			graphs[i+1] = pkg.RuntimeGraph
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	merged := runtimegraph.Merge(graphs...)
	w.logger.Debug("merged runtime graph", "target", g.Target.String(), "runtimes", merged.Len())
	return merged, nil
}
