package nugetbzl

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/albertocavalcante/go-nugetbzl/conflict"
	"github.com/albertocavalcante/go-nugetbzl/content"
	"github.com/albertocavalcante/go-nugetbzl/entry"
	"github.com/albertocavalcante/go-nugetbzl/label"
	"github.com/albertocavalcante/go-nugetbzl/lockfile"
	"github.com/albertocavalcante/go-nugetbzl/nuget"
	"github.com/albertocavalcante/go-nugetbzl/registry"
	"github.com/albertocavalcante/go-nugetbzl/render"
	"github.com/albertocavalcante/go-nugetbzl/runtimegraph"
	"github.com/albertocavalcante/go-nugetbzl/sdk"
	"github.com/albertocavalcante/go-nugetbzl/store"
	"github.com/albertocavalcante/go-nugetbzl/walker"
	"github.com/albertocavalcante/go-nugetbzl/workspace"
)

// generator holds the collaborators of one run.
type generator struct {
	cfg    *config
	sdk    *sdk.Config
	feed   registry.Feed
	store  *store.Store
	walker *walker.Walker
	logger *slog.Logger
}

func newGenerator(opts ...Option) (*generator, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}
	logger := cfg.log()

	feed, globalFolder, err := cfg.openFeed()
	if err != nil {
		return nil, err
	}

	root := cfg.packagesDir
	if root == "" {
		root = globalFolder
	}
	if root == "" {
		root = store.DefaultRoot()
	}
	st, err := store.New(root, feed, store.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	sdkCfg := cfg.sdkConfig()
	w, err := walker.New(feed, st,
		walker.WithConcurrency(cfg.concurrency),
		walker.WithExclude(sdkCfg.IsSDKAssembly),
		walker.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	return &generator{
		cfg:    cfg,
		sdk:    sdkCfg,
		feed:   feed,
		store:  st,
		walker: w,
		logger: logger,
	}, nil
}

// openFeed returns the configured feed and the globalPackagesFolder of the
// nuget.config, if one was read. Without any source nuget.org is used.
func (c *config) openFeed() (registry.Feed, string, error) {
	var clientOpts []registry.ClientOption
	if c.httpClient != nil {
		clientOpts = append(clientOpts, registry.WithHTTPClient(c.httpClient))
	}
	if c.timeout > 0 {
		clientOpts = append(clientOpts, registry.WithTimeout(c.timeout))
	}

	switch {
	case c.feed != nil:
		return c.feed, "", nil
	case len(c.sources) > 0:
		feeds := make([]registry.Feed, 0, len(c.sources))
		for _, s := range c.sources {
			f, err := registry.NewFeed(s, clientOpts...)
			if err != nil {
				return nil, "", fmt.Errorf("package source %s: %w", s, err)
			}
			feeds = append(feeds, f)
		}
		chain, err := registry.NewChain(feeds, registry.WithSourceNames(c.sources...))
		if err != nil {
			return nil, "", err
		}
		return chain, "", nil
	case c.nugetConf != "":
		nc, err := registry.LoadConfig(c.nugetConf)
		if err != nil {
			return nil, "", err
		}
		chain, err := nc.Chain(clientOpts...)
		if err != nil {
			return nil, "", err
		}
		return chain, nc.GlobalPackagesFolder, nil
	default:
		return registry.NewClient(registry.NuGetOrg, clientOpts...), "", nil
	}
}

func (c *config) sdkConfig() *sdk.Config {
	opts := []sdk.Option{sdk.WithAspNetCore(c.aspNetCore)}
	for fw, v := range c.packVersions {
		opts = append(opts, sdk.WithPackVersion(fw, v))
	}
	if c.stdlibLabel != "" {
		opts = append(opts, sdk.WithStdlibLabel(c.stdlibLabel))
	}
	return sdk.New(opts...)
}

func (c *config) targets() []nuget.Target {
	targets := make([]nuget.Target, len(c.frameworks))
	for i, fw := range c.frameworks {
		targets[i] = nuget.Target{Framework: fw, RuntimeIdentifier: c.runtime}
	}
	return targets
}

// resolve walks deps. valid reports whether an existing lock file pinned
// the walk.
func (g *generator) resolve(ctx context.Context, deps []nuget.PackageDependency) (res *Resolution, valid bool, err error) {
	deps = slices.DeleteFunc(slices.Clone(deps), func(d nuget.PackageDependency) bool {
		if !g.sdk.IsSDKAssembly(d.ID) {
			return false
		}
		g.logger.Warn("ignoring reference to an SDK assembly", "package", d.ID)
		return true
	})
	root := walker.RootProject{Targets: g.cfg.targets(), Dependencies: deps}
	g.cfg.progress(ProgressEvent{Stage: StageResolve, Total: len(root.Targets)})

	var existing *lockfile.Lockfile
	if path := g.cfg.lockFile; path != "" {
		if lockfile.Exists(path) {
			existing, err = lockfile.ReadFile(path)
			if err != nil {
				return nil, false, err
			}
			if verr := existing.Validate(root); verr != nil {
				if g.cfg.lockedMode {
					return nil, false, fmt.Errorf("%s: %w", path, verr)
				}
				g.logger.Warn("lock file is out of date, resolving again", "path", path, "reason", verr.Error())
				existing = nil
			} else {
				root.Locked = existing.Pins(g.sdk)
				valid = true
				g.logger.Debug("using lock file", "path", path)
			}
		} else if g.cfg.lockedMode {
			return nil, false, fmt.Errorf("lock file %s not found: %w", path, lockfile.ErrInvalid)
		}
	}

	graphs, err := g.walker.ResolveGraphs(ctx, root)
	if err != nil {
		return nil, false, err
	}

	res = g.summarize(root, graphs)
	res.LockFile = existing
	g.cfg.progress(ProgressEvent{Stage: StageResolve, Done: len(root.Targets), Total: len(root.Targets)})
	g.logger.Info("resolved packages",
		"packages", res.Summary.TotalPackages, "direct", res.Summary.DirectPackages, "targets", res.Summary.Targets)
	return res, valid, nil
}

type sourcer interface {
	SourceFor(id string) string
}

// summarize collects the resolved packages of all graphs.
func (g *generator) summarize(root walker.RootProject, graphs []*walker.Graph) *Resolution {
	type acc struct {
		id         nuget.Identity
		pkg        Package
		requiredBy []string
	}

	direct := make(map[string]bool, len(root.Dependencies))
	for _, d := range root.Dependencies {
		direct[strings.ToLower(d.ID)] = true
	}
	rootName := root.Identity().String()
	src, _ := g.feed.(sourcer)

	res := &Resolution{Root: root, Graphs: graphs}
	byKey := make(map[string]*acc)
	for _, gr := range graphs {
		for _, c := range gr.Conflicts {
			if w := gr.Target.String() + ": " + c.String(); !slices.Contains(res.Warnings, w) {
				res.Warnings = append(res.Warnings, w)
			}
		}
		for _, n := range gr.Nodes {
			key := n.Identity.Key()
			a, ok := byKey[key]
			if !ok {
				a = &acc{id: n.Identity, pkg: Package{
					ID:      n.Identity.ID,
					Version: n.Identity.Version.String(),
					Depth:   n.Depth,
					Direct:  direct[strings.ToLower(n.Identity.ID)],
				}}
				if src != nil {
					a.pkg.Source = src.SourceFor(n.Identity.ID)
				}
				byKey[key] = a
			}
			a.pkg.Depth = min(a.pkg.Depth, n.Depth)
			if t := gr.Target.String(); !slices.Contains(a.pkg.Targets, t) {
				a.pkg.Targets = append(a.pkg.Targets, t)
			}
			for _, r := range n.Requests {
				parent := r.Parent
				if parent == "" {
					parent = rootName
				}
				if !slices.Contains(a.requiredBy, parent) {
					a.requiredBy = append(a.requiredBy, parent)
				}
			}
		}
	}

	accs := make([]*acc, 0, len(byKey))
	for _, a := range byKey {
		accs = append(accs, a)
	}
	slices.SortFunc(accs, func(a, b *acc) int { return a.id.Compare(b.id) })

	for _, a := range accs {
		slices.Sort(a.requiredBy)
		a.pkg.RequiredBy = a.requiredBy
		res.Packages = append(res.Packages, a.pkg)
		if a.pkg.Direct {
			res.Summary.DirectPackages++
		}
	}
	res.Summary.TotalPackages = len(res.Packages)
	res.Summary.TransitivePackages = res.Summary.TotalPackages - res.Summary.DirectPackages
	res.Summary.Targets = len(graphs)
	res.Summary.Conflicts = len(res.Warnings)
	return res
}

// finishLockFile records the lock file of res and writes it when the
// existing one was missing or outdated.
func (g *generator) finishLockFile(res *Resolution, valid bool) error {
	if valid {
		return nil
	}
	res.LockFile = lockfile.FromGraphs(res.Root, res.Graphs, g.contentHash)
	if g.cfg.lockFile == "" {
		return nil
	}
	if err := res.LockFile.WriteFile(g.cfg.lockFile); err != nil {
		return err
	}
	res.LockFileWritten = true
	g.logger.Info("wrote lock file", "path", g.cfg.lockFile)
	return nil
}

// contentHash returns the archive hash of an installed package, or "".
func (g *generator) contentHash(id nuget.Identity) string {
	pkg, err := g.store.Load(id)
	if err != nil {
		return ""
	}
	return pkg.ContentHash
}

func (g *generator) generate(ctx context.Context, deps []nuget.PackageDependency) (*Result, error) {
	res, valid, err := g.resolve(ctx, deps)
	if err != nil {
		return nil, err
	}

	pkgs, err := g.download(ctx, walker.Flatten(res.Graphs))
	if err != nil {
		return nil, err
	}
	if err := g.finishLockFile(res, valid); err != nil {
		return nil, err
	}

	sels, err := g.selectAssets(res, pkgs)
	if err != nil {
		return nil, err
	}
	entries := entry.NewMaterializer(
		entry.WithExclude(g.sdk.IsSDKAssembly),
		entry.WithLogger(g.logger),
	).MaterializeAll(sels)

	// Targeting packs are reconciled for the primary framework only.
	primary := g.cfg.frameworks[0]
	g.cfg.progress(ProgressEvent{Stage: StageConflicts})
	resolver := conflict.NewResolver(g.walker, g.store, conflict.WithSDK(g.sdk), conflict.WithLogger(g.logger))
	cres, err := resolver.Resolve(ctx, entries, primary)
	if err != nil {
		return nil, err
	}

	imports := g.cfg.imports
	if len(g.cfg.importMappings) > 0 {
		imports, err = label.ParseImports(g.cfg.importMappings, nil)
		if err != nil {
			return nil, err
		}
	}

	g.cfg.progress(ProgressEvent{Stage: StageRender, Total: len(cres.Entries)})
	renderer := render.New(g.cfg.frameworks,
		render.WithImports(imports),
		render.WithRule(g.cfg.rulesFile, g.cfg.importRule),
		render.WithLogger(g.logger),
	)
	files := renderer.Render(cres.Entries)
	links := workspace.Links(cres.Entries)

	g.cfg.progress(ProgressEvent{Stage: StageWrite, Total: len(files) + len(links)})
	ws, err := workspace.New(g.cfg.outputDir, workspace.WithLogger(g.logger))
	if err != nil {
		return nil, err
	}
	report, err := ws.Apply(ctx, files, links)
	if err != nil {
		return nil, err
	}
	g.logger.Info("generated repository",
		"dir", ws.Root(), "written", len(report.Written), "unchanged", len(report.Unchanged), "links", len(report.Linked))

	return &Result{
		Resolution:     res,
		Entries:        cres.Entries,
		Overrides:      cres.Overrides,
		UpgradeWinners: cres.UpgradeWinners,
		Packs:          cres.Packs,
		Files:          files,
		Links:          links,
		Report:         report,
	}, nil
}

// download installs ids concurrently and returns them in the same order.
func (g *generator) download(ctx context.Context, ids []nuget.Identity) ([]*store.LocalPackage, error) {
	pkgs := make([]*store.LocalPackage, len(ids))
	var done atomic.Int32

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.concurrency)
	for i, id := range ids {
		eg.Go(func() error {
			pkg, err := g.store.Ensure(egctx, id)
			if err != nil {
				return fmt.Errorf("download %s: %w", id, err)
			}
			pkgs[i] = pkg
			g.cfg.progress(ProgressEvent{
				Stage:   StageDownload,
				Package: id.String(),
				Done:    int(done.Add(1)),
				Total:   len(ids),
			})
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return pkgs, nil
}

// selectAssets selects the assets of every package for every target.
func (g *generator) selectAssets(res *Resolution, pkgs []*store.LocalPackage) ([]*content.Selection, error) {
	rgs := []*runtimegraph.Graph{runtimegraph.Default()}
	for _, gr := range res.Graphs {
		rgs = append(rgs, gr.RuntimeGraph)
	}
	selector := content.NewSelector(
		content.WithSDK(g.sdk),
		content.WithRuntimeGraph(runtimegraph.Merge(rgs...)),
		content.WithFirstMatchFallback(g.cfg.firstMatch),
		content.WithLogger(g.logger),
	)

	g.cfg.progress(ProgressEvent{Stage: StageSelect, Total: len(pkgs)})
	sels := make([]*content.Selection, 0, len(pkgs))
	for _, pkg := range pkgs {
		sel, err := selector.Select(pkg, res.Root.Targets)
		if err != nil {
			return nil, fmt.Errorf("select assets of %s: %w", pkg.Identity, err)
		}
		sels = append(sels, sel)
	}
	return sels, nil
}
