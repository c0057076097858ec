// Package conflict reconciles resolved packages against the assemblies a
// shared framework already provides.
//
// Each targeting pack (Microsoft.NETCore.App.Ref and friends) ships a list
// of the assemblies it contains and a list of package versions it
// supersedes. A package whose assembly the pack provides at the same or a
// newer version is redirected to the pack's copy. A package carrying a newer
// assembly wins instead, and the pack entry depends on it.
package conflict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/albertocavalcante/go-nugetbzl/assembly"
	"github.com/albertocavalcante/go-nugetbzl/entry"
	"github.com/albertocavalcante/go-nugetbzl/framework"
	"github.com/albertocavalcante/go-nugetbzl/nuget"
	"github.com/albertocavalcante/go-nugetbzl/sdk"
	"github.com/albertocavalcante/go-nugetbzl/selection/version"
	"github.com/albertocavalcante/go-nugetbzl/store"
	"github.com/albertocavalcante/go-nugetbzl/walker"
)

// ErrMissingManifest is returned when a targeting pack has no framework list.
var ErrMissingManifest = errors.New("targeting pack has no framework list")

// MissingManifestError reports the pack and the path that was expected.
type MissingManifestError struct {
	Pack nuget.Identity
	Path string
}

func (e *MissingManifestError) Error() string {
	return fmt.Sprintf("%s: %s not found; the targeting pack is incompatible or corrupted", e.Pack, e.Path)
}

func (e *MissingManifestError) Unwrap() error { return ErrMissingManifest }

// Overrides maps lowercase package IDs to the label that replaces their
// references. A nil label drops the reference.
type Overrides map[string]*string

// Result is the outcome of a resolution.
type Result struct {
	// Entries holds the input entries with overrides applied, plus one entry
	// per targeting pack, sorted.
	Entries []*entry.Entry

	Overrides Overrides

	// UpgradeWinners are the package IDs that ship a newer assembly than
	// the framework.
	UpgradeWinners []string

	Packs []nuget.Identity
}

// PackResolver resolves a targeting pack version to the identity to fetch.
type PackResolver interface {
	ResolvePackage(ctx context.Context, id string, v version.Version, fw framework.Moniker) (*walker.Graph, error)
}

// Installer makes a package available on disk.
type Installer interface {
	Ensure(ctx context.Context, id nuget.Identity) (*store.LocalPackage, error)
}

// Resolver runs framework conflict resolution. It is safe for concurrent use.
type Resolver struct {
	packs     PackResolver
	installer Installer
	sdk       *sdk.Config
	logger    *slog.Logger
	versionOf func(path string) (version.Assembly, error)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSDK sets the SDK description that names the targeting packs.
func WithSDK(c *sdk.Config) Option {
	return func(r *Resolver) {
		if c != nil {
			r.sdk = c
		}
	}
}

// WithLogger sets the logger for resolution diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver builds a Resolver that resolves packs through packs and
// downloads them through installer.
func NewResolver(packs PackResolver, installer Installer, opts ...Option) *Resolver {
	r := &Resolver{
		packs:     packs,
		installer: installer,
		sdk:       sdk.Default(),
		logger:    slog.New(slog.DiscardHandler),
		versionOf: assembly.Version,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type pack struct {
	pkg       *store.LocalPackage
	list      *FrameworkList
	overrides map[string]version.Version
}

// Resolve reconciles entries against the targeting packs of fw. Frameworks
// without targeting packs return the entries unchanged.
func (r *Resolver) Resolve(ctx context.Context, entries []*entry.Entry, fw framework.Moniker) (*Result, error) {
	ver, ok := r.sdk.PackVersion(fw)
	if !ok {
		r.logger.Debug("no targeting packs for framework", "framework", fw.String())
		return &Result{Entries: entries, Overrides: Overrides{}}, nil
	}
	v, err := version.Parse(ver)
	if err != nil {
		return nil, fmt.Errorf("targeting pack version for %s: %w", fw, err)
	}

	ids := r.packIDs(entries)
	packs := make([]*pack, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			p, err := r.loadPack(gctx, id, v, fw)
			if err != nil {
				return err
			}
			packs[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	existing := make(map[string]*entry.Entry, len(entries))
	for _, e := range entries {
		if e.Kind != entry.KindPackage {
			continue
		}
		key := strings.ToLower(e.ID())
		if _, dup := existing[key]; !dup {
			existing[key] = e
		}
	}

	res := &Result{Overrides: Overrides{}}
	var packEntries []*entry.Entry
	for _, p := range packs {
		winners, err := r.reconcile(p, existing, fw, res.Overrides)
		if err != nil {
			return nil, err
		}
		res.UpgradeWinners = append(res.UpgradeWinners, winners...)
		res.Packs = append(res.Packs, p.pkg.Identity)
		packEntries = append(packEntries, packEntry(p, fw, winners, existing))
	}

	out := entry.ApplyOverrides(entries, res.Overrides, fw)
	out = slices.DeleteFunc(out, func(e *entry.Entry) bool {
		return slices.ContainsFunc(ids, func(id string) bool { return strings.EqualFold(id, e.ID()) })
	})
	out = append(out, packEntries...)
	entry.Sort(out)
	res.Entries = out

	r.logger.Debug("framework conflicts resolved",
		"framework", fw.String(), "packs", len(packs), "overrides", len(res.Overrides), "upgrades", len(res.UpgradeWinners))
	return res, nil
}

// packIDs returns the default packs followed by the packs named by the
// entries' framework references, without duplicates.
func (r *Resolver) packIDs(entries []*entry.Entry) []string {
	ids := slices.Clone(r.sdk.DefaultPacks())
	add := func(id string) {
		if !slices.ContainsFunc(ids, func(s string) bool { return strings.EqualFold(s, id) }) {
			ids = append(ids, id)
		}
	}
	for _, e := range entries {
		for _, ref := range e.FrameworkReferences {
			id, ok := r.sdk.TargetingPack(ref)
			if !ok {
				r.logger.Warn("unknown framework reference", "package", e.Identity.String(), "reference", ref)
				continue
			}
			add(id)
		}
	}
	return ids
}

func (r *Resolver) loadPack(ctx context.Context, id string, v version.Version, fw framework.Moniker) (*pack, error) {
	g, err := r.packs.ResolvePackage(ctx, id, v, fw)
	if err != nil {
		return nil, err
	}
	node, ok := g.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("targeting pack %s@%s missing from its own graph", id, v)
	}
	pkg, err := r.installer.Ensure(ctx, node.Identity)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(pkg.ExpandedPath, filepath.FromSlash(FrameworkListPath)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, &MissingManifestError{Pack: pkg.Identity, Path: FrameworkListPath}
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	list, err := ParseFrameworkList(f, fw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", pkg.Identity, err)
	}

	p := &pack{pkg: pkg, list: list, overrides: map[string]version.Version{}}
	of, err := os.Open(filepath.Join(pkg.ExpandedPath, filepath.FromSlash(PackageOverridesPath)))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		defer func() { _ = of.Close() }()
		if p.overrides, err = ParsePackageOverrides(of); err != nil {
			return nil, fmt.Errorf("%s: %w", pkg.Identity, err)
		}
	}
	r.logger.Debug("loaded targeting pack", "pack", pkg.Identity.String(), "files", list.Len(), "overrides", len(p.overrides))
	return p, nil
}

// reconcile records overrides for the packages p supersedes and returns the
// IDs of the packages that win over it. IDs already present in overrides
// are left alone.
func (r *Resolver) reconcile(p *pack, existing map[string]*entry.Entry, fw framework.Moniker, overrides Overrides) ([]string, error) {
	packName := strings.ToLower(p.pkg.Identity.ID)
	label := func(f FrameworkFile) *string {
		l := "//" + packName + ":current/" + f.Path
		return &l
	}

	for _, key := range sortedKeys(p.overrides) {
		e, ok := existing[key]
		if _, done := overrides[key]; !ok || done {
			continue
		}
		refs := refItems(e, fw)
		if len(refs) > 0 && p.overrides[key].Compare(e.Identity.Version) < 0 {
			continue
		}
		if f, ok := p.list.Lookup(key); ok {
			overrides[key] = label(f)
		} else {
			overrides[key] = nil
		}
		r.logger.Debug("package superseded by targeting pack", "package", e.Identity.String(), "pack", p.pkg.Identity.String())
	}

	var winners []string
	for _, f := range p.list.Files() {
		key := strings.ToLower(f.AssemblyName)
		e, ok := existing[key]
		if _, done := overrides[key]; !ok || done {
			continue
		}
		refs := refItems(e, fw)
		if len(refs) == 0 {
			overrides[key] = label(f)
			continue
		}
		ref := refFor(refs, f.AssemblyName)
		pv, err := r.versionOf(filepath.Join(e.ExpandedPath, filepath.FromSlash(ref)))
		if err != nil {
			return nil, fmt.Errorf("%s: read %s: %w", e.Identity, ref, err)
		}
		if f.Version.Compare(pv) >= 0 {
			overrides[key] = label(f)
			continue
		}
		r.logger.Debug("package assembly is newer than the framework",
			"package", e.Identity.String(), "assembly", pv.String(), "framework", f.Version.String())
		winners = append(winners, e.ID())
	}
	return winners, nil
}

// packEntry builds the entry of a targeting pack: every framework file
// except the upgrade winners, and a dependency on each winner.
func packEntry(p *pack, fw framework.Moniker, winners []string, existing map[string]*entry.Entry) *entry.Entry {
	var items []string
	for _, f := range p.list.Files() {
		if slices.ContainsFunc(winners, func(w string) bool { return strings.EqualFold(w, f.AssemblyName) }) {
			continue
		}
		items = append(items, f.Path)
	}
	deps := make([]nuget.PackageDependency, len(winners))
	for i, w := range winners {
		deps[i] = nuget.PackageDependency{ID: w, Range: version.Exact(existing[strings.ToLower(w)].Identity.Version)}
	}
	return &entry.Entry{
		Identity:     p.pkg.Identity,
		Name:         p.pkg.Identity.ID,
		Kind:         entry.KindFrameworkPack,
		ExpandedPath: p.pkg.ExpandedPath,
		Files:        p.pkg.Files,
		Refs:         []nuget.FrameworkSpecificGroup{{TargetFramework: fw, Items: items}},
		Dependencies: []nuget.PackageDependencyGroup{{TargetFramework: fw, Packages: deps}},
	}
}

func refItems(e *entry.Entry, fw framework.Moniker) []string {
	for _, g := range e.Refs {
		if g.TargetFramework == fw {
			return g.Items
		}
	}
	return nil
}

// refFor picks the reference file named after the assembly, or the first.
func refFor(refs []string, name string) string {
	for _, r := range refs {
		base := path.Base(r)
		if strings.EqualFold(strings.TrimSuffix(base, path.Ext(base)), name) {
			return r
		}
	}
	return refs[0]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
