// Package entry turns content selections into the build-target records the
// renderer emits.
package entry

import (
	"slices"
	"sort"
	"strings"

	"github.com/albertocavalcante/go-nugetbzl/framework"
	"github.com/albertocavalcante/go-nugetbzl/nuget"
)

// Kind classifies entries.
type Kind string

const (
	// KindPackage is the primary target of a package.
	KindPackage Kind = "package"

	// KindBinary is a target synthesized for an additional binary shipped
	// by a package whose main target can only carry one.
	KindBinary Kind = "binary"

	// KindFrameworkPack is a shared framework targeting pack.
	KindFrameworkPack Kind = "framework-pack"
)

// Entry is one resolved build target. Entries are not modified after
// construction; WithOverride returns a copy.
type Entry struct {
	Identity nuget.Identity

	// Name is the target name before lowercasing: the package ID for the
	// main target, or the binary name for split targets.
	Name string
	Kind Kind

	ExpandedPath string

	// Files are the package-relative paths of every file in the package.
	Files []string

	// FrameworkReferences are the shared frameworks the package declares
	// for any target framework.
	FrameworkReferences []string

	Refs         []nuget.FrameworkSpecificGroup
	Runtime      []nuget.FrameworkSpecificGroup
	DebugRuntime []nuget.FrameworkSpecificGroup
	ContentFiles []nuget.FrameworkSpecificGroup
	Analyzers    []nuget.FrameworkSpecificGroup
	Tools        []nuget.FrameworkSpecificGroup
	Dependencies []nuget.PackageDependencyGroup

	// Overridden is set when the package's references were redirected to a
	// framework pack.
	Overridden bool
}

// ID returns the package ID.
func (e *Entry) ID() string { return e.Identity.ID }

// HasRuntime reports whether any runtime group has items.
func (e *Entry) HasRuntime() bool { return hasItems(e.Runtime) }

// HasDebugRuntime reports whether any debug runtime group has items.
func (e *Entry) HasDebugRuntime() bool { return hasItems(e.DebugRuntime) }

// DependenciesFor returns the dependency group for fw.
func (e *Entry) DependenciesFor(fw framework.Moniker) ([]nuget.PackageDependency, bool) {
	for _, g := range e.Dependencies {
		if g.TargetFramework == fw {
			return g.Packages, true
		}
	}
	return nil, false
}

// WithOverride returns a copy whose references for fw are replaced by
// label, or emptied when label is nil. The runtime, debug, content, analyzer
// and tool groups of fw are emptied because the framework supplies the
// assembly. Groups of other frameworks are kept as they are. Applying the
// same override again yields an equal entry.
func (e *Entry) WithOverride(label *string, fw framework.Moniker) *Entry {
	c := *e
	var refs []string
	if label != nil {
		refs = []string{*label}
	}
	c.Refs = replaceGroup(e.Refs, fw, refs)
	c.Runtime = replaceGroup(e.Runtime, fw, nil)
	c.DebugRuntime = replaceGroup(e.DebugRuntime, fw, nil)
	c.ContentFiles = replaceGroup(e.ContentFiles, fw, nil)
	c.Analyzers = replaceGroup(e.Analyzers, fw, nil)
	c.Tools = replaceGroup(e.Tools, fw, nil)
	c.Dependencies = slices.Clone(e.Dependencies)
	c.Overridden = true
	return &c
}

// replaceGroup returns a copy of groups with the group of fw holding items.
// The group keeps its position. When fw has no group but other frameworks
// do, one is added in front so that fw does not fall back to their items.
func replaceGroup(groups []nuget.FrameworkSpecificGroup, fw framework.Moniker, items []string) []nuget.FrameworkSpecificGroup {
	if len(groups) == 0 {
		if len(items) == 0 {
			return nil
		}
		return []nuget.FrameworkSpecificGroup{{TargetFramework: fw, Items: items}}
	}
	out := make([]nuget.FrameworkSpecificGroup, 0, len(groups)+1)
	found := false
	for _, g := range groups {
		if g.TargetFramework != fw {
			out = append(out, g)
			continue
		}
		if !found {
			out = append(out, nuget.FrameworkSpecificGroup{TargetFramework: fw, Items: items})
			found = true
		}
	}
	if !found {
		out = slices.Insert(out, 0, nuget.FrameworkSpecificGroup{TargetFramework: fw, Items: items})
	}
	return out
}

// ApplyOverrides returns entries with the override for each package ID
// applied to its main target. overrides is keyed by package ID in any case;
// a nil value drops the reference. Framework packs and split binaries are
// returned unchanged. The input slice and its entries are not modified.
func ApplyOverrides(entries []*Entry, overrides map[string]*string, fw framework.Moniker) []*Entry {
	lower := make(map[string]*string, len(overrides))
	for id, label := range overrides {
		lower[strings.ToLower(id)] = label
	}
	out := make([]*Entry, len(entries))
	for i, e := range entries {
		label, ok := lower[strings.ToLower(e.ID())]
		if !ok || e.Kind != KindPackage {
			out[i] = e
			continue
		}
		out[i] = e.WithOverride(label, fw)
	}
	return out
}

// Sort orders entries by package ID (case-insensitive), version, then name.
func Sort(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if c := a.Identity.Compare(b.Identity); c != 0 {
			return c < 0
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
}

func hasItems(groups []nuget.FrameworkSpecificGroup) bool {
	for _, g := range groups {
		if len(g.Items) > 0 {
			return true
		}
	}
	return false
}
