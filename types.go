package nugetbzl

import (
	"github.com/albertocavalcante/go-nugetbzl/conflict"
	"github.com/albertocavalcante/go-nugetbzl/entry"
	"github.com/albertocavalcante/go-nugetbzl/graph"
	"github.com/albertocavalcante/go-nugetbzl/lockfile"
	"github.com/albertocavalcante/go-nugetbzl/nuget"
	"github.com/albertocavalcante/go-nugetbzl/render"
	"github.com/albertocavalcante/go-nugetbzl/walker"
	"github.com/albertocavalcante/go-nugetbzl/workspace"
)

// Resolution is the resolved dependency closure of a set of package references.
type Resolution struct {
	// Root is the synthetic project the walk started from, including any
	// lock file pins that were applied.
	Root walker.RootProject `json:"-"`

	// Graphs holds one graph per framework, each followed by its
	// RID-specific graph when a runtime is configured.
	Graphs []*walker.Graph `json:"-"`

	// Packages is every resolved package across all graphs, sorted by ID.
	Packages []Package `json:"packages"`

	// Summary provides aggregate statistics about the resolution.
	Summary Summary `json:"summary"`

	// Warnings contains non-fatal issues, such as version conflicts.
	Warnings []string `json:"warnings,omitempty"`

	// LockFile is the lock file matching the resolution.
	LockFile *lockfile.Lockfile `json:"-"`

	// LockFileWritten is set when the lock file on disk was created or rewritten.
	LockFileWritten bool `json:"lock_file_written,omitempty"`
}

// Package is one resolved package version.
type Package struct {
	ID      string `json:"id"`
	Version string `json:"version"`

	// Source is the feed the package was served from, when known.
	Source string `json:"source,omitempty"`

	// Depth is the shortest distance from the root over all graphs.
	Depth int `json:"depth"`

	// Direct is set for packages referenced by the root.
	Direct bool `json:"direct,omitempty"`

	// RequiredBy lists the packages that depend on this one, or the root.
	RequiredBy []string `json:"required_by"`

	// Targets are the graphs the package appears in.
	Targets []string `json:"targets"`
}

// Summary provides statistics about a resolution.
type Summary struct {
	TotalPackages      int `json:"total_packages"`
	DirectPackages     int `json:"direct_packages"`
	TransitivePackages int `json:"transitive_packages"`
	Targets            int `json:"targets"`
	Conflicts          int `json:"conflicts,omitempty"`
}

// Graph returns the query graph of a target ("net6.0" or "net6.0/win-x64").
func (r *Resolution) Graph(target string) (*graph.Graph, bool) {
	for _, g := range r.Graphs {
		if g.Target.String() == target {
			return graph.FromWalker(g), true
		}
	}
	return nil, false
}

// DependencyGraphs returns the query graph of every target.
func (r *Resolution) DependencyGraphs() []*graph.Graph {
	out := make([]*graph.Graph, len(r.Graphs))
	for i, g := range r.Graphs {
		out[i] = graph.FromWalker(g)
	}
	return out
}

// Result is the outcome of Generate.
type Result struct {
	*Resolution

	// Entries are the rendered build targets, framework packs included.
	Entries []*entry.Entry

	// Overrides maps package IDs whose references come from a targeting
	// pack to the replacement label (nil when the reference is dropped).
	Overrides conflict.Overrides

	// UpgradeWinners are the packages that ship newer assemblies than the
	// targeting packs.
	UpgradeWinners []string

	// Packs are the targeting packs that took part in conflict resolution.
	Packs []nuget.Identity

	// Files are the rendered files, relative to the output directory.
	Files []render.File

	// Links are the version folder links of the output directory.
	Links []workspace.Link

	// Report lists what was written to the output directory.
	Report *workspace.Report
}

// Stage names a step of generation.
type Stage string

const (
	StageResolve   Stage = "resolve"
	StageDownload  Stage = "download"
	StageSelect    Stage = "select"
	StageConflicts Stage = "conflicts"
	StageRender    Stage = "render"
	StageWrite     Stage = "write"
)

// ProgressEvent reports the progress of generation.
type ProgressEvent struct {
	Stage Stage

	// Package is set for per-package events during download.
	Package string

	// Done and Total count the completed and planned units of the stage.
	Done  int
	Total int
}
