package graph

import (
	"fmt"

	"github.com/albertocavalcante/go-nugetbzl/nuget"
)

// Key identifies a package version in a graph. Version is the normalized
// version string.
type Key struct {
	ID      string
	Version string
}

// KeyOf returns the key of an identity.
func KeyOf(id nuget.Identity) Key {
	return Key{ID: id.ID, Version: id.Version.String()}
}

// String returns "ID@Version".
func (k Key) String() string {
	return k.ID + "@" + k.Version
}

// Graph represents a resolved package dependency graph for one target.
// It supports bidirectional traversal (dependencies and dependents)
// and provides query methods for explaining version selections.
type Graph struct {
	// Target is the framework (and runtime) the graph was resolved for.
	Target string

	// Root is the synthetic root project.
	Root Key

	// Packages contains all nodes in the graph, root included.
	Packages map[Key]*Node

	// Conflicts are requests the selected versions do not satisfy.
	Conflicts []string
}

// Node represents a package in the dependency graph.
type Node struct {
	// Key uniquely identifies this package version.
	Key Key

	// Depth is the distance from the root; direct references are 1.
	Depth int

	// Dependencies are the direct dependencies of this package (resolved versions).
	Dependencies []Key

	// Dependents are packages that directly depend on this one (reverse edges).
	Dependents []Key

	// RequestedRanges tracks which package requested which range of this one.
	RequestedRanges map[Key]string

	// Selection contains information about why this version was selected.
	Selection *SelectionInfo

	// IsRoot is true for the root project.
	IsRoot bool
}

// SelectionInfo explains why a particular version was selected.
type SelectionInfo struct {
	Strategy        SelectionStrategy
	SelectedVersion string

	// Requests are the ranges that took part in the decision.
	Requests []RangeRequest

	// DecidingFactor explains what determined the selection.
	DecidingFactor string
}

// SelectionStrategy indicates how a version was selected.
type SelectionStrategy string

const (
	// StrategyLowestApplicable picks the lowest version satisfying the range.
	StrategyLowestApplicable SelectionStrategy = "lowest-applicable"

	// StrategyFloating picks the highest version matching a floating range.
	StrategyFloating SelectionStrategy = "floating"

	// StrategyDirect means a reference from the root project decided the version.
	StrategyDirect SelectionStrategy = "direct-dependency-wins"

	// StrategyCousin picks the lowest version satisfying several ranges.
	StrategyCousin SelectionStrategy = "cousin"

	// StrategyRoot indicates the root project (no selection needed).
	StrategyRoot SelectionStrategy = "root"
)

// RangeRequest is one range asked for a package.
type RangeRequest struct {
	Range       string
	RequestedBy Key
}

// Explanation provides a detailed explanation of why a package is at its current version.
type Explanation struct {
	Package          Key
	Selection        *SelectionInfo
	DependencyChains []DependencyChain
	RequestSummary   string
}

// DependencyChain represents a path of dependencies from root to a package.
type DependencyChain struct {
	// Path is the sequence of packages from root to target.
	Path []Key

	// RequestedRange is the range requested at the end of this chain.
	RequestedRange string
}

// String returns a human-readable representation of the chain.
func (c DependencyChain) String() string {
	if len(c.Path) == 0 {
		return ""
	}
	result := c.Path[0].String()
	for i := 1; i < len(c.Path); i++ {
		result += " -> " + c.Path[i].String()
	}
	if c.RequestedRange != "" {
		result += fmt.Sprintf(" (requested %s)", c.RequestedRange)
	}
	return result
}

// Stats provides statistics about the graph.
type Stats struct {
	TotalPackages          int
	DirectDependencies     int
	TransitiveDependencies int
	MaxDepth               int
	Conflicts              int
}
