package walker

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/albertocavalcante/go-nugetbzl/nuget"
	"github.com/albertocavalcante/go-nugetbzl/nuspec"
	"github.com/albertocavalcante/go-nugetbzl/runtimegraph"
	"github.com/albertocavalcante/go-nugetbzl/selection"
	"github.com/albertocavalcante/go-nugetbzl/selection/version"
)

// Root project identity. The root is a project, never a package, and is
// excluded from flattened results.
const (
	RootName    = "Root"
	RootVersion = "1.0.0"
)

// Sentinel errors.
var (
	// ErrPackageNotFound means no feed serves a referenced package ID.
	ErrPackageNotFound = errors.New("package not found")

	// ErrVersionNotFound means the package exists but no version satisfies the reference.
	ErrVersionNotFound = errors.New("version not found")
)

// Kind classifies graph nodes.
type Kind string

const (
	KindProject Kind = "project"
	KindPackage Kind = "package"
)

// RootProject is the synthetic project whose references seed every walk.
type RootProject struct {
	Targets      []nuget.Target
	Dependencies []nuget.PackageDependency

	// Locked pins versions per target, keyed by nuget.Target.String() and
	// then by package ID. Targets without an entry are resolved normally.
	Locked map[string]map[string]version.Version
}

// Identity returns Root@1.0.0.
func (RootProject) Identity() nuget.Identity {
	return nuget.Identity{ID: RootName, Version: version.MustParse(RootVersion)}
}

// Node is one resolved package (or the root project) in a graph.
type Node struct {
	Identity nuget.Identity
	Kind     Kind

	// Depth is the distance from the root; the root is 0.
	Depth int

	// Parent is the node whose request first reached this node.
	Parent *Node

	// Requests are all incoming requests, including those from deeper
	// levels that did not take part in the version decision.
	Requests []selection.Request

	// Dependencies are the outgoing edges walked for the target: the nearest
	// dependency group plus RID-specific runtime dependencies.
	Dependencies []nuget.PackageDependency

	Nuspec *nuspec.Nuspec
}

// Path returns the identities from the root to n.
func (n *Node) Path() []string {
	var path []string
	for cur := n; cur != nil; cur = cur.Parent {
		path = append(path, cur.Identity.String())
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// Graph is the resolved dependency graph for one target.
type Graph struct {
	Target nuget.Target

	// RuntimeGraph is the merged runtime graph used for RID-specific walks;
	// nil for framework-independent graphs.
	RuntimeGraph *runtimegraph.Graph

	Root *Node

	// Nodes holds every resolved package in walk order, root excluded.
	Nodes []*Node

	// Conflicts are requests the selected versions do not satisfy.
	Conflicts []selection.Conflict

	index map[string]*Node
}

func newGraph(target nuget.Target, root *Node) *Graph {
	return &Graph{Target: target, Root: root, index: make(map[string]*Node)}
}

func (g *Graph) add(n *Node) {
	g.Nodes = append(g.Nodes, n)
	g.index[strings.ToLower(n.Identity.ID)] = n
}

// Lookup returns the node for a package ID, case-insensitively.
func (g *Graph) Lookup(id string) (*Node, bool) {
	n, ok := g.index[strings.ToLower(id)]
	return n, ok
}

// Packages returns the identities of all resolved packages in walk order.
func (g *Graph) Packages() []nuget.Identity {
	out := make([]nuget.Identity, len(g.Nodes))
	for i, n := range g.Nodes {
		out[i] = n.Identity
	}
	return out
}

// Flatten returns the distinct package identities of graphs, root projects
// excluded, sorted by ID (case-insensitive) then version.
func Flatten(graphs []*Graph) []nuget.Identity {
	seen := make(map[string]bool)
	var out []nuget.Identity
	for _, g := range graphs {
		for _, n := range g.Nodes {
			if n.Kind != KindPackage || seen[n.Identity.Key()] {
				continue
			}
			seen[n.Identity.Key()] = true
			out = append(out, n.Identity)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}

// UnresolvableReferenceError reports a reference no feed can satisfy.
type UnresolvableReferenceError struct {
	Request selection.Request
	Target  nuget.Target

	// Path runs from the root to the requesting package.
	Path []string

	// Err is ErrPackageNotFound or ErrVersionNotFound.
	Err   error
	Cause error
}

func (e *UnresolvableReferenceError) Error() string {
	msg := fmt.Sprintf("unable to resolve %s %s for %s", e.Request.ID, e.Request.Range, e.Target)
	if len(e.Path) > 0 {
		msg += " (via " + strings.Join(e.Path, " -> ") + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *UnresolvableReferenceError) Unwrap() []error {
	var errs []error
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}
