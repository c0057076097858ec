package graph

import (
	"slices"
	"strings"

	"github.com/albertocavalcante/go-nugetbzl/walker"
)

// FromWalker constructs a Graph from a resolved walker graph.
func FromWalker(wg *walker.Graph) *Graph {
	root := KeyOf(wg.Root.Identity)
	g := &Graph{
		Target:   wg.Target.String(),
		Root:     root,
		Packages: make(map[Key]*Node, len(wg.Nodes)+1),
	}
	for _, c := range wg.Conflicts {
		g.Conflicts = append(g.Conflicts, c.String())
	}

	all := append([]*walker.Node{wg.Root}, wg.Nodes...)

	// First pass: create all nodes
	for _, n := range all {
		key := KeyOf(n.Identity)
		g.Packages[key] = &Node{
			Key:             key,
			Depth:           n.Depth,
			RequestedRanges: make(map[Key]string),
			IsRoot:          key == root,
			Selection:       selectionInfo(n, root),
		}
	}

	// Second pass: resolve edges and build reverse edges (dependents)
	for _, n := range all {
		key := KeyOf(n.Identity)
		node := g.Packages[key]
		for _, dep := range n.Dependencies {
			if dep.Label != "" {
				continue
			}
			resolved, ok := wg.Lookup(dep.ID)
			if !ok {
				continue
			}
			depKey := KeyOf(resolved.Identity)
			if slices.Contains(node.Dependencies, depKey) {
				continue
			}
			node.Dependencies = append(node.Dependencies, depKey)
			if depNode := g.Packages[depKey]; depNode != nil {
				depNode.Dependents = append(depNode.Dependents, key)
				depNode.RequestedRanges[key] = dep.Range.String()
			}
		}
	}
	return g
}

// selectionInfo reconstructs the decision the walker made for n.
func selectionInfo(n *walker.Node, root Key) *SelectionInfo {
	key := KeyOf(n.Identity)
	if key == root {
		return &SelectionInfo{Strategy: StrategyRoot, SelectedVersion: key.Version, DecidingFactor: "root project"}
	}

	info := &SelectionInfo{SelectedVersion: key.Version}
	ranges := map[string]bool{}
	floating := false
	for _, r := range n.Requests {
		from := root
		if r.Parent != "" {
			from = parseKey(r.Parent)
		}
		info.Requests = append(info.Requests, RangeRequest{Range: r.Range.String(), RequestedBy: from})
		ranges[r.Range.String()] = true
		floating = floating || r.Range.IsFloating()
	}

	switch {
	case n.Depth == 1:
		info.Strategy = StrategyDirect
		info.DecidingFactor = "referenced by the root project"
	case floating:
		info.Strategy = StrategyFloating
		info.DecidingFactor = "highest version matching a floating range"
	case len(ranges) > 1:
		info.Strategy = StrategyCousin
		info.DecidingFactor = "lowest version satisfying every range"
	default:
		info.Strategy = StrategyLowestApplicable
		info.DecidingFactor = "lowest applicable version"
	}
	return info
}

// parseKey parses an "ID@Version" string into a Key.
func parseKey(s string) Key {
	if i := strings.LastIndexByte(s, '@'); i >= 0 {
		return Key{ID: s[:i], Version: s[i+1:]}
	}
	return Key{ID: s}
}

// Build constructs a Graph from a simple package list.
// This is a convenience method when no walker graph is available.
func Build(root Key, pkgs []SimplePackage) *Graph {
	g := &Graph{
		Root:     root,
		Packages: make(map[Key]*Node),
	}

	// Create nodes
	for _, p := range pkgs {
		key := Key{ID: p.ID, Version: p.Version}
		node := &Node{
			Key:             key,
			Dependencies:    slices.Clone(p.Dependencies),
			RequestedRanges: make(map[Key]string),
			IsRoot:          key == root,
		}
		g.Packages[key] = node
	}

	// Build reverse edges
	for _, p := range pkgs {
		key := Key{ID: p.ID, Version: p.Version}
		for _, depKey := range p.Dependencies {
			if depNode, ok := g.Packages[depKey]; ok {
				depNode.Dependents = append(depNode.Dependents, key)
			}
		}
	}
	return g
}

// SimplePackage is a simplified package representation for building graphs.
type SimplePackage struct {
	ID           string
	Version      string
	Dependencies []Key
}
