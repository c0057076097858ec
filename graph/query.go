package graph

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// Get returns the node for a key, or nil if not found.
func (g *Graph) Get(key Key) *Node {
	return g.Packages[key]
}

// GetByID returns the node of a package ID, compared case-insensitively.
// Returns nil if not found.
func (g *Graph) GetByID(id string) *Node {
	for _, key := range g.sortedKeys() {
		if strings.EqualFold(key.ID, id) {
			return g.Packages[key]
		}
	}
	return nil
}

// Contains returns true if the graph contains the given package version.
func (g *Graph) Contains(key Key) bool {
	_, ok := g.Packages[key]
	return ok
}

// ContainsID returns true if the graph contains a package with the given ID.
func (g *Graph) ContainsID(id string) bool {
	return g.GetByID(id) != nil
}

// DirectDeps returns the direct dependencies of a package.
func (g *Graph) DirectDeps(key Key) []Key {
	if node := g.Packages[key]; node != nil {
		return node.Dependencies
	}
	return nil
}

// DirectDependents returns packages that directly depend on the given package.
func (g *Graph) DirectDependents(key Key) []Key {
	if node := g.Packages[key]; node != nil {
		return node.Dependents
	}
	return nil
}

// TransitiveDeps returns all transitive dependencies of a package.
// The result is in breadth-first order.
func (g *Graph) TransitiveDeps(key Key) []Key {
	return g.bfs(key, func(n *Node) []Key { return n.Dependencies })
}

// TransitiveDependents returns all packages that transitively depend on the given package.
// The result is in breadth-first order (closest dependents first).
func (g *Graph) TransitiveDependents(key Key) []Key {
	return g.bfs(key, func(n *Node) []Key { return n.Dependents })
}

func (g *Graph) bfs(start Key, next func(*Node) []Key) []Key {
	result := make([]Key, 0)
	visited := map[Key]bool{start: true}
	queue := []Key{start}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		node := g.Packages[current]
		if node == nil {
			continue
		}
		for _, k := range next(node) {
			if !visited[k] {
				visited[k] = true
				result = append(result, k)
				queue = append(queue, k)
			}
		}
	}
	return result
}

// Path finds the shortest dependency path from one package to another.
// Returns nil if no path exists.
func (g *Graph) Path(from, to Key) []Key {
	if from == to {
		return []Key{from}
	}

	type queueItem struct {
		key  Key
		path []Key
	}

	visited := map[Key]bool{from: true}
	queue := []queueItem{{key: from, path: []Key{from}}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		node := g.Packages[current.key]
		if node == nil {
			continue
		}

		for _, dep := range node.Dependencies {
			if dep == to {
				return append(slices.Clip(current.path), dep)
			}
			if !visited[dep] {
				visited[dep] = true
				queue = append(queue, queueItem{key: dep, path: append(slices.Clip(current.path), dep)})
			}
		}
	}
	return nil
}

// AllPaths finds all dependency paths from one package to another.
// This can be expensive for large graphs with many paths.
func (g *Graph) AllPaths(from, to Key) [][]Key {
	var result [][]Key
	g.findAllPaths(from, to, []Key{from}, make(map[Key]bool), &result)
	return result
}

func (g *Graph) findAllPaths(current, target Key, path []Key, visited map[Key]bool, result *[][]Key) {
	if current == target {
		*result = append(*result, slices.Clone(path))
		return
	}

	visited[current] = true
	defer func() { visited[current] = false }()

	node := g.Packages[current]
	if node == nil {
		return
	}

	for _, dep := range node.Dependencies {
		if !visited[dep] {
			g.findAllPaths(dep, target, append(slices.Clip(path), dep), visited, result)
		}
	}
}

// Explain returns a detailed explanation of why a package is at its current version.
func (g *Graph) Explain(id string) (*Explanation, error) {
	node := g.GetByID(id)
	if node == nil {
		return nil, fmt.Errorf("package %q not found in graph", id)
	}

	explanation := &Explanation{
		Package:   node.Key,
		Selection: node.Selection,
	}

	for _, path := range g.AllPaths(g.Root, node.Key) {
		chain := DependencyChain{Path: path}
		// Path must have at least 2 nodes to have a parent
		if len(path) >= 2 {
			if r, ok := node.RequestedRanges[path[len(path)-2]]; ok {
				chain.RequestedRange = r
			}
		}
		explanation.DependencyChains = append(explanation.DependencyChains, chain)
	}

	explanation.RequestSummary = g.buildRequestSummary(node)
	return explanation, nil
}

func (g *Graph) buildRequestSummary(node *Node) string {
	if node.Selection == nil || len(node.Selection.Requests) == 0 {
		return fmt.Sprintf("%s is at version %s", node.Key.ID, node.Key.Version)
	}

	parts := make([]string, len(node.Selection.Requests))
	for i, r := range node.Selection.Requests {
		parts[i] = fmt.Sprintf("  %s requested by: %s", r.Range, r.RequestedBy)
	}

	return fmt.Sprintf("%s version selection:\n%s\nSelected: %s\nStrategy: %s (%s)",
		node.Key.ID,
		strings.Join(parts, "\n"),
		node.Selection.SelectedVersion,
		node.Selection.Strategy,
		node.Selection.DecidingFactor,
	)
}

// WhyIncluded returns all dependency chains that cause a package to be included.
func (g *Graph) WhyIncluded(id string) ([]DependencyChain, error) {
	node := g.GetByID(id)
	if node == nil {
		return nil, fmt.Errorf("package %q not found in graph", id)
	}

	paths := g.AllPaths(g.Root, node.Key)
	chains := make([]DependencyChain, len(paths))
	for i, path := range paths {
		chains[i] = DependencyChain{Path: path}
	}
	return chains, nil
}

// Stats returns statistics about the graph. The root is not counted.
func (g *Graph) Stats() Stats {
	stats := Stats{Conflicts: len(g.Conflicts)}
	for key := range g.Packages {
		if key != g.Root {
			stats.TotalPackages++
		}
	}
	if root := g.Packages[g.Root]; root != nil {
		stats.DirectDependencies = len(root.Dependencies)
	}
	stats.TransitiveDependencies = max(stats.TotalPackages-stats.DirectDependencies, 0)
	stats.MaxDepth = g.calculateMaxDepth()
	return stats
}

func (g *Graph) calculateMaxDepth() int {
	depths := make(map[Key]int)
	onPath := make(map[Key]bool)
	var maxDepth int

	var dfs func(key Key, depth int)
	dfs = func(key Key, depth int) {
		// A node already on the current path is a cycle back-edge.
		if onPath[key] {
			return
		}
		if existingDepth, ok := depths[key]; ok && existingDepth >= depth {
			return
		}
		depths[key] = depth
		maxDepth = max(maxDepth, depth)

		node := g.Packages[key]
		if node == nil {
			return
		}

		onPath[key] = true
		for _, dep := range node.Dependencies {
			dfs(dep, depth+1)
		}
		delete(onPath, key)
	}

	dfs(g.Root, 0)
	return maxDepth
}

// Leaves returns all packages without dependencies, sorted.
func (g *Graph) Leaves() []Key {
	var leaves []Key
	for _, key := range g.sortedKeys() {
		if len(g.Packages[key].Dependencies) == 0 {
			leaves = append(leaves, key)
		}
	}
	return leaves
}

// HasCycles returns true if the graph contains cycles.
func (g *Graph) HasCycles() bool {
	return len(g.FindCycles()) > 0
}

// FindCycles returns all cycles in the graph. Keys are visited in sorted
// order so the result is deterministic.
func (g *Graph) FindCycles() [][]Key {
	var cycles [][]Key
	visited := make(map[Key]bool)
	recStack := make(map[Key]bool)
	path := make([]Key, 0)

	var findCycles func(key Key)
	findCycles = func(key Key) {
		visited[key] = true
		recStack[key] = true
		path = append(path, key)

		if node := g.Packages[key]; node != nil {
			for _, dep := range node.Dependencies {
				if !visited[dep] {
					findCycles(dep)
				} else if recStack[dep] {
					if start := slices.Index(path, dep); start >= 0 {
						cycles = append(cycles, slices.Clone(path[start:]))
					}
				}
			}
		}

		path = path[:len(path)-1]
		recStack[key] = false
	}

	for _, key := range g.sortedKeys() {
		if !visited[key] {
			findCycles(key)
		}
	}
	return cycles
}

func (g *Graph) sortedKeys() []Key {
	keys := make([]Key, 0, len(g.Packages))
	for key := range g.Packages {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

func compareKeys(a, b Key) int {
	return cmp.Or(
		strings.Compare(strings.ToLower(a.ID), strings.ToLower(b.ID)),
		strings.Compare(a.Version, b.Version),
	)
}
