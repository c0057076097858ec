package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const separatorWidth = 60 // Width of separator lines in text output

// Format names an output format of Encode.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatDOT  Format = "dot"
	FormatYAML Format = "yaml"
)

// Formats returns the supported output formats.
func Formats() []Format {
	return []Format{FormatText, FormatJSON, FormatDOT, FormatYAML}
}

// Encode renders the graph in the given format.
func (g *Graph) Encode(f Format) ([]byte, error) {
	switch f {
	case FormatText, "":
		return []byte(g.ToText()), nil
	case FormatJSON:
		return g.ToJSON()
	case FormatDOT:
		return []byte(g.ToDOT()), nil
	case FormatYAML:
		return g.ToYAML()
	default:
		return nil, fmt.Errorf("unknown graph format %q", f)
	}
}

// TreeJSON is the nested JSON form of a graph, rooted at the root project.
type TreeJSON struct {
	Key          string           `json:"key"`
	Target       string           `json:"target,omitempty"`
	Dependencies []TreeDependency `json:"dependencies,omitempty"`
	Conflicts    []string         `json:"conflicts,omitempty"`
}

// TreeDependency is a dependency in the nested JSON form. A package seen
// earlier in the tree is not expanded again.
type TreeDependency struct {
	Key          string           `json:"key"`
	Requested    string           `json:"requested,omitempty"`
	Dependencies []TreeDependency `json:"dependencies,omitempty"`
	Cycles       []TreeDependency `json:"cycles,omitempty"`
	Unexpanded   bool             `json:"unexpanded,omitempty"`
}

// ToJSON outputs the graph as a nested dependency tree.
func (g *Graph) ToJSON() ([]byte, error) {
	return json.MarshalIndent(g.toTree(), "", "  ")
}

func (g *Graph) toTree() *TreeJSON {
	rootNode := g.Packages[g.Root]
	if rootNode == nil {
		return &TreeJSON{}
	}

	cycleKeys := make(map[Key]bool)
	for _, cycle := range g.FindCycles() {
		for _, key := range cycle {
			cycleKeys[key] = true
		}
	}

	visited := make(map[Key]bool)
	return &TreeJSON{
		Key:          g.Root.String(),
		Target:       g.Target,
		Dependencies: g.treeDeps(rootNode, visited, cycleKeys),
		Conflicts:    g.Conflicts,
	}
}

func (g *Graph) treeDeps(node *Node, visited, cycleKeys map[Key]bool) []TreeDependency {
	if node == nil {
		return nil
	}

	deps := make([]TreeDependency, 0, len(node.Dependencies))
	for _, depKey := range node.Dependencies {
		depNode := g.Packages[depKey]
		dep := TreeDependency{Key: depKey.String()}
		if depNode != nil {
			dep.Requested = depNode.RequestedRanges[node.Key]
		}

		switch {
		case visited[depKey]:
			dep.Unexpanded = true
		case cycleKeys[depKey]:
			visited[depKey] = true
			dep.Cycles = []TreeDependency{{Key: depKey.String()}}
		default:
			visited[depKey] = true
			dep.Dependencies = g.treeDeps(depNode, visited, cycleKeys)
		}
		deps = append(deps, dep)
	}
	return deps
}

// ToDOT outputs the graph in Graphviz DOT format.
func (g *Graph) ToDOT() string {
	var buf bytes.Buffer

	buf.WriteString("digraph dependencies {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  node [shape=box];\n\n")

	keys := g.sortedKeys()
	for _, key := range keys {
		attrs := fmt.Sprintf(`label="%s\n%s"`, key.ID, key.Version) //nolint:gocritic // DOT format requires this quote style
		if g.Packages[key].IsRoot {
			attrs += ", style=bold"
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", key.String(), attrs)
	}

	buf.WriteString("\n")

	for _, key := range keys {
		for _, dep := range g.Packages[key].Dependencies {
			fmt.Fprintf(&buf, "  %q -> %q;\n", key.String(), dep.String())
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

// ToText outputs a human-readable text representation of the graph.
func (g *Graph) ToText() string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Dependency Graph (target: %s)\n", g.Target)
	buf.WriteString(strings.Repeat("=", separatorWidth) + "\n\n")

	stats := g.Stats()
	fmt.Fprintf(&buf, "Total packages: %d\n", stats.TotalPackages)
	fmt.Fprintf(&buf, "Direct dependencies: %d\n", stats.DirectDependencies)
	fmt.Fprintf(&buf, "Transitive dependencies: %d\n", stats.TransitiveDependencies)
	fmt.Fprintf(&buf, "Max depth: %d\n", stats.MaxDepth)
	if stats.Conflicts > 0 {
		fmt.Fprintf(&buf, "Conflicts: %d\n", stats.Conflicts)
		for _, c := range g.Conflicts {
			fmt.Fprintf(&buf, "  %s\n", c)
		}
	}
	buf.WriteString("\n")

	buf.WriteString("Dependency Tree:\n")
	g.printTree(&buf, g.Root, "", true, make(map[Key]bool))

	return buf.String()
}

func (g *Graph) printTree(buf *bytes.Buffer, key Key, prefix string, isLast bool, visited map[Key]bool) {
	connector := "├── "
	if isLast {
		connector = "└── "
	}
	if key == g.Root {
		buf.WriteString(key.String())
	} else {
		buf.WriteString(prefix + connector + key.String())
	}

	if visited[key] {
		buf.WriteString(" (circular)\n")
		return
	}
	buf.WriteString("\n")

	visited[key] = true
	defer func() { visited[key] = false }()

	node := g.Packages[key]
	if node == nil {
		return
	}

	for i, dep := range node.Dependencies {
		childPrefix := prefix
		if key != g.Root {
			if isLast {
				childPrefix += "    "
			} else {
				childPrefix += "│   "
			}
		}
		g.printTree(buf, dep, childPrefix, i == len(node.Dependencies)-1, visited)
	}
}

// ToExplainText outputs a human-readable explanation for a specific package.
func (g *Graph) ToExplainText(id string) (string, error) {
	explanation, err := g.Explain(id)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Explanation for: %s\n", explanation.Package)
	buf.WriteString(strings.Repeat("=", separatorWidth) + "\n\n")

	if s := explanation.Selection; s != nil {
		buf.WriteString("Version Selection:\n")
		fmt.Fprintf(&buf, "  Selected version: %s\n", s.SelectedVersion)
		fmt.Fprintf(&buf, "  Strategy: %s\n", s.Strategy)
		fmt.Fprintf(&buf, "  Deciding factor: %s\n", s.DecidingFactor)

		if len(s.Requests) > 0 {
			buf.WriteString("\n  Requests:\n")
			for _, r := range s.Requests {
				fmt.Fprintf(&buf, "    %s - requested by: %s\n", r.Range, r.RequestedBy)
			}
		}
	}

	if len(explanation.DependencyChains) > 0 {
		buf.WriteString("\nDependency Chains (paths from root):\n")
		for i, chain := range explanation.DependencyChains {
			fmt.Fprintf(&buf, "  %d. %s\n", i+1, chain.String())
		}
	}

	return buf.String(), nil
}

// PackageInfo represents a package in the flat list output.
type PackageInfo struct {
	ID         string   `json:"id" yaml:"id"`
	Version    string   `json:"version" yaml:"version"`
	Depth      int      `json:"depth,omitempty" yaml:"depth,omitempty"`
	Strategy   string   `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	RequiredBy []string `json:"required_by,omitempty" yaml:"required_by,omitempty"`
}

// ToPackageList outputs a flat list of packages sorted by ID, root excluded.
func (g *Graph) ToPackageList() []PackageInfo {
	packages := make([]PackageInfo, 0, len(g.Packages))
	for _, key := range g.sortedKeys() {
		if key == g.Root {
			continue
		}
		node := g.Packages[key]

		requiredBy := make([]string, len(node.Dependents))
		for i, dep := range node.Dependents {
			requiredBy[i] = dep.String()
		}
		info := PackageInfo{
			ID:         key.ID,
			Version:    key.Version,
			Depth:      node.Depth,
			RequiredBy: requiredBy,
		}
		if node.Selection != nil {
			info.Strategy = string(node.Selection.Strategy)
		}
		packages = append(packages, info)
	}
	return packages
}

// yamlGraph is the YAML document of a graph.
type yamlGraph struct {
	Target    string        `yaml:"target"`
	Root      string        `yaml:"root"`
	Packages  []PackageInfo `yaml:"packages"`
	Conflicts []string      `yaml:"conflicts,omitempty"`
}

// ToYAML outputs the flat package list as YAML.
func (g *Graph) ToYAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(yamlGraph{
		Target:    g.Target,
		Root:      g.Root.String(),
		Packages:  g.ToPackageList(),
		Conflicts: g.Conflicts,
	}); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
