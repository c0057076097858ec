// Package runtimegraph models runtime.json: the runtime identifier (RID)
// import graph and RID-specific package dependencies.
//
// Reference: https://learn.microsoft.com/en-us/dotnet/core/rid-catalog
package runtimegraph

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/albertocavalcante/go-nugetbzl/selection/version"
)

// FileName is the name of the runtime graph file at a package root.
const FileName = "runtime.json"

// Dependency is a RID-specific package dependency.
type Dependency struct {
	ID    string
	Range version.Range
}

// Description is one runtime entry.
type Description struct {
	RID     string
	Imports []string

	// Dependencies maps a lowercase package ID to the packages it pulls in
	// for this runtime.
	Dependencies map[string][]Dependency
}

// Graph is a parsed runtime graph. A nil *Graph behaves as empty.
type Graph struct {
	Runtimes map[string]Description
}

// Parse decodes runtime.json content.
func Parse(data []byte) (*Graph, error) {
	var doc struct {
		Runtimes map[string]map[string]json.RawMessage `json:"runtimes"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse runtime graph: %w", err)
	}

	g := &Graph{Runtimes: make(map[string]Description, len(doc.Runtimes))}
	for rid, body := range doc.Runtimes {
		desc := Description{RID: rid}
		for key, raw := range body {
			if key == "#import" {
				if err := json.Unmarshal(raw, &desc.Imports); err != nil {
					return nil, fmt.Errorf("parse runtime graph: %s imports: %w", rid, err)
				}
				continue
			}
			var deps map[string]string
			if err := json.Unmarshal(raw, &deps); err != nil {
				return nil, fmt.Errorf("parse runtime graph: %s/%s: %w", rid, key, err)
			}
			list, err := toDependencies(deps)
			if err != nil {
				return nil, fmt.Errorf("parse runtime graph: %s/%s: %w", rid, key, err)
			}
			if desc.Dependencies == nil {
				desc.Dependencies = make(map[string][]Dependency)
			}
			desc.Dependencies[strings.ToLower(key)] = list
		}
		g.Runtimes[rid] = desc
	}
	return g, nil
}

// Load reads and parses a runtime.json file.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func toDependencies(deps map[string]string) ([]Dependency, error) {
	list := make([]Dependency, 0, len(deps))
	for id, rng := range deps {
		r, err := version.ParseRange(rng)
		if err != nil {
			return nil, err
		}
		list = append(list, Dependency{ID: id, Range: r})
	}
	sort.Slice(list, func(i, j int) bool {
		return strings.ToLower(list[i].ID) < strings.ToLower(list[j].ID)
	})
	return list, nil
}

// Merge combines graphs into a new graph. Merging is commutative and
// idempotent: identical runtime entries collapse, imports are unioned and
// dependencies are unioned per package.
func Merge(graphs ...*Graph) *Graph {
	out := &Graph{Runtimes: make(map[string]Description)}
	for _, g := range graphs {
		if g == nil {
			continue
		}
		for rid, desc := range g.Runtimes {
			existing, ok := out.Runtimes[rid]
			if !ok {
				out.Runtimes[rid] = cloneDescription(desc)
				continue
			}
			out.Runtimes[rid] = mergeDescription(existing, desc)
		}
	}
	return out
}

func cloneDescription(d Description) Description {
	c := Description{RID: d.RID, Imports: slices.Clone(d.Imports)}
	if d.Dependencies != nil {
		c.Dependencies = make(map[string][]Dependency, len(d.Dependencies))
		for k, v := range d.Dependencies {
			c.Dependencies[k] = slices.Clone(v)
		}
	}
	return c
}

func mergeDescription(a, b Description) Description {
	// Order the pair by a stable key so the result does not depend on
	// argument order.
	if importKeyLess(b.Imports, a.Imports) {
		a, b = b, a
	}
	out := cloneDescription(a)
	for _, imp := range b.Imports {
		if !slices.Contains(out.Imports, imp) {
			out.Imports = append(out.Imports, imp)
		}
	}
	for pkg, deps := range b.Dependencies {
		if out.Dependencies == nil {
			out.Dependencies = make(map[string][]Dependency)
		}
		out.Dependencies[pkg] = unionDependencies(out.Dependencies[pkg], deps)
	}
	return out
}

func importKeyLess(a, b []string) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return strings.Join(a, ",") < strings.Join(b, ",")
}

func unionDependencies(a, b []Dependency) []Dependency {
	byID := make(map[string]Dependency, len(a)+len(b))
	for _, d := range slices.Concat(a, b) {
		key := strings.ToLower(d.ID)
		cur, ok := byID[key]
		if !ok || rangeLess(cur.Range, d.Range) {
			byID[key] = d
		}
	}
	out := make([]Dependency, 0, len(byID))
	for _, d := range byID {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].ID) < strings.ToLower(out[j].ID)
	})
	return out
}

// rangeLess orders ranges by lower bound, then by string form.
func rangeLess(a, b version.Range) bool {
	switch {
	case a.Min == nil && b.Min != nil:
		return true
	case a.Min != nil && b.Min == nil:
		return false
	case a.Min != nil && b.Min != nil:
		if c := a.Min.Compare(*b.Min); c != 0 {
			return c < 0
		}
	}
	return a.String() < b.String()
}

// Expand returns rid followed by everything it imports, breadth-first and
// without duplicates. Unknown RIDs expand to themselves.
func (g *Graph) Expand(rid string) []string {
	if rid == "" {
		return nil
	}
	seen := map[string]bool{rid: true}
	out := []string{rid}
	for i := 0; i < len(out); i++ {
		if g == nil {
			break
		}
		for _, imp := range g.Runtimes[out[i]].Imports {
			if !seen[imp] {
				seen[imp] = true
				out = append(out, imp)
			}
		}
	}
	return out
}

// RuntimeDependencies returns the RID-specific dependencies declared for
// packageID under rid or the nearest RID it imports.
func (g *Graph) RuntimeDependencies(rid, packageID string) []Dependency {
	if g == nil {
		return nil
	}
	key := strings.ToLower(packageID)
	for _, r := range g.Expand(rid) {
		if deps, ok := g.Runtimes[r].Dependencies[key]; ok {
			return deps
		}
	}
	return nil
}

// Len returns the number of runtime entries.
func (g *Graph) Len() int {
	if g == nil {
		return 0
	}
	return len(g.Runtimes)
}
