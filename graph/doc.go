// Package graph provides dependency graph representation and query capabilities
// for resolved NuGet packages.
//
// A [Graph] is built from one walker graph, so it describes a single target
// framework (and runtime). It allows users to:
//
//   - Visualize the complete dependency graph
//   - Explain why a package is at a particular version
//   - Find dependency paths between packages
//   - Query direct and transitive dependencies
//
// # Building a Graph
//
//	graphs, _ := w.ResolveGraphs(ctx, root)
//	g := graph.FromWalker(graphs[0])
//
// # Querying the Graph
//
//	// Get direct dependencies
//	deps := g.DirectDeps(key)
//
//	// Explain version selection
//	explanation, _ := g.Explain("Newtonsoft.Json")
//
//	// Find path between packages
//	path := g.Path(g.Root, key)
//
// # Output Formats
//
// The graph can be serialized to multiple formats:
//
//	jsonBytes, _ := g.ToJSON()  // nested dependency tree
//	dotString := g.ToDOT()      // Graphviz
//	textString := g.ToText()    // human-readable tree
//	yamlBytes, _ := g.ToYAML()  // flat package list
package graph
