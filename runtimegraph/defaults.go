package runtimegraph

// AnyRID is the portable runtime every specific RID eventually imports.
const AnyRID = "any"

// imports for the portable RIDs shipped with .NET. Packages that carry their
// own runtime.json (Microsoft.NETCore.Platforms) extend or refine these.
var defaultImports = map[string][]string{
	"base":           nil,
	"any":            {"base"},
	"win":            {"any"},
	"win-x86":        {"win"},
	"win-x64":        {"win"},
	"win-arm64":      {"win"},
	"unix":           {"any"},
	"linux":          {"unix"},
	"linux-x64":      {"linux"},
	"linux-arm":      {"linux"},
	"linux-arm64":    {"linux"},
	"linux-musl":     {"linux"},
	"linux-musl-x64": {"linux-musl", "linux-x64"},
	"osx":            {"unix"},
	"osx-x64":        {"osx"},
	"osx-arm64":      {"osx"},
}

// Default returns the built-in portable RID graph.
func Default() *Graph {
	g := &Graph{Runtimes: make(map[string]Description, len(defaultImports))}
	for rid, imports := range defaultImports {
		g.Runtimes[rid] = Description{RID: rid, Imports: append([]string(nil), imports...)}
	}
	return g
}
