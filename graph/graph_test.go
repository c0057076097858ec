package graph

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/albertocavalcante/go-nugetbzl/framework"
	"github.com/albertocavalcante/go-nugetbzl/internal/feedtest"
	"github.com/albertocavalcante/go-nugetbzl/nuget"
	"github.com/albertocavalcante/go-nugetbzl/selection/version"
	"github.com/albertocavalcante/go-nugetbzl/store"
	"github.com/albertocavalcante/go-nugetbzl/walker"
)

var (
	root = Key{ID: "Root", Version: "1.0.0"}
	keyA = Key{ID: "A", Version: "1.0.0"}
	keyB = Key{ID: "B", Version: "1.0.0"}
	keyC = Key{ID: "C", Version: "2.0.0"}
)

// createTestGraph builds:
//
//	Root@1.0.0
//	├── A@1.0.0
//	│   └── C@2.0.0
//	└── B@1.0.0
//	    └── C@2.0.0 (shared)
func createTestGraph() *Graph {
	return Build(root, []SimplePackage{
		{ID: "Root", Version: "1.0.0", Dependencies: []Key{keyA, keyB}},
		{ID: "A", Version: "1.0.0", Dependencies: []Key{keyC}},
		{ID: "B", Version: "1.0.0", Dependencies: []Key{keyC}},
		{ID: "C", Version: "2.0.0"},
	})
}

func TestKeyString(t *testing.T) {
	if got := keyA.String(); got != "A@1.0.0" {
		t.Errorf("String() = %q", got)
	}
	if got := parseKey("Newtonsoft.Json@13.0.1"); got != (Key{ID: "Newtonsoft.Json", Version: "13.0.1"}) {
		t.Errorf("parseKey = %+v", got)
	}
}

func TestBuild(t *testing.T) {
	g := createTestGraph()
	if len(g.Packages) != 4 {
		t.Errorf("expected 4 packages, got %d", len(g.Packages))
	}
	if !g.Packages[root].IsRoot {
		t.Error("root not marked")
	}
	if diff := cmp.Diff([]Key{keyA, keyB}, g.DirectDependents(keyC)); diff != "" {
		t.Errorf("dependents of C mismatch (-want +got):\n%s", diff)
	}
}

func TestQueries(t *testing.T) {
	g := createTestGraph()

	if diff := cmp.Diff([]Key{keyA, keyB, keyC}, g.TransitiveDeps(root)); diff != "" {
		t.Errorf("TransitiveDeps mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Key{keyA, keyB, root}, g.TransitiveDependents(keyC)); diff != "" {
		t.Errorf("TransitiveDependents mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Key{root, keyA, keyC}, g.Path(root, keyC)); diff != "" {
		t.Errorf("Path mismatch (-want +got):\n%s", diff)
	}
	if g.Path(keyC, root) != nil {
		t.Error("expected no path from a leaf to the root")
	}
	if len(g.AllPaths(root, keyC)) != 2 {
		t.Errorf("AllPaths = %v", g.AllPaths(root, keyC))
	}
	if n := g.GetByID("c"); n == nil || n.Key != keyC {
		t.Errorf("GetByID is not case-insensitive: %v", n)
	}
	if diff := cmp.Diff([]Key{keyC}, g.Leaves()); diff != "" {
		t.Errorf("Leaves mismatch (-want +got):\n%s", diff)
	}

	want := Stats{TotalPackages: 3, DirectDependencies: 2, TransitiveDependencies: 1, MaxDepth: 2}
	if diff := cmp.Diff(want, g.Stats()); diff != "" {
		t.Errorf("Stats mismatch (-want +got):\n%s", diff)
	}
}

func TestCycles(t *testing.T) {
	g := Build(root, []SimplePackage{
		{ID: "Root", Version: "1.0.0", Dependencies: []Key{keyA}},
		{ID: "A", Version: "1.0.0", Dependencies: []Key{keyB}},
		{ID: "B", Version: "1.0.0", Dependencies: []Key{keyA}},
	})
	if !g.HasCycles() {
		t.Fatal("expected a cycle")
	}
	if diff := cmp.Diff([][]Key{{keyA, keyB}}, g.FindCycles()); diff != "" {
		t.Errorf("FindCycles mismatch (-want +got):\n%s", diff)
	}
	if createTestGraph().HasCycles() {
		t.Error("shared dependency reported as a cycle")
	}
	if !strings.Contains(g.ToText(), "(circular)") {
		t.Errorf("text output does not mark the cycle:\n%s", g.ToText())
	}
	if g.Stats().MaxDepth != 2 {
		t.Errorf("MaxDepth = %d, want 2", g.Stats().MaxDepth)
	}
}

func TestToJSON(t *testing.T) {
	data, err := createTestGraph().ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	var tree TreeJSON
	if err := json.Unmarshal(data, &tree); err != nil {
		t.Fatal(err)
	}
	if tree.Key != "Root@1.0.0" || len(tree.Dependencies) != 2 {
		t.Fatalf("unexpected tree: %s", data)
	}
	// C is expanded under A and unexpanded under B.
	if c := tree.Dependencies[0].Dependencies[0]; c.Key != "C@2.0.0" || c.Unexpanded {
		t.Errorf("first C = %+v", c)
	}
	if c := tree.Dependencies[1].Dependencies[0]; !c.Unexpanded {
		t.Errorf("second C = %+v, want unexpanded", c)
	}
}

func TestToDOT(t *testing.T) {
	g := createTestGraph()
	dot := g.ToDOT()
	for _, want := range []string{
		"digraph dependencies {",
		`"Root@1.0.0" [label="Root\n1.0.0", style=bold];`,
		`"A@1.0.0" -> "C@2.0.0";`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q:\n%s", want, dot)
		}
	}
	if dot != g.ToDOT() {
		t.Error("DOT output is not deterministic")
	}
}

func TestToYAML(t *testing.T) {
	data, err := createTestGraph().ToYAML()
	if err != nil {
		t.Fatal(err)
	}
	var doc yamlGraph
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	want := []PackageInfo{
		{ID: "A", Version: "1.0.0", RequiredBy: []string{"Root@1.0.0"}},
		{ID: "B", Version: "1.0.0", RequiredBy: []string{"Root@1.0.0"}},
		{ID: "C", Version: "2.0.0", RequiredBy: []string{"A@1.0.0", "B@1.0.0"}},
	}
	if diff := cmp.Diff(want, doc.Packages); diff != "" {
		t.Errorf("packages mismatch (-want +got):\n%s", diff)
	}
	if doc.Root != "Root@1.0.0" {
		t.Errorf("root = %q", doc.Root)
	}
}

func TestEncodeUnknownFormat(t *testing.T) {
	if _, err := createTestGraph().Encode("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
	for _, f := range Formats() {
		if _, err := createTestGraph().Encode(f); err != nil {
			t.Errorf("Encode(%s): %v", f, err)
		}
	}
}

func TestFromWalker(t *testing.T) {
	feed := feedtest.New(
		feedtest.Package{ID: "A", Version: "1.0.0", Dependencies: map[string][]string{"netstandard2.0": {"C 1.0"}}},
		feedtest.Package{ID: "B", Version: "1.0.0", Dependencies: map[string][]string{"netstandard2.0": {"C 1.5"}}},
		feedtest.Package{ID: "C", Version: "1.0.0"},
		feedtest.Package{ID: "C", Version: "2.0.0"},
	)
	st, err := store.New(t.TempDir(), feed)
	if err != nil {
		t.Fatal(err)
	}
	w, err := walker.New(feed, st)
	if err != nil {
		t.Fatal(err)
	}
	rootProject := walker.RootProject{
		Targets: []nuget.Target{{Framework: framework.MustParse("net6.0")}},
		Dependencies: []nuget.PackageDependency{
			{ID: "A", Range: version.MustParseRange("1.0")},
			{ID: "B", Range: version.MustParseRange("1.0")},
		},
	}
	graphs, err := w.ResolveGraphs(context.Background(), rootProject)
	if err != nil {
		t.Fatal(err)
	}

	g := FromWalker(graphs[0])
	if g.Target != "net6.0" {
		t.Errorf("Target = %q", g.Target)
	}
	c := g.GetByID("C")
	if c == nil || c.Key.Version != "2.0.0" {
		t.Fatalf("C = %v, want 2.0.0", c)
	}
	if c.Selection.Strategy != StrategyCousin {
		t.Errorf("C strategy = %s, want %s", c.Selection.Strategy, StrategyCousin)
	}
	if a := g.GetByID("A"); a.Selection.Strategy != StrategyDirect {
		t.Errorf("A strategy = %s, want %s", a.Selection.Strategy, StrategyDirect)
	}
	if got := c.RequestedRanges[Key{ID: "B", Version: "1.0.0"}]; got != "[1.5.0, )" {
		t.Errorf("range requested by B = %q", got)
	}

	explanation, err := g.Explain("c")
	if err != nil {
		t.Fatal(err)
	}
	if len(explanation.DependencyChains) != 2 {
		t.Errorf("chains = %v", explanation.DependencyChains)
	}
	text, err := g.ToExplainText("C")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "Root@1.0.0 -> A@1.0.0 -> C@2.0.0 (requested [1.0.0, ))") {
		t.Errorf("explain text:\n%s", text)
	}
	if _, err := g.Explain("missing"); err == nil {
		t.Error("expected error for unknown package")
	}
}
