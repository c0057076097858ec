package runtimegraph

import (
	"reflect"
	"testing"
)

const platformsJSON = `{
  "runtimes": {
    "win-x64": { "#import": ["win"] },
    "win": { "#import": ["any"] },
    "any": { "#import": ["base"] },
    "base": {}
  }
}`

const sniJSON = `{
  "runtimes": {
    "win-x64": {
      "Microsoft.Data.SqlClient.SNI.runtime": {
        "runtime.win-x64.Microsoft.Data.SqlClient.SNI": "2.1.1"
      }
    },
    "win": {
      "Microsoft.Data.SqlClient.SNI.runtime": {
        "runtime.win.Microsoft.Data.SqlClient.SNI": "[2.0.0, )"
      }
    }
  }
}`

func TestParseAndExpand(t *testing.T) {
	g, err := Parse([]byte(platformsJSON))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	got := g.Expand("win-x64")
	want := []string{"win-x64", "win", "any", "base"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expand(win-x64) = %v, want %v", got, want)
	}

	if got := g.Expand("linux-x64"); !reflect.DeepEqual(got, []string{"linux-x64"}) {
		t.Errorf("Expand(unknown) = %v", got)
	}
	if got := g.Expand(""); got != nil {
		t.Errorf("Expand(\"\") = %v, want nil", got)
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{`{`, `{"runtimes":{"win":{"#import":"any"}}}`, `{"runtimes":{"win":{"A":{"B":"[x"}}}}`} {
		if _, err := Parse([]byte(in)); err == nil {
			t.Errorf("Parse(%s) expected error", in)
		}
	}
}

func TestRuntimeDependencies(t *testing.T) {
	g := Merge(mustParse(t, platformsJSON), mustParse(t, sniJSON))

	deps := g.RuntimeDependencies("win-x64", "microsoft.data.sqlclient.sni.runtime")
	if len(deps) != 1 || deps[0].ID != "runtime.win-x64.Microsoft.Data.SqlClient.SNI" {
		t.Fatalf("RuntimeDependencies(win-x64) = %+v", deps)
	}
	if deps[0].Range.Min.String() != "2.1.1" {
		t.Errorf("range min = %s, want 2.1.1", deps[0].Range.Min)
	}

	// Falls back along the import chain.
	deps = g.RuntimeDependencies("win-x86", "Microsoft.Data.SqlClient.SNI.runtime")
	if len(deps) != 0 {
		t.Errorf("win-x86 is not in the graph, got %+v", deps)
	}
	g = Merge(g, Default())
	deps = g.RuntimeDependencies("win-x86", "Microsoft.Data.SqlClient.SNI.runtime")
	if len(deps) != 1 || deps[0].ID != "runtime.win.Microsoft.Data.SqlClient.SNI" {
		t.Errorf("RuntimeDependencies(win-x86) = %+v", deps)
	}

	var nilGraph *Graph
	if nilGraph.RuntimeDependencies("win", "x") != nil {
		t.Error("nil graph returned dependencies")
	}
}

func TestMergeCommutativeIdempotent(t *testing.T) {
	a := mustParse(t, platformsJSON)
	b := mustParse(t, sniJSON)
	c := Default()

	ab := Merge(a, b)
	ba := Merge(b, a)
	if !reflect.DeepEqual(ab, ba) {
		t.Errorf("Merge(a, b) != Merge(b, a)")
	}

	if !reflect.DeepEqual(Merge(a, a), Merge(a)) {
		t.Errorf("Merge(a, a) != Merge(a)")
	}

	left := Merge(Merge(a, b), c)
	right := Merge(a, Merge(b, c))
	if !reflect.DeepEqual(left, right) {
		t.Errorf("merge is not associative")
	}
}

func mustParse(t *testing.T, s string) *Graph {
	t.Helper()
	g, err := Parse([]byte(s))
	if err != nil {
		t.Fatal(err)
	}
	return g
}
