package content

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/albertocavalcante/go-nugetbzl/framework"
	"github.com/albertocavalcante/go-nugetbzl/nuget"
	"github.com/albertocavalcante/go-nugetbzl/nuspec"
	"github.com/albertocavalcante/go-nugetbzl/sdk"
	"github.com/albertocavalcante/go-nugetbzl/selection/version"
	"github.com/albertocavalcante/go-nugetbzl/store"
)

func localPackage(id string, files []string, spec *nuspec.Nuspec) *store.LocalPackage {
	ident := nuget.Identity{ID: id, Version: version.MustParse("1.0.0")}
	if spec == nil {
		spec = &nuspec.Nuspec{ID: id, Version: ident.Version}
	}
	return &store.LocalPackage{Identity: ident, ExpandedPath: "/store/" + id, Files: files, Nuspec: spec}
}

func target(fw string) nuget.Target {
	return nuget.Target{Framework: framework.MustParse(fw)}
}

func dep(id string) nuget.PackageDependency {
	return nuget.PackageDependency{ID: id, Range: version.MustParseRange("1.0.0")}
}

func items(groups []nuget.FrameworkSpecificGroup) [][]string {
	out := make([][]string, len(groups))
	for i, g := range groups {
		out[i] = g.Items
	}
	return out
}

func ids(deps []nuget.PackageDependency) []string {
	out := make([]string, len(deps))
	for i, d := range deps {
		out[i] = d.ID
	}
	return out
}

func TestSelectRefsAndRuntime(t *testing.T) {
	tests := []struct {
		name        string
		files       []string
		target      nuget.Target
		wantRefs    [][]string
		wantRuntime [][]string
	}{
		{
			name:        "ref beats lib for compile",
			files:       []string{"lib/netstandard2.0/A.dll", "ref/netstandard2.0/A.dll"},
			target:      target("netcoreapp3.1"),
			wantRefs:    [][]string{{"ref/netstandard2.0/A.dll"}},
			wantRuntime: [][]string{{"lib/netstandard2.0/A.dll"}},
		},
		{
			name:        "build ref before lib",
			files:       []string{"build/netstandard2.0/ref/A.dll", "lib/netstandard2.0/A.dll"},
			target:      target("net6.0"),
			wantRefs:    [][]string{{"build/netstandard2.0/ref/A.dll"}},
			wantRuntime: [][]string{{"lib/netstandard2.0/A.dll"}},
		},
		{
			name:        "placeholder group wins but emits nothing",
			files:       []string{"lib/net45/_._", "lib/netstandard2.0/A.dll"},
			target:      target("net472"),
			wantRefs:    [][]string{{}},
			wantRuntime: [][]string{{}},
		},
		{
			name:        "runtime specific lib",
			files:       []string{"lib/netstandard2.0/A.dll", "runtimes/win/lib/netstandard2.0/A.dll"},
			target:      nuget.Target{Framework: framework.MustParse("net6.0"), RuntimeIdentifier: "win-x64"},
			wantRefs:    [][]string{{"lib/netstandard2.0/A.dll"}},
			wantRuntime: [][]string{{"runtimes/win/lib/netstandard2.0/A.dll"}},
		},
		{
			name:        "native filtered to dll",
			files:       []string{"runtimes/win-x64/native/e_sqlite3.dll", "runtimes/win-x64/native/e_sqlite3.pdb"},
			target:      nuget.Target{Framework: framework.MustParse("net6.0"), RuntimeIdentifier: "win-x64"},
			wantRefs:    [][]string{},
			wantRuntime: [][]string{{"runtimes/win-x64/native/e_sqlite3.dll"}},
		},
		{
			name:        "build assemblies",
			files:       []string{"build/net6.0/Adapter.dll", "build/net6.0/Adapter.props"},
			target:      target("net6.0"),
			wantRefs:    [][]string{},
			wantRuntime: [][]string{{"build/net6.0/Adapter.dll"}},
		},
		{
			name:        "no matching group contributes nothing",
			files:       []string{"lib/net48/A.dll"},
			target:      target("netcoreapp3.1"),
			wantRefs:    [][]string{},
			wantRuntime: [][]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := NewSelector().Select(localPackage("A", tt.files, nil), []nuget.Target{tt.target})
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.wantRefs, items(sel.Refs)); diff != "" {
				t.Errorf("Refs (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantRuntime, items(sel.Runtime)); diff != "" {
				t.Errorf("Runtime (-want +got):\n%s", diff)
			}
			for _, g := range append(sel.Refs, sel.Runtime...) {
				if g.TargetFramework != tt.target.Framework {
					t.Errorf("group framework = %v, want %v", g.TargetFramework, tt.target.Framework)
				}
			}
		})
	}
}

func TestSelectOtherCategories(t *testing.T) {
	files := []string{
		"analyzers/dotnet/cs/A.Analyzers.dll",
		"contentFiles/any/any/config.json",
		"lib/net6.0/A.dll",
		"netcoreappdebug/net6.0/A.dll",
		"netcoreappdebug/net6.0/A.pdb",
		"tools/net6.0/any/a-tool.dll",
	}
	sel, err := NewSelector().Select(localPackage("A", files, nil), []nuget.Target{target("net6.0")})
	if err != nil {
		t.Fatal(err)
	}
	checks := map[string]struct {
		got  [][]string
		want [][]string
	}{
		"analyzers": {items(sel.Analyzers), [][]string{{"analyzers/dotnet/cs/A.Analyzers.dll"}}},
		"content":   {items(sel.ContentFiles), [][]string{{"contentFiles/any/any/config.json"}}},
		"debug":     {items(sel.DebugRuntime), [][]string{{"netcoreappdebug/net6.0/A.dll"}}},
		"tools":     {items(sel.Tools), [][]string{{"tools/net6.0/any/a-tool.dll"}}},
	}
	for name, c := range checks {
		if diff := cmp.Diff(c.want, c.got); diff != "" {
			t.Errorf("%s (-want +got):\n%s", name, diff)
		}
	}
	if !sel.HasRuntime() || !sel.HasAnalyzers() {
		t.Error("HasRuntime/HasAnalyzers = false")
	}
}

func TestSelectAmbiguousDebug(t *testing.T) {
	files := []string{"netcoreappdebug/netcoreapp3.0/A.dll", "netcoreappdebug/netcoreapp3.1/A.dll"}
	pkg := localPackage("A", files, nil)
	targets := []nuget.Target{target("net6.0")}

	_, err := NewSelector().Select(pkg, targets)
	var ambiguous *AmbiguousCategoryError
	if !errors.As(err, &ambiguous) || !errors.Is(err, ErrAmbiguousCategory) {
		t.Fatalf("Select() error = %v, want AmbiguousCategoryError", err)
	}
	if len(ambiguous.Groups) != 2 {
		t.Errorf("Groups = %v", ambiguous.Groups)
	}

	sel, err := NewSelector(WithFirstMatchFallback(true)).Select(pkg, targets)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([][]string{{"netcoreappdebug/netcoreapp3.1/A.dll"}}, items(sel.DebugRuntime)); diff != "" {
		t.Errorf("fallback DebugRuntime (-want +got):\n%s", diff)
	}
}

func TestSelectNearestDependencyGroup(t *testing.T) {
	spec := &nuspec.Nuspec{
		DependencyGroups: []nuget.PackageDependencyGroup{
			{TargetFramework: framework.MustParse("net45"), Packages: []nuget.PackageDependency{dep("Old")}},
			{TargetFramework: framework.MustParse("net461"), Packages: []nuget.PackageDependency{dep("New")}},
		},
	}
	pkg := localPackage("A", []string{"lib/net45/A.dll"}, spec)

	sel, err := NewSelector().Select(pkg, []nuget.Target{target("net461")})
	if err != nil {
		t.Fatal(err)
	}
	got, ok := sel.DependenciesFor(framework.MustParse("net461"))
	if !ok {
		t.Fatal("no dependency group for net461")
	}
	if diff := cmp.Diff([]string{"New"}, ids(got)); diff != "" {
		t.Errorf("deps (-want +got):\n%s", diff)
	}

	sel, _ = NewSelector().Select(pkg, []nuget.Target{target("net40")})
	if len(sel.Dependencies) != 0 {
		t.Errorf("incompatible target should have no edges, got %+v", sel.Dependencies)
	}
}

func TestSelectEdgeFiltering(t *testing.T) {
	spec := &nuspec.Nuspec{
		DependencyGroups: []nuget.PackageDependencyGroup{{
			TargetFramework: framework.MustParse("netstandard2.0"),
			Packages: []nuget.PackageDependency{
				dep("NETStandard.Library"),
				dep("System.Runtime"),
				dep("Newtonsoft.Json"),
			},
		}},
		FrameworkReferenceGroups: []nuspec.FrameworkReferenceGroup{{
			TargetFramework: framework.MustParse("netcoreapp3.1"),
			References:      []string{"Microsoft.AspNetCore.App", "Some.Unknown.App"},
		}},
	}
	pkg := localPackage("A", []string{"lib/netstandard2.0/A.dll"}, spec)
	selector := NewSelector(WithSDK(sdk.Default()))

	sel, err := selector.Select(pkg, []nuget.Target{target("netcoreapp3.1"), target("net472")})
	if err != nil {
		t.Fatal(err)
	}

	core, _ := sel.DependenciesFor(framework.MustParse("netcoreapp3.1"))
	if diff := cmp.Diff([]string{"Microsoft.AspNetCore.App.Ref", "Newtonsoft.Json"}, ids(core)); diff != "" {
		t.Errorf("netcoreapp3.1 deps (-want +got):\n%s", diff)
	}

	netfx, _ := sel.DependenciesFor(framework.MustParse("net472"))
	if diff := cmp.Diff([]string{"System.Runtime", "Newtonsoft.Json"}, ids(netfx)); diff != "" {
		t.Errorf("net472 deps (-want +got):\n%s", diff)
	}
	if netfx[0].Label != "@net_stdlib//:system.runtime" {
		t.Errorf("redirect label = %q", netfx[0].Label)
	}
	if netfx[1].Label != "" {
		t.Errorf("ordinary edge label = %q", netfx[1].Label)
	}
}

func TestSelectDuplicateFrameworks(t *testing.T) {
	pkg := localPackage("A", []string{"lib/net6.0/A.dll", "runtimes/linux-x64/lib/net6.0/A.dll"}, nil)
	sel, err := NewSelector().Select(pkg, []nuget.Target{
		{Framework: framework.MustParse("net6.0"), RuntimeIdentifier: "linux-x64"},
		target("net6.0"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([][]string{{"runtimes/linux-x64/lib/net6.0/A.dll"}}, items(sel.Runtime)); diff != "" {
		t.Errorf("Runtime (-want +got):\n%s", diff)
	}
}
