package render

import (
	"strings"
	"testing"

	"github.com/bazelbuild/buildtools/build"
	"github.com/google/go-cmp/cmp"

	"github.com/albertocavalcante/go-nugetbzl/entry"
	"github.com/albertocavalcante/go-nugetbzl/framework"
	"github.com/albertocavalcante/go-nugetbzl/internal/buildutil"
	"github.com/albertocavalcante/go-nugetbzl/label"
	"github.com/albertocavalcante/go-nugetbzl/nuget"
	"github.com/albertocavalcante/go-nugetbzl/selection/version"
)

var (
	net6 = framework.MustParse("net6.0")
	net8 = framework.MustParse("net8.0")
)

func group(fw framework.Moniker, items ...string) nuget.FrameworkSpecificGroup {
	return nuget.FrameworkSpecificGroup{TargetFramework: fw, Items: items}
}

func newEntry(id, ver string) *entry.Entry {
	return &entry.Entry{
		Identity: nuget.Identity{ID: id, Version: version.MustParse(ver)},
		Name:     id,
		Kind:     entry.KindPackage,
	}
}

func parse(t *testing.T, content []byte) *build.File {
	t.Helper()
	f, err := build.ParseBuild("BUILD", content)
	if err != nil {
		t.Fatalf("output does not parse: %v\n%s", err, content)
	}
	return f
}

func rule(t *testing.T, f *build.File, kind, name string) *build.CallExpr {
	t.Helper()
	call := buildutil.FindRule(f, kind, name)
	if call == nil {
		t.Fatalf("no %s(name = %q) in:\n%s", kind, name, build.Format(f))
	}
	return call
}

func TestRootBuild(t *testing.T) {
	r := New([]framework.Moniker{net6, net8})
	f := parse(t, r.RootBuild())

	flag := rule(t, f, "string_flag", "framework")
	if diff := cmp.Diff([]string{"net6.0", "net8.0"}, buildutil.StringList(flag, "values")); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
	if got := buildutil.String(flag, "build_setting_default"); got != "net6.0" {
		t.Errorf("build_setting_default = %q", got)
	}
	cs := rule(t, f, "config_setting", "frameworks-net8.0")
	want := map[string]any{":framework": "net8.0"}
	if diff := cmp.Diff(want, buildutil.ExtractValue(buildutil.Attr(cs, "flag_values"))); diff != "" {
		t.Errorf("flag_values mismatch (-want +got):\n%s", diff)
	}
	if len(f.Stmt) < 1 {
		t.Fatal("empty root BUILD")
	}
	if _, ok := f.Stmt[0].(*build.LoadStmt); !ok {
		t.Errorf("first statement = %T, want load", f.Stmt[0])
	}
}

func TestPackageBuildSingleVersion(t *testing.T) {
	e := newEntry("Newtonsoft.Json", "13.0.1")
	e.Files = []string{"lib/net6.0/Newtonsoft.Json.dll", "lib/net6.0/Newtonsoft.Json.xml", "tools/install.ps1", "rules.ruleset"}
	e.Runtime = []nuget.FrameworkSpecificGroup{group(net6, "lib/net6.0/Newtonsoft.Json.dll")}
	e.Refs = []nuget.FrameworkSpecificGroup{group(net6, "lib/net6.0/Newtonsoft.Json.dll")}
	e.ContentFiles = []nuget.FrameworkSpecificGroup{group(net6, "contentFiles/any/any/readme.txt")}
	e.Analyzers = []nuget.FrameworkSpecificGroup{group(net6, "analyzers/dotnet/cs/Json.Analyzers.dll")}
	e.Dependencies = []nuget.PackageDependencyGroup{{TargetFramework: net6, Packages: []nuget.PackageDependency{
		{ID: "System.Memory"},
		{ID: "NETStandard.Library"},
		{ID: "System.Runtime", Label: "@net_stdlib//:system.runtime"},
	}}}

	r := New([]framework.Moniker{net6})
	f := parse(t, r.PackageBuild([]*entry.Entry{e}))

	exports := buildutil.ExtractValue(rule(t, f, "exports_files", "").List[0])
	wantExports := []any{"contentfiles.txt", "current/lib/net6.0/Newtonsoft.Json.dll", "current/rules.ruleset"}
	if diff := cmp.Diff(wantExports, exports); diff != "" {
		t.Errorf("exports mismatch (-want +got):\n%s", diff)
	}

	content := rule(t, f, "filegroup", "content_files")
	if diff := cmp.Diff([]string{"13.0.1/contentFiles/any/any/readme.txt"}, buildutil.StringList(content, "srcs")); diff != "" {
		t.Errorf("content srcs mismatch (-want +got):\n%s", diff)
	}

	lib := rule(t, f, "core_import_library", "newtonsoft.json")
	checks := map[string][]string{
		"libs":      {"13.0.1/lib/net6.0/Newtonsoft.Json.dll"},
		"refs":      {"13.0.1/lib/net6.0/Newtonsoft.Json.dll"},
		"analyzers": {"13.0.1/analyzers/dotnet/cs/Json.Analyzers.dll"},
		"deps":      {"//system.memory", "@net_stdlib//:system.runtime"},
		"data":      {":content_files"},
	}
	for attr, want := range checks {
		if diff := cmp.Diff(want, buildutil.StringList(lib, attr)); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", attr, diff)
		}
	}
	if got := buildutil.String(lib, "version"); got != "13.0.1" {
		t.Errorf("version = %q", got)
	}
	if buildutil.FindRule(f, "config_setting", debugSetting) != nil {
		t.Error("unexpected debug config_setting")
	}

	manifest := string(ContentFiles(e))
	if manifest != "current/contentFiles/any/any/readme.txt\n" {
		t.Errorf("content manifest = %q", manifest)
	}
}

func TestFrameworkSelect(t *testing.T) {
	tests := []struct {
		name   string
		groups []nuget.FrameworkSpecificGroup
		want   any
	}{
		{name: "no groups", want: []any{}},
		{
			name:   "identical groups",
			groups: []nuget.FrameworkSpecificGroup{group(net6, "lib/netstandard2.0/A.dll"), group(net8, "lib/netstandard2.0/A.dll")},
			want:   []any{"1.0.0/lib/netstandard2.0/A.dll"},
		},
		{
			name:   "different groups",
			groups: []nuget.FrameworkSpecificGroup{group(net6, "lib/net6.0/A.dll"), group(net8, "lib/net8.0/A.dll")},
			want: map[string]any{"select": map[string]any{
				"//:frameworks-net8.0":     []any{"1.0.0/lib/net8.0/A.dll"},
				buildutil.DefaultCondition: []any{"1.0.0/lib/net6.0/A.dll"},
			}},
		},
		{
			name:   "one framework only",
			groups: []nuget.FrameworkSpecificGroup{group(net8, "lib/net8.0/A.dll")},
			want: map[string]any{"select": map[string]any{
				"//:frameworks-net6.0":     []any{},
				buildutil.DefaultCondition: []any{"1.0.0/lib/net8.0/A.dll"},
			}},
		},
	}
	r := New([]framework.Moniker{net6, net8})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEntry("A", "1.0.0")
			e.Runtime = tt.groups
			f := parse(t, r.PackageBuild([]*entry.Entry{e}))
			lib := rule(t, f, "core_import_library", "a")
			if diff := cmp.Diff(tt.want, buildutil.ExtractValue(buildutil.Attr(lib, "libs"))); diff != "" {
				t.Errorf("libs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDebugRuntimeSelect(t *testing.T) {
	e := newEntry("A", "1.0.0")
	e.Runtime = []nuget.FrameworkSpecificGroup{group(net6, "lib/net6.0/A.dll")}
	e.DebugRuntime = []nuget.FrameworkSpecificGroup{group(net6, "netcoreappdebug/net6.0/A.dll")}

	f := parse(t, New([]framework.Moniker{net6}).PackageBuild([]*entry.Entry{e}))
	cs := rule(t, f, "config_setting", debugSetting)
	if diff := cmp.Diff(map[string]any{"compilation_mode": "dbg"}, buildutil.ExtractValue(buildutil.Attr(cs, "values"))); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
	want := map[string]any{"select": map[string]any{
		":compilation_mode_dbg":    []any{"1.0.0/netcoreappdebug/net6.0/A.dll"},
		buildutil.DefaultCondition: []any{"1.0.0/lib/net6.0/A.dll"},
	}}
	lib := rule(t, f, "core_import_library", "a")
	if diff := cmp.Diff(want, buildutil.ExtractValue(buildutil.Attr(lib, "libs"))); diff != "" {
		t.Errorf("libs mismatch (-want +got):\n%s", diff)
	}
}

func TestImportAlias(t *testing.T) {
	imports, err := label.ParseImports([]string{"@backend//src/Cqrs:Afas.Cqrs==@platform//:use_local_backend"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	e := newEntry("Afas.Cqrs", "2.0.0")
	e.Runtime = []nuget.FrameworkSpecificGroup{group(net6, "lib/net6.0/Afas.Cqrs.dll")}

	f := parse(t, New([]framework.Moniker{net6}, WithImports(imports)).PackageBuild([]*entry.Entry{e}))
	alias := rule(t, f, "alias", "afas.cqrs")
	want := map[string]any{"select": map[string]any{
		"@platform//:use_local_backend": "@backend//src/Cqrs:Afas.Cqrs",
		buildutil.DefaultCondition:      ":afas.cqrs__nuget",
	}}
	if diff := cmp.Diff(want, buildutil.ExtractValue(buildutil.Attr(alias, "actual"))); diff != "" {
		t.Errorf("actual mismatch (-want +got):\n%s", diff)
	}
	rule(t, f, "core_import_library", "afas.cqrs__nuget")
}

func TestMultipleVersions(t *testing.T) {
	older := newEntry("A", "1.0.0")
	older.Runtime = []nuget.FrameworkSpecificGroup{group(net6, "lib/net6.0/A.dll")}
	newer := newEntry("A", "2.0.0")
	newer.Runtime = []nuget.FrameworkSpecificGroup{group(net6, "lib/net6.0/A.dll")}

	r := New([]framework.Moniker{net6})
	f := parse(t, r.PackageBuild([]*entry.Entry{newer, older}))
	if buildutil.FindRule(f, "exports_files", "") != nil {
		t.Error("multi-version package must not export files")
	}
	if got := buildutil.String(rule(t, f, "core_import_library", "a"), "version"); got != "2.0.0" {
		t.Errorf("plain target version = %q, want 2.0.0", got)
	}
	lib := rule(t, f, "core_import_library", "a__1.0.0")
	if diff := cmp.Diff([]string{":content_files__1.0.0"}, buildutil.StringList(lib, "data")); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}

	files := r.Render([]*entry.Entry{newer, older})
	for _, file := range files {
		if strings.HasSuffix(file.Path, ContentFilesManifest) {
			t.Errorf("unexpected %s for multi-version package", file.Path)
		}
	}
}

func TestRenderSplitAndPack(t *testing.T) {
	lib := newEntry("A", "1.0.0")
	lib.Runtime = []nuget.FrameworkSpecificGroup{group(net6, "lib/net6.0/A.dll")}
	lib.Dependencies = []nuget.PackageDependencyGroup{{TargetFramework: net6, Packages: []nuget.PackageDependency{
		{ID: "B", Label: entry.BinaryLabel("A", "B")},
	}}}
	split := newEntry("A", "1.0.0")
	split.Name = "B"
	split.Kind = entry.KindBinary
	split.Runtime = []nuget.FrameworkSpecificGroup{group(net6, "lib/net6.0/B.dll")}

	pack := newEntry("Microsoft.NETCore.App.Ref", "6.0.0")
	pack.Kind = entry.KindFrameworkPack
	pack.Refs = []nuget.FrameworkSpecificGroup{group(net6, "ref/net6.0/System.Runtime.dll")}
	pack.Dependencies = []nuget.PackageDependencyGroup{{TargetFramework: net6, Packages: []nuget.PackageDependency{{ID: "System.Memory"}}}}

	ref := "//microsoft.netcore.app.ref:current/ref/net6.0/System.Runtime.dll"
	overridden := newEntry("System.Runtime", "4.3.0").WithOverride(&ref, net6)

	files := New([]framework.Moniker{net6}).Render([]*entry.Entry{pack, lib, split, overridden})
	var paths []string
	byPath := map[string][]byte{}
	for _, file := range files {
		paths = append(paths, file.Path)
		byPath[file.Path] = file.Content
	}
	want := []string{
		"BUILD",
		"a/BUILD", "a/contentfiles.txt",
		"microsoft.netcore.app.ref/BUILD", "microsoft.netcore.app.ref/contentfiles.txt",
		"system.runtime/BUILD", "system.runtime/contentfiles.txt",
	}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}

	a := parse(t, byPath["a/BUILD"])
	if diff := cmp.Diff([]string{"//a:b"}, buildutil.StringList(rule(t, a, "core_import_library", "a"), "deps")); diff != "" {
		t.Errorf("main deps mismatch (-want +got):\n%s", diff)
	}
	b := rule(t, a, "core_import_library", "b")
	if diff := cmp.Diff([]string{"1.0.0/lib/net6.0/B.dll"}, buildutil.StringList(b, "libs")); diff != "" {
		t.Errorf("split libs mismatch (-want +got):\n%s", diff)
	}
	if len(buildutil.StringList(b, "data")) != 0 {
		t.Error("split target has data")
	}

	p := parse(t, byPath["microsoft.netcore.app.ref/BUILD"])
	packLib := rule(t, p, "core_import_library", "microsoft.netcore.app.ref")
	if diff := cmp.Diff([]string{"6.0.0/ref/net6.0/System.Runtime.dll"}, buildutil.StringList(packLib, "refs")); diff != "" {
		t.Errorf("pack refs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"//system.memory"}, buildutil.StringList(packLib, "deps")); diff != "" {
		t.Errorf("pack deps mismatch (-want +got):\n%s", diff)
	}

	s := parse(t, byPath["system.runtime/BUILD"])
	srLib := rule(t, s, "core_import_library", "system.runtime")
	if diff := cmp.Diff([]string{"//microsoft.netcore.app.ref:current/ref/net6.0/System.Runtime.dll"}, buildutil.StringList(srLib, "refs")); diff != "" {
		t.Errorf("override refs mismatch (-want +got):\n%s", diff)
	}
	if len(buildutil.StringList(srLib, "libs")) != 0 {
		t.Error("overridden package still has libs")
	}
}

func TestRenderDeterministic(t *testing.T) {
	e := newEntry("A", "1.0.0")
	e.Runtime = []nuget.FrameworkSpecificGroup{group(net6, "lib/net6.0/A.dll"), group(net8, "lib/net8.0/A.dll")}
	e.Dependencies = []nuget.PackageDependencyGroup{
		{TargetFramework: net6, Packages: []nuget.PackageDependency{{ID: "B"}, {ID: "C"}}},
		{TargetFramework: net8, Packages: []nuget.PackageDependency{{ID: "B"}}},
	}
	r := New([]framework.Moniker{net6, net8})
	first := r.Render([]*entry.Entry{e})
	second := r.Render([]*entry.Entry{e})
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("rendering is not deterministic:\n%s", diff)
	}
}
