package project

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/bazelbuild/buildtools/build"
	"github.com/google/go-cmp/cmp"

	"github.com/albertocavalcante/go-nugetbzl/internal/buildutil"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func parseBuild(t *testing.T, content []byte) *build.File {
	t.Helper()
	f, err := build.ParseBuild("BUILD", content)
	if err != nil {
		t.Fatalf("generated BUILD does not parse: %v\n%s", err, content)
	}
	return f
}

func newGenerator(t *testing.T, root string, opts ...Option) *Generator {
	t.Helper()
	g, err := New(root, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestBuildFile(t *testing.T) {
	d, err := Parse(strings.NewReader(webProject), "src/Web/Contoso.Web.csproj", nil)
	if err != nil {
		t.Fatal(err)
	}
	g := newGenerator(t, t.TempDir(), WithContextData("//:context_data"), WithAssemblyDeps("//stdlib:netstandard.dll"))
	content, err := g.BuildFile(d)
	if err != nil {
		t.Fatal(err)
	}
	f := parseBuild(t, content)

	rule := buildutil.FindRule(f, "core_binary", "Contoso.Web")
	if rule == nil {
		t.Fatalf("no core_binary rule:\n%s", content)
	}
	wantDeps := []string{
		"//stdlib:netstandard.dll",
		"@nuget//microsoft.netcore.app.ref",
		"@nuget//serilog",
		"@nuget//contoso.shared",
		"@nuget//microsoft.aspnetcore.app.ref",
		"//src/Core:Core",
		"//lib/Data:Contoso.Data",
	}
	if diff := cmp.Diff(wantDeps, buildutil.StringList(rule, "deps")); diff != "" {
		t.Errorf("deps mismatch (-want +got):\n%s", diff)
	}
	if got := buildutil.String(rule, "out"); got != "Contoso.Web.dll" {
		t.Errorf("out = %q", got)
	}
	if got := buildutil.String(rule, "dotnet_context_data"); got != "//:context_data" {
		t.Errorf("dotnet_context_data = %q", got)
	}
	if diff := cmp.Diff([]string{":Resources", ":Properties.Strings.resx"}, buildutil.StringList(rule, "resources")); diff != "" {
		t.Errorf("resources mismatch (-want +got):\n%s", diff)
	}
	if got := buildutil.ExtractValue(buildutil.Attr(rule, "runtime_properties")); !cmp.Equal(got, map[string]any{"System.GC.Server": "true"}) {
		t.Errorf("runtime_properties = %v", got)
	}
	if buildutil.Attr(rule, "nullable") == nil {
		t.Error("nullable not set")
	}

	resx := buildutil.FindRule(f, "core_resx", "Properties.Strings.resx")
	if resx == nil || buildutil.String(resx, "out") != "Contoso.Web.Properties.Strings.resources" {
		t.Errorf("core_resx rule missing or wrong:\n%s", content)
	}
	res := buildutil.FindRule(f, "core_resource_multi", "Resources")
	if res == nil || buildutil.String(res, "identifierBase") != "Contoso.Web" {
		t.Errorf("core_resource_multi rule missing or wrong:\n%s", content)
	}
	data := buildutil.FindRule(f, "filegroup", "Contoso.Web__data")
	if data == nil {
		t.Fatalf("no data filegroup:\n%s", content)
	}
	if _, ok := buildutil.Attr(data, "srcs").(*build.BinaryExpr); !ok {
		t.Errorf("data srcs should concatenate labels and a glob:\n%s", content)
	}

	load, ok := f.Stmt[0].(*build.LoadStmt)
	if !ok || load.Module.Value != DefaultRulesFile {
		t.Fatalf("first statement is not the rules load:\n%s", content)
	}
	var symbols []string
	for _, id := range load.To {
		symbols = append(symbols, id.Name)
	}
	if diff := cmp.Diff([]string{"core_binary", "core_resource_multi", "core_resx"}, symbols); diff != "" {
		t.Errorf("loaded symbols mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildFileTestRule(t *testing.T) {
	d := &Definition{Path: "test/Lib.Tests/Lib.Tests.csproj", Name: "Lib.Tests", Kind: Test, TestOnly: true}
	g := newGenerator(t, t.TempDir(), WithTestRulesFile("//tools:test.bzl"), WithAppend(`exports_files([name + ".dll"])`))
	content, err := g.BuildFile(d)
	if err != nil {
		t.Fatal(err)
	}
	f := parseBuild(t, content)
	var modules []string
	for _, stmt := range f.Stmt {
		if l, ok := stmt.(*build.LoadStmt); ok {
			modules = append(modules, l.Module.Value)
		}
	}
	if diff := cmp.Diff([]string{"//tools:test.bzl"}, modules); diff != "" {
		t.Errorf("loads mismatch (-want +got):\n%s", diff)
	}
	rule := buildutil.FindRule(f, "core_nunit3_test", "Lib.Tests")
	if rule == nil || buildutil.Attr(rule, "testonly") == nil {
		t.Errorf("test rule missing or not testonly:\n%s", content)
	}
	last := len(f.Stmt) - 1
	assign, ok := f.Stmt[last-1].(*build.AssignExpr)
	call, isCall := f.Stmt[last].(*build.CallExpr)
	if !ok || !isCall || buildutil.FuncName(call) != "exports_files" {
		t.Fatalf("appended content missing:\n%s", content)
	}
	if v, _ := assign.RHS.(*build.StringExpr); v == nil || v.Value != "Lib.Tests" {
		t.Errorf("name assignment = %v", assign.RHS)
	}

	if _, err := newGenerator(t, t.TempDir(), WithAppend("exports_files(")).BuildFile(d); err == nil {
		t.Error("expected error for unparsable appended content")
	}
}

func TestVisibility(t *testing.T) {
	rule := func(s string) VisibilityRule {
		r, err := ParseVisibility(s)
		if err != nil {
			t.Fatal(err)
		}
		return r
	}
	g := newGenerator(t, t.TempDir(), WithVisibility(
		rule(`src\Internal\**=//src/Internal:__subpackages__`),
		rule("src/**=//src/*:__pkg__,//tests:__pkg__"),
	))

	tests := []struct {
		path string
		want []string
	}{
		{"src/Internal/Auth/Auth.csproj", []string{"//src/Internal:__subpackages__"}},
		{"src/Api/Api.csproj", []string{"//src/Api:__pkg__", "//tests:__pkg__"}},
		{"SRC/Api/Api.csproj", []string{"//src/Api:__pkg__", "//tests:__pkg__"}},
		{"tools/Gen/Gen.csproj", []string{DefaultVisibility}},
	}
	for _, tt := range tests {
		got, err := g.visibility(tt.path)
		if err != nil {
			t.Fatalf("visibility(%s): %v", tt.path, err)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("visibility(%s) mismatch (-want +got):\n%s", tt.path, diff)
		}
	}

	deep := newGenerator(t, t.TempDir(), WithVisibility(rule("src/**=//*/*/*/*:__pkg__")))
	if _, err := deep.visibility("src/Api/Api.csproj"); err == nil {
		t.Error("expected error for more wildcards than path components")
	}

	for _, bad := range []string{"src/**", "=//a", "src="} {
		if _, err := ParseVisibility(bad); err == nil {
			t.Errorf("ParseVisibility(%q) expected error", bad)
		}
	}
}

func TestGenerate(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"src/App/App.csproj": `<Project><PropertyGroup><OutputType>Exe</OutputType></PropertyGroup>
<ItemGroup><ProjectReference Include="..\Lib\Lib.csproj" /></ItemGroup></Project>`,
		"src/Lib/Lib.csproj":             `<Project><ItemGroup><PackageReference Include="Serilog" /></ItemGroup></Project>`,
		"src/Contracts/Contracts.csproj": `<Project><PropertyGroup><TargetFramework>netstandard2.0</TargetFramework></PropertyGroup></Project>`,
		"bazel-out/x/Ignored.csproj":     `<Project />`,
	})

	g := newGenerator(t, root, WithRepository("packages"), WithExports(".exports"))
	res, err := g.Generate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{".exports", "src/App/BUILD", "src/Lib/BUILD"}, slices.Sorted(slices.Values(res.Written))); diff != "" {
		t.Errorf("Written mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"src/Contracts/Contracts.csproj"}, res.Skipped); diff != "" {
		t.Errorf("Skipped mismatch (-want +got):\n%s", diff)
	}

	exports, err := os.ReadFile(filepath.Join(root, ".exports"))
	if err != nil {
		t.Fatal(err)
	}
	if string(exports) != "App=//src/App:App\nLib=//src/Lib:Lib\n" {
		t.Errorf("exports = %q", exports)
	}
	lib, err := os.ReadFile(filepath.Join(root, "src", "Lib", "BUILD"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(lib), `"@packages//serilog"`) {
		t.Errorf("Lib BUILD:\n%s", lib)
	}

	// A second run rewrites nothing.
	res, err = g.Generate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Written) != 0 || len(res.Unchanged) != 3 {
		t.Errorf("second run: written %v, unchanged %v", res.Written, res.Unchanged)
	}

	// A new package reference is reported as a changed target.
	writeFiles(t, root, map[string]string{
		"src/Lib/Lib.csproj": `<Project><ItemGroup><PackageReference Include="Serilog" /><PackageReference Include="Polly" /></ItemGroup></Project>`,
	})
	res, err = g.Generate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Changes) != 1 || res.Changes[0].Target != "Lib" {
		t.Fatalf("Changes = %+v", res.Changes)
	}
	if diff := cmp.Diff([]string{"@packages//polly"}, res.Changes[0].AddedDeps); diff != "" {
		t.Errorf("AddedDeps mismatch (-want +got):\n%s", diff)
	}
}

func TestDiscoverSearch(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"src/A/A.csproj":   "<Project />",
		"tools/B/B.csproj": "<Project />",
		"docs/readme.md":   "",
	})
	g := newGenerator(t, root, WithSearch("src", "missing", `src\A`))
	files, err := g.Discover()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"src/A/A.csproj"}, files); diff != "" {
		t.Errorf("Discover mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateSharedFolder(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"src/A.csproj": "<Project />",
		"src/B.csproj": "<Project />",
	})
	if _, err := newGenerator(t, root).Generate(context.Background()); err == nil {
		t.Error("expected error for two projects in one folder")
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty root")
	}
	if _, err := New(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing root")
	}
}
