package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const props = `<Project>
  <ItemGroup>
    <PackageReference Update="Newtonsoft.Json" Version="13.0.1" />
    <PackageReference Update="Serilog" Version="2.10.0" />
    <PackageReference Update="Company.Local" Version="1.0.0-local-dev" />
    <PackageReference Update="NoVersion" />
    <PackageReference Update="newtonsoft.json" Version="13.0.1" />
    <PackageReference Update="Polly">
      <Version>7.2.2</Version>
    </PackageReference>
  </ItemGroup>
</Project>
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

var ignoreSource = cmpopts.IgnoreFields(Reference{}, "Source")

func TestParseProps(t *testing.T) {
	refs, err := Parse(strings.NewReader(props), "Update")
	if err != nil {
		t.Fatal(err)
	}
	want := []Reference{
		{ID: "Newtonsoft.Json", Version: "13.0.1"},
		{ID: "Serilog", Version: "2.10.0"},
		{ID: "Polly", Version: "7.2.2"},
	}
	if diff := cmp.Diff(want, refs, ignoreSource); diff != "" {
		t.Errorf("references mismatch (-want +got):\n%s", diff)
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse(strings.NewReader("<Project><ItemGroup>"), "Update"); err == nil {
		t.Error("expected error for truncated XML")
	}
}

func TestReadProjects(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "App", "App.csproj"), `<Project Sdk="Microsoft.NET.Sdk">
  <ItemGroup>
    <PackageReference Include="Serilog" Version="2.10.0" />
    <ProjectReference Include="..\Lib\Lib.csproj" />
  </ItemGroup>
</Project>`)
	writeFile(t, filepath.Join(dir, "src", "Lib", "Lib.csproj"), `<Project Sdk="Microsoft.NET.Sdk">
  <ItemGroup>
    <PackageReference Include="Serilog" Version="2.10.0" />
    <PackageReference Include="Dapper" Version="2.0.90" />
  </ItemGroup>
</Project>`)
	writeFile(t, filepath.Join(dir, "src", "Lib", "notes.txt"), "<PackageReference Include=\"Ignored\" Version=\"1.0\" />")

	refs, err := Read(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []Reference{
		{ID: "Serilog", Version: "2.10.0", Source: filepath.Join(dir, "src", "App", "App.csproj")},
		{ID: "Dapper", Version: "2.0.90", Source: filepath.Join(dir, "src", "Lib", "Lib.csproj")},
	}
	if diff := cmp.Diff(want, refs); diff != "" {
		t.Errorf("references mismatch (-want +got):\n%s", diff)
	}
}

func TestReadAll(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "Packages.props")
	second := filepath.Join(dir, "More.props")
	writeFile(t, first, props)
	writeFile(t, second, `<Project><ItemGroup>
  <PackageReference Update="Serilog" Version="2.10.0" />
  <PackageReference Update="Dapper" Version="2.0.90" />
</ItemGroup></Project>`)

	refs, err := ReadAll([]string{first, second})
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, r := range refs {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]string{"Newtonsoft.Json", "Serilog", "Polly", "Dapper"}, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}

	if _, err := ReadAll([]string{filepath.Join(dir, "missing.props")}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDependencies(t *testing.T) {
	deps, err := Dependencies([]Reference{
		{ID: "A", Version: "1.0"},
		{ID: "B", Version: "[2.0, 3.0)"},
	})
	if err != nil {
		t.Fatal(err)
	}
	got := []string{deps[0].Range.String(), deps[1].Range.String()}
	if diff := cmp.Diff([]string{"[1.0.0, )", "[2.0.0, 3.0.0)"}, got); diff != "" {
		t.Errorf("ranges mismatch (-want +got):\n%s", diff)
	}

	if _, err := Dependencies([]Reference{{ID: "C", Version: "not-a-version"}}); err == nil {
		t.Error("expected error for invalid version")
	}
}
