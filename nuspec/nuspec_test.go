package nuspec

import (
	"strings"
	"testing"

	"github.com/albertocavalcante/go-nugetbzl/framework"
)

const grouped = `<?xml version="1.0" encoding="utf-8"?>
<package xmlns="http://schemas.microsoft.com/packaging/2013/05/nuspec.xsd">
  <metadata>
    <id>Microsoft.Extensions.Logging</id>
    <version>3.1.0</version>
    <authors>Microsoft</authors>
    <dependencies>
      <group targetFramework=".NETCoreApp3.1">
        <dependency id="Microsoft.Extensions.Options" version="3.1.0" exclude="Build,Analyzers" />
      </group>
      <group targetFramework=".NETStandard2.0">
        <dependency id="Microsoft.Extensions.Options" version="[3.1.0, )" />
        <dependency id="NETStandard.Library" version="2.0.3" />
      </group>
      <group targetFramework="net461" />
    </dependencies>
    <frameworkReferences>
      <group targetFramework="netcoreapp3.1">
        <frameworkReference name="Microsoft.AspNetCore.App" />
      </group>
    </frameworkReferences>
    <packageTypes>
      <packageType name="Dependency" />
    </packageTypes>
  </metadata>
</package>`

const flat = `<package><metadata>
  <id>Old.Package</id><version>1.0</version>
  <dependencies><dependency id="A" version="1.0" /><dependency id="B" /></dependencies>
</metadata></package>`

func TestParseGrouped(t *testing.T) {
	n, err := Parse(strings.NewReader(grouped))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if n.ID != "Microsoft.Extensions.Logging" || n.Version.String() != "3.1.0" {
		t.Errorf("identity = %s", n.Identity())
	}
	if len(n.DependencyGroups) != 3 {
		t.Fatalf("got %d dependency groups, want 3", len(n.DependencyGroups))
	}

	g := n.DependencyGroups[0]
	if g.TargetFramework != framework.MustParse("netcoreapp3.1") {
		t.Errorf("group[0] framework = %s", g.TargetFramework)
	}
	if len(g.Packages) != 1 || g.Packages[0].Range.String() != "[3.1.0, )" {
		t.Errorf("group[0] packages = %+v", g.Packages)
	}
	if len(n.DependencyGroups[1].Packages) != 2 {
		t.Errorf("group[1] packages = %+v", n.DependencyGroups[1].Packages)
	}
	if len(n.DependencyGroups[2].Packages) != 0 {
		t.Errorf("empty group has packages: %+v", n.DependencyGroups[2].Packages)
	}

	if len(n.FrameworkReferenceGroups) != 1 || n.FrameworkReferenceGroups[0].References[0] != "Microsoft.AspNetCore.App" {
		t.Errorf("framework references = %+v", n.FrameworkReferenceGroups)
	}
	if n.IsTool() {
		t.Error("IsTool() = true for a dependency package")
	}
}

func TestParseFlat(t *testing.T) {
	n, err := Parse(strings.NewReader(flat))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(n.DependencyGroups) != 1 {
		t.Fatalf("got %d groups, want 1", len(n.DependencyGroups))
	}
	g := n.DependencyGroups[0]
	if g.TargetFramework.Family != framework.Any {
		t.Errorf("flat group framework = %s, want any", g.TargetFramework)
	}
	if len(g.Packages) != 2 || g.Packages[1].Range.Min != nil {
		t.Errorf("flat packages = %+v", g.Packages)
	}
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"missing id":    `<package><metadata><version>1.0</version></metadata></package>`,
		"bad version":   `<package><metadata><id>A</id><version>x</version></metadata></package>`,
		"bad range":     `<package><metadata><id>A</id><version>1.0</version><dependencies><dependency id="B" version="[1.0" /></dependencies></metadata></package>`,
		"malformed xml": `<package><metadata>`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
