// Package nuspec reads NuGet package manifests (.nuspec files).
//
// Reference: https://learn.microsoft.com/en-us/nuget/reference/nuspec
package nuspec

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/albertocavalcante/go-nugetbzl/framework"
	"github.com/albertocavalcante/go-nugetbzl/nuget"
	"github.com/albertocavalcante/go-nugetbzl/selection/version"
)

// Extension is the manifest file extension.
const Extension = ".nuspec"

// Nuspec is the subset of the package manifest the generator uses.
type Nuspec struct {
	ID          string
	Version     version.Version
	Authors     string
	Description string

	// DependencyGroups are the framework-specific dependency groups. A
	// manifest with a flat dependency list yields one group for "any".
	DependencyGroups []nuget.PackageDependencyGroup

	// FrameworkReferenceGroups are shared-framework references
	// (Microsoft.AspNetCore.App) per target framework.
	FrameworkReferenceGroups []FrameworkReferenceGroup

	PackageTypes []nuget.PackageType
}

// FrameworkReferenceGroup lists shared frameworks referenced for one framework.
type FrameworkReferenceGroup struct {
	TargetFramework framework.Moniker
	References      []string
}

// Identity returns the package identity declared by the manifest.
func (n *Nuspec) Identity() nuget.Identity {
	return nuget.Identity{ID: n.ID, Version: n.Version}
}

// IsTool reports whether the manifest declares the DotnetTool package type.
func (n *Nuspec) IsTool() bool {
	for _, t := range n.PackageTypes {
		if strings.EqualFold(string(t), string(nuget.PackageTypeDotnetTool)) {
			return true
		}
	}
	return false
}

type xmlPackage struct {
	Metadata struct {
		ID           string `xml:"id"`
		Version      string `xml:"version"`
		Authors      string `xml:"authors"`
		Description  string `xml:"description"`
		Dependencies struct {
			Groups []xmlGroup      `xml:"group"`
			Flat   []xmlDependency `xml:"dependency"`
		} `xml:"dependencies"`
		FrameworkReferences struct {
			Groups []struct {
				TargetFramework string `xml:"targetFramework,attr"`
				References      []struct {
					Name string `xml:"name,attr"`
				} `xml:"frameworkReference"`
			} `xml:"group"`
		} `xml:"frameworkReferences"`
		PackageTypes struct {
			Types []struct {
				Name string `xml:"name,attr"`
			} `xml:"packageType"`
		} `xml:"packageTypes"`
	} `xml:"metadata"`
}

type xmlGroup struct {
	TargetFramework string          `xml:"targetFramework,attr"`
	Dependencies    []xmlDependency `xml:"dependency"`
}

type xmlDependency struct {
	ID      string `xml:"id,attr"`
	Version string `xml:"version,attr"`
}

// Parse decodes a nuspec document.
func Parse(r io.Reader) (*Nuspec, error) {
	var doc xmlPackage
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse nuspec: %w", err)
	}
	md := doc.Metadata
	if md.ID == "" {
		return nil, fmt.Errorf("parse nuspec: missing id")
	}
	v, err := version.Parse(md.Version)
	if err != nil {
		return nil, fmt.Errorf("parse nuspec %s: %w", md.ID, err)
	}

	n := &Nuspec{
		ID:          strings.TrimSpace(md.ID),
		Version:     v,
		Authors:     strings.TrimSpace(md.Authors),
		Description: strings.TrimSpace(md.Description),
	}

	for _, g := range md.Dependencies.Groups {
		fw, err := parseGroupFramework(g.TargetFramework)
		if err != nil {
			return nil, fmt.Errorf("parse nuspec %s: %w", n.ID, err)
		}
		deps, err := parseDependencies(g.Dependencies)
		if err != nil {
			return nil, fmt.Errorf("parse nuspec %s: %w", n.ID, err)
		}
		n.DependencyGroups = append(n.DependencyGroups, nuget.PackageDependencyGroup{TargetFramework: fw, Packages: deps})
	}
	if len(md.Dependencies.Groups) == 0 && len(md.Dependencies.Flat) > 0 {
		deps, err := parseDependencies(md.Dependencies.Flat)
		if err != nil {
			return nil, fmt.Errorf("parse nuspec %s: %w", n.ID, err)
		}
		n.DependencyGroups = []nuget.PackageDependencyGroup{{TargetFramework: framework.Moniker{Family: framework.Any}, Packages: deps}}
	}

	for _, g := range md.FrameworkReferences.Groups {
		fw, err := parseGroupFramework(g.TargetFramework)
		if err != nil {
			return nil, fmt.Errorf("parse nuspec %s: %w", n.ID, err)
		}
		group := FrameworkReferenceGroup{TargetFramework: fw}
		for _, ref := range g.References {
			if name := strings.TrimSpace(ref.Name); name != "" {
				group.References = append(group.References, name)
			}
		}
		n.FrameworkReferenceGroups = append(n.FrameworkReferenceGroups, group)
	}

	for _, t := range md.PackageTypes.Types {
		n.PackageTypes = append(n.PackageTypes, nuget.PackageType(t.Name))
	}
	return n, nil
}

// Load reads a nuspec from disk.
func Load(path string) (*Nuspec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

func parseGroupFramework(s string) (framework.Moniker, error) {
	if strings.TrimSpace(s) == "" {
		return framework.Moniker{Family: framework.Any}, nil
	}
	return framework.Parse(s)
}

func parseDependencies(in []xmlDependency) ([]nuget.PackageDependency, error) {
	var out []nuget.PackageDependency
	for _, d := range in {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			continue
		}
		r, err := version.ParseRange(d.Version)
		if err != nil {
			return nil, fmt.Errorf("dependency %s: %w", id, err)
		}
		out = append(out, nuget.PackageDependency{ID: id, Range: r})
	}
	return out, nil
}
