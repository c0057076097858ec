// Package nuget holds the value types shared by the resolution pipeline:
// package identities, build targets, and framework-specific groups.
package nuget

import (
	"strings"

	"github.com/albertocavalcante/go-nugetbzl/framework"
	"github.com/albertocavalcante/go-nugetbzl/selection/version"
)

// Identity identifies a package. IDs compare case-insensitively.
type Identity struct {
	ID      string
	Version version.Version
}

// Key returns the canonical "id@version" key, lowercased.
func (i Identity) Key() string {
	return strings.ToLower(i.ID) + "@" + i.Version.Folder()
}

// String returns "Id@1.0.0".
func (i Identity) String() string {
	return i.ID + "@" + i.Version.String()
}

// Equal reports whether two identities name the same package version.
func (i Identity) Equal(o Identity) bool {
	return strings.EqualFold(i.ID, o.ID) && i.Version.Equal(o.Version)
}

// Compare orders identities by ID (case-insensitive) then version.
func (i Identity) Compare(o Identity) int {
	if c := CompareIDs(i.ID, o.ID); c != 0 {
		return c
	}
	return i.Version.Compare(o.Version)
}

// CompareIDs compares package IDs case-insensitively.
func CompareIDs(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

// Target is a (framework, runtime identifier) pair. An empty RuntimeIdentifier
// means the framework-independent walk.
type Target struct {
	Framework         framework.Moniker
	RuntimeIdentifier string
}

func (t Target) String() string {
	if t.RuntimeIdentifier == "" {
		return t.Framework.String()
	}
	return t.Framework.String() + "/" + t.RuntimeIdentifier
}

// FrameworkSpecificGroup is a list of package-relative paths selected for one framework.
type FrameworkSpecificGroup struct {
	TargetFramework framework.Moniker
	Items           []string
}

// PackageDependency is one dependency edge.
type PackageDependency struct {
	ID    string
	Range version.Range

	// Label, when set, is the Bazel label the edge renders to instead of
	// the package's own target. Used for split binaries and stdlib redirects.
	Label string
}

// PackageDependencyGroup is the set of dependencies declared for one framework.
type PackageDependencyGroup struct {
	TargetFramework framework.Moniker
	Packages        []PackageDependency
}

// PackageType names a nuspec package type such as "Dependency" or "DotnetTool".
type PackageType string

const (
	PackageTypeDependency PackageType = "Dependency"
	PackageTypeDotnetTool PackageType = "DotnetTool"
)
