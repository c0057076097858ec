// Package manifest reads root package references from MSBuild files.
//
// Two sources are understood:
//
//   - a central Packages.props file, whose ItemGroup lists
//     <PackageReference Update="Id" Version="1.0.0" />
//   - a directory, searched recursively for *.csproj files, each listing
//     <PackageReference Include="Id" Version="1.0.0" />
//
// Versions ending in -local-dev refer to packages built in the same
// workspace and are skipped.
package manifest

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/albertocavalcante/go-nugetbzl/nuget"
	"github.com/albertocavalcante/go-nugetbzl/selection/version"
)

// LocalDevSuffix marks versions produced inside the workspace.
const LocalDevSuffix = "-local-dev"

// ProjectExtension is the extension of searched project files.
const ProjectExtension = ".csproj"

// Reference is one package reference as written in a project file.
type Reference struct {
	ID      string
	Version string

	// Source is the file the reference was read from.
	Source string
}

// Read returns the references of a Packages.props file, or of every
// project file below path when it is a directory.
func Read(path string) ([]Reference, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read package manifest: %w", err)
	}
	if info.IsDir() {
		return ReadProjects(path)
	}
	return ReadProps(path)
}

// ReadAll reads every path and returns the combined references with
// duplicates removed.
func ReadAll(paths []string) ([]Reference, error) {
	var all []Reference
	for _, p := range paths {
		refs, err := Read(p)
		if err != nil {
			return nil, err
		}
		all = append(all, refs...)
	}
	return Dedupe(all), nil
}

// ReadProps reads a central package versions file.
func ReadProps(path string) ([]Reference, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read package manifest: %w", err)
	}
	defer f.Close()

	refs, err := parse(f, path, "Update")
	if err != nil {
		return nil, err
	}
	return Dedupe(refs), nil
}

// ReadProjects reads the package references of every project file below dir.
func ReadProjects(dir string) ([]Reference, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ProjectExtension) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search project files: %w", err)
	}
	slices.Sort(files)

	var refs []Reference
	for _, p := range files {
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read project file: %w", err)
		}
		r, err := parse(f, p, "Include")
		f.Close()
		if err != nil {
			return nil, err
		}
		refs = append(refs, r...)
	}
	return Dedupe(refs), nil
}

// Parse reads references from r, using attr ("Update" or "Include") as the
// package ID attribute.
func Parse(r io.Reader, attr string) ([]Reference, error) {
	refs, err := parse(r, "", attr)
	if err != nil {
		return nil, err
	}
	return Dedupe(refs), nil
}

func parse(r io.Reader, source, attr string) ([]Reference, error) {
	var refs []Reference
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return refs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("invalid project file %s: %w", source, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "PackageReference" {
			continue
		}

		var id, ver string
		for _, a := range start.Attr {
			switch {
			case strings.EqualFold(a.Name.Local, attr):
				id = strings.TrimSpace(a.Value)
			case strings.EqualFold(a.Name.Local, "Version"):
				ver = strings.TrimSpace(a.Value)
			}
		}
		if ver == "" {
			// <Version> may be a child element instead of an attribute.
			var child struct {
				Version string `xml:"Version"`
			}
			if err := dec.DecodeElement(&child, &start); err != nil {
				return nil, fmt.Errorf("invalid project file %s: %w", source, err)
			}
			ver = strings.TrimSpace(child.Version)
		}
		if !included(id, ver) {
			continue
		}
		refs = append(refs, Reference{ID: id, Version: ver, Source: source})
	}
}

func included(id, ver string) bool {
	return id != "" && ver != "" && !strings.HasSuffix(strings.ToLower(ver), LocalDevSuffix)
}

// Dedupe removes references with the same ID (case-insensitive) and
// version, keeping the first occurrence.
func Dedupe(refs []Reference) []Reference {
	seen := make(map[string]bool, len(refs))
	out := make([]Reference, 0, len(refs))
	for _, r := range refs {
		key := strings.ToLower(r.ID) + "/" + r.Version
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// Dependencies converts references into root package dependencies. A plain
// version means "this version or higher".
func Dependencies(refs []Reference) ([]nuget.PackageDependency, error) {
	deps := make([]nuget.PackageDependency, 0, len(refs))
	for _, r := range refs {
		rng, err := version.ParseRange(r.Version)
		if err != nil {
			return nil, fmt.Errorf("invalid version %q for %s in %s: %w", r.Version, r.ID, r.Source, err)
		}
		deps = append(deps, nuget.PackageDependency{ID: r.ID, Range: rng})
	}
	return deps, nil
}
