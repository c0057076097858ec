// Package feedtest provides an in-memory package feed for tests.
package feedtest

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/albertocavalcante/go-nugetbzl/registry"
	"github.com/albertocavalcante/go-nugetbzl/selection/version"
)

// Compile-time interface compliance check
var _ registry.Feed = (*Feed)(nil)

// Package describes one package version served by a Feed.
type Package struct {
	ID      string
	Version string

	// Dependencies maps a target framework ("" for a flat list) to
	// "id range" pairs.
	Dependencies map[string][]string

	// FrameworkReferences maps a target framework to shared framework names.
	FrameworkReferences map[string][]string

	// Files maps package-relative paths to content.
	Files map[string]string
}

// Feed is a thread-safe in-memory registry.Feed.
type Feed struct {
	mu       sync.RWMutex
	packages map[string]map[string]*Package

	// call counters
	listCalls   atomic.Int32
	nuspecCalls atomic.Int32
	openCalls   atomic.Int32
}

// New returns a feed serving pkgs.
func New(pkgs ...Package) *Feed {
	f := &Feed{packages: make(map[string]map[string]*Package)}
	for _, p := range pkgs {
		f.Add(p)
	}
	return f
}

// Add registers a package version.
func (f *Feed) Add(p Package) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToLower(p.ID)
	if f.packages[key] == nil {
		f.packages[key] = make(map[string]*Package)
	}
	v := version.MustParse(p.Version)
	f.packages[key][v.Folder()] = &p
}

// Source implements registry.Feed.
func (f *Feed) Source() string { return "memory://feedtest" }

// ListVersions implements registry.Feed.
func (f *Feed) ListVersions(_ context.Context, id string) ([]version.Version, error) {
	f.listCalls.Add(1)
	f.mu.RLock()
	defer f.mu.RUnlock()
	versions, ok := f.packages[strings.ToLower(id)]
	if !ok {
		return nil, &registry.FeedError{StatusCode: 404, PackageID: id, URL: f.Source()}
	}
	out := make([]version.Version, 0, len(versions))
	for _, p := range versions {
		out = append(out, version.MustParse(p.Version))
	}
	version.Sort(out)
	return out, nil
}

// GetNuspec implements registry.Feed.
func (f *Feed) GetNuspec(_ context.Context, id string, v version.Version) ([]byte, error) {
	f.nuspecCalls.Add(1)
	p, err := f.lookup(id, v)
	if err != nil {
		return nil, err
	}
	return []byte(Nuspec(p)), nil
}

// OpenPackage implements registry.Feed.
func (f *Feed) OpenPackage(_ context.Context, id string, v version.Version) (io.ReadCloser, error) {
	f.openCalls.Add(1)
	p, err := f.lookup(id, v)
	if err != nil {
		return nil, err
	}
	data, err := Archive(p)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// NuspecCalls returns the number of GetNuspec calls served.
func (f *Feed) NuspecCalls() int { return int(f.nuspecCalls.Load()) }

// ListCalls returns the number of ListVersions calls served.
func (f *Feed) ListCalls() int { return int(f.listCalls.Load()) }

// OpenCalls returns the number of OpenPackage calls served.
func (f *Feed) OpenCalls() int { return int(f.openCalls.Load()) }

func (f *Feed) lookup(id string, v version.Version) (*Package, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.packages[strings.ToLower(id)][v.Folder()]
	if !ok {
		return nil, &registry.FeedError{StatusCode: 404, PackageID: id, Version: v.String(), URL: f.Source()}
	}
	return p, nil
}

// Nuspec renders the manifest of p.
func Nuspec(p *Package) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="utf-8"?>
<package xmlns="http://schemas.microsoft.com/packaging/2013/05/nuspec.xsd">
  <metadata>
    <id>%s</id>
    <version>%s</version>
    <authors>feedtest</authors>
    <description>%s test package</description>
`, p.ID, p.Version, p.ID)

	if len(p.Dependencies) > 0 {
		b.WriteString("    <dependencies>\n")
		for _, fw := range sortedKeys(p.Dependencies) {
			if fw == "" {
				for _, d := range p.Dependencies[fw] {
					writeDependency(&b, "      ", d)
				}
				continue
			}
			fmt.Fprintf(&b, "      <group targetFramework=%q>\n", fw)
			for _, d := range p.Dependencies[fw] {
				writeDependency(&b, "        ", d)
			}
			b.WriteString("      </group>\n")
		}
		b.WriteString("    </dependencies>\n")
	}

	if len(p.FrameworkReferences) > 0 {
		b.WriteString("    <frameworkReferences>\n")
		for _, fw := range sortedKeys(p.FrameworkReferences) {
			fmt.Fprintf(&b, "      <group targetFramework=%q>\n", fw)
			for _, name := range p.FrameworkReferences[fw] {
				fmt.Fprintf(&b, "        <frameworkReference name=%q />\n", name)
			}
			b.WriteString("      </group>\n")
		}
		b.WriteString("    </frameworkReferences>\n")
	}

	b.WriteString("  </metadata>\n</package>\n")
	return b.String()
}

func writeDependency(b *strings.Builder, indent, dep string) {
	id, rng, _ := strings.Cut(dep, " ")
	fmt.Fprintf(b, "%s<dependency id=%q version=%q />\n", indent, id, rng)
}

// Archive builds the .nupkg for p, including its nuspec.
func Archive(p *Package) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{p.ID + ".nuspec": Nuspec(p)}
	for name, content := range p.Files {
		files[name] = content
	}
	for _, name := range sortedKeys(files) {
		w, err := zw.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := io.WriteString(w, files[name]); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
