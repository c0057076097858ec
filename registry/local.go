package registry

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/albertocavalcante/go-nugetbzl/selection/version"
)

// LocalFeed serves packages from a directory. Both layouts are read:
//
//	{root}/{id}.{version}.nupkg                  (flat)
//	{root}/{id}/{version}/{id}.{version}.nupkg   (hierarchical, also the global packages folder)
//
// Create with file:// URLs through NewFeed, or directly:
//
//	feed := registry.NewLocalFeed("/path/to/feed")
type LocalFeed struct {
	rootPath string
	versions sync.Map // map[string][]version.Version keyed by lowercase id
}

// NewLocalFeed creates a feed for a local directory.
func NewLocalFeed(rootPath string) *LocalFeed {
	return &LocalFeed{rootPath: filepath.Clean(rootPath)}
}

// Source returns the file:// URL of the feed.
func (f *LocalFeed) Source() string {
	urlPath := filepath.ToSlash(f.rootPath)
	if runtime.GOOS == "windows" && len(urlPath) >= 2 && isWindowsDriveLetter(urlPath[0]) && urlPath[1] == ':' {
		urlPath = "/" + urlPath
	}
	return "file://" + urlPath
}

// Root returns the feed directory.
func (f *LocalFeed) Root() string { return f.rootPath }

// ListVersions scans both layouts for versions of id.
func (f *LocalFeed) ListVersions(ctx context.Context, id string) ([]version.Version, error) {
	lower := strings.ToLower(id)
	if cached, ok := f.versions.Load(lower); ok {
		return cached.([]version.Version), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(f.rootPath)
	if err != nil {
		return nil, fmt.Errorf("read local feed %s: %w", f.rootPath, err)
	}

	seen := make(map[string]bool)
	var versions []version.Version
	add := func(v version.Version) {
		if !seen[v.Folder()] {
			seen[v.Folder()] = true
			versions = append(versions, v)
		}
	}

	for _, e := range entries {
		name := strings.ToLower(e.Name())
		switch {
		case e.IsDir() && name == lower:
			sub, err := os.ReadDir(filepath.Join(f.rootPath, e.Name()))
			if err != nil {
				return nil, fmt.Errorf("read local feed %s: %w", f.rootPath, err)
			}
			for _, s := range sub {
				if !s.IsDir() {
					continue
				}
				if v, err := version.Parse(s.Name()); err == nil {
					add(v)
				}
			}
		case !e.IsDir() && strings.HasSuffix(name, ".nupkg") && strings.HasPrefix(name, lower+"."):
			rest := strings.TrimSuffix(strings.TrimPrefix(name, lower+"."), ".nupkg")
			if v, err := version.Parse(rest); err == nil {
				add(v)
			}
		}
	}

	if len(versions) == 0 {
		return nil, &FeedError{StatusCode: 404, PackageID: id, URL: f.Source()}
	}
	version.Sort(versions)
	f.versions.Store(lower, versions)
	return versions, nil
}

// GetNuspec reads the manifest next to the archive, or from inside it.
func (f *LocalFeed) GetNuspec(ctx context.Context, id string, v version.Version) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lower := strings.ToLower(id)

	if dir, ok := f.hierarchicalDir(id, v); ok {
		if data, err := os.ReadFile(filepath.Join(dir, lower+".nuspec")); err == nil {
			return data, nil
		}
	}

	archive, err := f.archivePath(id, v)
	if err != nil {
		return nil, err
	}
	return ReadNuspecFromArchive(archive)
}

// OpenPackage opens the .nupkg for reading.
func (f *LocalFeed) OpenPackage(ctx context.Context, id string, v version.Version) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := f.archivePath(id, v)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

func (f *LocalFeed) hierarchicalDir(id string, v version.Version) (string, bool) {
	entries, err := os.ReadDir(f.rootPath)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.EqualFold(e.Name(), id) {
			continue
		}
		sub, err := os.ReadDir(filepath.Join(f.rootPath, e.Name()))
		if err != nil {
			return "", false
		}
		for _, s := range sub {
			if pv, err := version.Parse(s.Name()); err == nil && s.IsDir() && pv.Equal(v) {
				return filepath.Join(f.rootPath, e.Name(), s.Name()), true
			}
		}
	}
	return "", false
}

func (f *LocalFeed) archivePath(id string, v version.Version) (string, error) {
	if dir, ok := f.hierarchicalDir(id, v); ok {
		entries, err := os.ReadDir(dir)
		if err == nil {
			for _, e := range entries {
				if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".nupkg") {
					return filepath.Join(dir, e.Name()), nil
				}
			}
		}
	}

	entries, err := os.ReadDir(f.rootPath)
	if err != nil {
		return "", fmt.Errorf("read local feed %s: %w", f.rootPath, err)
	}
	prefix := strings.ToLower(id) + "."
	for _, e := range entries {
		name := strings.ToLower(e.Name())
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".nupkg") {
			continue
		}
		rest := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".nupkg")
		if pv, err := version.Parse(rest); err == nil && pv.Equal(v) {
			return filepath.Join(f.rootPath, e.Name()), nil
		}
	}
	return "", &FeedError{StatusCode: 404, PackageID: id, Version: v.String(), URL: f.Source()}
}

// ReadNuspecFromArchive extracts the root-level .nuspec from a .nupkg file.
func ReadNuspecFromArchive(archive string) ([]byte, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return nil, fmt.Errorf("open package %s: %w", archive, err)
	}
	defer func() { _ = zr.Close() }()

	for _, zf := range zr.File {
		if path.Dir(zf.Name) != "." || !strings.HasSuffix(strings.ToLower(zf.Name), ".nuspec") {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("open nuspec in %s: %w", archive, err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read nuspec in %s: %w", archive, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("package %s has no nuspec", archive)
}

// parseFileURL extracts the path from a file:// URL.
// Handles both Unix (file:///path) and Windows (file:///C:/path) formats.
func parseFileURL(url string) (string, error) {
	if !isFileURL(url) {
		return "", fmt.Errorf("not a file:// URL: %s", url)
	}
	p := strings.TrimPrefix(url, "file://")
	if len(p) >= 3 && p[0] == '/' && isWindowsDriveLetter(p[1]) && p[2] == ':' {
		p = p[1:]
	}
	return filepath.Clean(p), nil
}

func isFileURL(url string) bool {
	return strings.HasPrefix(url, "file://")
}

func isWindowsDriveLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

var _ Feed = (*LocalFeed)(nil)
