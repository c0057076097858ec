package store

import (
	"archive/zip"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// skipEntry reports whether a zip entry is OPC packaging metadata rather
// than package content.
func skipEntry(name string) bool {
	lower := strings.ToLower(name)
	return lower == "[content_types].xml" ||
		strings.HasPrefix(lower, "_rels/") ||
		strings.HasPrefix(lower, "package/") ||
		strings.HasSuffix(name, "/")
}

// entryPath unescapes a zip entry name and rejects paths escaping the package root.
func entryPath(name string) (string, error) {
	unescaped, err := url.PathUnescape(name)
	if err != nil {
		unescaped = name
	}
	clean := path.Clean(strings.ReplaceAll(unescaped, "\\", "/"))
	if clean == "." || strings.HasPrefix(clean, "../") || clean == ".." || path.IsAbs(clean) || strings.Contains(clean, ":") {
		return "", fmt.Errorf("invalid package entry %q", name)
	}
	return clean, nil
}

// extract unpacks a .nupkg into dir. The root nuspec is written as
// {lowerID}.nuspec. It returns the package-relative paths written.
func extract(archive, dir, lowerID string) ([]string, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return nil, fmt.Errorf("open package %s: %w", archive, err)
	}
	defer func() { _ = zr.Close() }()

	var written []string
	for _, zf := range zr.File {
		if skipEntry(zf.Name) {
			continue
		}
		rel, err := entryPath(zf.Name)
		if err != nil {
			return nil, err
		}
		if path.Dir(rel) == "." && strings.HasSuffix(strings.ToLower(rel), ".nuspec") {
			rel = lowerID + ".nuspec"
		}
		if err := writeEntry(zf, filepath.Join(dir, filepath.FromSlash(rel))); err != nil {
			return nil, err
		}
		written = append(written, rel)
	}
	return written, nil
}

func writeEntry(zf *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	rc, err := zf.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", zf.Name, err)
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return fmt.Errorf("extract %s: %w", zf.Name, err)
	}
	return out.Close()
}
