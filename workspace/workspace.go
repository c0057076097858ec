// Package workspace writes a rendered repository to disk.
//
// Rendered files are written below the output directory. A file whose
// content digest matches what is already on disk is left untouched so that
// Bazel does not see a change. Package versions are reached through links
// into the package store, listed in [ManifestFile].
package workspace

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/albertocavalcante/go-nugetbzl/entry"
	"github.com/albertocavalcante/go-nugetbzl/render"
)

// ManifestFile lists every link of the repository as "link target" lines.
const ManifestFile = "symlinks_manifest"

const filePermissions = 0o644

// Link is a symbolic link relative to the output directory.
type Link struct {
	Path   string
	Target string
}

// Report summarizes what Apply changed.
type Report struct {
	Written   []string
	Unchanged []string
	Linked    []string
	Removed   []string

	// Changes lists the targets of rewritten BUILD files whose version or
	// dependencies changed.
	Changes []TargetChange
}

// Workspace is an output directory.
type Workspace struct {
	root   string
	logger *slog.Logger
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithLogger sets the logger for write diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workspace) {
		if l != nil {
			w.logger = l
		}
	}
}

// New opens the output directory at root, creating it if needed.
func New(root string, opts ...Option) (*Workspace, error) {
	if root == "" {
		return nil, errors.New("output directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", root, err)
	}
	w := &Workspace{root: filepath.Clean(root), logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Root returns the output directory.
func (w *Workspace) Root() string { return w.root }

// Links returns the version links of entries: "<id>/<version>" for every
// version and "<id>/current" for IDs with a single version. Links are sorted
// by path.
func Links(entries []*entry.Entry) []Link {
	byID := map[string][]Link{}
	for _, e := range entries {
		if e.ExpandedPath == "" {
			continue
		}
		id := strings.ToLower(e.ID())
		l := Link{Path: id + "/" + e.Identity.Version.Folder(), Target: e.ExpandedPath}
		if !slices.Contains(byID[id], l) {
			byID[id] = append(byID[id], l)
		}
	}

	var out []Link
	for id, links := range byID {
		out = append(out, links...)
		if len(links) == 1 {
			out = append(out, Link{Path: id + "/" + render.CurrentFolder, Target: links[0].Target})
		}
	}
	slices.SortFunc(out, func(a, b Link) int { return strings.Compare(a.Path, b.Path) })
	return out
}

// Manifest renders links as the symlinks manifest.
func Manifest(links []Link) []byte {
	var b bytes.Buffer
	for _, l := range links {
		b.WriteString(l.Path + " " + l.Target + "\n")
	}
	return b.Bytes()
}

// ParseManifest reads a symlinks manifest.
func ParseManifest(r io.Reader) ([]Link, error) {
	var out []Link
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		p, target, ok := strings.Cut(line, " ")
		if !ok || p == "" || target == "" {
			return nil, fmt.Errorf("invalid manifest line %q", line)
		}
		out = append(out, Link{Path: p, Target: target})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Apply writes files and the symlinks manifest, then creates the links.
// Links listed in the previous manifest but absent from links are removed.
func (w *Workspace) Apply(ctx context.Context, files []render.File, links []Link) (*Report, error) {
	previous, err := w.previousLinks()
	if err != nil {
		return nil, err
	}

	report := &Report{}
	all := append(slices.Clone(files), render.File{Path: ManifestFile, Content: Manifest(links)})
	for _, f := range all {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		prev, err := w.previousBuild(f.Path)
		if err != nil {
			return nil, err
		}
		changed, err := w.WriteFile(f)
		if err != nil {
			return nil, err
		}
		if changed {
			report.Written = append(report.Written, f.Path)
			if prev != nil {
				report.Changes = append(report.Changes, Changes(f.Path, prev, f.Content)...)
			}
		} else {
			report.Unchanged = append(report.Unchanged, f.Path)
		}
	}

	for _, old := range previous {
		if slices.ContainsFunc(links, func(l Link) bool { return l.Path == old.Path }) {
			continue
		}
		if err := w.removeLink(old.Path); err != nil {
			return nil, err
		}
		report.Removed = append(report.Removed, old.Path)
	}

	for _, l := range links {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		created, err := w.Link(l)
		if err != nil {
			return nil, err
		}
		if created {
			report.Linked = append(report.Linked, l.Path)
		}
	}
	w.logger.Debug("workspace updated", "written", len(report.Written), "changed_targets", len(report.Changes), "unchanged", len(report.Unchanged), "linked", len(report.Linked), "removed", len(report.Removed))
	return report, nil
}

// WriteFile writes f unless the file on disk has the same digest. It
// reports whether the file was written.
func (w *Workspace) WriteFile(f render.File) (bool, error) {
	dest, err := w.path(f.Path)
	if err != nil {
		return false, err
	}
	if same, err := sameContent(dest, f.Content); err != nil {
		return false, err
	} else if same {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return false, fmt.Errorf("create directory for %s: %w", f.Path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return false, fmt.Errorf("write %s: %w", f.Path, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(f.Content); err != nil {
		_ = tmp.Close()
		return false, fmt.Errorf("write %s: %w", f.Path, err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("write %s: %w", f.Path, err)
	}
	if err := os.Chmod(tmp.Name(), filePermissions); err != nil {
		return false, fmt.Errorf("write %s: %w", f.Path, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return false, fmt.Errorf("write %s: %w", f.Path, err)
	}
	return true, nil
}

// Link creates l, replacing a link with a different target. It reports
// whether a link was created.
func (w *Workspace) Link(l Link) (bool, error) {
	dest, err := w.path(l.Path)
	if err != nil {
		return false, err
	}
	info, err := os.Lstat(dest)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return false, fmt.Errorf("link %s: %w", l.Path, err)
	case info.Mode()&fs.ModeSymlink == 0:
		return false, fmt.Errorf("link %s: path exists and is not a link", l.Path)
	default:
		if target, err := os.Readlink(dest); err == nil && target == l.Target {
			return false, nil
		}
		if err := os.Remove(dest); err != nil {
			return false, fmt.Errorf("link %s: %w", l.Path, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return false, fmt.Errorf("link %s: %w", l.Path, err)
	}
	if err := os.Symlink(l.Target, dest); err != nil {
		return false, fmt.Errorf("link %s: %w", l.Path, err)
	}
	return true, nil
}

func (w *Workspace) removeLink(rel string) error {
	dest, err := w.path(rel)
	if err != nil {
		return err
	}
	info, err := os.Lstat(dest)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode()&fs.ModeSymlink == 0 {
		w.logger.Warn("stale manifest entry is not a link", "path", rel)
		return nil
	}
	return os.Remove(dest)
}

// previousBuild returns the current content of a BUILD file, or nil when
// rel is not a BUILD file or does not exist yet.
func (w *Workspace) previousBuild(rel string) ([]byte, error) {
	if path.Base(rel) != "BUILD" {
		return nil, nil
	}
	dest, err := w.path(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(dest)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func (w *Workspace) previousLinks() ([]Link, error) {
	f, err := os.Open(filepath.Join(w.root, ManifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	links, err := ParseManifest(f)
	if err != nil {
		w.logger.Warn("ignoring unreadable symlinks manifest", "error", err)
		return nil, nil
	}
	return links, nil
}

// path resolves rel below the root, rejecting paths that escape it.
func (w *Workspace) path(rel string) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(rel)) {
		return "", fmt.Errorf("path %q escapes the output directory", rel)
	}
	return filepath.Join(w.root, filepath.FromSlash(rel)), nil
}

func sameContent(path string, content []byte) (bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if !info.Mode().IsRegular() || info.Size() != int64(len(content)) {
		return false, nil
	}
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	return h.Sum64() == xxhash.Sum64(content), nil
}
