// Package store manages the NuGet global packages folder: an on-disk cache of
// extracted packages laid out as {root}/{id}/{version}/.
//
// A package directory is complete once its .nupkg.metadata marker exists.
// Installs are download-once per identity: concurrent callers in one process
// share a single download (singleflight) and separate processes serialize on
// a file lock next to the package directory.
//
// Reference: https://learn.microsoft.com/en-us/nuget/consume-packages/managing-the-global-packages-and-cache-folders
package store

import (
	"context"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/albertocavalcante/go-nugetbzl/nuget"
	"github.com/albertocavalcante/go-nugetbzl/nuspec"
	"github.com/albertocavalcante/go-nugetbzl/registry"
	"github.com/albertocavalcante/go-nugetbzl/runtimegraph"
)

// MetadataFile marks a completely extracted package.
const MetadataFile = ".nupkg.metadata"

const (
	defaultCacheSize   = 1024
	defaultLockTimeout = 5 * time.Minute
	lockRetryDelay     = 100 * time.Millisecond
)

// ErrNotInstalled is returned by Load for packages missing from the folder.
var ErrNotInstalled = errors.New("package not installed")

// LocalPackage is an extracted package.
type LocalPackage struct {
	Identity     nuget.Identity
	ExpandedPath string

	// Files are package-relative paths with forward slashes, sorted. Store
	// bookkeeping files are excluded.
	Files []string

	Nuspec       *nuspec.Nuspec
	RuntimeGraph *runtimegraph.Graph

	// ContentHash is the base64 SHA-512 of the archive, empty for packages
	// installed by other tools without a metadata file.
	ContentHash string
}

// metadata is the .nupkg.metadata document.
type metadata struct {
	Version     int    `json:"version"`
	ContentHash string `json:"contentHash"`
	Source      string `json:"source,omitempty"`
}

// Store is a global packages folder backed by a feed.
type Store struct {
	root        string
	feed        registry.Feed
	group       singleflight.Group
	loaded      *lru.Cache[string, *LocalPackage]
	lockTimeout time.Duration
	logger      *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for install diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithLockTimeout bounds how long Ensure waits for another process installing the same package.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// New opens (creating if needed) a global packages folder at root. feed may
// be nil for a read-only store.
func New(root string, feed registry.Feed, opts ...Option) (*Store, error) {
	if root == "" {
		return nil, errors.New("store root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store %s: %w", root, err)
	}
	loaded, err := lru.New[string, *LocalPackage](defaultCacheSize)
	if err != nil {
		return nil, err
	}
	s := &Store{
		root:        filepath.Clean(root),
		feed:        feed,
		loaded:      loaded,
		lockTimeout: defaultLockTimeout,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DefaultRoot returns $NUGET_PACKAGES or ~/.nuget/packages.
func DefaultRoot() string {
	if env := os.Getenv("NUGET_PACKAGES"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "nuget", "packages")
	}
	return filepath.Join(home, ".nuget", "packages")
}

// Root returns the folder path.
func (s *Store) Root() string { return s.root }

// PackagePath returns the expanded directory for an identity.
func (s *Store) PackagePath(id nuget.Identity) string {
	return filepath.Join(s.root, strings.ToLower(id.ID), id.Version.Folder())
}

// IsInstalled reports whether the identity is completely extracted.
func (s *Store) IsInstalled(id nuget.Identity) bool {
	_, err := os.Stat(filepath.Join(s.PackagePath(id), MetadataFile))
	return err == nil
}

// Ensure returns the extracted package, downloading it first if needed.
func (s *Store) Ensure(ctx context.Context, id nuget.Identity) (*LocalPackage, error) {
	key := id.Key()
	if pkg, ok := s.loaded.Get(key); ok {
		return pkg, nil
	}

	// The install is shared by every caller waiting on key, so it must not
	// be cut short when the first of them gives up.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		if !s.IsInstalled(id) {
			if err := s.install(shared, id); err != nil {
				return nil, err
			}
		}
		return s.load(id)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		pkg := res.Val.(*LocalPackage)
		s.loaded.Add(key, pkg)
		return pkg, nil
	}
}

// Load returns an installed package without touching the feed.
func (s *Store) Load(id nuget.Identity) (*LocalPackage, error) {
	key := id.Key()
	if pkg, ok := s.loaded.Get(key); ok {
		return pkg, nil
	}
	if !s.IsInstalled(id) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotInstalled)
	}
	pkg, err := s.load(id)
	if err != nil {
		return nil, err
	}
	s.loaded.Add(key, pkg)
	return pkg, nil
}

func (s *Store) install(ctx context.Context, id nuget.Identity) error {
	if s.feed == nil {
		return fmt.Errorf("%s: %w", id, ErrNotInstalled)
	}
	dest := s.PackagePath(id)
	parent := filepath.Dir(dest)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return err
	}

	lock := flock.New(dest + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	locked, err := lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock %s: %w", id, err)
	}
	if !locked {
		return fmt.Errorf("lock %s: timed out", id)
	}
	defer func() { _ = lock.Unlock() }()

	// Another process may have finished while we waited.
	if s.IsInstalled(id) {
		return nil
	}

	start := time.Now()
	s.logger.Debug("downloading package", "package", id.String(), "source", s.feed.Source())

	tmp, err := os.MkdirTemp(parent, ".extract-")
	if err != nil {
		return err
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	lowerID := strings.ToLower(id.ID)
	archive := filepath.Join(tmp, lowerID+"."+id.Version.Folder()+".nupkg")
	hash, err := s.download(ctx, id, archive)
	if err != nil {
		return err
	}
	if _, err := extract(archive, tmp, lowerID); err != nil {
		return fmt.Errorf("extract %s: %w", id, err)
	}

	md, err := json.MarshalIndent(metadata{Version: 2, ContentHash: hash, Source: s.feed.Source()}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(tmp, MetadataFile), md, 0o644); err != nil {
		return err
	}

	// A directory without the marker is a leftover from an interrupted install.
	if err := os.RemoveAll(dest); err != nil {
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("install %s: %w", id, err)
	}

	s.logger.Debug("installed package", "package", id.String(), "duration", time.Since(start))
	return nil
}

// download writes the archive to dest and returns its base64 SHA-512.
func (s *Store) download(ctx context.Context, id nuget.Identity, dest string) (string, error) {
	rc, err := s.feed.OpenPackage(ctx, id.ID, id.Version)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", id, err)
	}
	defer func() { _ = rc.Close() }()

	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	h := sha512.New()
	if _, err := io.Copy(io.MultiWriter(out, h), rc); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("download %s: %w", id, err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

func (s *Store) load(id nuget.Identity) (*LocalPackage, error) {
	dir := s.PackagePath(id)
	lowerID := strings.ToLower(id.ID)

	spec, err := nuspec.Load(filepath.Join(dir, lowerID+nuspec.Extension))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}

	files, err := listFiles(dir, lowerID)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}

	pkg := &LocalPackage{
		Identity:     nuget.Identity{ID: spec.ID, Version: id.Version},
		ExpandedPath: dir,
		Files:        files,
		Nuspec:       spec,
	}
	if data, err := os.ReadFile(filepath.Join(dir, MetadataFile)); err == nil {
		var md metadata
		if json.Unmarshal(data, &md) == nil {
			pkg.ContentHash = md.ContentHash
		}
	}
	if rg, err := runtimegraph.Load(filepath.Join(dir, runtimegraph.FileName)); err == nil {
		pkg.RuntimeGraph = rg
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	return pkg, nil
}

func listFiles(dir, lowerID string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if isBookkeeping(rel, lowerID) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	sort.Strings(files)
	return files, err
}

func isBookkeeping(rel, lowerID string) bool {
	lower := strings.ToLower(rel)
	if strings.Contains(lower, "/") {
		return false
	}
	return lower == MetadataFile ||
		lower == lowerID+nuspec.Extension ||
		lower == ".signature.p7s" ||
		strings.HasSuffix(lower, ".nupkg") ||
		strings.HasSuffix(lower, ".nupkg.sha512")
}
