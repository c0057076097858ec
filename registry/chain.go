package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/albertocavalcante/go-nugetbzl/selection/version"
)

// Chain implements multi-feed lookup with fallback. Feeds are tried in order
// and the first feed that lists a package ID serves ALL versions of it.
//
// Lookups fall back to the next feed on any error, not only 404: a feed with
// an expired certificate or a 5xx should not hide packages available elsewhere.
type Chain struct {
	feeds   []Feed
	names   []string
	mapping SourceMapping

	// packageFeed tracks which feed provides each package (by lowercase ID)
	packageFeed   map[string]int
	packageFeedMu sync.RWMutex
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithSourceNames names the feeds (in order) for package source mapping.
func WithSourceNames(names ...string) ChainOption {
	return func(c *Chain) {
		c.names = names
	}
}

// WithSourceMapping restricts package IDs to the named feeds that declare a
// matching pattern.
func WithSourceMapping(m SourceMapping) ChainOption {
	return func(c *Chain) {
		c.mapping = m
	}
}

// NewChain creates a chain of feeds.
func NewChain(feeds []Feed, opts ...ChainOption) (*Chain, error) {
	if len(feeds) == 0 {
		return nil, errors.New("no package sources provided")
	}
	c := &Chain{
		feeds:       feeds,
		packageFeed: make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	if len(c.mapping) > 0 && len(c.names) != len(c.feeds) {
		return nil, fmt.Errorf("source mapping needs %d source names, got %d", len(c.feeds), len(c.names))
	}
	return c, nil
}

// Source returns the first feed's source, for display.
func (c *Chain) Source() string {
	return c.feeds[0].Source()
}

// SourceFor returns the source that served id, or "" if id has not been looked up.
func (c *Chain) SourceFor(id string) string {
	c.packageFeedMu.RLock()
	defer c.packageFeedMu.RUnlock()
	if idx, ok := c.packageFeed[strings.ToLower(id)]; ok {
		return c.feeds[idx].Source()
	}
	return ""
}

// candidates returns the feed indices allowed to serve id.
func (c *Chain) candidates(id string) []int {
	if len(c.mapping) == 0 {
		out := make([]int, len(c.feeds))
		for i := range out {
			out[i] = i
		}
		return out
	}
	allowed := c.mapping.SourcesFor(id)
	var out []int
	for i, name := range c.names {
		for _, a := range allowed {
			if strings.EqualFold(a, name) {
				out = append(out, i)
				break
			}
		}
	}
	return out
}

// ListVersions asks each candidate feed in order, remembering the first that answers.
func (c *Chain) ListVersions(ctx context.Context, id string) ([]version.Version, error) {
	lower := strings.ToLower(id)

	c.packageFeedMu.RLock()
	idx, found := c.packageFeed[lower]
	c.packageFeedMu.RUnlock()
	if found {
		return c.feeds[idx].ListVersions(ctx, id)
	}

	cands := c.candidates(id)
	if len(cands) == 0 {
		return nil, fmt.Errorf("package %s is not mapped to any source: %w", id, ErrNotFound)
	}

	var errs []error
	for _, i := range cands {
		versions, err := c.feeds[i].ListVersions(ctx, id)
		if err == nil {
			c.packageFeedMu.Lock()
			if _, exists := c.packageFeed[lower]; !exists {
				c.packageFeed[lower] = i
			}
			c.packageFeedMu.Unlock()
			return versions, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = append(errs, fmt.Errorf("%s: %w", c.feeds[i].Source(), err))
	}

	if len(errs) == 1 {
		return nil, fmt.Errorf("package %s not found: %w", id, errs[0])
	}
	return nil, fmt.Errorf("package %s not found in any source: %w", id, errors.Join(errs...))
}

// feedFor returns the feed serving id, discovering it if needed.
func (c *Chain) feedFor(ctx context.Context, id string) (Feed, error) {
	if _, err := c.ListVersions(ctx, id); err != nil {
		return nil, err
	}
	c.packageFeedMu.RLock()
	defer c.packageFeedMu.RUnlock()
	return c.feeds[c.packageFeed[strings.ToLower(id)]], nil
}

// GetNuspec fetches the manifest from the feed serving id.
func (c *Chain) GetNuspec(ctx context.Context, id string, v version.Version) ([]byte, error) {
	f, err := c.feedFor(ctx, id)
	if err != nil {
		return nil, err
	}
	return f.GetNuspec(ctx, id, v)
}

// OpenPackage downloads the archive from the feed serving id.
func (c *Chain) OpenPackage(ctx context.Context, id string, v version.Version) (io.ReadCloser, error) {
	f, err := c.feedFor(ctx, id)
	if err != nil {
		return nil, err
	}
	return f.OpenPackage(ctx, id, v)
}

var _ Feed = (*Chain)(nil)
