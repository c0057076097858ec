package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/albertocavalcante/go-nugetbzl/selection/version"
)

// Client configuration defaults.
const (
	DefaultMaxIdleConns        = 50
	DefaultMaxIdleConnsPerHost = 20
	DefaultIdleConnTimeout     = 90 * time.Second
	DefaultRequestTimeout      = 15 * time.Second
	DefaultDownloadTimeout     = 5 * time.Minute

	// DefaultVersionCacheSize bounds the number of cached version lists.
	DefaultVersionCacheSize = 4096
)

// Client reads a remote NuGet v3 feed.
type Client struct {
	source   string
	client   *http.Client
	download *http.Client

	baseMu  sync.Mutex
	baseURL string

	versions *lru.Cache[string, []version.Version]
	nuspecs  sync.Map // map[string][]byte keyed by "id@version"
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client for metadata and downloads.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
		c.download = client
	}
}

// WithTimeout sets the metadata request timeout.
// Zero or negative values fall back to the default timeout (15 seconds).
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.client.Timeout = timeout
		} else {
			c.client.Timeout = DefaultRequestTimeout
		}
	}
}

// WithBaseAddress skips service index discovery and uses base as the flat
// container address.
func WithBaseAddress(base string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(base, "/")
	}
}

// NewClient creates a client for a v3 feed. source is either a service index
// URL (ending in index.json) or a flat container base address.
func NewClient(source string, opts ...ClientOption) *Client {
	transport := &http.Transport{
		MaxIdleConns:        DefaultMaxIdleConns,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
	}

	versions, _ := lru.New[string, []version.Version](DefaultVersionCacheSize)
	c := &Client{
		source: source,
		client: &http.Client{
			Timeout:   DefaultRequestTimeout,
			Transport: transport,
		},
		download: &http.Client{
			Timeout:   DefaultDownloadTimeout,
			Transport: transport,
		},
		versions: versions,
	}
	if !strings.HasSuffix(source, "index.json") {
		c.baseURL = strings.TrimSuffix(source, "/")
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Source returns the configured feed URL.
func (c *Client) Source() string {
	return c.source
}

// BaseAddress resolves the flat container address, fetching the service
// index on first use.
func (c *Client) BaseAddress(ctx context.Context) (string, error) {
	c.baseMu.Lock()
	defer c.baseMu.Unlock()
	if c.baseURL != "" {
		return c.baseURL, nil
	}

	data, err := c.fetch(ctx, c.client, c.source, "", "")
	if err != nil {
		return "", fmt.Errorf("fetch service index %s: %w", c.source, err)
	}
	var index ServiceIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return "", fmt.Errorf("parse service index %s: %w", c.source, err)
	}
	base, ok := index.Find(PackageBaseAddressType)
	if !ok {
		return "", fmt.Errorf("service index %s has no %s resource", c.source, PackageBaseAddressType)
	}
	c.baseURL = strings.TrimSuffix(base, "/")
	return c.baseURL, nil
}

// ListVersions fetches the version index of a package.
// Results are cached by lowercase ID.
func (c *Client) ListVersions(ctx context.Context, id string) ([]version.Version, error) {
	lower := strings.ToLower(id)
	if cached, ok := c.versions.Get(lower); ok {
		return cached, nil
	}

	base, err := c.BaseAddress(ctx)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/%s/index.json", base, lower)
	data, err := c.fetch(ctx, c.client, url, id, "")
	if err != nil {
		return nil, err
	}

	var index VersionIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parse version index for %s: %w", id, err)
	}
	versions := make([]version.Version, 0, len(index.Versions))
	for _, s := range index.Versions {
		v, err := version.Parse(s)
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	version.Sort(versions)

	c.versions.Add(lower, versions)
	return versions, nil
}

// GetNuspec fetches a package manifest. Results are cached by "id@version".
func (c *Client) GetNuspec(ctx context.Context, id string, v version.Version) ([]byte, error) {
	lower := strings.ToLower(id)
	key := lower + "@" + v.Folder()
	if cached, ok := c.nuspecs.Load(key); ok {
		return cached.([]byte), nil
	}

	base, err := c.BaseAddress(ctx)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/%s/%s/%s.nuspec", base, lower, v.Folder(), lower)
	data, err := c.fetch(ctx, c.client, url, id, v.String())
	if err != nil {
		return nil, err
	}
	c.nuspecs.Store(key, data)
	return data, nil
}

// OpenPackage starts downloading a .nupkg.
func (c *Client) OpenPackage(ctx context.Context, id string, v version.Version) (io.ReadCloser, error) {
	base, err := c.BaseAddress(ctx)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(id)
	url := fmt.Sprintf("%s/%s/%s/%s.%s.nupkg", base, lower, v.Folder(), lower, v.Folder())

	resp, err := c.get(ctx, c.download, url)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &FeedError{StatusCode: resp.StatusCode, PackageID: id, Version: v.String(), URL: url}
	}
	return resp.Body, nil
}

// ClearCache removes all cached data.
func (c *Client) ClearCache() {
	c.versions.Purge()
	c.nuspecs = sync.Map{}
}

func (c *Client) get(ctx context.Context, hc *http.Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	return hc.Do(req)
}

// fetch performs an HTTP GET and returns the response body.
func (c *Client) fetch(ctx context.Context, hc *http.Client, url, id, ver string) ([]byte, error) {
	resp, err := c.get(ctx, hc, url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &FeedError{StatusCode: resp.StatusCode, PackageID: id, Version: ver, URL: url}
	}
	return io.ReadAll(resp.Body)
}

var _ Feed = (*Client)(nil)
