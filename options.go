package nugetbzl

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/albertocavalcante/go-nugetbzl/framework"
	"github.com/albertocavalcante/go-nugetbzl/label"
	"github.com/albertocavalcante/go-nugetbzl/registry"
)

const (
	// DefaultFramework is the target framework used when none is configured.
	DefaultFramework = "netcoreapp3.1"

	// DefaultRuntime is the runtime identifier used when none is configured.
	DefaultRuntime = "win-x64"

	defaultConcurrency = 16
)

// Option configures resolution and generation.
type Option func(*config) error

// config holds all generation configuration.
type config struct {
	frameworks  []framework.Moniker
	runtime     string
	lockFile    string
	lockedMode  bool
	outputDir   string
	packagesDir string

	feed       registry.Feed
	sources    []string
	nugetConf  string
	httpClient *http.Client
	timeout    time.Duration

	imports        label.Imports
	importMappings []string
	rulesFile      string
	importRule     string

	aspNetCore   bool
	packVersions map[framework.Moniker]string
	stdlibLabel  string
	firstMatch   bool
	concurrency  int
	onProgress   func(ProgressEvent)

	// logger is the structured logger for debug/info output.
	// If nil, logging is disabled (silent mode).
	logger *slog.Logger
}

// DefaultOptions returns the options matching the generator's command line defaults.
func DefaultOptions() []Option {
	return []Option{
		WithFrameworks(DefaultFramework),
		WithRuntime(DefaultRuntime),
		WithAspNetCore(true),
		WithTimeout(30 * time.Second),
	}
}

// WithFrameworks sets the target frameworks by short folder name. The first
// one is the primary framework: it is the default of the framework flag and
// the framework conflicts are resolved for.
func WithFrameworks(names ...string) Option {
	return func(c *config) error {
		c.frameworks = c.frameworks[:0]
		for _, n := range names {
			fw, err := framework.Parse(n)
			if err != nil {
				return fmt.Errorf("invalid target framework %q: %w", n, err)
			}
			if !slices.Contains(c.frameworks, fw) {
				c.frameworks = append(c.frameworks, fw)
			}
		}
		return nil
	}
}

// WithRuntime sets the runtime identifier every framework is also resolved
// for. An empty RID resolves framework-independent graphs only.
func WithRuntime(rid string) Option {
	return func(c *config) error {
		c.runtime = rid
		return nil
	}
}

// WithLockFile sets the packages.lock.json path. A valid lock file pins the
// resolved versions; a missing or outdated one is (re)written.
func WithLockFile(path string) Option {
	return func(c *config) error {
		c.lockFile = path
		return nil
	}
}

// WithLockedMode makes an outdated lock file an error instead of rewriting it.
func WithLockedMode(locked bool) Option {
	return func(c *config) error {
		c.lockedMode = locked
		return nil
	}
}

// WithOutputDir sets the directory generated files are written to.
func WithOutputDir(dir string) Option {
	return func(c *config) error {
		c.outputDir = dir
		return nil
	}
}

// WithPackagesDir sets the global packages folder. Defaults to the
// nuget.config globalPackagesFolder, $NUGET_PACKAGES or ~/.nuget/packages.
func WithPackagesDir(dir string) Option {
	return func(c *config) error {
		c.packagesDir = dir
		return nil
	}
}

// WithFeed sets the package feed directly, bypassing sources and nuget.config.
func WithFeed(feed registry.Feed) Option {
	return func(c *config) error {
		c.feed = feed
		return nil
	}
}

// WithSources sets the package source URLs or folders to use (in priority order).
func WithSources(sources ...string) Option {
	return func(c *config) error {
		c.sources = append(c.sources, sources...)
		return nil
	}
}

// WithNuGetConfig reads package sources from a nuget.config file.
func WithNuGetConfig(path string) Option {
	return func(c *config) error {
		c.nugetConf = path
		return nil
	}
}

// WithHTTPClient sets a custom HTTP client for feed requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) error {
		c.httpClient = client
		return nil
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) error {
		c.timeout = d
		return nil
	}
}

// WithImports redirects package targets to labels built elsewhere.
func WithImports(imports label.Imports) Option {
	return func(c *config) error {
		c.imports = imports
		return nil
	}
}

// WithImportMappings parses import mappings of the form
// {repo}={exports_file}[={config_setting}] when generation starts.
func WithImportMappings(mappings ...string) Option {
	return func(c *config) error {
		c.importMappings = append(c.importMappings, mappings...)
		return nil
	}
}

// WithRule sets the .bzl file and rule used for package targets.
func WithRule(file, rule string) Option {
	return func(c *config) error {
		c.rulesFile = file
		c.importRule = rule
		return nil
	}
}

// WithAspNetCore enables or disables the ASP.NET Core targeting pack.
func WithAspNetCore(enabled bool) Option {
	return func(c *config) error {
		c.aspNetCore = enabled
		return nil
	}
}

// WithPackVersion pins the targeting pack version used for a framework.
func WithPackVersion(fw, v string) Option {
	return func(c *config) error {
		m, err := framework.Parse(fw)
		if err != nil {
			return fmt.Errorf("invalid target framework %q: %w", fw, err)
		}
		if c.packVersions == nil {
			c.packVersions = make(map[framework.Moniker]string)
		}
		c.packVersions[m] = v
		return nil
	}
}

// WithStdlibLabel sets the label template SDK assemblies are redirected to
// for .NET Framework targets; "{id}" is replaced by the lowercase ID.
func WithStdlibLabel(template string) Option {
	return func(c *config) error {
		c.stdlibLabel = template
		return nil
	}
}

// WithFirstMatchFallback makes ambiguous asset categories pick the nearest
// group and log a warning instead of failing.
func WithFirstMatchFallback(enabled bool) Option {
	return func(c *config) error {
		c.firstMatch = enabled
		return nil
	}
}

// WithConcurrency bounds parallel feed requests and downloads.
func WithConcurrency(n int) Option {
	return func(c *config) error {
		c.concurrency = n
		return nil
	}
}

// WithProgress sets a callback for generation progress events.
func WithProgress(fn func(ProgressEvent)) Option {
	return func(c *config) error {
		c.onProgress = fn
		return nil
	}
}

// WithLogger sets a structured logger for diagnostics.
// If not set, logging is disabled (silent mode).
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("component", "nugetbzl")
//	Generate(ctx, refs, WithLogger(logger))
func WithLogger(l *slog.Logger) Option {
	return func(c *config) error {
		c.logger = l
		return nil
	}
}

// validate checks the configuration for logical consistency.
func (c *config) validate() error {
	if len(c.frameworks) == 0 {
		return errors.New("at least one target framework is required")
	}
	if c.timeout < 0 {
		return errors.New("timeout must be positive")
	}
	if c.concurrency < 0 {
		return errors.New("concurrency must be positive")
	}
	if c.lockedMode && c.lockFile == "" {
		return errors.New("locked mode requires a lock file")
	}
	if c.feed != nil && (len(c.sources) > 0 || c.nugetConf != "") {
		return errors.New("a feed cannot be combined with sources or a nuget.config")
	}
	if c.imports != nil && len(c.importMappings) > 0 {
		return errors.New("imports and import mappings are mutually exclusive")
	}
	return nil
}

// log returns the configured logger, or a logger discarding all output.
func (c *config) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.New(slog.DiscardHandler)
}

func (c *config) progress(e ProgressEvent) {
	if c.onProgress != nil {
		c.onProgress(e)
	}
}

// newConfig applies the defaults, then opts, and validates the result.
func newConfig(opts ...Option) (*config, error) {
	c := &config{
		runtime:     DefaultRuntime,
		outputDir:   ".",
		aspNetCore:  true,
		concurrency: defaultConcurrency,
	}
	if err := WithFrameworks(DefaultFramework)(c); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	if c.concurrency == 0 {
		c.concurrency = defaultConcurrency
	}
	return c, nil
}
