package registry

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Source is a named package source from nuget.config.
type Source struct {
	Name string
	URL  string
}

// Config is the subset of nuget.config the generator uses.
//
// Reference: https://learn.microsoft.com/en-us/nuget/reference/nuget-config-file
type Config struct {
	// Sources are the enabled package sources in declaration order.
	Sources []Source

	// GlobalPackagesFolder is the configured globalPackagesFolder, if any.
	GlobalPackagesFolder string

	// Mapping is the packageSourceMapping section.
	Mapping SourceMapping
}

type xmlItem struct {
	XMLName xml.Name
	Key     string `xml:"key,attr"`
	Value   string `xml:"value,attr"`
}

type xmlConfig struct {
	PackageSources struct {
		Items []xmlItem `xml:",any"`
	} `xml:"packageSources"`
	Config struct {
		Items []xmlItem `xml:",any"`
	} `xml:"config"`
	DisabledPackageSources struct {
		Items []xmlItem `xml:",any"`
	} `xml:"disabledPackageSources"`
	PackageSourceMapping struct {
		Sources []struct {
			Key      string `xml:"key,attr"`
			Packages []struct {
				Pattern string `xml:"pattern,attr"`
			} `xml:"package"`
		} `xml:"packageSource"`
	} `xml:"packageSourceMapping"`
}

// ParseConfig decodes nuget.config content. Relative local source paths are
// resolved against dir.
func ParseConfig(r io.Reader, dir string) (*Config, error) {
	var doc xmlConfig
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse nuget.config: %w", err)
	}

	disabled := make(map[string]bool)
	for _, it := range doc.DisabledPackageSources.Items {
		if it.XMLName.Local == "add" && strings.EqualFold(it.Value, "true") {
			disabled[strings.ToLower(it.Key)] = true
		}
	}

	cfg := &Config{}
	for _, it := range doc.PackageSources.Items {
		switch it.XMLName.Local {
		case "clear":
			cfg.Sources = nil
		case "add":
			if it.Key == "" || it.Value == "" {
				return nil, fmt.Errorf("parse nuget.config: package source needs key and value")
			}
			if disabled[strings.ToLower(it.Key)] {
				continue
			}
			cfg.Sources = append(cfg.Sources, Source{Name: it.Key, URL: resolveSourcePath(it.Value, dir)})
		}
	}

	for _, it := range doc.Config.Items {
		if it.XMLName.Local == "add" && strings.EqualFold(it.Key, "globalPackagesFolder") {
			cfg.GlobalPackagesFolder = resolveSourcePath(it.Value, dir)
		}
	}

	for _, src := range doc.PackageSourceMapping.Sources {
		for _, p := range src.Packages {
			if p.Pattern == "" {
				continue
			}
			if cfg.Mapping == nil {
				cfg.Mapping = make(SourceMapping)
			}
			cfg.Mapping[src.Key] = append(cfg.Mapping[src.Key], p.Pattern)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("parse nuget.config: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads a nuget.config file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ParseConfig(f, filepath.Dir(path))
}

func resolveSourcePath(value, dir string) string {
	if strings.Contains(value, "://") || filepath.IsAbs(value) || dir == "" {
		return value
	}
	return filepath.Join(dir, filepath.FromSlash(value))
}

// Chain builds a feed chain from the configured sources. With no sources
// configured, nuget.org is used.
func (c *Config) Chain(opts ...ClientOption) (*Chain, error) {
	sources := c.Sources
	if len(sources) == 0 {
		sources = []Source{{Name: "nuget.org", URL: NuGetOrg}}
	}

	feeds := make([]Feed, 0, len(sources))
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		f, err := NewFeed(s.URL, opts...)
		if err != nil {
			return nil, fmt.Errorf("package source %s: %w", s.Name, err)
		}
		feeds = append(feeds, f)
		names = append(names, s.Name)
	}
	return NewChain(feeds, WithSourceNames(names...), WithSourceMapping(c.Mapping))
}

// SourceMapping maps source names to package ID patterns. A pattern is an
// exact ID, a prefix ending in "*", or "*".
type SourceMapping map[string][]string

// SourcesFor returns the sources whose most specific pattern matches id.
// Exact matches beat prefixes and longer prefixes beat shorter ones.
//
// Reference: https://learn.microsoft.com/en-us/nuget/consume-packages/package-source-mapping
func (m SourceMapping) SourcesFor(id string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	best := -1
	var out []string
	for _, name := range names {
		score := -1
		for _, p := range m[name] {
			score = max(score, patternScore(p, id))
		}
		switch {
		case score < 0:
		case score > best:
			best, out = score, []string{name}
		case score == best:
			out = append(out, name)
		}
	}
	return out
}

func patternScore(pattern, id string) int {
	p, lid := strings.ToLower(pattern), strings.ToLower(id)
	if prefix, ok := strings.CutSuffix(p, "*"); ok {
		if strings.HasPrefix(lid, prefix) {
			return len(prefix)
		}
		return -1
	}
	if p == lid {
		return len(p) + 1
	}
	return -1
}
