package registry

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
)

// ConfigError is one problem found in a nuget.config document.
type ConfigError struct {
	Element string // e.g. "packageSources[1].value"
	Message string
}

func (e *ConfigError) Error() string {
	if e.Element == "" {
		return e.Message
	}
	return e.Element + ": " + e.Message
}

// ConfigErrors lists every problem found by [Config.Validate].
type ConfigErrors []*ConfigError

func (e ConfigErrors) Error() string {
	switch len(e) {
	case 0:
		return "invalid nuget.config"
	case 1:
		return e[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d problems in nuget.config:", len(e))
	for _, err := range e {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e ConfigErrors) Unwrap() []error {
	errs := make([]error, len(e))
	for i, err := range e {
		errs[i] = err
	}
	return errs
}

func (e *ConfigErrors) add(element, format string, args ...any) {
	*e = append(*e, &ConfigError{Element: element, Message: fmt.Sprintf(format, args...)})
}

func (e ConfigErrors) err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Validate checks the sources and package source mapping of a config.
// It returns nil or a ConfigErrors holding every problem.
func (c *Config) Validate() error {
	var errs ConfigErrors

	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		field := fmt.Sprintf("packageSources[%d]", i)
		if s.Name == "" {
			errs.add(field+".key", "is required")
		} else if lower := strings.ToLower(s.Name); seen[lower] {
			errs.add(field+".key", "duplicate source %q", s.Name)
		} else {
			seen[lower] = true
		}
		if s.URL == "" {
			errs.add(field+".value", "is required")
			continue
		}
		if scheme, _, ok := strings.Cut(s.URL, "://"); ok {
			switch strings.ToLower(scheme) {
			case "http", "https":
				if u, err := url.Parse(s.URL); err != nil || u.Host == "" {
					errs.add(field+".value", "invalid URL %q", s.URL)
				}
			case "file":
			default:
				errs.add(field+".value", "unsupported scheme %q", scheme)
			}
		}
	}

	for _, name := range slices.Sorted(maps.Keys(c.Mapping)) {
		for _, p := range c.Mapping[name] {
			if i := strings.IndexByte(p, '*'); i >= 0 && i != len(p)-1 {
				errs.add(fmt.Sprintf("packageSourceMapping[%s]", name), "pattern %q: wildcard must be the last character", p)
			}
		}
	}

	return errs.err()
}
