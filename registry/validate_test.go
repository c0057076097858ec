package registry

import (
	"errors"
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name       string
		config     Config
		wantErrors []string
	}{
		{
			name: "valid",
			config: Config{
				Sources: []Source{{Name: "nuget.org", URL: NuGetOrg}, {Name: "local", URL: "/feeds/local"}, {Name: "share", URL: "file:///mnt/feed"}},
				Mapping: SourceMapping{"local": {"Contoso.*"}, "nuget.org": {"*"}},
			},
		},
		{
			name:       "duplicate names",
			config:     Config{Sources: []Source{{Name: "feed", URL: NuGetOrg}, {Name: "Feed", URL: "/feeds/local"}}},
			wantErrors: []string{`packageSources[1].key: duplicate source "Feed"`},
		},
		{
			name:       "missing fields",
			config:     Config{Sources: []Source{{}}},
			wantErrors: []string{"packageSources[0].key: is required", "packageSources[0].value: is required"},
		},
		{
			name:       "unsupported scheme",
			config:     Config{Sources: []Source{{Name: "ftp", URL: "ftp://example.com/feed"}}},
			wantErrors: []string{`packageSources[0].value: unsupported scheme "ftp"`},
		},
		{
			name:       "url without host",
			config:     Config{Sources: []Source{{Name: "broken", URL: "https:///index.json"}}},
			wantErrors: []string{`packageSources[0].value: invalid URL "https:///index.json"`},
		},
		{
			name:       "inner wildcard",
			config:     Config{Mapping: SourceMapping{"nuget.org": {"Contoso.*.Core"}}},
			wantErrors: []string{`packageSourceMapping[nuget.org]: pattern "Contoso.*.Core": wildcard must be the last character`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if len(tt.wantErrors) == 0 {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			var verrs ConfigErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("Validate() error = %v, want ConfigErrors", err)
			}
			if len(verrs) != len(tt.wantErrors) {
				t.Fatalf("Validate() = %d errors (%v), want %d", len(verrs), err, len(tt.wantErrors))
			}
			for i, want := range tt.wantErrors {
				if got := verrs[i].Error(); got != want {
					t.Errorf("error[%d] = %q, want %q", i, got, want)
				}
			}
		})
	}
}

func TestConfigErrorsMessage(t *testing.T) {
	var errs ConfigErrors
	if errs.err() != nil {
		t.Error("empty ConfigErrors should convert to nil")
	}
	errs.add("a", "first")
	errs.add("", "second %d", 2)
	msg := errs.Error()
	if !strings.HasPrefix(msg, "2 problems in nuget.config:") || !strings.Contains(msg, "- a: first") || !strings.Contains(msg, "- second 2") {
		t.Errorf("Error() = %q", msg)
	}
	var ce *ConfigError
	if !errors.As(errs.err(), &ce) || ce.Element != "a" {
		t.Errorf("errors.As ConfigError = %+v", ce)
	}
}

func TestParseConfigRejectsInvalid(t *testing.T) {
	doc := `<configuration><packageSources>
  <add key="a" value="https://a.example/index.json" />
  <add key="A" value="https://b.example/index.json" />
</packageSources></configuration>`
	_, err := ParseConfig(strings.NewReader(doc), "")
	var verrs ConfigErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("ParseConfig() error = %v, want ConfigErrors", err)
	}
}
