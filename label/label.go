// Package label builds and validates the Bazel labels the generator emits.
//
// Every package gets a Bazel package named after its lowercase ID, so the
// default target of package "Newtonsoft.Json" is "//newtonsoft.json".
//
// # Types
//
//   - [ApparentRepo]: a repository name as it appears in labels
//   - [ApparentLabel]: a parsed label such as "@projects//src/App:App"
//   - [Import]: a mapping from a package ID to a label built elsewhere
//
// Repository names must match: [a-zA-Z][a-zA-Z0-9._-]*
// Target names must not contain ':' or start with '/'.
package label

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bazelbuild/buildtools/labels"
)

// Package returns the default target label of a package ID.
func Package(id string) string {
	return "//" + strings.ToLower(id)
}

// Target returns the label of a named target inside a package's Bazel package.
func Target(id, name string) string {
	lower := strings.ToLower(id)
	if strings.EqualFold(id, name) {
		return "//" + lower
	}
	return "//" + lower + ":" + strings.ToLower(name)
}

// File returns the label of a file exported by a package's Bazel package.
func File(id, path string) string {
	return "//" + strings.ToLower(id) + ":" + path
}

// ApparentRepo represents a repository name as it appears in the current context.
// This is the name used in labels like @repo_name//pkg:target.
type ApparentRepo struct {
	name string
}

var apparentRepoRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9._-]*$`)

// NewApparentRepo creates a validated ApparentRepo.
func NewApparentRepo(name string) (ApparentRepo, error) {
	if name == "" {
		return ApparentRepo{}, nil // the main repository
	}
	if !apparentRepoRegex.MatchString(name) {
		return ApparentRepo{}, fmt.Errorf("invalid repo name %q", name)
	}
	return ApparentRepo{name: name}, nil
}

// String returns the repo name or empty string.
func (r ApparentRepo) String() string {
	return r.name
}

// IsEmpty returns true for the main repository.
func (r ApparentRepo) IsEmpty() bool {
	return r.name == ""
}

// ApparentLabel represents a label in the current context.
// Format: @repo//package:target or //package:target or :target
type ApparentLabel struct {
	repo   ApparentRepo
	parsed labels.Label
	raw    string
}

// ParseApparentLabel parses and validates a label string.
func ParseApparentLabel(s string) (ApparentLabel, error) {
	if !strings.HasPrefix(s, "@") && !strings.HasPrefix(s, "//") && !strings.HasPrefix(s, ":") {
		return ApparentLabel{}, fmt.Errorf("invalid label %q", s)
	}
	if strings.HasPrefix(s, "@") && !strings.Contains(s, "//") {
		return ApparentLabel{}, fmt.Errorf("invalid label %q: missing //", s)
	}

	parsed := labels.Parse(s)
	repo, err := NewApparentRepo(parsed.Repository)
	if err != nil {
		return ApparentLabel{}, fmt.Errorf("invalid label %q: %w", s, err)
	}
	if parsed.Target == "" || strings.Contains(parsed.Target, ":") {
		return ApparentLabel{}, fmt.Errorf("invalid label %q: bad target name", s)
	}
	return ApparentLabel{repo: repo, parsed: parsed, raw: s}, nil
}

// String returns the original label string.
func (l ApparentLabel) String() string {
	return l.raw
}

// Repo returns the repository component.
func (l ApparentLabel) Repo() ApparentRepo {
	return l.repo
}

// Package returns the package path.
func (l ApparentLabel) Package() string {
	return l.parsed.Package
}

// Target returns the target name.
func (l ApparentLabel) Target() string {
	return l.parsed.Target
}
