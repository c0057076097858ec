package label

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Import redirects a package ID to a target built in another repository.
// With a config setting the redirect applies only when that setting matches.
type Import struct {
	Project       string
	Target        string
	ConfigSetting string
}

// Imports indexes imports by lowercase project name.
type Imports map[string][]Import

// Lookup returns the imports for a package ID.
func (m Imports) Lookup(id string) []Import {
	return m[strings.ToLower(id)]
}

// Opener opens exports files named by import mappings.
type Opener func(path string) (io.ReadCloser, error)

// ParseImports parses import mappings of the form
//
//	{repo}={exports_file}[={config_setting}]
//	{label}=[={config_setting}]
//
// The first form reads "{project}={target}" lines from exports_file and
// prefixes each target with repo. The second form imports a single label
// whose target name is the project. A nil open reads from the filesystem.
func ParseImports(mappings []string, open Opener) (Imports, error) {
	if open == nil {
		open = func(p string) (io.ReadCloser, error) { return os.Open(p) }
	}
	out := Imports{}
	for _, m := range mappings {
		imports, err := parseImport(m, open)
		if err != nil {
			return nil, err
		}
		for _, imp := range imports {
			key := strings.ToLower(imp.Project)
			out[key] = append(out[key], imp)
		}
	}
	return out, nil
}

func parseImport(mapping string, open Opener) ([]Import, error) {
	parts := strings.Split(mapping, "=")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, fmt.Errorf("invalid import %q: want {repo}={exports_file}[={config_setting}]", mapping)
	}
	repoOrTarget, file := parts[0], parts[1]
	var setting string
	if len(parts) == 3 {
		setting = parts[2]
		if _, err := ParseApparentLabel(setting); err != nil {
			return nil, fmt.Errorf("invalid import %q: config setting: %w", mapping, err)
		}
	}

	if file == "" {
		l, err := ParseApparentLabel(repoOrTarget)
		if err != nil || !strings.Contains(repoOrTarget, ":") {
			return nil, fmt.Errorf("invalid import %q: an import without exports file needs a target name", mapping)
		}
		return []Import{{Project: l.Target(), Target: repoOrTarget, ConfigSetting: setting}}, nil
	}

	if !strings.HasPrefix(repoOrTarget, "@") {
		return nil, fmt.Errorf("invalid import %q: repository must start with @", mapping)
	}
	if _, err := NewApparentRepo(strings.TrimPrefix(repoOrTarget, "@")); err != nil {
		return nil, fmt.Errorf("invalid import %q: %w", mapping, err)
	}

	rc, err := open(file)
	if err != nil {
		return nil, fmt.Errorf("import %q: %w", mapping, err)
	}
	defer func() { _ = rc.Close() }()

	var out []Import
	sc := bufio.NewScanner(rc)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		project, target, ok := strings.Cut(line, "=")
		if !ok || project == "" || target == "" {
			return nil, fmt.Errorf("exports file %s: invalid line %q: want {project}={target}", file, line)
		}
		out = append(out, Import{Project: project, Target: repoOrTarget + target, ConfigSetting: setting})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("exports file %s: %w", file, err)
	}
	return out, nil
}
