package lockfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// FileName is the conventional lock file name.
const FileName = "packages.lock.json"

const lockfilePermissions = 0o644

// DependencyType classifies a locked package.
type DependencyType string

const (
	TypeDirect            DependencyType = "Direct"
	TypeTransitive        DependencyType = "Transitive"
	TypeProject           DependencyType = "Project"
	TypeCentralTransitive DependencyType = "CentralTransitive"
)

// Dependency is one locked package of a target.
type Dependency struct {
	Type DependencyType `json:"type"`

	// Requested is the range the project asked for; set for direct
	// dependencies only.
	Requested string `json:"requested,omitempty"`

	Resolved    string `json:"resolved,omitempty"`
	ContentHash string `json:"contentHash,omitempty"`

	// Dependencies maps dependency IDs to their requested ranges.
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Lockfile is a packages.lock.json document.
type Lockfile struct {
	Version int `json:"version"`

	// Targets maps target keys to the packages locked for them.
	Targets map[string]map[string]Dependency `json:"dependencies"`
}

// New returns an empty lock file of the current version.
func New() *Lockfile {
	return &Lockfile{Version: CurrentVersion, Targets: make(map[string]map[string]Dependency)}
}

// ReadFile reads and parses a lock file from the given path.
func ReadFile(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lock file: %w", err)
	}
	return Parse(data)
}

// Parse parses lock file JSON data.
func Parse(data []byte) (*Lockfile, error) {
	var lf Lockfile
	if err := json.Unmarshal(bytes.TrimPrefix(data, []byte("\ufeff")), &lf); err != nil {
		return nil, fmt.Errorf("failed to parse lock file JSON: %w", err)
	}
	if lf.Targets == nil {
		lf.Targets = make(map[string]map[string]Dependency)
	}
	return &lf, nil
}

// WriteFile writes the lock file to the given path with deterministic
// formatting.
func (l *Lockfile) WriteFile(path string) error {
	data, err := l.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, lockfilePermissions)
}

// WriteTo writes the lock file to the given writer.
func (l *Lockfile) WriteTo(w io.Writer) (int64, error) {
	data, err := l.Marshal()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// Marshal serializes the lock file as indented JSON. Targets and packages
// are ordered case-insensitively by key, the way NuGet writes them.
func (l *Lockfile) Marshal() ([]byte, error) {
	targets := make(orderedMap[orderedMap[orderedDependency]], len(l.Targets))
	for key, deps := range l.Targets {
		section := make(orderedMap[orderedDependency], len(deps))
		for id, d := range deps {
			section[id] = orderedDependency{
				Type:         d.Type,
				Requested:    d.Requested,
				Resolved:     d.Resolved,
				ContentHash:  d.ContentHash,
				Dependencies: orderedMap[string](d.Dependencies),
			}
		}
		targets[key] = section
	}
	ordered := struct {
		Version int                                       `json:"version"`
		Targets orderedMap[orderedMap[orderedDependency]] `json:"dependencies"`
	}{Version: l.Version, Targets: targets}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(ordered); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type orderedDependency struct {
	Type         DependencyType     `json:"type"`
	Requested    string             `json:"requested,omitempty"`
	Resolved     string             `json:"resolved,omitempty"`
	ContentHash  string             `json:"contentHash,omitempty"`
	Dependencies orderedMap[string] `json:"dependencies,omitempty"`
}

// orderedMap marshals with keys sorted case-insensitively.
type orderedMap[V any] map[string]V

func (o orderedMap[V]) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		valJSON, err := json.Marshal(o[k])
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		buf.Write(valJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func compareKeys(a, b string) int {
	if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// Exists returns true if a lock file exists at the given path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// DefaultPath returns the default lock file path inside a project directory.
func DefaultPath(projectDir string) string {
	if projectDir == "" {
		return FileName
	}
	return filepath.Join(projectDir, FileName)
}
