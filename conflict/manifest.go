package conflict

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/albertocavalcante/go-nugetbzl/framework"
	"github.com/albertocavalcante/go-nugetbzl/selection/version"
)

// Manifest locations inside a targeting pack.
const (
	FrameworkListPath    = "data/FrameworkList.xml"
	PackageOverridesPath = "data/PackageOverrides.txt"
)

// FrameworkFile is one assembly shipped by a targeting pack.
type FrameworkFile struct {
	AssemblyName string

	// Path is package-relative and always under ref/.
	Path    string
	Version version.Assembly
}

// FrameworkList is the parsed data/FrameworkList.xml of a targeting pack,
// keyed by lowercase assembly name.
type FrameworkList struct {
	files map[string]FrameworkFile
	order []string
}

// Lookup returns the file for an assembly name, case-insensitively.
func (l *FrameworkList) Lookup(name string) (FrameworkFile, bool) {
	f, ok := l.files[strings.ToLower(name)]
	return f, ok
}

// Files returns the files in manifest order.
func (l *FrameworkList) Files() []FrameworkFile {
	out := make([]FrameworkFile, len(l.order))
	for i, k := range l.order {
		out[i] = l.files[k]
	}
	return out
}

// Len returns the number of files.
func (l *FrameworkList) Len() int { return len(l.order) }

var utf8BOM = []byte("\ufeff")

type xmlFileList struct {
	Files []struct {
		Type            string `xml:"Type,attr"`
		AssemblyName    string `xml:"AssemblyName,attr"`
		Path            string `xml:"Path,attr"`
		AssemblyVersion string `xml:"AssemblyVersion,attr"`
	} `xml:"File"`
}

// ParseFrameworkList reads a FrameworkList.xml document. Analyzer records
// are skipped. Paths not under ref/ are placed under ref/<fw>/. When a name
// appears twice the first record wins.
func ParseFrameworkList(r io.Reader, fw framework.Moniker) (*FrameworkList, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var doc xmlFileList
	if err := xml.Unmarshal(bytes.TrimPrefix(data, utf8BOM), &doc); err != nil {
		return nil, fmt.Errorf("parse framework list: %w", err)
	}

	l := &FrameworkList{files: make(map[string]FrameworkFile, len(doc.Files))}
	for _, f := range doc.Files {
		if strings.EqualFold(f.Type, "Analyzer") || f.AssemblyName == "" {
			continue
		}
		key := strings.ToLower(f.AssemblyName)
		if _, dup := l.files[key]; dup {
			continue
		}
		var v version.Assembly
		if f.AssemblyVersion != "" {
			if v, err = version.ParseAssembly(f.AssemblyVersion); err != nil {
				return nil, fmt.Errorf("framework list entry %s: %w", f.AssemblyName, err)
			}
		}
		p := strings.ReplaceAll(f.Path, "\\", "/")
		if !strings.HasPrefix(strings.ToLower(p), "ref/") {
			p = "ref/" + fw.String() + "/" + p
		}
		l.files[key] = FrameworkFile{AssemblyName: f.AssemblyName, Path: p, Version: v}
		l.order = append(l.order, key)
	}
	return l, nil
}

// ParsePackageOverrides reads PackageOverrides.txt: one "id|minVersion" per
// line. The result is keyed by lowercase package ID.
func ParsePackageOverrides(r io.Reader) (map[string]version.Version, error) {
	out := make(map[string]version.Version)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if line == 1 {
			text = strings.TrimPrefix(text, string(utf8BOM))
		}
		if text == "" {
			continue
		}
		id, ver, ok := strings.Cut(text, "|")
		if !ok {
			return nil, fmt.Errorf("package overrides line %d: missing '|' in %q", line, text)
		}
		v, err := version.Parse(strings.TrimSpace(ver))
		if err != nil {
			return nil, fmt.Errorf("package overrides line %d: %w", line, err)
		}
		out[strings.ToLower(strings.TrimSpace(id))] = v
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
