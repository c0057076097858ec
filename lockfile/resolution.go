package lockfile

import (
	"strings"

	"github.com/albertocavalcante/go-nugetbzl/framework"
	"github.com/albertocavalcante/go-nugetbzl/nuget"
	"github.com/albertocavalcante/go-nugetbzl/sdk"
	"github.com/albertocavalcante/go-nugetbzl/selection/version"
	"github.com/albertocavalcante/go-nugetbzl/walker"
)

// HashFunc returns the content hash recorded for a package, or "".
type HashFunc func(nuget.Identity) string

// FromGraphs creates a lock file from resolved graphs. Packages the root
// references directly are recorded as Direct with their requested range.
// hash may be nil.
func FromGraphs(root walker.RootProject, graphs []*walker.Graph, hash HashFunc) *Lockfile {
	lf := New()

	requested := make(map[string]version.Range, len(root.Dependencies))
	for _, d := range root.Dependencies {
		requested[strings.ToLower(d.ID)] = d.Range
	}

	for _, g := range graphs {
		section := make(map[string]Dependency, len(g.Nodes))
		for _, n := range g.Nodes {
			d := Dependency{Type: TypeTransitive, Resolved: n.Identity.Version.String()}
			if r, ok := requested[strings.ToLower(n.Identity.ID)]; ok {
				d.Type = TypeDirect
				d.Requested = r.String()
			}
			if n.Kind == walker.KindProject {
				d = Dependency{Type: TypeProject}
			}
			if hash != nil && d.Type != TypeProject {
				d.ContentHash = hash(n.Identity)
			}
			for _, dep := range n.Dependencies {
				if dep.Label != "" {
					continue
				}
				if d.Dependencies == nil {
					d.Dependencies = make(map[string]string)
				}
				d.Dependencies[dep.ID] = dep.Range.String()
			}
			section[n.Identity.ID] = d
		}
		lf.Targets[g.Target.String()] = section
	}
	return lf
}

// Pins returns the resolved versions per target, keyed the way
// walker.RootProject.Locked expects. Project entries are skipped. The
// targeting packs of cfg are pinned to the version derived from each
// target's framework so that framework resolution is reproducible too.
func (l *Lockfile) Pins(cfg *sdk.Config) map[string]map[string]version.Version {
	if cfg == nil {
		cfg = sdk.Default()
	}
	out := make(map[string]map[string]version.Version, len(l.Targets))
	for key, deps := range l.Targets {
		target, err := ParseTarget(key)
		if err != nil {
			continue
		}
		pins := make(map[string]version.Version, len(deps))
		for id, d := range deps {
			if d.Type == TypeProject || d.Resolved == "" {
				continue
			}
			v, err := version.Parse(d.Resolved)
			if err != nil {
				continue
			}
			pins[id] = v
		}
		if pv, ok := cfg.PackVersion(target.Framework); ok {
			v := version.MustParse(pv)
			for _, pack := range cfg.DefaultPacks() {
				if _, locked := pins[pack]; !locked {
					pins[pack] = v
				}
			}
		}
		out[target.String()] = pins
	}
	return out
}

// ParseTarget parses a section key: a framework, optionally followed by
// "/" and a runtime identifier.
func ParseTarget(key string) (nuget.Target, error) {
	fw, rid, _ := strings.Cut(key, "/")
	m, err := framework.Parse(fw)
	if err != nil {
		return nuget.Target{}, err
	}
	return nuget.Target{Framework: m, RuntimeIdentifier: rid}, nil
}
