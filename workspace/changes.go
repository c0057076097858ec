package workspace

import (
	"slices"

	"github.com/bazelbuild/buildtools/build"

	"github.com/albertocavalcante/go-nugetbzl/internal/buildutil"
)

// TargetChange is a target of a regenerated BUILD file whose version or
// dependencies differ from the file it replaced.
type TargetChange struct {
	Path       string
	Target     string
	OldVersion string
	NewVersion string

	// AddedDeps and RemovedDeps are dependency labels, taken across every
	// branch of a framework select.
	AddedDeps   []string
	RemovedDeps []string
}

// Changes compares two renderings of the BUILD file at path. Targets are
// matched by rule kind and name; targets that were added or removed are not
// reported. Unparsable input yields no changes.
func Changes(path string, prev, next []byte) []TargetChange {
	of, err := build.ParseBuild(path, prev)
	if err != nil {
		return nil
	}
	nf, err := build.ParseBuild(path, next)
	if err != nil {
		return nil
	}

	var out []TargetChange
	for _, stmt := range of.Stmt {
		oc, ok := stmt.(*build.CallExpr)
		if !ok {
			continue
		}
		name := buildutil.String(oc, "name")
		if name == "" {
			continue
		}
		nc := buildutil.FindRule(nf, buildutil.FuncName(oc), name)
		if nc == nil {
			continue
		}

		c := TargetChange{
			Path:       path,
			Target:     name,
			OldVersion: buildutil.String(oc, "version"),
			NewVersion: buildutil.String(nc, "version"),
		}
		before, after := deps(oc), deps(nc)
		for _, d := range after {
			if !slices.Contains(before, d) {
				c.AddedDeps = append(c.AddedDeps, d)
			}
		}
		for _, d := range before {
			if !slices.Contains(after, d) {
				c.RemovedDeps = append(c.RemovedDeps, d)
			}
		}
		if c.OldVersion != c.NewVersion || len(c.AddedDeps) > 0 || len(c.RemovedDeps) > 0 {
			out = append(out, c)
		}
	}
	return out
}

func deps(call *build.CallExpr) []string {
	if l := buildutil.StringList(call, "deps"); l != nil {
		return l
	}
	var out []string
	collect(buildutil.ExtractValue(buildutil.Attr(call, "deps")), &out)
	slices.Sort(out)
	return slices.Compact(out)
}

func collect(v any, out *[]string) {
	switch v := v.(type) {
	case string:
		*out = append(*out, v)
	case []any:
		for _, item := range v {
			collect(item, out)
		}
	case map[string]any:
		for _, item := range v {
			collect(item, out)
		}
	}
}
