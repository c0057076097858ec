package project

import (
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/bazelbuild/buildtools/build"

	"github.com/albertocavalcante/go-nugetbzl/internal/buildutil"
)

// DefaultVisibility is used for projects no visibility rule matches.
const DefaultVisibility = "//visibility:public"

// Rules for resources produced next to the project rule.
const (
	resourceRule = "core_resource_multi"
	resxRule     = "core_resx"
)

var excludeOutputs = []string{"**/obj/**", "**/bin/**"}

// VisibilityRule sets the visibility of projects below a folder. A "*" in
// a label is replaced, in order, by the path components of the project
// file below the folder.
type VisibilityRule struct {
	Pattern string
	Labels  []string
}

// ParseVisibility parses "{folder}[/**]={label}[,{label}]".
func ParseVisibility(s string) (VisibilityRule, error) {
	pattern, labels, ok := strings.Cut(s, "=")
	pattern = strings.TrimSpace(normalize(pattern))
	if !ok || pattern == "" || strings.TrimSpace(labels) == "" {
		return VisibilityRule{}, fmt.Errorf("invalid visibility %q: want {glob}={label}[,{label}]", s)
	}
	r := VisibilityRule{Pattern: pattern}
	for _, l := range strings.Split(labels, ",") {
		if l = strings.TrimSpace(l); l != "" {
			r.Labels = append(r.Labels, l)
		}
	}
	return r, nil
}

// match returns the labels of r for the project file at rel.
func (r VisibilityRule) match(rel string) ([]string, bool, error) {
	dir := strings.TrimSuffix(strings.TrimSuffix(r.Pattern, "**"), "/")
	prefix := dir + "/"
	if dir == "" || len(rel) <= len(prefix) || !strings.EqualFold(rel[:len(prefix)], prefix) {
		return nil, false, nil
	}
	parts := strings.Split(rel[len(prefix):], "/")

	out := make([]string, len(r.Labels))
	for i, l := range r.Labels {
		var b strings.Builder
		n := 0
		for {
			star := strings.IndexByte(l, '*')
			if star < 0 {
				break
			}
			if n >= len(parts) {
				return nil, false, fmt.Errorf("visibility %s=%s: %s has too few path components", r.Pattern, r.Labels[i], rel)
			}
			b.WriteString(l[:star])
			b.WriteString(parts[n])
			n++
			l = l[star+1:]
		}
		b.WriteString(l)
		out[i] = b.String()
	}
	return out, true, nil
}

// visibility returns the labels of the first matching rule.
func (g *Generator) visibility(rel string) ([]string, error) {
	for _, r := range g.visibilityRules {
		labels, ok, err := r.match(rel)
		if err != nil {
			return nil, err
		}
		if ok {
			return labels, nil
		}
	}
	return []string{DefaultVisibility}, nil
}

// BuildFile renders the BUILD file of d.
func (g *Generator) BuildFile(d *Definition) ([]byte, error) {
	visibility, err := g.visibility(d.Path)
	if err != nil {
		return nil, err
	}
	rule := d.Kind.Rule()

	var stmts []build.Expr
	stmts = append(stmts, g.loads(d, rule)...)

	var resources []string
	stmts, resources = appendResources(stmts, d)

	dataName := d.Name + "__data"
	stmts = append(stmts, buildutil.Call("filegroup",
		buildutil.Arg("name", buildutil.Str(dataName)),
		buildutil.Arg("srcs", dataSrcs(d)),
		buildutil.Arg("visibility", buildutil.StrList(visibility)),
	))

	args := []build.Expr{
		buildutil.Arg("name", buildutil.Str(d.Name)),
		buildutil.Arg("out", buildutil.Str(d.Name+".dll")),
	}
	if d.IsWeb() {
		args = append(args, buildutil.Arg("runtime_properties",
			buildutil.StrDict([]string{"System.GC.Server"}, map[string]string{"System.GC.Server": "true"})))
	}
	if d.TestOnly {
		args = append(args, buildutil.Arg("testonly", &build.Ident{Name: "True"}))
	}
	if d.Nullable {
		args = append(args, buildutil.Arg("nullable", &build.Ident{Name: "True"}))
	}
	srcs := d.Srcs
	if len(srcs) == 0 {
		srcs = []string{"**/*.cs"}
	}
	args = append(args,
		buildutil.Arg("srcs", glob(srcs, excludeOutputs)),
		buildutil.Arg("resources", buildutil.StrList(resources)),
		buildutil.Arg("data", buildutil.StrList([]string{":" + dataName})),
		buildutil.Arg("deps", buildutil.StrList(g.deps(d))),
	)
	if g.contextData != "" {
		args = append(args, buildutil.Arg("dotnet_context_data", buildutil.Str(g.contextData)))
	}
	args = append(args, buildutil.Arg("visibility", buildutil.StrList(visibility)))
	stmts = append(stmts, buildutil.Call(rule, args...))

	if g.appendix != "" {
		f, err := build.ParseBuild("append", []byte(g.appendix))
		if err != nil {
			return nil, fmt.Errorf("parse appended content: %w", err)
		}
		stmts = append(stmts, buildutil.Arg("name", buildutil.Str(d.Name)))
		stmts = append(stmts, f.Stmt...)
	}
	return buildutil.Format(path.Join(d.Dir(), "BUILD"), stmts...), nil
}

func (g *Generator) loads(d *Definition, rule string) []build.Expr {
	var symbols []string
	if d.Kind != Test || g.testRulesFile == g.rulesFile {
		symbols = append(symbols, rule)
	}
	if slices.ContainsFunc(d.Resources, func(r Resource) bool { return r.Op == ResourceInclude }) {
		symbols = append(symbols, resourceRule)
	}
	if len(resx(d)) > 0 {
		symbols = append(symbols, resxRule)
	}
	slices.Sort(symbols)

	var out []build.Expr
	if len(symbols) > 0 {
		out = append(out, buildutil.Load(g.rulesFile, symbols...))
	}
	if d.Kind == Test && g.testRulesFile != g.rulesFile {
		out = append(out, buildutil.Load(g.testRulesFile, rule))
	}
	return out
}

// appendResources adds the resource rules of d and returns their labels.
func appendResources(stmts []build.Expr, d *Definition) ([]build.Expr, []string) {
	var includes, removes []string
	for _, r := range d.Resources {
		switch r.Op {
		case ResourceInclude:
			includes = append(includes, r.Path)
		case ResourceRemove:
			removes = append(removes, r.Path)
		}
	}

	var labels []string
	if len(includes) > 0 {
		stmts = append(stmts, buildutil.Call(resourceRule,
			buildutil.Arg("name", buildutil.Str("Resources")),
			buildutil.Arg("identifierBase", buildutil.Str(d.Namespace())),
			buildutil.Arg("srcs", glob(includes, append(removes, excludeOutputs...))),
		))
		labels = append(labels, ":Resources")
	}

	for _, src := range resx(d) {
		name := strings.ReplaceAll(src, "/", ".")
		base := strings.TrimSuffix(name, path.Ext(name))
		if name == src {
			// A target may not share its name with a source file.
			name = "_" + name
		}
		stmts = append(stmts, buildutil.Call(resxRule,
			buildutil.Arg("name", buildutil.Str(name)),
			buildutil.Arg("src", buildutil.Str(src)),
			buildutil.Arg("out", buildutil.Str(d.Namespace()+"."+base+".resources")),
		))
		labels = append(labels, ":"+name)
	}
	return stmts, labels
}

func resx(d *Definition) []string {
	var out []string
	for _, r := range d.Resources {
		if r.Op == ResourceUpdate && strings.HasSuffix(strings.ToLower(r.Path), ".resx") {
			out = append(out, r.Path)
		}
	}
	return out
}

// dataSrcs returns the data labels of d followed by a glob over the files
// copied to the output directory.
func dataSrcs(d *Definition) build.Expr {
	switch {
	case len(d.Data) > 0 && len(d.CopyToOutput) > 0:
		return &build.BinaryExpr{X: buildutil.StrList(d.Data), Op: "+", Y: glob(d.CopyToOutput, excludeOutputs)}
	case len(d.CopyToOutput) > 0:
		return glob(d.CopyToOutput, excludeOutputs)
	default:
		return buildutil.StrList(d.Data)
	}
}

// deps returns the assembly labels, then package labels, then project
// labels of d. Project labels are deduplicated case-insensitively.
func (g *Generator) deps(d *Definition) []string {
	out := slices.Clone(g.assemblyDeps)
	for _, id := range d.Packages {
		out = append(out, "@"+g.repository+"//"+strings.ToLower(id))
	}
	var seen []string
	for _, p := range d.Projects {
		if slices.ContainsFunc(seen, func(s string) bool { return strings.EqualFold(s, p) }) {
			continue
		}
		seen = append(seen, p)
		out = append(out, p)
	}
	return out
}

func glob(include, exclude []string) *build.CallExpr {
	return &build.CallExpr{
		X: &build.Ident{Name: "glob"},
		List: []build.Expr{
			buildutil.StrList(include),
			buildutil.Arg("exclude", buildutil.StrList(exclude)),
		},
	}
}
