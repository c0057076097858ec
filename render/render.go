// Package render turns entries into BUILD files for an external repository
// of NuGet packages.
//
// Each package ID gets a Bazel package named after the lowercase ID. Files of
// a package version are reached through the "<version>" link inside it, and
// single-version packages also get a "current" link. The root package holds
// the framework flag that drives framework-conditional selects.
package render

import (
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/bazelbuild/buildtools/build"

	"github.com/albertocavalcante/go-nugetbzl/entry"
	"github.com/albertocavalcante/go-nugetbzl/framework"
	"github.com/albertocavalcante/go-nugetbzl/internal/buildutil"
	"github.com/albertocavalcante/go-nugetbzl/label"
	"github.com/albertocavalcante/go-nugetbzl/nuget"
	"github.com/albertocavalcante/go-nugetbzl/sdk"
)

// Defaults for the generated rules.
const (
	DefaultRulesFile   = "@io_bazel_rules_dotnet//dotnet:defs.bzl"
	DefaultImportRule  = "core_import_library"
	SkylibSettingsFile = "@bazel_skylib//rules:common_settings.bzl"

	// ContentFilesManifest lists the content files of a single-version package.
	ContentFilesManifest = "contentfiles.txt"

	// CurrentFolder is the link to the only version of a package.
	CurrentFolder = "current"

	debugSetting = "compilation_mode_dbg"
	importSuffix = "__nuget"
)

var exportedExtensions = []string{".exe", ".ruleset", ".json", ".dll"}

// File is a rendered file relative to the repository root.
type File struct {
	Path    string
	Content []byte
}

// Renderer renders entries. It is safe for concurrent use.
type Renderer struct {
	frameworks []framework.Moniker
	imports    label.Imports
	rulesFile  string
	importRule string
	logger     *slog.Logger
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithImports redirects package targets to imported labels.
func WithImports(imports label.Imports) Option {
	return func(r *Renderer) {
		r.imports = imports
	}
}

// WithRule sets the .bzl file and rule name used for package targets.
func WithRule(file, rule string) Option {
	return func(r *Renderer) {
		if file != "" {
			r.rulesFile = file
		}
		if rule != "" {
			r.importRule = rule
		}
	}
}

// WithLogger sets the logger for rendering diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.logger = l
		}
	}
}

// New builds a Renderer for the given target frameworks. The first framework
// is the default of the framework flag.
func New(frameworks []framework.Moniker, opts ...Option) *Renderer {
	r := &Renderer{
		frameworks: frameworks,
		rulesFile:  DefaultRulesFile,
		importRule: DefaultImportRule,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render renders the root BUILD file and the files of every package, in
// path order.
func (r *Renderer) Render(entries []*entry.Entry) []File {
	files := []File{{Path: "BUILD", Content: r.RootBuild()}}

	byID := make(map[string][]*entry.Entry)
	var ids []string
	for _, e := range entries {
		key := strings.ToLower(e.ID())
		if _, ok := byID[key]; !ok {
			ids = append(ids, key)
		}
		byID[key] = append(byID[key], e)
	}
	slices.Sort(ids)

	for _, id := range ids {
		group := byID[id]
		files = append(files, File{Path: id + "/BUILD", Content: r.PackageBuild(group)})
		if versions(group) == 1 {
			files = append(files, File{Path: id + "/" + ContentFilesManifest, Content: ContentFiles(primary(group))})
		}
	}
	return files
}

// RootBuild renders the framework flag and one config_setting per framework.
func (r *Renderer) RootBuild() []byte {
	names := make([]string, len(r.frameworks))
	for i, fw := range r.frameworks {
		names[i] = fw.String()
	}
	stmts := []build.Expr{
		buildutil.Load(SkylibSettingsFile, "string_flag"),
		buildutil.Call("package", buildutil.Arg("default_visibility", buildutil.StrList([]string{"//visibility:public"}))),
	}
	if len(names) > 0 {
		stmts = append(stmts, buildutil.Call("string_flag",
			buildutil.Arg("name", buildutil.Str("framework")),
			buildutil.Arg("values", buildutil.StrList(names)),
			buildutil.Arg("build_setting_default", buildutil.Str(names[0])),
		))
	}
	for _, n := range names {
		stmts = append(stmts, buildutil.Call("config_setting",
			buildutil.Arg("name", buildutil.Str("frameworks-"+n)),
			buildutil.Arg("flag_values", buildutil.StrDict([]string{":framework"}, map[string]string{":framework": n})),
		))
	}
	return buildutil.Format("BUILD", stmts...)
}

// PackageBuild renders the BUILD file of one package ID. group holds every
// entry of that ID and may span several versions.
func (r *Renderer) PackageBuild(group []*entry.Entry) []byte {
	group = slices.Clone(group)
	entry.Sort(group)
	highest := group[len(group)-1].Identity.Version
	single := versions(group) == 1

	stmts := []build.Expr{
		buildutil.Load(r.rulesFile, r.importRule),
		buildutil.Call("package", buildutil.Arg("default_visibility", buildutil.StrList([]string{"//visibility:public"}))),
	}
	if single {
		stmts = append(stmts, buildutil.Call("exports_files", buildutil.StrList(exports(primary(group)))))
	}
	if slices.ContainsFunc(group, func(e *entry.Entry) bool { return e.HasDebugRuntime() }) {
		stmts = append(stmts, buildutil.Call("config_setting",
			buildutil.Arg("name", buildutil.Str(debugSetting)),
			buildutil.Arg("values", buildutil.StrDict([]string{"compilation_mode"}, map[string]string{"compilation_mode": "dbg"})),
		))
	}
	for _, e := range group {
		suffix := ""
		if !e.Identity.Version.Equal(highest) {
			suffix = "__" + e.Identity.Version.Folder()
		}
		stmts = append(stmts, r.targets(e, suffix)...)
	}
	return buildutil.Format(strings.ToLower(group[0].ID())+"/BUILD", stmts...)
}

// targets renders the rules of one entry. suffix distinguishes versions
// other than the highest.
func (r *Renderer) targets(e *entry.Entry, suffix string) []build.Expr {
	folder := e.Identity.Version.Folder()
	name := strings.ToLower(e.Name) + suffix
	var stmts []build.Expr

	var data []string
	if e.Kind != entry.KindBinary {
		contentName := "content_files" + suffix
		stmts = append(stmts, buildutil.Call("filegroup",
			buildutil.Arg("name", buildutil.Str(contentName)),
			buildutil.Arg("srcs", buildutil.StrList(prefixed(folder, first(e.ContentFiles)))),
		))
		data = append(data, ":"+contentName)

		if tools := first(e.Tools); len(tools) > 0 {
			stmts = append(stmts, buildutil.Call("filegroup",
				buildutil.Arg("name", buildutil.Str("tools"+suffix)),
				buildutil.Arg("srcs", buildutil.StrList(prefixed(folder, tools))),
			))
		}
	}

	if imports := r.imports.Lookup(e.ID()); len(imports) > 0 && e.Kind == entry.KindPackage && suffix == "" {
		lib := name + importSuffix
		stmts = append(stmts, alias(name, lib, imports))
		name = lib
	}

	libs := r.frameworkSelect(e.Runtime, func(item string) string { return folder + "/" + item })
	if e.HasDebugRuntime() {
		if _, conditional := libs.(*build.CallExpr); conditional {
			r.logger.Warn("debug runtime ignored for framework-conditional binaries", "package", e.Identity.String())
		} else {
			libs = buildutil.Select([]string{":" + debugSetting, buildutil.DefaultCondition}, map[string]build.Expr{
				":" + debugSetting:         buildutil.StrList(prefixed(folder, first(e.DebugRuntime))),
				buildutil.DefaultCondition: libs,
			})
		}
	}

	refItem := func(item string) string { return reference(folder, item) }
	args := []build.Expr{
		buildutil.Arg("name", buildutil.Str(name)),
		buildutil.Arg("libs", libs),
		buildutil.Arg("refs", r.frameworkSelect(e.Refs, refItem)),
	}
	if analyzers := first(e.Analyzers); len(analyzers) > 0 {
		items := make([]string, len(analyzers))
		for i, a := range analyzers {
			items[i] = refItem(a)
		}
		args = append(args, buildutil.Arg("analyzers", buildutil.StrList(items)))
	}
	args = append(args,
		buildutil.Arg("deps", r.depsSelect(e.Dependencies)),
		buildutil.Arg("data", buildutil.StrList(data)),
		buildutil.Arg("version", buildutil.Str(e.Identity.Version.String())),
	)
	return append(stmts, buildutil.Call(r.importRule, args...))
}

func alias(name, lib string, imports []label.Import) build.Expr {
	var plain string
	keys := []string{}
	values := map[string]build.Expr{}
	for _, imp := range imports {
		if imp.ConfigSetting == "" {
			if plain == "" {
				plain = imp.Target
			}
			continue
		}
		if _, dup := values[imp.ConfigSetting]; dup {
			continue
		}
		keys = append(keys, imp.ConfigSetting)
		values[imp.ConfigSetting] = buildutil.Str(imp.Target)
	}

	var actual build.Expr
	switch {
	case len(keys) == 0:
		actual = buildutil.Str(plain)
	default:
		def := ":" + lib
		if plain != "" {
			def = plain
		}
		keys = append(keys, buildutil.DefaultCondition)
		values[buildutil.DefaultCondition] = buildutil.Str(def)
		actual = buildutil.Select(keys, values)
	}
	return buildutil.Call("alias", buildutil.Arg("name", buildutil.Str(name)), buildutil.Arg("actual", actual))
}

// frameworkSelect renders framework-specific groups as a plain list when
// every framework resolves to the same items, and as a select over the
// framework config settings otherwise. The first group is the default.
func (r *Renderer) frameworkSelect(groups []nuget.FrameworkSpecificGroup, item func(string) string) build.Expr {
	lists := make([][]string, len(groups))
	for i, g := range groups {
		lists[i] = make([]string, len(g.Items))
		for j, it := range g.Items {
			lists[i][j] = item(it)
		}
	}
	return r.conditional(monikers(groups), lists)
}

func (r *Renderer) depsSelect(groups []nuget.PackageDependencyGroup) build.Expr {
	fws := make([]framework.Moniker, len(groups))
	lists := make([][]string, len(groups))
	for i, g := range groups {
		fws[i] = g.TargetFramework
		lists[i] = depLabels(g.Packages)
	}
	return r.conditional(fws, lists)
}

// conditional renders one list per framework. Frameworks of the renderer
// without a group get an empty list, so a package with assets for a single
// framework only is not offered to the others.
func (r *Renderer) conditional(fws []framework.Moniker, lists [][]string) build.Expr {
	if len(lists) == 0 {
		return buildutil.StrList(nil)
	}
	for _, fw := range r.frameworks {
		if !slices.Contains(fws, fw) {
			fws = append(fws, fw)
			lists = append(lists, nil)
		}
	}
	if allEqual(lists) {
		return buildutil.StrList(lists[0])
	}
	keys := []string{}
	values := map[string]build.Expr{buildutil.DefaultCondition: buildutil.StrList(lists[0])}
	for i := 1; i < len(lists); i++ {
		key := "//:frameworks-" + fws[i].String()
		if _, dup := values[key]; dup || fws[i] == fws[0] {
			continue
		}
		keys = append(keys, key)
		values[key] = buildutil.StrList(lists[i])
	}
	return buildutil.Select(append(keys, buildutil.DefaultCondition), values)
}

// depLabels renders dependency edges, dropping netstandard.library and
// duplicates.
func depLabels(deps []nuget.PackageDependency) []string {
	var out []string
	for _, d := range deps {
		if strings.EqualFold(d.ID, sdk.NETStandardLibrary) {
			continue
		}
		l := d.Label
		if l == "" {
			l = label.Package(d.ID)
		}
		if !slices.Contains(out, l) {
			out = append(out, l)
		}
	}
	return out
}

// ContentFiles renders the content file manifest of a single-version
// package: one "current/<path>" line per content file.
func ContentFiles(e *entry.Entry) []byte {
	var b strings.Builder
	for _, item := range first(e.ContentFiles) {
		b.WriteString(CurrentFolder + "/" + item + "\n")
	}
	return []byte(b.String())
}

func exports(e *entry.Entry) []string {
	out := []string{ContentFilesManifest}
	for _, f := range e.Files {
		if slices.ContainsFunc(exportedExtensions, func(ext string) bool { return strings.EqualFold(path.Ext(f), ext) }) {
			out = append(out, CurrentFolder+"/"+f)
		}
	}
	return out
}

// reference keeps labels verbatim and places package files under folder.
func reference(folder, item string) string {
	if strings.HasPrefix(item, "//") || strings.HasPrefix(item, "@") {
		return item
	}
	return folder + "/" + item
}

func prefixed(folder string, items []string) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = folder + "/" + it
	}
	return out
}

func first(groups []nuget.FrameworkSpecificGroup) []string {
	if len(groups) == 0 {
		return nil
	}
	return groups[0].Items
}

func monikers(groups []nuget.FrameworkSpecificGroup) []framework.Moniker {
	out := make([]framework.Moniker, len(groups))
	for i, g := range groups {
		out[i] = g.TargetFramework
	}
	return out
}

func allEqual(lists [][]string) bool {
	for _, l := range lists[1:] {
		if !slices.Equal(l, lists[0]) {
			return false
		}
	}
	return true
}

func versions(group []*entry.Entry) int {
	var seen []string
	for _, e := range group {
		if f := e.Identity.Version.Folder(); !slices.Contains(seen, f) {
			seen = append(seen, f)
		}
	}
	return len(seen)
}

// primary returns the main entry of the highest version.
func primary(group []*entry.Entry) *entry.Entry {
	var best *entry.Entry
	for _, e := range group {
		if e.Kind == entry.KindBinary {
			continue
		}
		if best == nil || e.Identity.Version.Compare(best.Identity.Version) > 0 {
			best = e
		}
	}
	if best == nil {
		return group[0]
	}
	return best
}
