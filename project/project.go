// Package project generates BUILD files for the C# projects of a workspace.
//
// Every *.csproj below the workspace root gets a BUILD file next to it with
// one rule named after the project file: core_binary for executables,
// core_nunit3_test for projects named *Test or *Tests, and core_library
// otherwise. Package references become labels into the external NuGet
// repository; project references become labels of the referenced projects,
// unless an import redirects them to a target built elsewhere.
//
// A few MSBuild properties steer generation:
//
//	<BazelData>//data:a;//data:b</BazelData>    extra data labels
//	<BazelSrcs>gen/**/*.cs</BazelSrcs>          source globs replacing **/*.cs
//	<BazelTestOnly>true</BazelTestOnly>         testonly = True
//	<Nullable>enable</Nullable>                 nullable = True
package project

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/albertocavalcante/go-nugetbzl/framework"
	"github.com/albertocavalcante/go-nugetbzl/label"
)

// Extension is the extension of generated project files.
const Extension = ".csproj"

// Package IDs with special meaning in project files.
const (
	targetingPack = "Microsoft.NETCore.App.Ref"
	testSDK       = "Microsoft.NET.Test.Sdk"
	webSDK        = "Microsoft.NET.Sdk.Web"
)

// testSDKPackages replace a reference to the test SDK meta package.
var testSDKPackages = []string{"Microsoft.TestPlatform.TestHost", "Microsoft.CodeCoverage"}

// Kind is the kind of rule a project becomes.
type Kind int

const (
	Library Kind = iota
	Binary
	Test
)

// Rule returns the rules_dotnet rule of the kind.
func (k Kind) Rule() string {
	switch k {
	case Binary:
		return "core_binary"
	case Test:
		return "core_nunit3_test"
	default:
		return "core_library"
	}
}

func (k Kind) String() string {
	switch k {
	case Binary:
		return "binary"
	case Test:
		return "test"
	default:
		return "library"
	}
}

// ResourceOp is the item operation of an EmbeddedResource element.
type ResourceOp int

const (
	ResourceInclude ResourceOp = iota
	ResourceRemove
	ResourceUpdate
)

// Resource is an EmbeddedResource item with a slash-separated path.
type Resource struct {
	Op   ResourceOp
	Path string
}

// Definition is what generation needs to know about one project file.
type Definition struct {
	// Path is the slash-separated project file path relative to the
	// workspace root.
	Path string
	Name string
	Kind Kind

	TargetFramework string
	SDK             string
	RootNamespace   string

	// Packages are NuGet package IDs in reference order, starting with the
	// targeting pack for projects that do not target .NET Framework.
	Packages []string

	// Projects are labels of referenced projects and imported targets.
	Projects []string

	Data         []string
	Resources    []Resource
	CopyToOutput []string
	Srcs         []string

	TestOnly bool
	Nullable bool
}

// Dir returns the Bazel package of the project.
func (d *Definition) Dir() string {
	if dir := path.Dir(d.Path); dir != "." {
		return dir
	}
	return ""
}

// Label returns the label of the project's rule.
func (d *Definition) Label() string {
	return "//" + d.Dir() + ":" + d.Name
}

// IsWeb reports whether the project uses the ASP.NET Core SDK.
func (d *Definition) IsWeb() bool { return d.SDK == webSDK }

// Namespace returns the root namespace, defaulting to the project name.
func (d *Definition) Namespace() string {
	if d.RootNamespace != "" {
		return d.RootNamespace
	}
	return d.Name
}

// IsNetStandard reports whether the project targets .NET Standard.
func (d *Definition) IsNetStandard() bool {
	return strings.Contains(strings.ToLower(d.TargetFramework), "netstandard")
}

// ParseFile reads the project file at rel below root.
func ParseFile(root, rel string, imports label.Imports) (*Definition, error) {
	f, err := os.Open(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, fmt.Errorf("failed to read project file: %w", err)
	}
	defer f.Close()
	return Parse(f, rel, imports)
}

// Parse reads a project file whose workspace-relative path is rel. Imports
// redirect package and project references, by name, to targets built in
// other repositories.
func Parse(r io.Reader, rel string, imports label.Imports) (*Definition, error) {
	rel = normalize(rel)
	d := &Definition{
		Path: rel,
		Name: strings.TrimSuffix(path.Base(rel), path.Ext(rel)),
	}
	if strings.HasSuffix(rel, "Test"+Extension) || strings.HasSuffix(rel, "Tests"+Extension) {
		d.Kind = Test
	}

	p := &parser{def: d, imports: imports}
	if err := p.parse(xml.NewDecoder(r)); err != nil {
		return nil, fmt.Errorf("invalid project file %s: %w", rel, err)
	}

	if !d.isNetFramework() {
		d.Packages = append([]string{targetingPack}, d.Packages...)
	}
	return d, nil
}

func (d *Definition) isNetFramework() bool {
	if d.TargetFramework == "" {
		return false
	}
	fw, err := framework.Parse(d.TargetFramework)
	return err == nil && fw.Family == framework.NetFramework
}

type parser struct {
	def     *Definition
	imports label.Imports

	outputTypeSeen bool
	stack          []xml.StartElement
}

func (p *parser) parse(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			handled, err := p.start(dec, t)
			if err != nil {
				return err
			}
			if !handled {
				p.stack = append(p.stack, t)
			}
		case xml.EndElement:
			if len(p.stack) > 0 {
				p.stack = p.stack[:len(p.stack)-1]
			}
		}
	}
}

// start handles one element. It reports whether the element was consumed,
// in which case no end element follows for it.
func (p *parser) start(dec *xml.Decoder, el xml.StartElement) (bool, error) {
	d := p.def
	switch el.Name.Local {
	case "Project":
		if len(p.stack) == 0 {
			d.SDK = attr(el, "Sdk")
		}
	case "PackageReference":
		id := attr(el, "Include")
		if id == "" {
			// Update items only pin versions.
			return false, nil
		}
		if target, ok := p.lookup(id); ok {
			d.Projects = append(d.Projects, target)
		} else if strings.EqualFold(id, testSDK) {
			d.Packages = append(d.Packages, testSDKPackages...)
		} else {
			d.Packages = append(d.Packages, id)
		}
	case "FrameworkReference":
		if id := attr(el, "Include"); id != "" {
			d.Packages = append(d.Packages, id+".Ref")
		}
	case "ProjectReference":
		include := normalize(attr(el, "Include"))
		if include == "" {
			return false, errors.New("ProjectReference without Include")
		}
		name := strings.TrimSuffix(path.Base(include), path.Ext(include))
		if target, ok := p.lookup(name); ok {
			d.Projects = append(d.Projects, target)
			break
		}
		ref := path.Join(path.Dir(d.Path), include)
		if ref == ".." || strings.HasPrefix(ref, "../") {
			return false, fmt.Errorf("project reference %s is outside the workspace", include)
		}
		dir := path.Dir(ref)
		if dir == "." {
			dir = ""
		}
		d.Projects = append(d.Projects, "//"+dir+":"+name)
	case "EmbeddedResource":
		for _, a := range []struct {
			name string
			op   ResourceOp
		}{{"Include", ResourceInclude}, {"Remove", ResourceRemove}, {"Update", ResourceUpdate}} {
			if v := attr(el, a.name); v != "" {
				d.Resources = append(d.Resources, Resource{Op: a.op, Path: normalize(v)})
			}
		}
	case "CopyToOutputDirectory":
		if len(p.stack) > 0 {
			parent := p.stack[len(p.stack)-1]
			include := attr(parent, "Include")
			if include == "" {
				include = attr(parent, "Update")
			}
			if include != "" {
				d.CopyToOutput = append(d.CopyToOutput, normalize(include))
			}
		}
	case "OutputType", "TargetFramework", "RootNamespace", "Nullable", "BazelData", "BazelSrcs", "BazelTestOnly":
		var v struct {
			Text string `xml:",chardata"`
		}
		if err := dec.DecodeElement(&v, &el); err != nil {
			return false, err
		}
		p.property(el.Name.Local, strings.TrimSpace(v.Text))
		return true, nil
	}
	return false, nil
}

// property records a property value. The last definition wins, except for
// OutputType where the first one does.
func (p *parser) property(name, value string) {
	d := p.def
	switch name {
	case "OutputType":
		if !p.outputTypeSeen && strings.EqualFold(value, "Exe") {
			d.Kind = Binary
		}
		p.outputTypeSeen = true
	case "TargetFramework":
		d.TargetFramework = value
	case "RootNamespace":
		d.RootNamespace = value
	case "Nullable":
		d.Nullable = strings.EqualFold(value, "enable")
	case "BazelData":
		d.Data = append(d.Data, split(value)...)
	case "BazelSrcs":
		d.Srcs = split(value)
	case "BazelTestOnly":
		d.TestOnly = strings.EqualFold(value, "true")
	}
}

func (p *parser) lookup(name string) (string, bool) {
	if imps := p.imports.Lookup(name); len(imps) > 0 {
		return imps[0].Target, true
	}
	return "", false
}

func attr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}

// split splits an MSBuild item list.
func split(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, normalize(s))
		}
	}
	return out
}

// normalize converts MSBuild path separators.
func normalize(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}
