// Package sdk holds the static .NET SDK knowledge the generator needs: the
// assemblies the SDK provides itself, the shared-framework targeting packs,
// and the pack version implied by a target framework.
//
// A Config is immutable once built and is passed to the selector and the
// conflict resolver as a constructor argument.
package sdk

import (
	"strconv"
	"strings"

	"github.com/albertocavalcante/go-nugetbzl/framework"
)

// Shared framework names as they appear in nuspec frameworkReference elements.
const (
	NETCoreApp     = "Microsoft.NETCore.App"
	AspNetCoreApp  = "Microsoft.AspNetCore.App"
	WindowsDesktop = "Microsoft.WindowsDesktop.App"
)

// NETStandardLibrary is the .NET Standard facade package. Edges to it are
// always dropped: every supported target provides it.
const NETStandardLibrary = "netstandard.library"

// DefaultStdlibLabel is the label template used to redirect SDK assembly
// edges on .NET Framework targets. "{id}" is replaced by the lowercase ID.
const DefaultStdlibLabel = "@net_stdlib//:{id}"

// targetingPacks maps shared frameworks to their reference packs.
var targetingPacks = map[string]string{
	strings.ToLower(NETCoreApp):     "Microsoft.NETCore.App.Ref",
	strings.ToLower(AspNetCoreApp):  "Microsoft.AspNetCore.App.Ref",
	strings.ToLower(WindowsDesktop): "Microsoft.WindowsDesktop.App.Ref",
}

// sdkAssemblies are package IDs whose assemblies ship in the SDK reference
// set. Old netstandard1.x packages depend on these as NuGet packages.
var sdkAssemblies = []string{
	"Microsoft.CSharp",
	"Microsoft.VisualBasic",
	"Microsoft.Win32.Primitives",
	"System.AppContext",
	"System.Collections",
	"System.Collections.Concurrent",
	"System.Collections.NonGeneric",
	"System.Collections.Specialized",
	"System.ComponentModel",
	"System.ComponentModel.Primitives",
	"System.ComponentModel.TypeConverter",
	"System.Console",
	"System.Diagnostics.Debug",
	"System.Diagnostics.Process",
	"System.Diagnostics.Tools",
	"System.Diagnostics.Tracing",
	"System.Dynamic.Runtime",
	"System.Globalization",
	"System.Globalization.Calendars",
	"System.Globalization.Extensions",
	"System.IO",
	"System.IO.Compression",
	"System.IO.Compression.ZipFile",
	"System.IO.FileSystem",
	"System.IO.FileSystem.Primitives",
	"System.Linq",
	"System.Linq.Expressions",
	"System.Linq.Queryable",
	"System.Net.Http",
	"System.Net.NameResolution",
	"System.Net.Primitives",
	"System.Net.Sockets",
	"System.ObjectModel",
	"System.Reflection",
	"System.Reflection.Emit",
	"System.Reflection.Emit.ILGeneration",
	"System.Reflection.Emit.Lightweight",
	"System.Reflection.Extensions",
	"System.Reflection.Primitives",
	"System.Reflection.TypeExtensions",
	"System.Resources.ResourceManager",
	"System.Runtime",
	"System.Runtime.Extensions",
	"System.Runtime.Handles",
	"System.Runtime.InteropServices",
	"System.Runtime.InteropServices.RuntimeInformation",
	"System.Runtime.Numerics",
	"System.Runtime.Serialization.Primitives",
	"System.Security.Cryptography.Algorithms",
	"System.Security.Cryptography.Encoding",
	"System.Security.Cryptography.Primitives",
	"System.Security.Cryptography.X509Certificates",
	"System.Text.Encoding",
	"System.Text.Encoding.Extensions",
	"System.Text.RegularExpressions",
	"System.Threading",
	"System.Threading.Tasks",
	"System.Threading.Thread",
	"System.Threading.ThreadPool",
	"System.Threading.Timer",
	"System.Xml.ReaderWriter",
	"System.Xml.XDocument",
	"System.Xml.XmlDocument",
}

// Config is the immutable SDK description.
type Config struct {
	assemblies   map[string]bool
	packs        map[string]string
	packVersions map[framework.Moniker]string
	stdlibLabel  string
	aspNetCore   bool
}

// Option customizes a Config.
type Option func(*Config)

// WithAssemblies adds package IDs to the SDK assembly allow-list.
func WithAssemblies(ids ...string) Option {
	return func(c *Config) {
		for _, id := range ids {
			c.assemblies[strings.ToLower(id)] = true
		}
	}
}

// WithPackVersion pins the targeting pack version for a framework.
func WithPackVersion(fw framework.Moniker, v string) Option {
	return func(c *Config) {
		c.packVersions[fw] = v
	}
}

// WithStdlibLabel sets the label template for .NET Framework redirects.
func WithStdlibLabel(template string) Option {
	return func(c *Config) {
		c.stdlibLabel = template
	}
}

// WithAspNetCore controls whether the ASP.NET Core targeting pack is always
// considered during conflict resolution.
func WithAspNetCore(enabled bool) Option {
	return func(c *Config) {
		c.aspNetCore = enabled
	}
}

// New builds a Config from the built-in tables and the given options.
func New(opts ...Option) *Config {
	c := &Config{
		assemblies:   make(map[string]bool, len(sdkAssemblies)),
		packs:        make(map[string]string, len(targetingPacks)),
		packVersions: make(map[framework.Moniker]string),
		stdlibLabel:  DefaultStdlibLabel,
		aspNetCore:   true,
	}
	for _, id := range sdkAssemblies {
		c.assemblies[strings.ToLower(id)] = true
	}
	for k, v := range targetingPacks {
		c.packs[k] = v
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Default returns the built-in configuration.
func Default() *Config { return New() }

// IsSDKAssembly reports whether id is provided by the SDK.
func (c *Config) IsSDKAssembly(id string) bool {
	return c.assemblies[strings.ToLower(id)]
}

// TargetingPack returns the reference pack for a shared framework name.
func (c *Config) TargetingPack(frameworkRef string) (string, bool) {
	p, ok := c.packs[strings.ToLower(frameworkRef)]
	return p, ok
}

// DefaultPacks returns the targeting packs considered for every resolution.
func (c *Config) DefaultPacks() []string {
	packs := []string{c.packs[strings.ToLower(NETCoreApp)]}
	if c.aspNetCore {
		packs = append(packs, c.packs[strings.ToLower(AspNetCoreApp)])
	}
	return packs
}

// PackVersion returns the targeting pack version for fw: a pinned value, or
// major.minor.0 derived from the framework version.
func (c *Config) PackVersion(fw framework.Moniker) (string, bool) {
	if v, ok := c.packVersions[fw]; ok {
		return v, true
	}
	if fw.Family != framework.NetCoreApp || fw.Major < 3 {
		return "", false
	}
	return strconv.Itoa(fw.Major) + "." + strconv.Itoa(fw.Minor) + ".0", true
}

// StdlibLabel returns the redirect label for an SDK assembly on .NET Framework.
func (c *Config) StdlibLabel(id string) string {
	return strings.ReplaceAll(c.stdlibLabel, "{id}", strings.ToLower(id))
}

// RedirectsSDKAssemblies reports whether SDK assembly edges on fw are
// redirected to stdlib targets instead of being dropped.
func RedirectsSDKAssemblies(fw framework.Moniker) bool {
	return fw.Family == framework.NetFramework
}
