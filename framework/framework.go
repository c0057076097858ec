// Package framework parses NuGet target framework monikers and implements the
// compatibility order used to pick the nearest framework-specific asset group.
//
// Monikers are parsed once at the boundary (folder names, nuspec attributes,
// command-line flags) into a structured Moniker. All comparisons work on the
// structured form.
//
// Reference: https://learn.microsoft.com/en-us/nuget/reference/target-frameworks
package framework

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// Family is a framework identifier.
type Family string

const (
	NetFramework Family = ".NETFramework"
	NetStandard  Family = ".NETStandard"
	NetCoreApp   Family = ".NETCoreApp"
	Any          Family = "Any"
	Native       Family = "native"

	// Unsupported covers frameworks this package does not model (portable
	// profiles, Xamarin, UWP). Such monikers only match themselves.
	Unsupported Family = "Unsupported"
)

// Moniker is a parsed target framework. It is comparable and can be used as a map key.
type Moniker struct {
	Family   Family
	Major    int
	Minor    int
	Build    int
	Platform string // e.g. "windows" in net6.0-windows

	raw string // original folder name for Unsupported monikers
}

// ParseError is returned for strings that name a known framework family but
// carry a malformed version.
type ParseError struct {
	Input   string
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("bad framework %q: %s", e.Input, e.Message)
}

// Parse parses a short folder name (netcoreapp3.1, net48, net6.0-windows,
// netstandard2.0, any) or a long name (.NETFramework,Version=v4.7.2).
// Unknown identifiers yield an Unsupported moniker rather than an error.
func Parse(s string) (Moniker, error) {
	in := strings.ToLower(strings.TrimSpace(s))
	if in == "" {
		return Moniker{}, &ParseError{Input: s, Message: "empty framework"}
	}
	if strings.HasPrefix(in, ".") || strings.Contains(in, ",version=") {
		return parseLong(s, in)
	}

	switch in {
	case "any":
		return Moniker{Family: Any}, nil
	case "native":
		return Moniker{Family: Native}, nil
	}

	var platform string
	if i := strings.IndexByte(in, '-'); i >= 0 {
		platform = stripPlatformVersion(in[i+1:])
		in = in[:i]
	}

	switch {
	case strings.HasPrefix(in, "netstandard"):
		return parseDotted(s, NetStandard, strings.TrimPrefix(in, "netstandard"), platform)
	case strings.HasPrefix(in, "netcoreapp"):
		return parseDotted(s, NetCoreApp, strings.TrimPrefix(in, "netcoreapp"), platform)
	case strings.HasPrefix(in, "net") && isNumeric(strings.TrimPrefix(in, "net")):
		rest := strings.TrimPrefix(in, "net")
		if strings.Contains(rest, ".") {
			m, err := parseDotted(s, NetCoreApp, rest, platform)
			if err != nil {
				return Moniker{}, err
			}
			if m.Major < 5 {
				m.Family = NetFramework
			}
			return m, nil
		}
		return parseCompact(s, rest)
	}

	return Moniker{Family: Unsupported, raw: strings.ToLower(strings.TrimSpace(s))}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Moniker {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

func parseLong(orig, in string) (Moniker, error) {
	ident, rest, _ := strings.Cut(in, ",")
	var ver string
	// Nuspec groups often use the compact long form: .NETStandard2.0
	if i := strings.IndexAny(ident, "0123456789"); i > 0 {
		ident, ver = ident[:i], strings.TrimPrefix(ident[i:], "v")
	}
	for _, kv := range strings.Split(rest, ",") {
		k, v, _ := strings.Cut(strings.TrimSpace(kv), "=")
		if k == "version" {
			ver = strings.TrimPrefix(v, "v")
		}
	}
	var family Family
	switch strings.TrimSpace(ident) {
	case ".netframework":
		family = NetFramework
	case ".netstandard":
		family = NetStandard
	case ".netcoreapp":
		family = NetCoreApp
	default:
		return Moniker{Family: Unsupported, raw: in}, nil
	}
	if ver == "" {
		return Moniker{}, &ParseError{Input: orig, Message: "missing version"}
	}
	return parseDotted(orig, family, ver, "")
}

func parseDotted(orig string, family Family, ver, platform string) (Moniker, error) {
	parts := strings.Split(ver, ".")
	if ver == "" || len(parts) > 4 {
		return Moniker{}, &ParseError{Input: orig, Message: "invalid version " + strconv.Quote(ver)}
	}
	nums := [3]int{}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Moniker{}, &ParseError{Input: orig, Message: "invalid version " + strconv.Quote(ver)}
		}
		if i < 3 {
			nums[i] = n
		}
	}
	return Moniker{Family: family, Major: nums[0], Minor: nums[1], Build: nums[2], Platform: platform}, nil
}

// parseCompact handles the .NET Framework digit form: net48, net472, net4.
func parseCompact(orig, digits string) (Moniker, error) {
	if digits == "" || len(digits) > 3 {
		return Moniker{}, &ParseError{Input: orig, Message: "invalid .NET Framework version"}
	}
	nums := [3]int{}
	for i, r := range digits {
		nums[i] = int(r - '0')
	}
	return Moniker{Family: NetFramework, Major: nums[0], Minor: nums[1], Build: nums[2]}, nil
}

func stripPlatformVersion(p string) string {
	return strings.TrimRightFunc(p, func(r rune) bool { return r == '.' || (r >= '0' && r <= '9') })
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}

// IsZero reports whether m is the zero Moniker.
func (m Moniker) IsZero() bool { return m.Family == "" }

// String returns the short folder name.
func (m Moniker) String() string {
	switch m.Family {
	case Any:
		return "any"
	case Native:
		return "native"
	case Unsupported:
		return m.raw
	case NetFramework:
		s := "net" + strconv.Itoa(m.Major) + strconv.Itoa(m.Minor)
		if m.Build > 0 {
			s += strconv.Itoa(m.Build)
		}
		return s
	case NetStandard:
		return "netstandard" + m.dotted()
	case NetCoreApp:
		if m.Major >= 5 {
			s := "net" + m.dotted()
			if m.Platform != "" {
				s += "-" + m.Platform
			}
			return s
		}
		return "netcoreapp" + m.dotted()
	}
	return ""
}

func (m Moniker) dotted() string {
	s := strconv.Itoa(m.Major) + "." + strconv.Itoa(m.Minor)
	if m.Build > 0 {
		s += "." + strconv.Itoa(m.Build)
	}
	return s
}

// compareVersion orders two monikers of the same family by version.
func compareVersion(a, b Moniker) int {
	if c := cmp.Compare(a.Major, b.Major); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Minor, b.Minor); c != 0 {
		return c
	}
	return cmp.Compare(a.Build, b.Build)
}
