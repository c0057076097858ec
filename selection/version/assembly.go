package version

import (
	"strconv"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// Assembly is a .NET assembly version: four numeric components
// (major.minor.build.revision) compared component-wise.
type Assembly struct {
	v *goversion.Version
}

// ParseAssembly parses an assembly version. Missing trailing components are zero.
func ParseAssembly(s string) (Assembly, error) {
	raw := strings.TrimSpace(s)
	parts := strings.Split(raw, ".")
	if raw == "" || len(parts) > 4 {
		return Assembly{}, &ParseError{Version: s, Message: "assembly version must have one to four numeric components"}
	}
	for _, p := range parts {
		if !isDigits(p) {
			return Assembly{}, &ParseError{Version: s, Message: "non-numeric component " + strconv.Quote(p)}
		}
	}
	for len(parts) < 4 {
		parts = append(parts, "0")
	}
	v, err := goversion.NewVersion(strings.Join(parts, "."))
	if err != nil {
		return Assembly{}, &ParseError{Version: s, Message: err.Error()}
	}
	return Assembly{v: v}, nil
}

// AssemblyFromParts builds an assembly version from its four components.
func AssemblyFromParts(major, minor, build, revision uint16) Assembly {
	a, _ := ParseAssembly(strings.Join([]string{
		strconv.Itoa(int(major)),
		strconv.Itoa(int(minor)),
		strconv.Itoa(int(build)),
		strconv.Itoa(int(revision)),
	}, "."))
	return a
}

var zeroAssembly = goversion.Must(goversion.NewVersion("0.0.0.0"))

// Compare returns -1, 0 or 1. The zero Assembly equals 0.0.0.0.
func (a Assembly) Compare(o Assembly) int {
	return a.version().Compare(o.version())
}

func (a Assembly) version() *goversion.Version {
	if a.v == nil {
		return zeroAssembly
	}
	return a.v
}

// String returns the four-component form, e.g. "4.0.1.0".
func (a Assembly) String() string {
	if a.v == nil {
		return "0.0.0.0"
	}
	segs := a.v.Segments64()
	strs := make([]string, 4)
	for i := range strs {
		var n int64
		if i < len(segs) {
			n = segs[i]
		}
		strs[i] = strconv.FormatInt(n, 10)
	}
	return strings.Join(strs, ".")
}
