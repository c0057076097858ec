// Package version implements NuGet package version parsing and comparison.
//
// NuGet versions follow SemVer 2.0 with a fourth "revision" component kept for
// compatibility with assembly-style versions:
//
//	MAJOR.MINOR.PATCH[.REVISION][-PRERELEASE][+METADATA]
//
// Reference: https://learn.microsoft.com/en-us/nuget/concepts/package-versioning
//
// Numeric components are compared with github.com/hashicorp/go-version.
// Prerelease labels are compared here because NuGet compares them
// case-insensitively, which go-version does not.
package version

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// Identifier is one dot-separated prerelease label.
type Identifier struct {
	IsDigitsOnly bool
	AsNumber     uint64 // Only valid if IsDigitsOnly
	AsString     string
}

// ParseIdentifier creates an Identifier from a label segment.
func ParseIdentifier(s string) Identifier {
	if s != "" && isDigits(s) {
		if num, err := strconv.ParseUint(s, 10, 64); err == nil {
			return Identifier{IsDigitsOnly: true, AsNumber: num, AsString: s}
		}
	}
	return Identifier{AsString: s}
}

// CompareIdentifiers compares two prerelease labels.
//
// Numeric labels sort before alphanumeric labels, numeric labels compare
// numerically, and alphanumeric labels compare case-insensitively.
func CompareIdentifiers(a, b Identifier) int {
	if a.IsDigitsOnly != b.IsDigitsOnly {
		if a.IsDigitsOnly {
			return -1
		}
		return 1
	}
	if a.IsDigitsOnly {
		return cmp.Compare(a.AsNumber, b.AsNumber)
	}
	return strings.Compare(strings.ToLower(a.AsString), strings.ToLower(b.AsString))
}

// Version is a parsed NuGet version. The zero value is not a valid version;
// use Parse or MustParse.
type Version struct {
	core       *goversion.Version
	segments   []int64
	Prerelease []Identifier
	Metadata   string
	original   string
}

// ParseError represents a version parsing error.
type ParseError struct {
	Version string
	Message string
}

func (e *ParseError) Error() string {
	return "bad version " + strconv.Quote(e.Version) + ": " + e.Message
}

// Parse parses a NuGet version string.
func Parse(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Version{}, &ParseError{Version: s, Message: "empty version"}
	}

	rest := raw
	var metadata string
	if i := strings.IndexByte(rest, '+'); i >= 0 {
		metadata = rest[i+1:]
		rest = rest[:i]
		if metadata == "" {
			return Version{}, &ParseError{Version: s, Message: "empty metadata"}
		}
	}

	var pre []Identifier
	if i := strings.IndexByte(rest, '-'); i >= 0 {
		label := rest[i+1:]
		rest = rest[:i]
		if label == "" {
			return Version{}, &ParseError{Version: s, Message: "empty prerelease label"}
		}
		for _, part := range strings.Split(label, ".") {
			if part == "" {
				return Version{}, &ParseError{Version: s, Message: "empty prerelease identifier"}
			}
			pre = append(pre, ParseIdentifier(part))
		}
	}

	parts := strings.Split(rest, ".")
	if len(parts) > 4 {
		return Version{}, &ParseError{Version: s, Message: "more than four numeric components"}
	}
	segments := make([]int64, 4)
	for i, p := range parts {
		if !isDigits(p) {
			return Version{}, &ParseError{Version: s, Message: "non-numeric component " + strconv.Quote(p)}
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return Version{}, &ParseError{Version: s, Message: err.Error()}
		}
		segments[i] = n
	}

	core, err := goversion.NewVersion(joinSegments(segments))
	if err != nil {
		return Version{}, &ParseError{Version: s, Message: err.Error()}
	}

	return Version{
		core:       core,
		segments:   segments,
		Prerelease: pre,
		Metadata:   metadata,
		original:   raw,
	}, nil
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// IsZero reports whether v is the zero Version.
func (v Version) IsZero() bool { return v.core == nil }

func (v Version) Major() int64    { return v.segment(0) }
func (v Version) Minor() int64    { return v.segment(1) }
func (v Version) Patch() int64    { return v.segment(2) }
func (v Version) Revision() int64 { return v.segment(3) }

func (v Version) segment(i int) int64 {
	if v.segments == nil {
		return 0
	}
	return v.segments[i]
}

// IsPrerelease reports whether the version carries prerelease labels.
func (v Version) IsPrerelease() bool { return len(v.Prerelease) > 0 }

// Original returns the string the version was parsed from.
func (v Version) Original() string { return v.original }

// String returns the normalized form: 1.0 becomes 1.0.0, the revision is kept
// only when non-zero, and metadata is dropped.
//
// Reference: https://learn.microsoft.com/en-us/nuget/concepts/package-versioning#normalized-version-numbers
func (v Version) String() string {
	if v.IsZero() {
		return ""
	}
	var b strings.Builder
	b.WriteString(strconv.FormatInt(v.Major(), 10))
	b.WriteByte('.')
	b.WriteString(strconv.FormatInt(v.Minor(), 10))
	b.WriteByte('.')
	b.WriteString(strconv.FormatInt(v.Patch(), 10))
	if v.Revision() > 0 {
		b.WriteByte('.')
		b.WriteString(strconv.FormatInt(v.Revision(), 10))
	}
	if len(v.Prerelease) > 0 {
		b.WriteByte('-')
		for i, id := range v.Prerelease {
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(id.AsString)
		}
	}
	return b.String()
}

// Folder returns the lowercase normalized form used for package folder names
// in the global packages folder and flat container URLs.
func (v Version) Folder() string {
	return strings.ToLower(v.String())
}

// Compare returns -1, 0 or 1. Metadata is ignored.
//
// Order:
//  1. Numeric components
//  2. Prerelease versions sort BEFORE release versions
//  3. Prerelease labels compared pairwise, shorter list first
func (v Version) Compare(o Version) int {
	switch {
	case v.IsZero() && o.IsZero():
		return 0
	case v.IsZero():
		return -1
	case o.IsZero():
		return 1
	}

	if c := v.core.Compare(o.core); c != 0 {
		return c
	}

	aPre, bPre := v.IsPrerelease(), o.IsPrerelease()
	if aPre != bPre {
		if aPre {
			return -1
		}
		return 1
	}
	return compareIdentifierLists(v.Prerelease, o.Prerelease)
}

// Equal reports whether v and o are the same version, ignoring metadata.
func (v Version) Equal(o Version) bool { return v.Compare(o) == 0 }

// LessThan reports whether v sorts before o.
func (v Version) LessThan(o Version) bool { return v.Compare(o) < 0 }

func compareIdentifierLists(a, b []Identifier) int {
	for i := range min(len(a), len(b)) {
		if c := CompareIdentifiers(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}

// Compare compares two version strings.
// Unparseable strings are compared lexicographically after valid ones.
func Compare(a, b string) int {
	va, errA := Parse(a)
	vb, errB := Parse(b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return 1
	case errB != nil:
		return -1
	}
	return va.Compare(vb)
}

// Sort sorts versions in ascending order.
func Sort(versions []Version) {
	slices.SortStableFunc(versions, Version.Compare)
}

// Max returns the higher of two versions.
func Max(a, b Version) Version {
	if a.Compare(b) >= 0 {
		return a
	}
	return b
}

func joinSegments(segments []int64) string {
	strs := make([]string, len(segments))
	for i, s := range segments {
		strs[i] = strconv.FormatInt(s, 10)
	}
	return strings.Join(strs, ".")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
