package version

import (
	"strings"
)

// Range is a NuGet version range in interval notation.
//
//	1.0         x >= 1.0
//	(1.0,)      x > 1.0
//	[1.0]       x == 1.0
//	(,1.0]      x <= 1.0
//	[1.0,2.0)   1.0 <= x < 2.0
//	1.*         highest 1.x
//
// Reference: https://learn.microsoft.com/en-us/nuget/concepts/package-versioning#version-ranges
type Range struct {
	Min          *Version
	MinInclusive bool
	Max          *Version
	MaxInclusive bool

	// Float holds the fixed numeric prefix for floating ranges such as "1.*".
	// A non-nil empty slice means "*".
	Float []int64

	original string
}

// All matches every release version.
var All = Range{original: ""}

// ParseRange parses a version range. An empty string means any version.
func ParseRange(s string) (Range, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return All, nil
	}

	if strings.Contains(raw, "*") {
		return parseFloat(raw)
	}

	first, last := raw[0], raw[len(raw)-1]
	if first != '[' && first != '(' {
		v, err := Parse(raw)
		if err != nil {
			return Range{}, &ParseError{Version: s, Message: "invalid range: " + err.Error()}
		}
		return Range{Min: &v, MinInclusive: true, original: raw}, nil
	}
	if last != ']' && last != ')' {
		return Range{}, &ParseError{Version: s, Message: "unterminated range"}
	}

	inner := raw[1 : len(raw)-1]
	r := Range{
		MinInclusive: first == '[',
		MaxInclusive: last == ']',
		original:     raw,
	}

	minStr, maxStr, hasComma := strings.Cut(inner, ",")
	if !hasComma {
		// Exact match requires [x].
		if !r.MinInclusive || !r.MaxInclusive {
			return Range{}, &ParseError{Version: s, Message: "exact range must use [x]"}
		}
		v, err := Parse(inner)
		if err != nil {
			return Range{}, &ParseError{Version: s, Message: "invalid range: " + err.Error()}
		}
		r.Min, r.Max = &v, &v
		return r, nil
	}
	if strings.Contains(maxStr, ",") {
		return Range{}, &ParseError{Version: s, Message: "too many range bounds"}
	}

	minStr, maxStr = strings.TrimSpace(minStr), strings.TrimSpace(maxStr)
	if minStr == "" && maxStr == "" {
		return Range{}, &ParseError{Version: s, Message: "range has no bounds"}
	}
	if minStr != "" {
		v, err := Parse(minStr)
		if err != nil {
			return Range{}, &ParseError{Version: s, Message: "invalid lower bound: " + err.Error()}
		}
		r.Min = &v
	}
	if maxStr != "" {
		v, err := Parse(maxStr)
		if err != nil {
			return Range{}, &ParseError{Version: s, Message: "invalid upper bound: " + err.Error()}
		}
		r.Max = &v
	}
	if r.Min != nil && r.Max != nil {
		c := r.Min.Compare(*r.Max)
		if c > 0 || (c == 0 && !(r.MinInclusive && r.MaxInclusive)) {
			return Range{}, &ParseError{Version: s, Message: "empty range"}
		}
	}
	return r, nil
}

// MustParseRange is like ParseRange but panics on error.
func MustParseRange(s string) Range {
	r, err := ParseRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Exact returns the range [v].
func Exact(v Version) Range {
	return Range{Min: &v, MinInclusive: true, Max: &v, MaxInclusive: true, original: "[" + v.String() + "]"}
}

// AtLeast returns the range [v, ).
func AtLeast(v Version) Range {
	return Range{Min: &v, MinInclusive: true, original: v.String()}
}

func parseFloat(raw string) (Range, error) {
	if raw == "*" {
		zero := MustParse("0.0.0")
		return Range{Min: &zero, MinInclusive: true, Float: []int64{}, original: raw}, nil
	}
	prefix, ok := strings.CutSuffix(raw, ".*")
	if !ok || strings.Contains(prefix, "*") {
		return Range{}, &ParseError{Version: raw, Message: "unsupported floating range"}
	}
	base, err := Parse(prefix)
	if err != nil {
		return Range{}, &ParseError{Version: raw, Message: "invalid floating range: " + err.Error()}
	}
	if base.IsPrerelease() {
		return Range{}, &ParseError{Version: raw, Message: "floating prerelease ranges are not supported"}
	}
	n := len(strings.Split(prefix, "."))
	if n >= 4 {
		return Range{}, &ParseError{Version: raw, Message: "floating range has no free component"}
	}
	return Range{
		Min:          &base,
		MinInclusive: true,
		Float:        base.segments[:n:n],
		original:     raw,
	}, nil
}

// IsFloating reports whether the range floats to the highest matching version.
func (r Range) IsFloating() bool { return r.Float != nil }

// Satisfies reports whether v lies in the range. Prerelease versions are only
// accepted when one of the bounds is itself a prerelease.
func (r Range) Satisfies(v Version) bool {
	if v.IsZero() {
		return false
	}
	if v.IsPrerelease() && !r.allowsPrerelease() {
		return false
	}
	if r.Min != nil {
		c := v.Compare(*r.Min)
		if c < 0 || (c == 0 && !r.MinInclusive) {
			return false
		}
	}
	if r.Max != nil {
		c := v.Compare(*r.Max)
		if c > 0 || (c == 0 && !r.MaxInclusive) {
			return false
		}
	}
	if r.Float != nil {
		for i, seg := range r.Float {
			if v.segments[i] != seg {
				return false
			}
		}
	}
	return true
}

func (r Range) allowsPrerelease() bool {
	return (r.Min != nil && r.Min.IsPrerelease()) || (r.Max != nil && r.Max.IsPrerelease())
}

// BestMatch picks the version NuGet would select from the candidates: the
// lowest applicable version, or the highest matching version for floating
// ranges. It returns false if nothing satisfies the range.
//
// Reference: https://learn.microsoft.com/en-us/nuget/concepts/dependency-resolution#lowest-applicable-version
func (r Range) BestMatch(candidates []Version) (Version, bool) {
	var best Version
	found := false
	for _, c := range candidates {
		if !r.Satisfies(c) {
			continue
		}
		switch {
		case !found:
			best, found = c, true
		case r.IsFloating() && c.Compare(best) > 0:
			best = c
		case !r.IsFloating() && c.Compare(best) < 0:
			best = c
		}
	}
	return best, found
}

// Original returns the string the range was parsed from.
func (r Range) Original() string { return r.original }

// String returns the normalized interval form used in lock files, e.g. "[1.0.0, )".
func (r Range) String() string {
	if r.IsFloating() {
		return r.original
	}
	if r.Min == nil && r.Max == nil {
		return "(, )"
	}
	if r.Min != nil && r.Max != nil && r.MinInclusive && r.MaxInclusive && r.Min.Equal(*r.Max) {
		return "[" + r.Min.String() + "]"
	}

	var b strings.Builder
	if r.Min != nil && r.MinInclusive {
		b.WriteByte('[')
	} else {
		b.WriteByte('(')
	}
	if r.Min != nil {
		b.WriteString(r.Min.String())
	}
	b.WriteString(", ")
	if r.Max != nil {
		b.WriteString(r.Max.String())
	}
	if r.Max != nil && r.MaxInclusive {
		b.WriteByte(']')
	} else {
		b.WriteByte(')')
	}
	return b.String()
}
