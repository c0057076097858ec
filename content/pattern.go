// Package content selects the framework- and runtime-specific asset groups of
// an extracted package.
//
// A package's file list is reinterpreted as content items: a path matched
// against ordered pattern templates such as "lib/{tfm}/{assembly}", yielding
// the token values as item properties. Items with equal selector properties
// (tfm, rid, codeLanguage) form a group, and a group is picked per target by
// walking the runtime fallback chain and choosing the nearest compatible
// framework.
//
// Nothing in this package touches the filesystem.
//
// Reference: https://learn.microsoft.com/en-us/nuget/create-packages/supporting-multiple-target-frameworks
package content

import (
	"fmt"
	"path"
	"strings"

	"github.com/albertocavalcante/go-nugetbzl/framework"
)

// Property names used in pattern templates.
const (
	PropertyTFM          = "tfm"
	PropertyRID          = "rid"
	PropertyAssembly     = "assembly"
	PropertyAny          = "any"
	PropertyCodeLanguage = "codeLanguage"
)

// Placeholder marks an intentionally empty framework folder.
const Placeholder = "_._"

var assemblyExtensions = []string{".dll", ".exe", ".winmd"}

// part is a literal run or a {token}.
type part struct {
	literal string
	token   string
}

// Pattern is a compiled path template.
type Pattern struct {
	raw   string
	parts []part

	// defaultTFM applies to items matched by patterns without {tfm}, e.g.
	// lib/{assembly} which implies .NET Framework.
	defaultTFM framework.Moniker
}

// ParsePattern compiles a template. Tokens are {tfm}, {rid}, {assembly},
// {any} and {codeLanguage}; everything else is matched literally and
// case-insensitively.
func ParsePattern(template string) (Pattern, error) {
	p := Pattern{raw: template}
	rest := template
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			p.parts = append(p.parts, part{literal: rest})
			break
		}
		if open > 0 {
			p.parts = append(p.parts, part{literal: rest[:open]})
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return Pattern{}, fmt.Errorf("pattern %q: unterminated token", template)
		}
		name := rest[open+1 : open+end]
		switch name {
		case PropertyTFM, PropertyRID, PropertyAssembly, PropertyAny, PropertyCodeLanguage:
		default:
			return Pattern{}, fmt.Errorf("pattern %q: unknown token %q", template, name)
		}
		if n := len(p.parts); n > 0 && p.parts[n-1].token != "" {
			return Pattern{}, fmt.Errorf("pattern %q: adjacent tokens", template)
		}
		p.parts = append(p.parts, part{token: name})
		rest = rest[open+end+1:]
	}
	return p, nil
}

// MustPattern is like ParsePattern but panics on error.
func MustPattern(template string) Pattern {
	p, err := ParsePattern(template)
	if err != nil {
		panic(err)
	}
	return p
}

// WithDefaultFramework returns a copy of p whose items carry fw when the
// template has no {tfm} token.
func (p Pattern) WithDefaultFramework(fw framework.Moniker) Pattern {
	p.defaultTFM = fw
	return p
}

func (p Pattern) String() string { return p.raw }

// Match matches a package-relative path. It returns the item and whether
// the path matched.
func (p Pattern) Match(filePath string) (Item, bool) {
	props := make(map[string]string, 2)
	pos := 0
	for i, pt := range p.parts {
		if pt.token == "" {
			if len(filePath)-pos < len(pt.literal) || !strings.EqualFold(filePath[pos:pos+len(pt.literal)], pt.literal) {
				return Item{}, false
			}
			pos += len(pt.literal)
			continue
		}

		var value string
		if i+1 < len(p.parts) {
			j := indexFold(filePath[pos:], p.parts[i+1].literal)
			if j < 0 {
				return Item{}, false
			}
			value = filePath[pos : pos+j]
		} else {
			value = filePath[pos:]
		}
		if !validToken(pt.token, value) {
			return Item{}, false
		}
		props[pt.token] = value
		pos += len(value)
	}
	if pos != len(filePath) {
		return Item{}, false
	}

	item := Item{Path: filePath, Properties: props, Framework: p.defaultTFM}
	if raw, ok := props[PropertyTFM]; ok {
		fw, err := framework.Parse(raw)
		if err != nil {
			return Item{}, false
		}
		item.Framework = fw
	}
	return item, true
}

// indexFold is a case-insensitive strings.Index for ASCII literals.
func indexFold(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}

func validToken(token, value string) bool {
	if value == "" {
		return false
	}
	if token == PropertyAny {
		return true
	}
	if strings.Contains(value, "/") {
		return false
	}
	if token == PropertyAssembly {
		if value == Placeholder {
			return true
		}
		ext := strings.ToLower(path.Ext(value))
		for _, e := range assemblyExtensions {
			if ext == e {
				return true
			}
		}
		return false
	}
	return true
}

// PatternSet is an ordered list of patterns. An item belongs to the first
// pattern that matches it.
type PatternSet struct {
	Name     string
	Patterns []Pattern
}

// NewPatternSet returns a named set.
func NewPatternSet(name string, patterns ...Pattern) *PatternSet {
	return &PatternSet{Name: name, Patterns: patterns}
}

func (s *PatternSet) match(filePath string) (Item, bool) {
	for _, p := range s.Patterns {
		if item, ok := p.Match(filePath); ok {
			return item, true
		}
	}
	return Item{}, false
}
