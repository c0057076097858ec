package content

import (
	"path"
	"strings"

	"github.com/albertocavalcante/go-nugetbzl/framework"
	"github.com/albertocavalcante/go-nugetbzl/runtimegraph"
)

// Item is a package file matched by a pattern.
type Item struct {
	Path string

	// Properties holds the raw token values (tfm, rid, assembly, any, codeLanguage).
	Properties map[string]string

	// Framework is the parsed tfm property or the pattern default. It is
	// zero for patterns without a framework.
	Framework framework.Moniker
}

// IsPlaceholder reports whether the item is an empty-folder marker.
func (i Item) IsPlaceholder() bool {
	return path.Base(i.Path) == Placeholder
}

// Group is a set of items sharing selector properties.
type Group struct {
	Framework    framework.Moniker
	RID          string
	CodeLanguage string
	Items        []Item
}

// Paths returns the item paths, dropping placeholders.
func (g *Group) Paths() []string {
	if g == nil {
		return nil
	}
	out := make([]string, 0, len(g.Items))
	for _, it := range g.Items {
		if !it.IsPlaceholder() {
			out = append(out, it.Path)
		}
	}
	return out
}

type groupKey struct {
	fw   framework.Moniker
	rid  string
	lang string
}

// Criterion is one step of a selection: a framework and an optional RID.
// A criterion with an empty RID only accepts RID-less groups.
type Criterion struct {
	Framework framework.Moniker
	RID       string
}

// Criteria returns the ordered selection steps for a framework and runtime:
// every RID in the runtime fallback chain, most specific first, then the
// RID-less step.
func Criteria(fw framework.Moniker, rid string, graph *runtimegraph.Graph) []Criterion {
	var out []Criterion
	for _, r := range graph.Expand(rid) {
		out = append(out, Criterion{Framework: fw, RID: r})
	}
	return append(out, Criterion{Framework: fw})
}

// Collection is a package's file list viewed as content items.
type Collection struct {
	files []string
}

// NewCollection wraps package-relative paths. Backslashes are normalized.
func NewCollection(files []string) *Collection {
	c := &Collection{files: make([]string, 0, len(files))}
	for _, f := range files {
		c.files = append(c.files, strings.ReplaceAll(f, "\\", "/"))
	}
	return c
}

// FindItemGroups matches every file against set and groups the items by
// selector properties, in order of first appearance.
func (c *Collection) FindItemGroups(set *PatternSet) []*Group {
	var groups []*Group
	index := make(map[groupKey]*Group)
	for _, f := range c.files {
		item, ok := set.match(f)
		if !ok {
			continue
		}
		key := groupKey{fw: item.Framework, rid: item.Properties[PropertyRID], lang: strings.ToLower(item.Properties[PropertyCodeLanguage])}
		g, ok := index[key]
		if !ok {
			g = &Group{Framework: key.fw, RID: key.rid, CodeLanguage: key.lang}
			index[key] = g
			groups = append(groups, g)
		}
		g.Items = append(g.Items, item)
	}
	return groups
}

// FindBestItemGroup tries each pattern set in order and, within a set, each
// criterion in order. The first criterion that accepts any group returns the
// group nearest its framework. It returns nil when nothing matches.
func (c *Collection) FindBestItemGroup(criteria []Criterion, sets ...*PatternSet) *Group {
	for _, set := range sets {
		groups := c.FindItemGroups(set)
		if len(groups) == 0 {
			continue
		}
		for _, crit := range criteria {
			if best := nearestGroup(crit, groups); best != nil {
				return best
			}
		}
	}
	return nil
}

func nearestGroup(crit Criterion, groups []*Group) *Group {
	var candidates []*Group
	var monikers []framework.Moniker
	for _, g := range groups {
		if !accepts(crit, g) {
			continue
		}
		candidates = append(candidates, g)
		monikers = append(monikers, g.Framework)
	}
	if i := framework.Nearest(crit.Framework, monikers); i >= 0 {
		return candidates[i]
	}
	return nil
}

func accepts(crit Criterion, g *Group) bool {
	if !strings.EqualFold(crit.RID, g.RID) {
		return false
	}
	return framework.IsCompatible(crit.Framework, g.Framework)
}

// MatchKind classifies the outcome of a single-valued category lookup.
type MatchKind int

const (
	MatchEmpty MatchKind = iota
	MatchOk
	MatchAmbiguous
)

func (k MatchKind) String() string {
	switch k {
	case MatchOk:
		return "ok"
	case MatchAmbiguous:
		return "ambiguous"
	default:
		return "empty"
	}
}

// Match is the result of FindSingleItemGroup.
type Match struct {
	Kind MatchKind

	// Group is set for MatchOk.
	Group *Group

	// Candidates lists every group for MatchAmbiguous, nearest first.
	Candidates []*Group
}

// FindSingleItemGroup looks for exactly one group of set that is usable on
// fw. Groups without a framework are usable everywhere.
func (c *Collection) FindSingleItemGroup(set *PatternSet, fw framework.Moniker) Match {
	var usable []*Group
	for _, g := range c.FindItemGroups(set) {
		if g.Framework.IsZero() || framework.IsCompatible(fw, g.Framework) {
			usable = append(usable, g)
		}
	}
	switch len(usable) {
	case 0:
		return Match{Kind: MatchEmpty}
	case 1:
		return Match{Kind: MatchOk, Group: usable[0]}
	}

	// Order candidates nearest first so a first-match fallback is stable.
	ordered := make([]*Group, 0, len(usable))
	rest := append([]*Group(nil), usable...)
	for len(rest) > 0 {
		monikers := make([]framework.Moniker, len(rest))
		for i, g := range rest {
			monikers[i] = g.Framework
		}
		i := framework.Nearest(fw, monikers)
		if i < 0 {
			i = 0
		}
		ordered = append(ordered, rest[i])
		rest = append(rest[:i], rest[i+1:]...)
	}
	return Match{Kind: MatchAmbiguous, Candidates: ordered}
}
