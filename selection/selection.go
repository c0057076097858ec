package selection

import (
	"fmt"
	"strings"

	"github.com/albertocavalcante/go-nugetbzl/selection/version"
)

// NuGet is the default policy: lowest applicable version, floating ranges
// to the highest match, cousins to the lowest version satisfying all of them.
type NuGet struct{}

var _ Policy = NuGet{}

// Select implements Policy.
func (NuGet) Select(id string, requests []Request, available []version.Version) (Choice, []Conflict, error) {
	if len(requests) == 0 {
		return Choice{}, nil, &SelectionError{Code: CodeNoRequests, ID: id, Message: "no requests for " + id}
	}
	if len(available) == 0 {
		return Choice{}, nil, &SelectionError{Code: CodeNoVersions, ID: id, Message: "no versions available for " + id}
	}

	sorted := append([]version.Version(nil), available...)
	version.Sort(sorted)

	// Each request's own pick; the cousin candidate is the highest of them.
	var candidate version.Version
	for _, r := range requests {
		v, ok := r.Range.BestMatch(sorted)
		if !ok {
			return Choice{}, nil, noMatch(id, []Request{r}, len(sorted))
		}
		if candidate.IsZero() || v.Compare(candidate) > 0 {
			candidate = v
		}
	}

	choice := Choice{ID: id, Version: candidate, Depth: requests[0].Depth, Requests: requests}

	var all []version.Version
	for _, v := range sorted {
		if satisfiesAll(v, requests) {
			all = append(all, v)
		}
	}
	if len(all) == 0 {
		return choice, Conflicts(choice, requests), nil
	}
	choice.Version = all[0]
	if anyFloating(requests) {
		choice.Version = all[len(all)-1]
	}
	return choice, nil, nil
}

func anyFloating(requests []Request) bool {
	for _, r := range requests {
		if r.Range.IsFloating() {
			return true
		}
	}
	return false
}

// Conflicts returns the requests that choice does not satisfy.
func Conflicts(choice Choice, requests []Request) []Conflict {
	var out []Conflict
	for _, r := range requests {
		if !Accepts(choice, r) {
			out = append(out, Conflict{ID: choice.ID, Selected: choice.Version, Request: r})
		}
	}
	return out
}

func satisfiesAll(v version.Version, requests []Request) bool {
	for _, r := range requests {
		if !r.Range.Satisfies(v) {
			return false
		}
	}
	return true
}

// Pinned prefers fixed versions, typically from a lock file, and defers to
// Fallback for IDs without a pin or whose pin is unavailable.
type Pinned struct {
	// Versions maps lowercase package IDs to pinned versions.
	Versions map[string]version.Version
	Fallback Policy
}

var _ Policy = (*Pinned)(nil)

// NewPinned returns a Pinned policy over pins keyed by any-case ID.
func NewPinned(pins map[string]version.Version, fallback Policy) *Pinned {
	if fallback == nil {
		fallback = NuGet{}
	}
	p := &Pinned{Versions: make(map[string]version.Version, len(pins)), Fallback: fallback}
	for id, v := range pins {
		p.Versions[strings.ToLower(id)] = v
	}
	return p
}

// Select implements Policy.
func (p *Pinned) Select(id string, requests []Request, available []version.Version) (Choice, []Conflict, error) {
	pin, ok := p.Versions[strings.ToLower(id)]
	if ok && contains(available, pin) {
		choice := Choice{ID: id, Version: pin, Requests: requests}
		if len(requests) > 0 {
			choice.Depth = requests[0].Depth
		}
		return choice, Conflicts(choice, requests), nil
	}
	fallback := p.Fallback
	if fallback == nil {
		fallback = NuGet{}
	}
	return fallback.Select(id, requests, available)
}

func contains(vs []version.Version, v version.Version) bool {
	for _, c := range vs {
		if c.Equal(v) {
			return true
		}
	}
	return false
}

// Accepts reports whether a request is satisfied by the chosen version.
func Accepts(choice Choice, r Request) bool {
	return r.Range.Satisfies(choice.Version)
}

// Describe renders a decision for diagnostics.
func Describe(choice Choice) string {
	parents := make([]string, 0, len(choice.Requests))
	for _, r := range choice.Requests {
		parents = append(parents, r.String())
	}
	return fmt.Sprintf("%s@%s at depth %d [%s]", choice.ID, choice.Version, choice.Depth, strings.Join(parents, "; "))
}
