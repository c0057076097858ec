package lockfile

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/albertocavalcante/go-nugetbzl/selection/version"
	"github.com/albertocavalcante/go-nugetbzl/walker"
)

// ErrInvalid means a lock file no longer matches its project.
var ErrInvalid = errors.New("lock file is out of date")

// InvalidError explains why a lock file cannot pin a resolution.
type InvalidError struct {
	Target string
	Reason string
}

func (e *InvalidError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("lock file is out of date: %s", e.Reason)
	}
	return fmt.Sprintf("lock file is out of date for %s: %s", e.Target, e.Reason)
}

func (e *InvalidError) Unwrap() error { return ErrInvalid }

// Validate reports whether the lock file can pin a walk of root. It fails
// when the format version is unknown, when the set of targets differs, or
// when a target's direct dependencies or their requested ranges changed.
func (l *Lockfile) Validate(root walker.RootProject) error {
	if !IsSupported(l.Version) {
		return &InvalidError{Reason: fmt.Sprintf("unsupported version %d", l.Version)}
	}

	var want []string
	for _, t := range root.Targets {
		want = append(want, t.Framework.String())
		if t.RuntimeIdentifier != "" {
			want = append(want, t.String())
		}
	}
	var have []string
	for key := range l.Targets {
		target, err := ParseTarget(key)
		if err != nil {
			return &InvalidError{Target: key, Reason: err.Error()}
		}
		have = append(have, target.String())
	}
	slices.Sort(want)
	want = slices.Compact(want)
	slices.Sort(have)
	if !slices.Equal(want, have) {
		return &InvalidError{Reason: fmt.Sprintf("targets %v, project has %v", have, want)}
	}

	requested := make(map[string]version.Range, len(root.Dependencies))
	for _, d := range root.Dependencies {
		requested[strings.ToLower(d.ID)] = d.Range
	}
	for key, deps := range l.Targets {
		direct := 0
		for id, d := range deps {
			if d.Type != TypeDirect {
				continue
			}
			direct++
			r, ok := requested[strings.ToLower(id)]
			if !ok {
				return &InvalidError{Target: key, Reason: fmt.Sprintf("%s is no longer referenced", id)}
			}
			if !sameRange(d.Requested, r) {
				return &InvalidError{Target: key, Reason: fmt.Sprintf("%s requested %s, project requests %s", id, d.Requested, r)}
			}
		}
		if direct != len(requested) {
			return &InvalidError{Target: key, Reason: fmt.Sprintf("%d direct dependencies locked, project has %d", direct, len(requested))}
		}
	}
	return nil
}

func sameRange(locked string, r version.Range) bool {
	parsed, err := version.ParseRange(locked)
	if err != nil {
		return false
	}
	return parsed.String() == r.String()
}
