package nugetbzl

import (
	"slices"
	"strings"

	"github.com/albertocavalcante/go-nugetbzl/lockfile"
	"github.com/albertocavalcante/go-nugetbzl/nuget"
	"github.com/albertocavalcante/go-nugetbzl/selection/version"
)

// PackageChange represents an added or removed package in a resolution diff.
type PackageChange struct {
	ID      string `json:"id"`
	Version string `json:"version"`
}

// PackageUpgrade represents a version change for an existing package.
type PackageUpgrade struct {
	ID         string `json:"id"`
	OldVersion string `json:"old_version"`
	NewVersion string `json:"new_version"`
}

// ResolutionDiff describes the differences between two resolutions.
//
// This is useful for:
//   - Reviewing dependency updates before regenerating BUILD files
//   - CI checks that a lock file matches the package references
//
// Example usage:
//
//	oldLock, _ := lockfile.ReadFile("packages.lock.json")
//	res, _ := Resolve(ctx, deps, opts...)
//	diff := DiffLockfiles(oldLock, res.LockFile)
//
//	if !diff.IsEmpty() {
//	    fmt.Printf("%d added, %d removed, %d upgraded, %d downgraded\n",
//	        len(diff.Added), len(diff.Removed), len(diff.Upgraded), len(diff.Downgraded))
//	}
type ResolutionDiff struct {
	// Added contains packages present in new but not in old.
	Added []PackageChange `json:"added,omitempty"`

	// Removed contains packages present in old but not in new.
	Removed []PackageChange `json:"removed,omitempty"`

	// Upgraded contains packages where the new version is higher.
	Upgraded []PackageUpgrade `json:"upgraded,omitempty"`

	// Downgraded contains packages where the new version is lower.
	Downgraded []PackageUpgrade `json:"downgraded,omitempty"`
}

// IsEmpty returns true if there are no differences between the resolutions.
func (d *ResolutionDiff) IsEmpty() bool {
	return d.TotalChanges() == 0
}

// TotalChanges returns the total number of changes (added + removed + upgraded + downgraded).
func (d *ResolutionDiff) TotalChanges() int {
	return len(d.Added) + len(d.Removed) + len(d.Upgraded) + len(d.Downgraded)
}

// DiffResolutions computes the difference between two resolutions. Package
// IDs are compared case-insensitively and versions with NuGet semantics, so
// "1.0" and "1.0.0" are equal. A nil resolution is treated as empty.
//
// Results are sorted by package ID for consistent output.
func DiffResolutions(old, new *Resolution) *ResolutionDiff {
	return diffPackages(resolutionPackages(old), resolutionPackages(new))
}

// DiffLockfiles computes the difference between the packages of two lock
// files, over all targets. When a package resolves to different versions
// in different targets, the highest is compared.
func DiffLockfiles(old, new *lockfile.Lockfile) *ResolutionDiff {
	return diffPackages(lockfilePackages(old), lockfilePackages(new))
}

type resolved struct {
	id      string
	version string
}

func resolutionPackages(r *Resolution) map[string]resolved {
	out := make(map[string]resolved)
	if r == nil {
		return out
	}
	for _, p := range r.Packages {
		keepHighest(out, p.ID, p.Version)
	}
	return out
}

func lockfilePackages(l *lockfile.Lockfile) map[string]resolved {
	out := make(map[string]resolved)
	if l == nil {
		return out
	}
	for _, deps := range l.Targets {
		for id, d := range deps {
			if d.Type == lockfile.TypeProject || d.Resolved == "" {
				continue
			}
			keepHighest(out, id, d.Resolved)
		}
	}
	return out
}

func keepHighest(m map[string]resolved, id, v string) {
	key := strings.ToLower(id)
	if cur, ok := m[key]; ok && version.Compare(v, cur.version) <= 0 {
		return
	}
	m[key] = resolved{id: id, version: v}
}

func diffPackages(oldPkgs, newPkgs map[string]resolved) *ResolutionDiff {
	diff := &ResolutionDiff{}

	for key, n := range newPkgs {
		o, existedBefore := oldPkgs[key]
		if !existedBefore {
			diff.Added = append(diff.Added, PackageChange{ID: n.id, Version: n.version})
			continue
		}
		switch c := version.Compare(n.version, o.version); {
		case c > 0:
			diff.Upgraded = append(diff.Upgraded, PackageUpgrade{ID: n.id, OldVersion: o.version, NewVersion: n.version})
		case c < 0:
			diff.Downgraded = append(diff.Downgraded, PackageUpgrade{ID: n.id, OldVersion: o.version, NewVersion: n.version})
		}
	}

	for key, o := range oldPkgs {
		if _, existsNow := newPkgs[key]; !existsNow {
			diff.Removed = append(diff.Removed, PackageChange{ID: o.id, Version: o.version})
		}
	}

	byID := func(a, b PackageChange) int { return nuget.CompareIDs(a.ID, b.ID) }
	upgradeByID := func(a, b PackageUpgrade) int { return nuget.CompareIDs(a.ID, b.ID) }
	slices.SortFunc(diff.Added, byID)
	slices.SortFunc(diff.Removed, byID)
	slices.SortFunc(diff.Upgraded, upgradeByID)
	slices.SortFunc(diff.Downgraded, upgradeByID)

	return diff
}
