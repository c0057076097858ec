package lockfile

import "slices"

// Lock file format versions.
//
//	| Version | Written by                      | Notes                          |
//	|---------|---------------------------------|--------------------------------|
//	| 1       | NuGet 4.9+                      | Direct, Transitive, Project    |
//	| 2       | NuGet 6.0+ with central pinning | adds CentralTransitive entries |
//
// Both versions share the same layout; version 2 only adds a dependency type.
const (
	Version1 = 1
	Version2 = 2

	// CurrentVersion is the version written by New and FromGraphs.
	CurrentVersion = Version1
)

// KnownVersions returns the supported format versions in ascending order.
func KnownVersions() []int {
	return []int{Version1, Version2}
}

// IsSupported reports whether v is a known format version.
func IsSupported(v int) bool {
	return slices.Contains(KnownVersions(), v)
}
