// Package selection implements NuGet's dependency version selection rules.
//
// The graph walker asks a Policy for one version per package ID. The policy
// sees every request for that ID at the shallowest depth where the ID
// appears, plus the versions the feeds offer.
//
// # Lowest Applicable Version
//
// From the NuGet documentation:
//
//	"The lowest applicable version rule restores the lowest possible version
//	of a package as defined by its dependencies."
//
// A floating range (1.*) instead selects the highest matching version.
//
// # Direct Dependency Wins
//
//	"When the package graph for an application contains different versions
//	of a package in the same subgraph, and one of those versions is a direct
//	dependency in that subgraph, that version will be chosen for that subgraph
//	and the rest will be ignored."
//
// The walker implements this by deciding IDs level by level: once an ID is
// decided at depth d, deeper requests never change it. A deeper request the
// decided version does not satisfy is reported as a Conflict.
//
// # Cousin Dependencies
//
//	"When different package versions are referred to at the same distance in
//	the graph from the application, NuGet uses the lowest version that
//	satisfies all version requirements."
//
// When no available version satisfies every request at the deciding depth,
// the highest of the individual lowest-applicable picks is used and the
// requests it misses are reported as conflicts.
//
// # References
//
//   - https://learn.microsoft.com/en-us/nuget/concepts/dependency-resolution
//   - https://learn.microsoft.com/en-us/nuget/concepts/package-versioning#version-ranges
package selection
