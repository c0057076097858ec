// Package registry fetches NuGet packages from package sources.
//
// Three feed kinds are supported:
//
//   - Remote NuGet v3 feeds, discovered through the service index
//     (https://api.nuget.org/v3/index.json) and read through the
//     PackageBaseAddress (flat container) resource.
//   - Local folder feeds, either flat ({root}/{id}.{version}.nupkg) or
//     hierarchical ({root}/{id}/{version}/{id}.{version}.nupkg).
//   - A Chain of feeds, tried in order, that remembers which feed served
//     each package ID. Package source mapping restricts IDs to named feeds.
//
// # Flat Container Layout
//
//	{base}/{id}/index.json                     # {"versions": [...]}
//	{base}/{id}/{version}/{id}.{version}.nupkg # package archive
//	{base}/{id}/{version}/{id}.nuspec          # manifest
//
// IDs and versions in URLs are lowercase; versions are normalized.
//
// Reference: https://learn.microsoft.com/en-us/nuget/api/package-base-address-resource
//
// # Usage
//
//	feed, err := registry.NewFeed("https://api.nuget.org/v3/index.json")
//	versions, err := feed.ListVersions(ctx, "Newtonsoft.Json")
//
// Sources can also be read from nuget.config:
//
//	cfg, err := registry.LoadConfig("nuget.config")
//	chain, err := cfg.Chain()
package registry
