// Package nugetbzl generates Bazel BUILD files for NuGet packages.
//
// Given root package references and target frameworks, it resolves the
// transitive package closure with NuGet's version selection rules, selects
// the assets of every package for every target, reconciles them with the
// .NET targeting packs, and writes one BUILD file per package plus a root
// BUILD file declaring the framework flag.
//
// # Overview
//
// The pipeline is built from these packages:
//
//   - walker: resolves dependency graphs per framework and runtime
//   - store: downloads and extracts packages into a global packages folder
//   - content: selects refs, runtime items, analyzers and content files
//   - entry: turns selections into build targets
//   - conflict: replaces references provided by targeting packs
//   - render: formats BUILD files
//   - workspace: writes the output directory and its version links
//
// # Quick Start
//
//	refs, err := manifest.ReadAll([]string{"Packages.props"})
//	deps, err := manifest.Dependencies(refs)
//	result, err := nugetbzl.Generate(ctx, deps,
//	    nugetbzl.WithFrameworks("net8.0"),
//	    nugetbzl.WithNuGetConfig("nuget.config"),
//	    nugetbzl.WithOutputDir("external/nuget"),
//	)
//
// Only resolving, without downloads or output:
//
//	res, err := nugetbzl.Resolve(ctx, deps, nugetbzl.WithFrameworks("net8.0"))
//	g, _ := res.Graph("net8.0")
//	fmt.Print(g.ToText())
//
// # Lock Files
//
// With WithLockFile, a valid packages.lock.json pins every resolved
// version. A missing or outdated lock file is written after resolution,
// unless WithLockedMode is set, in which case ErrLockFileOutdated is returned.
//
// # Thread Safety
//
// Resolve and Generate may be called concurrently with distinct output
// directories.
package nugetbzl

import (
	"context"
	"fmt"

	"github.com/albertocavalcante/go-nugetbzl/manifest"
	"github.com/albertocavalcante/go-nugetbzl/nuget"
)

// Resolve resolves the dependency closure of deps for every configured
// target. Packages are only downloaded when a runtime-specific walk needs
// their runtime graphs.
func Resolve(ctx context.Context, deps []nuget.PackageDependency, opts ...Option) (*Resolution, error) {
	g, err := newGenerator(opts...)
	if err != nil {
		return nil, err
	}
	res, valid, err := g.resolve(ctx, deps)
	if err != nil {
		return nil, err
	}
	if err := g.finishLockFile(res, valid); err != nil {
		return nil, err
	}
	return res, nil
}

// ResolveFiles reads package references from Packages.props files or
// project directories and resolves them.
func ResolveFiles(ctx context.Context, paths []string, opts ...Option) (*Resolution, error) {
	deps, err := readReferences(paths)
	if err != nil {
		return nil, err
	}
	return Resolve(ctx, deps, opts...)
}

// Generate resolves deps, downloads every resolved package and writes the
// BUILD files, content file manifests and version links to the output
// directory. Unchanged files are left untouched.
func Generate(ctx context.Context, deps []nuget.PackageDependency, opts ...Option) (*Result, error) {
	g, err := newGenerator(opts...)
	if err != nil {
		return nil, err
	}
	return g.generate(ctx, deps)
}

// GenerateFiles reads package references from Packages.props files or
// project directories and generates their repository.
func GenerateFiles(ctx context.Context, paths []string, opts ...Option) (*Result, error) {
	deps, err := readReferences(paths)
	if err != nil {
		return nil, err
	}
	return Generate(ctx, deps, opts...)
}

func readReferences(paths []string) ([]nuget.PackageDependency, error) {
	refs, err := manifest.ReadAll(paths)
	if err != nil {
		return nil, fmt.Errorf("read package references: %w", err)
	}
	return manifest.Dependencies(refs)
}
