package nugetbzl

import (
	"github.com/albertocavalcante/go-nugetbzl/conflict"
	"github.com/albertocavalcante/go-nugetbzl/content"
	"github.com/albertocavalcante/go-nugetbzl/lockfile"
	"github.com/albertocavalcante/go-nugetbzl/walker"
)

// Sentinel errors for common generation failures. They can be matched with
// errors.Is against any error returned by this package.
var (
	// ErrPackageNotFound indicates a referenced package exists in no source.
	ErrPackageNotFound = walker.ErrPackageNotFound

	// ErrVersionNotFound indicates no version of a package satisfies a range.
	ErrVersionNotFound = walker.ErrVersionNotFound

	// ErrMissingManifest indicates a targeting pack without data/FrameworkList.xml.
	ErrMissingManifest = conflict.ErrMissingManifest

	// ErrAmbiguousCategory indicates a package with several equally near
	// groups for a single-valued category, such as debug runtime assemblies.
	ErrAmbiguousCategory = content.ErrAmbiguousCategory

	// ErrLockFileOutdated indicates the lock file does not match the
	// references while locked mode is enabled.
	ErrLockFileOutdated = lockfile.ErrInvalid
)
