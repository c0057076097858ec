package registry

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/albertocavalcante/go-nugetbzl/selection/version"
)

// NuGetOrg is the public nuget.org v3 service index.
const NuGetOrg = "https://api.nuget.org/v3/index.json"

// Feed is a package source.
type Feed interface {
	// Source returns the feed URL or path as configured.
	Source() string

	// ListVersions returns all versions of id, ascending. A missing package
	// is an error matching ErrNotFound.
	ListVersions(ctx context.Context, id string) ([]version.Version, error)

	// GetNuspec returns the raw manifest of a package version.
	GetNuspec(ctx context.Context, id string, v version.Version) ([]byte, error)

	// OpenPackage streams the .nupkg archive. The caller closes the reader.
	OpenPackage(ctx context.Context, id string, v version.Version) (io.ReadCloser, error)
}

// ServiceIndex is the v3 service index document.
//
// Reference: https://learn.microsoft.com/en-us/nuget/api/service-index
type ServiceIndex struct {
	Version   string     `json:"version"`
	Resources []Resource `json:"resources"`
}

// Resource is one entry of the service index.
type Resource struct {
	ID   string `json:"@id"`
	Type string `json:"@type"`
}

// PackageBaseAddressType is the flat container resource type.
const PackageBaseAddressType = "PackageBaseAddress/3.0.0"

// Find returns the URL of the first resource of the given type.
func (s *ServiceIndex) Find(resourceType string) (string, bool) {
	for _, r := range s.Resources {
		if r.Type == resourceType {
			return r.ID, true
		}
	}
	return "", false
}

// VersionIndex is the flat container {id}/index.json document.
type VersionIndex struct {
	Versions []string `json:"versions"`
}

// NewFeed creates a feed for a source string: http(s) URLs become remote
// clients, file:// URLs and existing directories become local feeds.
func NewFeed(source string, opts ...ClientOption) (Feed, error) {
	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return NewClient(source, opts...), nil
	case isFileURL(source):
		path, err := parseFileURL(source)
		if err != nil {
			return nil, err
		}
		return newLocalFeedChecked(path)
	default:
		return newLocalFeedChecked(source)
	}
}

func newLocalFeedChecked(path string) (Feed, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("local feed path does not exist: %s", path)
		}
		return nil, fmt.Errorf("cannot access local feed path %s: %w", path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local feed path is not a directory: %s", path)
	}
	return NewLocalFeed(path), nil
}
