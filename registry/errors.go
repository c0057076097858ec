package registry

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common feed failures.
var (
	// ErrNotFound indicates the package or version does not exist in the feed.
	ErrNotFound = errors.New("package not found")

	// ErrRateLimited indicates the feed is rate limiting requests.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnauthorized indicates authentication is required or failed.
	ErrUnauthorized = errors.New("unauthorized")
)

// FeedError describes a failed feed request.
type FeedError struct {
	StatusCode int
	PackageID  string
	Version    string
	URL        string
}

func (e *FeedError) Error() string {
	subject := e.PackageID
	if e.Version != "" {
		subject += "@" + e.Version
	}
	if subject == "" {
		return fmt.Sprintf("feed returned status %d: %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("feed returned status %d for %s: %s", e.StatusCode, subject, e.URL)
}

// Unwrap maps the status code onto the package sentinels so callers can use errors.Is.
func (e *FeedError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	}
	return nil
}

// IsNotFound reports whether err means the package or version is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
