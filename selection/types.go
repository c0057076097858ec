package selection

import (
	"fmt"
	"strings"

	"github.com/albertocavalcante/go-nugetbzl/selection/version"
)

// Request is one dependency edge asking for a package.
type Request struct {
	ID    string
	Range version.Range

	// Depth is the distance from the root project; direct references are 1.
	Depth int

	// Parent is the requesting package as "Id@1.0.0", or empty for the root.
	Parent string
}

func (r Request) String() string {
	from := r.Parent
	if from == "" {
		from = "root"
	}
	return fmt.Sprintf("%s %s (from %s)", r.ID, r.Range, from)
}

// Choice is the version picked for one package ID.
type Choice struct {
	ID      string
	Version version.Version

	// Depth is the depth at which the ID was decided.
	Depth int

	// Requests are the requests the decision was based on.
	Requests []Request
}

// Conflict records a request the selected version does not satisfy.
type Conflict struct {
	ID       string
	Selected version.Version
	Request  Request
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s: %s selected, but %s requires %s", c.ID, c.Selected, c.requester(), c.Request.Range)
}

func (c Conflict) requester() string {
	if c.Request.Parent == "" {
		return "the root project"
	}
	return c.Request.Parent
}

// Policy picks a version for a package ID.
type Policy interface {
	// Select decides the version for id from the requests at the shallowest
	// depth and the available versions. It returns an error when no
	// available version satisfies any request.
	Select(id string, requests []Request, available []version.Version) (Choice, []Conflict, error)
}

// Error codes for SelectionError.
const (
	CodeNoVersions        = "NO_VERSIONS"
	CodeNoMatchingVersion = "NO_MATCHING_VERSION"
	CodeNoRequests        = "NO_REQUESTS"
)

// SelectionError represents an error during version selection.
type SelectionError struct {
	Code    string
	ID      string
	Message string
}

func (e *SelectionError) Error() string {
	return e.Message
}

func noMatch(id string, requests []Request, available int) *SelectionError {
	ranges := make([]string, len(requests))
	for i, r := range requests {
		ranges[i] = r.Range.String()
	}
	return &SelectionError{
		Code:    CodeNoMatchingVersion,
		ID:      id,
		Message: fmt.Sprintf("no version of %s matches %s (%d available)", id, strings.Join(ranges, " and "), available),
	}
}
