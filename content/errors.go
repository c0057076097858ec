package content

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAmbiguousCategory is returned when a single-valued asset category
// matches more than one group.
var ErrAmbiguousCategory = errors.New("ambiguous asset category")

// AmbiguousCategoryError names the package, category and competing groups.
type AmbiguousCategoryError struct {
	Package  string
	Category string
	Target   string
	Groups   []string
}

func (e *AmbiguousCategoryError) Error() string {
	return fmt.Sprintf("%s: %s assets for %s match %d groups (%s)",
		e.Package, e.Category, e.Target, len(e.Groups), strings.Join(e.Groups, ", "))
}

func (e *AmbiguousCategoryError) Unwrap() error { return ErrAmbiguousCategory }
