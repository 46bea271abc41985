package classify

import (
	"fmt"

	"bistrobooks/internal/domain"
)

// AmbiguousTypeError reports a payload whose transaction type could not be
// resolved: the declared type matches neither canonical type and the
// category resolves into neither taxonomy (or into both). The pipeline
// never fabricates a default type.
type AmbiguousTypeError struct {
	DeclaredType string
	Category     string
}

func (e *AmbiguousTypeError) Error() string {
	return fmt.Sprintf("cannot resolve transaction type (type %q, category %q)", e.DeclaredType, e.Category)
}

func (e *AmbiguousTypeError) Unwrap() error {
	return domain.ErrAmbiguousType
}
