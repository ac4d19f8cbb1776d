package engine

import (
	"errors"
	"fmt"
)

// Outcome taxonomy. Validation and forbidden are deterministic functions
// of the input and actor; conflict is the routinely-retryable loss of an
// atomic precondition race. Missing jobs surface as store.ErrNotFound.
var (
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("job already assigned")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
