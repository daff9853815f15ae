package normalize

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for normalization.
var (
	ErrNormalization = errors.New("normalization failed")
	ErrMissingField  = errors.New("required field missing")
	ErrMalformed     = errors.New("field malformed")
	ErrDuplicateID   = errors.New("external id reused within source")
)

// Error is a NormalizationError for one raw record.
type Error struct {
	SourceID string
	Field    string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("normalize %s: %s: %v", e.SourceID, e.Field, e.Err)
}

// Unwrap exposes the cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches ErrNormalization.
func (e *Error) Is(target error) bool { return target == ErrNormalization }
