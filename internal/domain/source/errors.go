package source

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for sources.
var (
	ErrSource = errors.New("source error")
	ErrPanic  = errors.New("adapter panicked")
)

// Error is a SourceError: a failure attributed to one adapter.
type Error struct {
	SourceID string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("source %s: %v", e.SourceID, e.Err)
}

// Unwrap exposes the cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches ErrSource.
func (e *Error) Is(target error) bool { return target == ErrSource }
