package scoring

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel error kinds for scoring.
var (
	ErrTransient    = errors.New("transient scoring error")
	ErrPermanent    = errors.New("permanent scoring error")
	ErrTimeout      = errors.New("scoring call timed out")
	ErrInvalidScore = errors.New("scorer returned an invalid score")
	ErrExhausted    = errors.New("scoring retries exhausted")
)

// Kind classifies a ScoringError.
type Kind int

// Kinds.
const (
	KindTransient Kind = iota
	KindPermanent
)

func (k Kind) String() string {
	if k == KindPermanent {
		return "permanent"
	}
	return "transient"
}

// Error is a classified ScoringError.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s scoring error: %v", e.Kind, e.Err)
}

// Unwrap exposes the cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches ErrTransient or ErrPermanent according to Kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Kind == KindTransient
	case ErrPermanent:
		return e.Kind == KindPermanent
	}
	return false
}

// Transient marks err as retryable (rate limit, timeout, unavailable).
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindTransient, Err: err}
}

// Permanent marks err as not retryable (malformed input, auth).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindPermanent, Err: err}
}

// IsPermanent reports whether err was classified permanent.
func IsPermanent(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == KindPermanent
	}
	return false
}

// IsTransient reports whether err may succeed on retry. Unclassified
// errors count as transient; cancellation never does.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return !IsPermanent(err)
}
