package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrServe      = errors.New("http serve failed")
	ErrBadRequest = errors.New("bad request")
	ErrNoRun      = errors.New("no run has completed yet")
)
