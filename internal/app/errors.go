package service

import "errors"

// ErrConfiguration is the only error that aborts a run. Every other failure
// degrades the result instead.
var ErrConfiguration = errors.New("configuration error")
