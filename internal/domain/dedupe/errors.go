package dedupe

import "errors"

// ErrSealed is returned by Add once the deduplicator stopped accepting input.
var ErrSealed = errors.New("deduplicator sealed")
