package dedupe

import (
	"github.com/okian/jobrank/internal/domain/model"
	"github.com/okian/jobrank/pkg/logger"
)

// Option applies a configuration option to the Deduplicator.
type Option func(*Deduplicator)

// WithFingerprinter replaces the fingerprint function.
func WithFingerprinter(fn func(model.JobPosting) model.Fingerprint) Option {
	return func(d *Deduplicator) {
		if fn != nil {
			d.fingerprint = fn
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Deduplicator) {
		if l != nil {
			d.logger = l
		}
	}
}
