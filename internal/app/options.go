package service

import (
	"time"

	"github.com/okian/jobrank/internal/adapters/source/ratelimit"
	"github.com/okian/jobrank/internal/domain/model"
	"github.com/okian/jobrank/internal/domain/scoring"
	"github.com/okian/jobrank/pkg/logger"
)

// RunOption applies a configuration option to the Orchestrator.
type RunOption func(*Orchestrator)

// WithRunLogger sets a custom logger for the orchestrator.
func WithRunLogger(l logger.Logger) RunOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RunOption {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithDrainGrace sets how long the orchestrator waits past the run deadline
// for sources to hand over their partial pages.
func WithDrainGrace(d time.Duration) RunOption {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.drainGrace = d
		}
	}
}

// WithPolicyOptions appends options to the scoring policy of every run.
func WithPolicyOptions(opts ...scoring.Option) RunOption {
	return func(o *Orchestrator) {
		o.policyOpts = append(o.policyOpts, opts...)
	}
}

// WithStateHook calls fn on every state transition.
func WithStateHook(fn func(runID string, s model.RunState)) RunOption {
	return func(o *Orchestrator) {
		o.onState = fn
	}
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithSources replaces the sources built from configuration.
func WithSources(specs ...SourceSpec) Option {
	return func(s *Service) {
		s.specs = append(s.specs, specs...)
		s.customSources = true
	}
}

// WithScorer replaces the scorer built from configuration.
func WithScorer(sc scoring.Scorer) Option {
	return func(s *Service) {
		if sc != nil {
			s.scorer = sc
		}
	}
}

// WithOrchestrator sets the orchestrator used for runs.
func WithOrchestrator(o *Orchestrator) Option {
	return func(s *Service) {
		if o != nil {
			s.orchestrator = o
		}
	}
}

// WithHTTPClient sets the rate-limited client shared by HTTP sources.
func WithHTTPClient(c *ratelimit.Client) Option {
	return func(s *Service) {
		if c != nil {
			s.client = c
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
