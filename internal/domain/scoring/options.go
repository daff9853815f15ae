package scoring

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/jobrank/pkg/logger"
)

// Option applies a configuration option to the Policy.
type Option func(*Policy)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithRetryBudget sets the number of retries after the first attempt.
func WithRetryBudget(n int) Option {
	return func(p *Policy) {
		if n >= 0 {
			p.retryBudget = n
		}
	}
}

// WithBackoff sets the backoff base and cap.
func WithBackoff(base, ceiling time.Duration) Option {
	return func(p *Policy) {
		if base >= 0 && ceiling >= base {
			p.backoffBase = base
			p.backoffMax = ceiling
		}
	}
}

// WithRate throttles calls to rps with the given burst. rps <= 0 disables it.
func WithRate(rps float64, burst int) Option {
	return func(p *Policy) {
		if rps <= 0 {
			p.limiter = nil
			return
		}
		p.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithSleep replaces the backoff sleep; tests use it to skip waiting.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Policy) {
		if fn != nil {
			p.sleep = fn
		}
	}
}

// WithJitter replaces the [0,1) source used for backoff jitter.
func WithJitter(fn func() float64) Option {
	return func(p *Policy) {
		if fn != nil {
			p.jitter = fn
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Policy) {
		if l != nil {
			p.logger = l
		}
	}
}
