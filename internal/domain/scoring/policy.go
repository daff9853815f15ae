package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/jobrank/pkg/logger"
	"github.com/okian/jobrank/pkg/metrics"
)

// Default policy constants.
const (
	defaultTimeout     = 20 * time.Second
	defaultRetryBudget = 3
	defaultBackoffBase = 250 * time.Millisecond
	defaultBackoffMax  = 8 * time.Second
)

// Call outcomes reported to metrics.
const (
	outcomeOK        = "ok"
	outcomeTransient = "transient"
	outcomePermanent = "permanent"
	outcomeTimeout   = "timeout"
	outcomeCancelled = "cancelled"
)

// Outcome is the final verdict of a policy-wrapped call.
type Outcome struct {
	Result   Result
	Attempts int
	Err      error
}

// Policy runs scorer calls with a per-call timeout, full-jitter exponential
// backoff between attempts, a retry budget, and an optional rate limit.
// Permanent errors stop immediately.
type Policy struct {
	timeout     time.Duration
	retryBudget int
	backoffBase time.Duration
	backoffMax  time.Duration
	limiter     *rate.Limiter
	sleep       func(ctx context.Context, d time.Duration) error
	jitter      func() float64
	logger      logger.Logger
}

// NewPolicy creates a Policy with defaults overridden by opts.
func NewPolicy(opts ...Option) *Policy {
	p := &Policy{
		timeout:     defaultTimeout,
		retryBudget: defaultRetryBudget,
		backoffBase: defaultBackoffBase,
		backoffMax:  defaultBackoffMax,
		sleep:       sleepCtx,
		jitter:      rand.Float64,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("scoring")
	}
	return p
}

// Call invokes fn until it succeeds, fails permanently, the budget is spent,
// or ctx ends. The returned Outcome always reports the attempts made.
func (p *Policy) Call(ctx context.Context, fn func(ctx context.Context) (Result, error)) Outcome {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= p.retryBudget; attempt++ {
		if attempt > 0 {
			metrics.RecordScoringRetry()
			delay := p.Backoff(attempt - 1)
			p.logger.Debug(ctx, "retrying scorer call",
				logger.Int("attempt", attempt+1),
				logger.Duration("backoff", delay),
				logger.Error(lastErr),
			)
			if err := p.sleep(ctx, delay); err != nil {
				return Outcome{Attempts: attempts, Err: err}
			}
		}
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return Outcome{Attempts: attempts, Err: ctx.Err()}
				}
				return Outcome{Attempts: attempts, Err: fmt.Errorf("%w: %w", context.DeadlineExceeded, err)}
			}
		}

		attempts++
		res, err := p.once(ctx, fn)
		if err == nil {
			return Outcome{Result: res, Attempts: attempts}
		}
		lastErr = err
		if ctx.Err() != nil {
			return Outcome{Attempts: attempts, Err: ctx.Err()}
		}
		if !IsTransient(err) {
			return Outcome{Attempts: attempts, Err: err}
		}
	}
	return Outcome{Attempts: attempts, Err: fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)}
}

// once runs a single attempt under the per-call timeout. A scorer that
// ignores its context is abandoned when the timeout fires.
func (p *Policy) once(ctx context.Context, fn func(ctx context.Context) (Result, error)) (Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type reply struct {
		res Result
		err error
	}
	done := make(chan reply, 1)

	start := time.Now()
	metrics.AddScoringInFlight(1)
	defer metrics.AddScoringInFlight(-1)

	go func() {
		res, err := fn(callCtx)
		done <- reply{res: res, err: err}
	}()

	var r reply
	select {
	case r = <-done:
	case <-callCtx.Done():
		r.err = callCtx.Err()
	}
	latency := float64(time.Since(start).Milliseconds())

	if r.err == nil {
		res, err := validate(r.res)
		if err != nil {
			metrics.RecordScoringCall(outcomePermanent, latency)
			return Result{}, err
		}
		metrics.RecordScoringCall(outcomeOK, latency)
		return res, nil
	}

	switch {
	case ctx.Err() != nil:
		metrics.RecordScoringCall(outcomeCancelled, latency)
		return Result{}, r.err
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		metrics.RecordScoringCall(outcomeTimeout, latency)
		return Result{}, Transient(fmt.Errorf("%w after %s: %w", ErrTimeout, p.timeout, r.err))
	case IsPermanent(r.err):
		metrics.RecordScoringCall(outcomePermanent, latency)
	default:
		metrics.RecordScoringCall(outcomeTransient, latency)
	}
	return Result{}, r.err
}

// Backoff returns the delay before retry n (0-based): a uniform draw from
// [0, min(max, base*2^n)].
func (p *Policy) Backoff(n int) time.Duration {
	ceiling := float64(p.backoffBase) * math.Pow(2, float64(n))
	if ceiling > float64(p.backoffMax) || math.IsInf(ceiling, 0) {
		ceiling = float64(p.backoffMax)
	}
	return time.Duration(p.jitter() * ceiling)
}

// RetryBudget returns the number of retries allowed after the first attempt.
func (p *Policy) RetryBudget() int { return p.retryBudget }

func validate(r Result) (Result, error) {
	if math.IsNaN(r.Score) || math.IsInf(r.Score, 0) {
		return Result{}, Permanent(fmt.Errorf("%w: %v", ErrInvalidScore, r.Score))
	}
	r.Score = min(max(r.Score, 0), 1)
	return r, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
