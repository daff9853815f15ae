// Package service runs aggregation-and-ranking passes: fan out to sources,
// normalize and deduplicate postings, score the unique ones, and rank them.
package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/jobrank/internal/adapters/mq/queue"
	"github.com/okian/jobrank/internal/adapters/mq/worker"
	"github.com/okian/jobrank/internal/domain/dedupe"
	"github.com/okian/jobrank/internal/domain/fingerprint"
	"github.com/okian/jobrank/internal/domain/model"
	"github.com/okian/jobrank/internal/domain/normalize"
	"github.com/okian/jobrank/internal/domain/ranking"
	"github.com/okian/jobrank/internal/domain/scorecache"
	"github.com/okian/jobrank/internal/domain/scoring"
	"github.com/okian/jobrank/internal/domain/source"
	"github.com/okian/jobrank/pkg/logger"
	"github.com/okian/jobrank/pkg/metrics"
)

// Default orchestrator constants.
const (
	defaultDrainGrace = 100 * time.Millisecond
	reasonCancelled   = "cancelled"
)

// RunConfig bounds one run.
type RunConfig struct {
	GlobalDeadline        time.Duration
	MaxScoringConcurrency int
	ScoringRetryBudget    int
	ScoringTimeout        time.Duration
	BackoffBase           time.Duration
	BackoffMax            time.Duration
	// RatePerSecond throttles scorer calls; 0 disables it.
	RatePerSecond float64
	Burst         int
}

// Validate reports a ConfigurationError for out-of-range values.
func (c RunConfig) Validate() error {
	switch {
	case c.GlobalDeadline <= 0:
		return fmt.Errorf("%w: global deadline must be positive", ErrConfiguration)
	case c.MaxScoringConcurrency < 1:
		return fmt.Errorf("%w: max scoring concurrency must be at least 1", ErrConfiguration)
	case c.ScoringRetryBudget < 0:
		return fmt.Errorf("%w: scoring retry budget must not be negative", ErrConfiguration)
	case c.ScoringTimeout <= 0:
		return fmt.Errorf("%w: scoring timeout must be positive", ErrConfiguration)
	case c.BackoffBase < 0 || c.BackoffMax < c.BackoffBase:
		return fmt.Errorf("%w: backoff bounds are inconsistent", ErrConfiguration)
	case c.RatePerSecond < 0:
		return fmt.Errorf("%w: scoring rate must not be negative", ErrConfiguration)
	}
	return nil
}

// SourceSpec pairs an adapter with the limits it runs under.
type SourceSpec struct {
	Adapter source.Adapter
	Limits  source.Limits
}

// Orchestrator drives runs through Idle, FetchingAndNormalizing,
// Deduplicating, Scoring and Ranking to Done, or to Failed on a
// configuration error. It keeps no state between runs.
type Orchestrator struct {
	logger     logger.Logger
	now        func() time.Time
	drainGrace time.Duration
	policyOpts []scoring.Option
	onState    func(runID string, s model.RunState)
}

// NewOrchestrator creates an Orchestrator with configuration options.
func NewOrchestrator(opts ...RunOption) *Orchestrator {
	o := &Orchestrator{
		logger:     logger.Get().Named("orchestrator"),
		now:        time.Now,
		drainGrace: defaultDrainGrace,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one run with a default Orchestrator.
func Run(ctx context.Context, profile *model.CandidateProfile, specs []SourceSpec, scorer scoring.Scorer, cfg RunConfig) (model.RunResult, error) {
	return NewOrchestrator().Run(ctx, profile, specs, scorer, cfg)
}

// Run fans out to every source, merges what they return, scores each unique
// posting once, and ranks the outcome. Only a ConfigurationError is
// returned; source and scoring failures are reported in the result.
func (o *Orchestrator) Run(ctx context.Context, profile *model.CandidateProfile, specs []SourceSpec, scorer scoring.Scorer, cfg RunConfig) (model.RunResult, error) {
	res := model.RunResult{
		RunID:           uuid.NewString(),
		State:           model.StateIdle,
		Ranked:          []model.ScoredPosting{},
		DegradedSources: []string{},
		Sources:         []model.SourceReport{},
		StartedAt:       o.now(),
	}
	log := o.logger.With(logger.String("run_id", res.RunID))
	o.transition(ctx, log, &res, model.StateIdle)

	if err := validateRun(profile, specs, scorer, cfg); err != nil {
		o.transition(ctx, log, &res, model.StateFailed)
		o.finish(ctx, log, &res)
		return res, err
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.GlobalDeadline)
	defer cancel()

	o.transition(runCtx, log, &res, model.StateFetchingAndNormalizing)
	dd := dedupe.New(dedupe.WithLogger(log.Named("dedupe")))
	res.Sources = o.fetch(runCtx, log, specs, normalize.ForProfile(profile), dd)
	for _, r := range res.Sources {
		res.NormalizationDrops += r.Dropped
		if source.Completion(r.Completion).Degraded() {
			res.DegradedSources = append(res.DegradedSources, r.SourceID)
		}
	}

	o.transition(runCtx, log, &res, model.StateDeduplicating)
	dd.Seal()
	entries := dd.Snapshot()
	res.DuplicatesMerged = dd.Merged()
	log.Info(runCtx, "postings deduplicated",
		logger.Int("unique", len(entries)),
		logger.Int("merged", res.DuplicatesMerged),
	)

	o.transition(runCtx, log, &res, model.StateScoring)
	scored := o.score(runCtx, log, entries, profile, scorer, cfg)

	o.transition(runCtx, log, &res, model.StateRanking)
	res.Ranked = ranking.Rank(scored)
	for _, sp := range res.Ranked {
		if sp.ScoringFailed {
			res.ScoringFailures++
		}
	}

	o.transition(ctx, log, &res, model.StateDone)
	o.finish(ctx, log, &res)
	return res, nil
}

func validateRun(profile *model.CandidateProfile, specs []SourceSpec, scorer scoring.Scorer, cfg RunConfig) error {
	if profile == nil {
		return fmt.Errorf("%w: candidate profile is required", ErrConfiguration)
	}
	if len(profile.Skills()) == 0 {
		return fmt.Errorf("%w: %w", ErrConfiguration, model.ErrEmptyProfile)
	}
	if scorer == nil {
		return fmt.Errorf("%w: scorer is required", ErrConfiguration)
	}
	if len(specs) == 0 {
		return fmt.Errorf("%w: at least one source is required", ErrConfiguration)
	}
	seen := make(map[string]struct{}, len(specs))
	for i, s := range specs {
		if s.Adapter == nil {
			return fmt.Errorf("%w: source %d has no adapter", ErrConfiguration, i)
		}
		id := s.Adapter.ID()
		if id == "" {
			return fmt.Errorf("%w: source %d has an empty id", ErrConfiguration, i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate source id %q", ErrConfiguration, id)
		}
		seen[id] = struct{}{}
		if s.Limits.MaxRecords < 0 || s.Limits.MaxPages < 0 || s.Limits.Timeout < 0 {
			return fmt.Errorf("%w: source %q limits must not be negative", ErrConfiguration, id)
		}
	}
	return cfg.Validate()
}

// fetch drains every source concurrently, normalizing and deduplicating
// records as they arrive. It returns once all sources finish or the run
// deadline passes plus a short grace for in-flight pages; sources still
// running then are reported as timed out.
func (o *Orchestrator) fetch(ctx context.Context, log logger.Logger, specs []SourceSpec, n *normalize.Normalizer, dd *dedupe.Deduplicator) []model.SourceReport {
	var (
		mu      sync.Mutex
		closed  bool
		reports = make(map[string]model.SourceReport, len(specs))
	)
	for _, s := range specs {
		reports[s.Adapter.ID()] = model.SourceReport{
			SourceID:   s.Adapter.ID(),
			Completion: string(source.CompletionTimeout),
		}
	}

	var g errgroup.Group
	for _, spec := range specs {
		g.Go(func() error {
			id := spec.Adapter.ID()
			srcLog := log.With(logger.String("source_id", id))
			var normalized, dropped int
			ids := make(map[string]model.Fingerprint)

			r := source.Drain(ctx, spec.Adapter, spec.Limits, func(rec model.RawRecord) {
				p, err := n.Normalize(rec, id)
				if err == nil {
					err = claimExternalID(ids, p)
				}
				if err != nil {
					dropped++
					field := "unknown"
					if ne := (*normalize.Error)(nil); errors.As(err, &ne) {
						field = ne.Field
					}
					metrics.RecordNormalizationDrop(id, field)
					if errors.Is(err, normalize.ErrDuplicateID) {
						srcLog.Warn(ctx, "external id collision", logger.String("external_id", p.ExternalID))
						return
					}
					srcLog.Debug(ctx, "record dropped", logger.Error(err))
					return
				}
				if _, _, err := dd.Add(ctx, p); err != nil {
					srcLog.Debug(ctx, "late posting discarded", logger.Error(err))
					return
				}
				normalized++
			})

			rep := model.SourceReport{
				SourceID:   id,
				Completion: string(r.Completion),
				Records:    r.Records,
				Pages:      r.Pages,
				Normalized: normalized,
				Dropped:    dropped,
				Elapsed:    r.Elapsed,
			}
			if r.Err != nil {
				rep.Error = r.Err.Error()
			}
			metrics.RecordSourceFetch(id, rep.Completion, r.Records)

			mu.Lock()
			defer mu.Unlock()
			if closed {
				srcLog.Warn(ctx, "source finished after the run deadline", logger.String("completion", rep.Completion))
				return nil
			}
			reports[id] = rep
			if r.Completion.Degraded() {
				srcLog.Warn(ctx, "source degraded",
					logger.String("completion", rep.Completion),
					logger.Int("records", r.Records),
					logger.Error(r.Err),
				)
			} else {
				srcLog.Info(ctx, "source drained",
					logger.String("completion", rep.Completion),
					logger.Int("records", r.Records),
					logger.Int("pages", r.Pages),
					logger.Int("dropped", dropped),
				)
			}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		grace := time.NewTimer(o.drainGrace)
		select {
		case <-done:
		case <-grace.C:
			log.Warn(ctx, "run deadline reached with sources still fetching")
		}
		grace.Stop()
	}

	mu.Lock()
	defer mu.Unlock()
	closed = true
	out := make([]model.SourceReport, 0, len(specs))
	for _, s := range specs {
		out = append(out, reports[s.Adapter.ID()])
	}
	return out
}

// score runs every unique posting through the scoring cache and the retry
// policy on a bounded worker pool. Each entry yields exactly one outcome.
func (o *Orchestrator) score(ctx context.Context, log logger.Logger, entries []dedupe.Entry, profile *model.CandidateProfile, scorer scoring.Scorer, cfg RunConfig) []model.ScoredPosting {
	if len(entries) == 0 {
		return nil
	}

	opts := []scoring.Option{
		scoring.WithTimeout(cfg.ScoringTimeout),
		scoring.WithRetryBudget(cfg.ScoringRetryBudget),
		scoring.WithBackoff(cfg.BackoffBase, cfg.BackoffMax),
		scoring.WithRate(cfg.RatePerSecond, cfg.Burst),
		scoring.WithLogger(log.Named("scoring")),
	}
	policy := scoring.NewPolicy(append(opts, o.policyOpts...)...)
	cache := scorecache.New()

	q := queue.NewInMemoryQueue(queue.WithCapacity(len(entries)))
	enqueueCtx := context.WithoutCancel(ctx)
	for _, e := range entries {
		q.Enqueue(enqueueCtx, queue.Task{Fingerprint: e.Fingerprint, Posting: e.Posting})
	}
	_ = q.Close()

	proc := worker.ProcessorFunc(func(ctx context.Context, t queue.Task) model.ScoredPosting {
		sp, _ := cache.GetOrScore(ctx, t.Fingerprint, func(ctx context.Context) model.ScoredPosting {
			return o.scoreOne(ctx, log, policy, scorer, profile, t)
		})
		return sp
	})

	sink := worker.NewCollector(len(entries))
	pool := worker.NewPool(min(cfg.MaxScoringConcurrency, len(entries)), q, proc, sink)
	pool.Start(ctx)
	pool.Wait()

	stats := cache.Stats()
	log.Info(ctx, "scoring finished",
		logger.Int("postings", len(entries)),
		logger.Int("workers", pool.Size()),
		logger.Int64("cache_misses", stats.Misses),
		logger.Int64("cache_shared", stats.Shared),
	)
	return sink.Items()
}

func (o *Orchestrator) scoreOne(ctx context.Context, log logger.Logger, policy *scoring.Policy, scorer scoring.Scorer, profile *model.CandidateProfile, t queue.Task) model.ScoredPosting { //nolint:gocritic // tasks travel by value
	sp := model.ScoredPosting{Posting: t.Posting, Fingerprint: t.Fingerprint}
	if ctx.Err() != nil {
		sp.ScoringFailed = true
		sp.FailureReason = reasonCancelled
		sp.ScoredAt = o.now()
		return sp
	}

	out := policy.Call(ctx, func(ctx context.Context) (res scoring.Result, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = scoring.Permanent(fmt.Errorf("scorer panic: %v", r))
			}
		}()
		return scorer.Score(ctx, t.Posting.Clone(), profile)
	})

	sp.Attempts = out.Attempts
	sp.ScoredAt = o.now()
	if out.Err != nil {
		sp.ScoringFailed = true
		sp.FailureReason = failureReason(ctx, out.Err)
		log.Warn(ctx, "posting scoring failed",
			logger.String("fingerprint", string(t.Fingerprint)),
			logger.String("title", t.Posting.Title),
			logger.Int("attempts", out.Attempts),
			logger.Error(out.Err),
		)
		return sp
	}
	score := out.Result.Score
	sp.Score = &score
	sp.Rationale = out.Result.Rationale
	return sp
}

// claimExternalID records p's external id for its source. An id already
// claimed by a posting with a different fingerprint is rejected; a repeat of
// the same posting is let through for the deduplicator to absorb.
func claimExternalID(ids map[string]model.Fingerprint, p model.JobPosting) error { //nolint:gocritic // postings are values
	fp := fingerprint.Of(p)
	if prev, ok := ids[p.ExternalID]; ok && prev != fp {
		return &normalize.Error{
			SourceID: p.SourceID,
			Field:    normalize.KeyExternalID,
			Err:      fmt.Errorf("%w: %q", normalize.ErrDuplicateID, p.ExternalID),
		}
	}
	ids[p.ExternalID] = fp
	return nil
}

// failureReason reports cancelled only when the run itself ended; per-call
// timeouts that use up the retry budget are exhausted.
func failureReason(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil:
		return reasonCancelled
	case scoring.IsPermanent(err):
		return "permanent: " + err.Error()
	default:
		return "exhausted: " + err.Error()
	}
}

func (o *Orchestrator) transition(ctx context.Context, log logger.Logger, res *model.RunResult, s model.RunState) {
	prev := res.State
	res.State = s
	log.Debug(ctx, "run state changed",
		logger.String("from", string(prev)),
		logger.String("to", string(s)),
	)
	if o.onState != nil {
		o.onState(res.RunID, s)
	}
}

func (o *Orchestrator) finish(ctx context.Context, log logger.Logger, res *model.RunResult) {
	res.FinishedAt = o.now()
	slices.Sort(res.DegradedSources)
	elapsed := res.FinishedAt.Sub(res.StartedAt)
	metrics.RecordRun(string(res.State), float64(elapsed.Milliseconds()), len(res.Ranked))
	log.Info(ctx, "run finished",
		logger.String("state", string(res.State)),
		logger.Int("ranked", len(res.Ranked)),
		logger.Int("scoring_failures", res.ScoringFailures),
		logger.Strings("degraded_sources", res.DegradedSources),
		logger.Duration("elapsed", elapsed),
	)
}
