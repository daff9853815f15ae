package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/jobrank/internal/adapters/source/ratelimit"
	"github.com/okian/jobrank/internal/config"
	"github.com/okian/jobrank/internal/domain/model"
	"github.com/okian/jobrank/internal/domain/scoring"
	"github.com/okian/jobrank/pkg/logger"
)

// Service binds process configuration to runs. It builds the configured
// sources and scorer once and serves any number of runs, one profile each.
type Service struct {
	mu sync.RWMutex

	cfg           *config.Config
	specs         []SourceSpec
	customSources bool
	scorer        scoring.Scorer
	client        *ratelimit.Client
	orchestrator  *Orchestrator

	last *model.RunResult

	logger logger.Logger
}

// New constructs a Service from cfg. Options may replace the configured
// sources or scorer.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.orchestrator == nil {
		s.orchestrator = NewOrchestrator(WithRunLogger(s.logger.Named("orchestrator")))
	}
	if s.client == nil {
		s.client = ratelimit.NewClient(nil, ratelimit.NewHostLimiter(cfg.HTTPRatePerSecond, cfg.HTTPBurst))
	}

	if !s.customSources {
		specs, err := BuildSources(cfg, s.client)
		if err != nil {
			return nil, err
		}
		s.specs = specs
	}
	if s.scorer == nil {
		sc, err := BuildScorer(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.scorer = sc
	}

	s.logger.Info(ctx, "service ready",
		logger.Strings("sources", s.Sources()),
		logger.String("scorer", cfg.Scorer),
	)
	return s, nil
}

// Rank runs one aggregation-and-ranking pass for profile.
func (s *Service) Rank(ctx context.Context, profile *model.CandidateProfile) (model.RunResult, error) {
	s.mu.RLock()
	specs := s.specs
	s.mu.RUnlock()

	res, err := s.orchestrator.Run(ctx, profile, specs, s.scorer, RunConfigFrom(s.cfg))
	if err != nil {
		return res, err
	}

	s.mu.Lock()
	s.last = &res
	s.mu.Unlock()
	return res, nil
}

// LastRun returns the most recent successful run.
func (s *Service) LastRun() (model.RunResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return model.RunResult{}, false
	}
	return *s.last, true
}

// Sources returns the configured source ids in fan-out order.
func (s *Service) Sources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.specs))
	for _, sp := range s.specs {
		if sp.Adapter != nil {
			ids = append(ids, sp.Adapter.ID())
		}
	}
	return ids
}

// RunConfigFrom maps process configuration onto run bounds.
func RunConfigFrom(cfg *config.Config) RunConfig {
	return RunConfig{
		GlobalDeadline:        cfg.GlobalDeadline(),
		MaxScoringConcurrency: cfg.MaxScoringConcurrency,
		ScoringRetryBudget:    cfg.ScoringRetryBudget,
		ScoringTimeout:        cfg.ScoringTimeout(),
		BackoffBase:           cfg.ScoringBackoffBase(),
		BackoffMax:            cfg.ScoringBackoffMax(),
		RatePerSecond:         cfg.ScoringRatePerSecond,
		Burst:                 cfg.ScoringBurst,
	}
}
