package service

import (
	"context"
	"fmt"

	"github.com/okian/jobrank/internal/adapters/ai/gemini"
	"github.com/okian/jobrank/internal/adapters/source/file"
	"github.com/okian/jobrank/internal/adapters/source/greenhouse"
	"github.com/okian/jobrank/internal/adapters/source/lever"
	"github.com/okian/jobrank/internal/adapters/source/ratelimit"
	"github.com/okian/jobrank/internal/adapters/source/rss"
	"github.com/okian/jobrank/internal/config"
	"github.com/okian/jobrank/internal/domain/scoring"
	"github.com/okian/jobrank/internal/domain/source"
)

// BuildSources turns configured sources into adapters sharing client.
func BuildSources(cfg *config.Config, client *ratelimit.Client) ([]SourceSpec, error) {
	specs := make([]SourceSpec, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		var a source.Adapter
		switch sc.Kind {
		case config.KindLever:
			a = lever.New(sc.ID, sc.Slug, sc.Company, client)
		case config.KindGreenhouse:
			a = greenhouse.New(sc.ID, sc.Slug, sc.Company, client)
		case config.KindRSS:
			a = rss.New(sc.ID, sc.URL, sc.Company, client)
		case config.KindFile:
			a = file.New(sc.ID, sc.Path, 0)
		default:
			return nil, fmt.Errorf("%w: source %q has unknown kind %q", ErrConfiguration, sc.ID, sc.Kind)
		}
		specs = append(specs, SourceSpec{
			Adapter: a,
			Limits: source.Limits{
				MaxRecords: sc.MaxRecords,
				MaxPages:   sc.MaxPages,
				Timeout:    sc.Timeout(),
			},
		})
	}
	return specs, nil
}

// BuildScorer returns the configured RelevanceScorer binding.
func BuildScorer(ctx context.Context, cfg *config.Config) (scoring.Scorer, error) {
	switch cfg.Scorer {
	case config.ScorerKeyword, "":
		return scoring.NewKeywordScorer(), nil
	case config.ScorerGemini:
		s, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown scorer %q", ErrConfiguration, cfg.Scorer)
	}
}
