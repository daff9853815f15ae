// Package config defines process configuration and its loading hooks.
//
// Conventions:
// - Timing knobs are integer milliseconds suffixed _ms.
// - New() returns a Config populated with defaults.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Source kinds understood by the CLI wiring.
const (
	KindLever      = "lever"
	KindGreenhouse = "greenhouse"
	KindRSS        = "rss"
	KindFile       = "file"
)

// Scorer bindings.
const (
	ScorerKeyword = "keyword"
	ScorerGemini  = "gemini"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// GlobalDeadlineMS bounds a whole run.
	GlobalDeadlineMS int `koanf:"global_deadline_ms"`

	// MaxScoringConcurrency caps simultaneous scorer calls.
	MaxScoringConcurrency int `koanf:"max_scoring_concurrency"`

	// ScoringRetryBudget is the number of retries after the first attempt.
	ScoringRetryBudget int `koanf:"scoring_retry_budget"`

	// ScoringTimeoutMS bounds one scorer call.
	ScoringTimeoutMS int `koanf:"scoring_timeout_ms"`

	// ScoringBackoffBaseMS and ScoringBackoffMaxMS shape the retry backoff.
	ScoringBackoffBaseMS int `koanf:"scoring_backoff_base_ms"`
	ScoringBackoffMaxMS  int `koanf:"scoring_backoff_max_ms"`

	// ScoringRatePerSecond throttles scorer calls; 0 disables throttling.
	ScoringRatePerSecond float64 `koanf:"scoring_rate_per_second"`
	ScoringBurst         int     `koanf:"scoring_burst"`

	// Scorer selects the RelevanceScorer binding: keyword or gemini.
	Scorer string `koanf:"scorer"`

	// GeminiModel and GeminiAPIKey configure the gemini binding.
	GeminiModel  string `koanf:"gemini_model"`
	GeminiAPIKey string `koanf:"gemini_api_key"`

	// ExportPath is where `run` writes the spreadsheet.
	ExportPath string `koanf:"export_path"`

	// HTTPRatePerSecond and HTTPBurst throttle source adapters per host.
	HTTPRatePerSecond float64 `koanf:"http_rate_per_second"`
	HTTPBurst         int     `koanf:"http_burst"`

	// Sources enumerates the adapters a run fans out to.
	Sources []SourceConfig `koanf:"sources"`
}

// SourceConfig describes one configured adapter and its limits.
type SourceConfig struct {
	ID         string `koanf:"id"`
	Kind       string `koanf:"kind"`
	Slug       string `koanf:"slug"`
	Company    string `koanf:"company"`
	URL        string `koanf:"url"`
	Path       string `koanf:"path"`
	MaxRecords int    `koanf:"max_records"`
	MaxPages   int    `koanf:"max_pages"`
	TimeoutMS  int    `koanf:"timeout_ms"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		GlobalDeadlineMS:      120_000,
		MaxScoringConcurrency: 4,
		ScoringRetryBudget:    3,
		ScoringTimeoutMS:      20_000,
		ScoringBackoffBaseMS:  250,
		ScoringBackoffMaxMS:   8_000,
		ScoringRatePerSecond:  0,
		ScoringBurst:          1,
		Scorer:                ScorerKeyword,
		GeminiModel:           "gemini-2.5-flash",
		ExportPath:            "job_matches.xlsx",
		HTTPRatePerSecond:     2,
		HTTPBurst:             4,
	}
}

// GlobalDeadline returns the run deadline as a duration.
func (c *Config) GlobalDeadline() time.Duration {
	return time.Duration(c.GlobalDeadlineMS) * time.Millisecond
}

// ScoringTimeout returns the per-call scorer timeout.
func (c *Config) ScoringTimeout() time.Duration {
	return time.Duration(c.ScoringTimeoutMS) * time.Millisecond
}

// ScoringBackoffBase returns the first retry delay ceiling.
func (c *Config) ScoringBackoffBase() time.Duration {
	return time.Duration(c.ScoringBackoffBaseMS) * time.Millisecond
}

// ScoringBackoffMax returns the largest retry delay.
func (c *Config) ScoringBackoffMax() time.Duration {
	return time.Duration(c.ScoringBackoffMaxMS) * time.Millisecond
}

// Timeout returns the per-source deadline, zero when unset.
func (s SourceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

// Validate checks value ranges and cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.GlobalDeadlineMS <= 0:
		return fmt.Errorf("%w: global_deadline_ms must be positive", ErrInvalidConfig)
	case c.MaxScoringConcurrency <= 0:
		return fmt.Errorf("%w: max_scoring_concurrency must be positive", ErrInvalidConfig)
	case c.ScoringRetryBudget < 0:
		return fmt.Errorf("%w: scoring_retry_budget must not be negative", ErrInvalidConfig)
	case c.ScoringTimeoutMS <= 0:
		return fmt.Errorf("%w: scoring_timeout_ms must be positive", ErrInvalidConfig)
	case c.ScoringBackoffBaseMS < 0 || c.ScoringBackoffMaxMS < c.ScoringBackoffBaseMS:
		return fmt.Errorf("%w: scoring backoff bounds are inconsistent", ErrInvalidConfig)
	case c.ScoringRatePerSecond < 0:
		return fmt.Errorf("%w: scoring_rate_per_second must not be negative", ErrInvalidConfig)
	}

	switch c.Scorer {
	case ScorerKeyword:
	case ScorerGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("%w: gemini scorer requires gemini_api_key", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown scorer %q", ErrInvalidConfig, c.Scorer)
	}

	seen := make(map[string]struct{}, len(c.Sources))
	for i, s := range c.Sources {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("%w: sources[%d].id is empty", ErrInvalidConfig, i)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: duplicate source id %q", ErrInvalidConfig, s.ID)
		}
		seen[s.ID] = struct{}{}
		if s.MaxRecords < 0 || s.MaxPages < 0 || s.TimeoutMS < 0 {
			return fmt.Errorf("%w: source %q limits must not be negative", ErrInvalidConfig, s.ID)
		}
		switch s.Kind {
		case KindLever, KindGreenhouse:
			if s.Slug == "" {
				return fmt.Errorf("%w: source %q requires slug", ErrInvalidConfig, s.ID)
			}
		case KindRSS:
			if s.URL == "" {
				return fmt.Errorf("%w: source %q requires url", ErrInvalidConfig, s.ID)
			}
		case KindFile:
			if s.Path == "" {
				return fmt.Errorf("%w: source %q requires path", ErrInvalidConfig, s.ID)
			}
		default:
			return fmt.Errorf("%w: source %q has unknown kind %q", ErrInvalidConfig, s.ID, s.Kind)
		}
	}
	return nil
}
