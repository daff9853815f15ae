package model

import (
	"slices"
	"time"
)

// RawRecord is a loosely structured record as produced by a source adapter.
type RawRecord map[string]any

// Fingerprint identifies a job across sources; equal fingerprints mean the
// same job.
type Fingerprint string

// JobPosting is the canonical posting shape.
type JobPosting struct {
	SourceID    string     `json:"source_id"`
	ExternalID  string     `json:"external_id"`
	Title       string     `json:"title"`
	Company     string     `json:"company"`
	Description string     `json:"description,omitempty"`
	Skills      []string   `json:"skills_required"`
	ApplyURL    string     `json:"apply_url"`
	PostedAt    *time.Time `json:"posted_at,omitempty"`
	// SeenOn lists every source that reported this job.
	SeenOn []string `json:"seen_on,omitempty"`
}

// Clone returns a deep copy.
func (p JobPosting) Clone() JobPosting { //nolint:gocritic // value receiver keeps postings copyable
	c := p
	c.Skills = slices.Clone(p.Skills)
	c.SeenOn = slices.Clone(p.SeenOn)
	if p.PostedAt != nil {
		t := *p.PostedAt
		c.PostedAt = &t
	}
	return c
}

// ScoredPosting is the scoring outcome for one unique fingerprint.
// Score is nil when scoring failed.
type ScoredPosting struct {
	Posting       JobPosting  `json:"posting"`
	Fingerprint   Fingerprint `json:"fingerprint"`
	Score         *float64    `json:"score"`
	Rationale     string      `json:"rationale,omitempty"`
	ScoredAt      time.Time   `json:"scored_at"`
	ScoringFailed bool        `json:"scoring_failed"`
	FailureReason string      `json:"failure_reason,omitempty"`
	Attempts      int         `json:"attempts"`
}

// RunState names an orchestrator state.
type RunState string

// Orchestrator states.
const (
	StateIdle                   RunState = "Idle"
	StateFetchingAndNormalizing RunState = "FetchingAndNormalizing"
	StateDeduplicating          RunState = "Deduplicating"
	StateScoring                RunState = "Scoring"
	StateRanking                RunState = "Ranking"
	StateDone                   RunState = "Done"
	StateFailed                 RunState = "Failed"
)

// SourceReport summarizes one adapter's contribution to a run.
type SourceReport struct {
	SourceID   string        `json:"source_id"`
	Completion string        `json:"completion"`
	Records    int           `json:"records"`
	Pages      int           `json:"pages"`
	Normalized int           `json:"normalized"`
	Dropped    int           `json:"dropped"`
	Elapsed    time.Duration `json:"elapsed_ns"`
	Error      string        `json:"error,omitempty"`
}

// RunResult is the outcome of one run: the ranked sequence plus diagnostics.
type RunResult struct {
	RunID              string          `json:"run_id"`
	State              RunState        `json:"state"`
	Ranked             []ScoredPosting `json:"ranked"`
	DegradedSources    []string        `json:"degraded_sources"`
	ScoringFailures    int             `json:"scoring_failures"`
	NormalizationDrops int             `json:"normalization_drops"`
	DuplicatesMerged   int             `json:"duplicates_merged"`
	Sources            []SourceReport  `json:"sources"`
	StartedAt          time.Time       `json:"started_at"`
	FinishedAt         time.Time       `json:"finished_at"`
}
