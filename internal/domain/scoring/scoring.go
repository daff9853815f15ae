// Package scoring defines the relevance scorer contract and the call policy
// (timeout, backoff, retry budget) the engine wraps around it.
package scoring

import (
	"context"

	"github.com/okian/jobrank/internal/domain/model"
)

// Result is a relevance verdict. Score lies in [0, 1].
type Result struct {
	Score     float64
	Rationale string
}

// Scorer rates a posting against a candidate. It is treated as remote,
// slow and fallible; classify failures with Transient or Permanent.
type Scorer interface {
	Score(ctx context.Context, posting model.JobPosting, profile *model.CandidateProfile) (Result, error)
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, posting model.JobPosting, profile *model.CandidateProfile) (Result, error)

// Score calls f.
func (f ScorerFunc) Score(ctx context.Context, posting model.JobPosting, profile *model.CandidateProfile) (Result, error) { //nolint:gocritic // postings are values
	return f(ctx, posting, profile)
}
