package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/okian/jobrank/internal/domain/fingerprint"
	"github.com/okian/jobrank/internal/domain/model"
)

// Keyword scorer weights.
const (
	skillWeight = 0.8
	titleWeight = 0.2
)

// KeywordScorer is a local Scorer based on skill coverage and title overlap.
// It needs no network and never fails for well-formed input.
type KeywordScorer struct{}

// NewKeywordScorer creates a KeywordScorer.
func NewKeywordScorer() *KeywordScorer { return &KeywordScorer{} }

// Score rates posting by the share of its required skills the candidate has,
// plus the best token overlap between its title and the candidate's titles.
func (KeywordScorer) Score(ctx context.Context, posting model.JobPosting, profile *model.CandidateProfile) (Result, error) { //nolint:gocritic // postings are values
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if profile == nil {
		return Result{}, Permanent(errors.New("profile is nil"))
	}

	var matched, missing []string
	for _, s := range posting.Skills {
		if profile.HasSkill(s) {
			matched = append(matched, s)
		} else {
			missing = append(missing, s)
		}
	}

	skillScore := 0.0
	if n := len(posting.Skills); n > 0 {
		skillScore = float64(len(matched)) / float64(n)
	}

	titleScore := 0.0
	jobTokens := tokenSet(fingerprint.Title(posting.Title))
	for _, t := range profile.Titles() {
		titleScore = math.Max(titleScore, jaccard(jobTokens, tokenSet(fingerprint.Title(t))))
	}

	score := skillWeight*skillScore + titleWeight*titleScore
	return Result{
		Score:     math.Round(score*1e4) / 1e4,
		Rationale: rationale(matched, missing, titleScore),
	}, nil
}

func rationale(matched, missing []string, titleScore float64) string {
	var b strings.Builder
	if len(matched) > 0 {
		b.WriteString("matched: " + strings.Join(matched, ", "))
	} else {
		b.WriteString("no required skills matched")
	}
	if len(missing) > 0 {
		b.WriteString("; missing: " + strings.Join(missing, ", "))
	}
	if titleScore > 0 {
		fmt.Fprintf(&b, "; title overlap %.0f%%", titleScore*100)
	}
	return b.String()
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, t := range strings.Fields(s) {
		out[t] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}
