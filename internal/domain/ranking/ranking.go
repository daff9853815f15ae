// Package ranking orders scored postings deterministically.
package ranking

import (
	"cmp"
	"slices"

	"github.com/okian/jobrank/internal/domain/model"
)

// Rank returns a sorted copy of items. Scored postings come before failed
// ones, then score descending, posted_at descending (missing dates last),
// external_id ascending and finally source_id ascending.
func Rank(items []model.ScoredPosting) []model.ScoredPosting {
	out := slices.Clone(items)
	slices.SortStableFunc(out, Compare)
	return out
}

// Compare orders two scored postings for Rank.
func Compare(a, b model.ScoredPosting) int { //nolint:gocritic // values keep call sites simple
	switch {
	case a.Score != nil && b.Score == nil:
		return -1
	case a.Score == nil && b.Score != nil:
		return 1
	case a.Score != nil && b.Score != nil:
		if c := cmp.Compare(*b.Score, *a.Score); c != 0 {
			return c
		}
	}

	switch pa, pb := a.Posting.PostedAt, b.Posting.PostedAt; {
	case pa != nil && pb == nil:
		return -1
	case pa == nil && pb != nil:
		return 1
	case pa != nil && pb != nil:
		if c := pb.Compare(*pa); c != 0 {
			return c
		}
	}

	if c := cmp.Compare(a.Posting.ExternalID, b.Posting.ExternalID); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Posting.SourceID, b.Posting.SourceID); c != 0 {
		return c
	}
	return cmp.Compare(a.Fingerprint, b.Fingerprint)
}

// Top returns at most n leading items of an already ranked slice.
func Top(ranked []model.ScoredPosting, n int) []model.ScoredPosting {
	if n < 0 || n >= len(ranked) {
		return ranked
	}
	return ranked[:n]
}
