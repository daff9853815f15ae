// Package dedupe collapses postings that describe the same job across
// sources and pages.
package dedupe

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/okian/jobrank/internal/domain/fingerprint"
	"github.com/okian/jobrank/internal/domain/model"
	"github.com/okian/jobrank/pkg/logger"
	"github.com/okian/jobrank/pkg/metrics"
)

// Entry is one canonical posting and its fingerprint.
type Entry struct {
	Fingerprint model.Fingerprint
	Posting     model.JobPosting
}

// Deduplicator maps fingerprints to the canonical posting merged so far.
// It is safe for concurrent use; the merge is commutative and associative so
// arrival order never changes the outcome.
type Deduplicator struct {
	mu          sync.Mutex
	byKey       map[model.Fingerprint]model.JobPosting
	merged      int
	sealed      bool
	fingerprint func(model.JobPosting) model.Fingerprint
	logger      logger.Logger
}

// New creates an empty Deduplicator.
func New(opts ...Option) *Deduplicator {
	d := &Deduplicator{
		byKey:       make(map[model.Fingerprint]model.JobPosting),
		fingerprint: fingerprint.Of,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logger.Get().Named("dedupe")
	}
	return d
}

// Add merges p into the set. It reports the fingerprint and whether p
// collapsed into an existing entry. After Seal it returns ErrSealed.
func (d *Deduplicator) Add(ctx context.Context, p model.JobPosting) (model.Fingerprint, bool, error) { //nolint:gocritic // postings are values
	fp := d.fingerprint(p)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sealed {
		return fp, false, ErrSealed
	}

	cur, exists := d.byKey[fp]
	if !exists {
		d.byKey[fp] = p.Clone()
		return fp, false, nil
	}

	d.byKey[fp] = Merge(cur, p)
	d.merged++
	metrics.RecordDuplicateMerged()
	d.logger.Debug(ctx, "merged duplicate posting",
		logger.String("fingerprint", string(fp)),
		logger.String("source_id", p.SourceID),
		logger.String("external_id", p.ExternalID),
	)
	return fp, true, nil
}

// Seal stops accepting postings. Late arrivals from adapters still running
// past the deadline are rejected.
func (d *Deduplicator) Seal() {
	d.mu.Lock()
	d.sealed = true
	d.mu.Unlock()
}

// Snapshot returns the canonical postings ordered by fingerprint.
func (d *Deduplicator) Snapshot() []Entry {
	d.mu.Lock()
	out := make([]Entry, 0, len(d.byKey))
	for fp, p := range d.byKey {
		out = append(out, Entry{Fingerprint: fp, Posting: p.Clone()})
	}
	d.mu.Unlock()

	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(string(a.Fingerprint), string(b.Fingerprint)) })
	return out
}

// Len returns the number of unique fingerprints.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.byKey)
}

// Merged returns how many postings collapsed into an existing fingerprint.
func (d *Deduplicator) Merged() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.merged
}

// Merge combines two postings of the same job. The richer description wins
// and supplies the identifying fields; posted_at is the earliest known;
// skills and sources are unioned. Ties fall through a fixed field order so
// that Merge(a, b) == Merge(b, a).
func Merge(a, b model.JobPosting) model.JobPosting { //nolint:gocritic // postings are values
	winner := a
	if richer(b, a) {
		winner = b
	}
	out := winner.Clone()
	out.PostedAt = earliest(a, b)
	out.Skills = model.UnionTerms(a.Skills, b.Skills)
	out.SeenOn = model.UnionTerms(a.SeenOn, b.SeenOn)
	return out
}

// richer reports whether x should win over y.
func richer(x, y model.JobPosting) bool { //nolint:gocritic // postings are values
	if lx, ly := len(x.Description), len(y.Description); lx != ly {
		return lx > ly
	}
	for _, pair := range [][2]string{
		{x.Description, y.Description},
		{x.SourceID, y.SourceID},
		{x.ExternalID, y.ExternalID},
		{x.Title, y.Title},
		{x.Company, y.Company},
		{x.ApplyURL, y.ApplyURL},
	} {
		if c := strings.Compare(pair[0], pair[1]); c != 0 {
			return c < 0
		}
	}
	return false
}

func earliest(a, b model.JobPosting) *time.Time { //nolint:gocritic // postings are values
	var t *time.Time
	switch {
	case a.PostedAt == nil && b.PostedAt == nil:
		return nil
	case a.PostedAt == nil:
		t = b.PostedAt
	case b.PostedAt == nil || a.PostedAt.Before(*b.PostedAt):
		t = a.PostedAt
	default:
		t = b.PostedAt
	}
	c := *t
	return &c
}
