// Package scorecache memoizes scoring outcomes per fingerprint for one run.
package scorecache

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/okian/jobrank/internal/domain/model"
	"github.com/okian/jobrank/pkg/metrics"
)

// Lookup reports how a GetOrScore call was served.
type Lookup string

// Lookup results.
const (
	Hit    Lookup = "hit"
	Miss   Lookup = "miss"
	Shared Lookup = "shared"
)

// ScoreFunc produces the outcome for a fingerprint that is not cached yet.
// Failures are outcomes too and are cached like successes.
type ScoreFunc func(ctx context.Context) model.ScoredPosting

// Stats counts lookups by result.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Shared int64 `json:"shared"`
}

// Cache guarantees at most one in-flight ScoreFunc per fingerprint.
// Concurrent callers for the same key join the running call.
type Cache struct {
	mu      sync.RWMutex
	entries map[model.Fingerprint]model.ScoredPosting
	group   singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
	shared atomic.Int64
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[model.Fingerprint]model.ScoredPosting)}
}

// GetOrScore returns the cached outcome for fp, running fn at most once
// across all concurrent callers when there is none.
func (c *Cache) GetOrScore(ctx context.Context, fp model.Fingerprint, fn ScoreFunc) (model.ScoredPosting, Lookup) {
	if sp, ok := c.Peek(fp); ok {
		c.record(Hit)
		return sp, Hit
	}

	var ran bool
	v, _, _ := c.group.Do(string(fp), func() (any, error) {
		// Another flight may have finished between Peek and Do.
		if sp, ok := c.Peek(fp); ok {
			return sp, nil
		}
		ran = true
		sp := fn(ctx)
		c.mu.Lock()
		c.entries[fp] = sp
		c.mu.Unlock()
		return sp, nil
	})

	sp := v.(model.ScoredPosting) //nolint:errcheck // the flight only ever returns ScoredPosting
	res := Shared
	if ran {
		res = Miss
	}
	c.record(res)
	sp.Posting = sp.Posting.Clone()
	return sp, res
}

// Peek returns the cached outcome for fp without scoring.
func (c *Cache) Peek(fp model.Fingerprint) (model.ScoredPosting, bool) {
	c.mu.RLock()
	sp, ok := c.entries[fp]
	c.mu.RUnlock()
	if ok {
		sp.Posting = sp.Posting.Clone()
	}
	return sp, ok
}

// Len returns the number of cached fingerprints.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns lookup counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Shared: c.shared.Load(),
	}
}

func (c *Cache) record(l Lookup) {
	switch l {
	case Hit:
		c.hits.Add(1)
	case Miss:
		c.misses.Add(1)
	case Shared:
		c.shared.Add(1)
	}
	metrics.RecordCacheLookup(string(l))
}
