// Package source defines the adapter contract for job sources and the driver
// that drains an adapter under caller limits.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/jobrank/internal/domain/model"
)

// Completion explains why a drain stopped.
type Completion string

// Completion reasons.
const (
	CompletionOK           Completion = "ok"
	CompletionLimitReached Completion = "limit_reached"
	CompletionTimeout      Completion = "timeout"
	CompletionError        Completion = "error"
)

// Degraded reports whether the source contributed less than it had.
// Caller-imposed limits are not degradation.
func (c Completion) Degraded() bool {
	return c == CompletionError || c == CompletionTimeout
}

// Page is one batch of raw records. An empty Next means the source is
// exhausted.
type Page struct {
	Records []model.RawRecord
	Next    string
}

// Adapter fetches raw records from one job source, one page at a time.
// FetchPage may return records together with an error; those records are
// kept. Implementations must honor ctx and hold no state shared with other
// adapters.
type Adapter interface {
	ID() string
	FetchPage(ctx context.Context, cursor string) (Page, error)
}

// Limits bounds one drain. Zero values mean unlimited.
type Limits struct {
	MaxRecords int
	MaxPages   int
	Timeout    time.Duration
}

// Result describes a finished drain.
type Result struct {
	SourceID   string
	Completion Completion
	Records    int
	Pages      int
	Elapsed    time.Duration
	Err        error
}

// Drain pulls pages from a until it is exhausted, a limit is hit, the
// deadline passes, or it fails, calling yield for every record in order.
// It never returns an error: failures are reported in Result.
func Drain(ctx context.Context, a Adapter, limits Limits, yield func(model.RawRecord)) (res Result) {
	start := time.Now()
	res.SourceID = a.ID()
	defer func() {
		if r := recover(); r != nil {
			res.Completion = CompletionError
			res.Err = &Error{SourceID: res.SourceID, Err: fmt.Errorf("%w: %v", ErrPanic, r)}
		}
		res.Elapsed = time.Since(start)
	}()

	if limits.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limits.Timeout)
		defer cancel()
	}

	cursor := ""
	for {
		if ctx.Err() != nil {
			res.Completion = CompletionTimeout
			return res
		}

		page, err := a.FetchPage(ctx, cursor)
		if err == nil || len(page.Records) > 0 {
			res.Pages++
		}
		for _, rec := range page.Records {
			if limits.MaxRecords > 0 && res.Records >= limits.MaxRecords {
				res.Completion = CompletionLimitReached
				return res
			}
			yield(rec)
			res.Records++
		}

		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
				res.Completion = CompletionTimeout
				return res
			}
			res.Completion = CompletionError
			res.Err = &Error{SourceID: res.SourceID, Err: err}
			return res
		}
		if page.Next == "" {
			res.Completion = CompletionOK
			return res
		}
		if limits.MaxRecords > 0 && res.Records >= limits.MaxRecords {
			res.Completion = CompletionLimitReached
			return res
		}
		if limits.MaxPages > 0 && res.Pages >= limits.MaxPages {
			res.Completion = CompletionLimitReached
			return res
		}
		cursor = page.Next
	}
}
