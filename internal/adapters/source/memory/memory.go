// Package memory provides an in-memory, scripted source adapter. It backs
// tests and local runs that feed postings from a file.
package memory

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/jobrank/internal/domain/model"
	"github.com/okian/jobrank/internal/domain/source"
)

// Adapter serves pre-built pages of raw records.
type Adapter struct {
	id      string
	pages   [][]model.RawRecord
	delay   time.Duration
	failAt  int
	failErr error
	calls   atomic.Int64
}

// New creates an adapter that serves pages in order.
func New(id string, opts ...Option) *Adapter {
	a := &Adapter{id: id, failAt: -1}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ID returns the source id.
func (a *Adapter) ID() string { return a.id }

// Calls returns how many times FetchPage ran.
func (a *Adapter) Calls() int { return int(a.calls.Load()) }

// FetchPage returns the page at the integer cursor.
func (a *Adapter) FetchPage(ctx context.Context, cursor string) (source.Page, error) {
	a.calls.Add(1)

	idx := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return source.Page{}, err
		}
		idx = n
	}

	if a.delay > 0 {
		t := time.NewTimer(a.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return source.Page{}, ctx.Err()
		case <-t.C:
		}
	}

	var page source.Page
	if idx < len(a.pages) {
		page.Records = a.pages[idx]
	}
	if idx == a.failAt {
		return page, a.failErr
	}
	if idx+1 < len(a.pages) {
		page.Next = strconv.Itoa(idx + 1)
	}
	return page, nil
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithPages sets the pages served.
func WithPages(pages ...[]model.RawRecord) Option {
	return func(a *Adapter) {
		a.pages = append(a.pages, pages...)
	}
}

// WithRecords serves records as a single page.
func WithRecords(records ...model.RawRecord) Option {
	return func(a *Adapter) {
		a.pages = append(a.pages, records)
	}
}

// WithDelay sleeps before every page, honoring cancellation.
func WithDelay(d time.Duration) Option {
	return func(a *Adapter) {
		a.delay = d
	}
}

// WithFailure makes the page at index fail with err. Records of that page,
// if any, are still returned alongside the error.
func WithFailure(index int, err error) Option {
	return func(a *Adapter) {
		a.failAt = index
		a.failErr = err
	}
}

// Paginate splits records into pages of at most size records.
func Paginate(records []model.RawRecord, size int) [][]model.RawRecord {
	if size <= 0 {
		size = len(records)
	}
	var pages [][]model.RawRecord
	for start := 0; start < len(records); start += size {
		pages = append(pages, records[start:min(start+size, len(records))])
	}
	return pages
}
