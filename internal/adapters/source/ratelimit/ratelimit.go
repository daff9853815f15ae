// Package ratelimit throttles outbound HTTP per host and wraps the polite
// GET used by the web-backed source adapters.
package ratelimit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Defaults for the shared client.
const (
	defaultUserAgent = "jobrank/1.0 (+https://github.com/okian/jobrank)"
	defaultTimeout   = 20 * time.Second
	maxBodyBytes     = 8 << 20
)

// HostLimiter rate-limits per hostname (api.lever.co, boards.greenhouse.io, ...).
type HostLimiter struct {
	mu sync.Mutex
	m  map[string]*rate.Limiter
	r  rate.Limit
	b  int
}

// NewHostLimiter creates a limiter allowing reqPerSec per host with burst.
// reqPerSec <= 0 means unlimited.
func NewHostLimiter(reqPerSec float64, burst int) *HostLimiter {
	r := rate.Limit(reqPerSec)
	if reqPerSec <= 0 {
		r = rate.Inf
	}
	return &HostLimiter{
		m: make(map[string]*rate.Limiter),
		r: r,
		b: max(burst, 1),
	}
}

func (hl *HostLimiter) limiterFor(host string) *rate.Limiter {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	if lim, ok := hl.m[host]; ok {
		return lim
	}
	lim := rate.NewLimiter(hl.r, hl.b)
	hl.m[host] = lim
	return lim
}

// WaitURL blocks until a request to raw's host is allowed or ctx ends.
func (hl *HostLimiter) WaitURL(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return hl.limiterFor("_").Wait(ctx)
	}
	return hl.limiterFor(u.Host).Wait(ctx)
}

// Hosts returns the number of hosts seen so far.
func (hl *HostLimiter) Hosts() int {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	return len(hl.m)
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Code)
}

// Client performs rate-limited GETs.
type Client struct {
	hc        *http.Client
	limiter   *HostLimiter
	userAgent string
}

// NewClient wraps hc (nil means a client with a 20s timeout) and limiter
// (nil means unlimited).
func NewClient(hc *http.Client, limiter *HostLimiter) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	if limiter == nil {
		limiter = NewHostLimiter(0, 1)
	}
	return &Client{hc: hc, limiter: limiter, userAgent: defaultUserAgent}
}

// Get fetches raw and returns the body. Non-2xx responses yield *StatusError.
func (c *Client) Get(ctx context.Context, raw string) ([]byte, error) {
	if err := c.limiter.WaitURL(ctx, raw); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	res, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", raw, err)
	}
	defer res.Body.Close() //nolint:errcheck // read-only body

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &StatusError{URL: raw, Code: res.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", raw, err)
	}
	return body, nil
}
