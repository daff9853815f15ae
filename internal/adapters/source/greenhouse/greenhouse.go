// Package greenhouse scrapes a public Greenhouse job board.
package greenhouse

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/okian/jobrank/internal/adapters/source/ratelimit"
	"github.com/okian/jobrank/internal/domain/model"
	"github.com/okian/jobrank/internal/domain/normalize"
	"github.com/okian/jobrank/internal/domain/source"
)

const defaultBaseURL = "https://boards.greenhouse.io"

// Adapter reads boards.greenhouse.io/<slug>. The board is a single page;
// with hydration on, each job page is fetched for its description.
type Adapter struct {
	id      string
	slug    string
	company string
	baseURL string
	hydrate bool
	client  *ratelimit.Client
}

// New creates an adapter for one board.
func New(id, slug, company string, client *ratelimit.Client, opts ...Option) *Adapter {
	a := &Adapter{
		id:      id,
		slug:    slug,
		company: company,
		baseURL: defaultBaseURL,
		hydrate: true,
		client:  client,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.company == "" {
		a.company = slug
	}
	if a.client == nil {
		a.client = ratelimit.NewClient(nil, nil)
	}
	return a
}

// ID returns the source id.
func (a *Adapter) ID() string { return a.id }

// FetchPage returns every job linked from the board. If ctx ends while job
// pages are being hydrated, the records built so far are returned with the
// context error.
func (a *Adapter) FetchPage(ctx context.Context, _ string) (source.Page, error) {
	boardURL := strings.TrimRight(a.baseURL, "/") + "/" + url.PathEscape(a.slug)
	body, err := a.client.Get(ctx, boardURL)
	if err != nil {
		return source.Page{}, fmt.Errorf("greenhouse get board: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return source.Page{}, fmt.Errorf("greenhouse parse board html: %w", err)
	}
	base, err := url.Parse(boardURL)
	if err != nil {
		return source.Page{}, fmt.Errorf("greenhouse board url: %w", err)
	}

	seen := map[string]bool{}
	var page source.Page
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		abs, jobID, ok := resolveJobLink(base, href)
		if !ok || seen[jobID] {
			return
		}
		seen[jobID] = true
		page.Records = append(page.Records, model.RawRecord{
			normalize.KeyExternalID: jobID,
			normalize.KeyTitle:      normalize.CleanText(sel.Text()),
			normalize.KeyCompany:    a.company,
			normalize.KeyApplyURL:   abs,
		})
	})

	if !a.hydrate {
		return page, nil
	}
	for _, rec := range page.Records {
		if err := ctx.Err(); err != nil {
			return page, err
		}
		a.hydrateRecord(ctx, rec)
	}
	return page, nil
}

// hydrateRecord fills title and description from the job page. Failures
// leave the minimal record in place.
func (a *Adapter) hydrateRecord(ctx context.Context, rec model.RawRecord) {
	link, _ := rec[normalize.KeyApplyURL].(string)
	body, err := a.client.Get(ctx, link)
	if err != nil {
		return
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return
	}
	if title, _ := rec[normalize.KeyTitle].(string); title == "" || looksLikeJunkTitle(title) {
		if h1 := normalize.CleanText(doc.Find("h1").First().Text()); h1 != "" {
			rec[normalize.KeyTitle] = h1
		}
	}
	if sel := doc.Find("#content").First(); sel.Length() > 0 {
		if h, err := sel.Html(); err == nil {
			rec[normalize.KeyDescription] = h
		}
	}
	if loc := normalize.CleanText(doc.Find(".location").First().Text()); loc != "" {
		rec["location"] = loc
	}
}

// resolveJobLink accepts links of the form .../jobs/<digits> on the board's
// own host or any greenhouse.io host.
func resolveJobLink(base *url.URL, href string) (string, string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", "", false
	}
	u := base.ResolveReference(ref)
	host := strings.ToLower(u.Hostname())
	if host != strings.ToLower(base.Hostname()) && !strings.HasSuffix(host, "greenhouse.io") {
		return "", "", false
	}
	id := extractJobID(u.Path)
	if id == "" {
		return "", "", false
	}
	u.Fragment = ""
	return u.String(), id, true
}

func extractJobID(path string) string {
	_, tail, ok := strings.Cut(path, "/jobs/")
	if !ok {
		return ""
	}
	end := 0
	for end < len(tail) && tail[end] >= '0' && tail[end] <= '9' {
		end++
	}
	return tail[:end]
}

func looksLikeJunkTitle(s string) bool {
	switch strings.ToLower(s) {
	case "apply", "apply now", "view job", "learn more", "details":
		return true
	}
	return false
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBaseURL points the adapter at another board host.
func WithBaseURL(u string) Option {
	return func(a *Adapter) {
		if u != "" {
			a.baseURL = u
		}
	}
}

// WithHydration toggles fetching each job page.
func WithHydration(on bool) Option {
	return func(a *Adapter) { a.hydrate = on }
}
