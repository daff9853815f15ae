// Package lever reads postings from the public Lever postings API.
package lever

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/okian/jobrank/internal/adapters/source/ratelimit"
	"github.com/okian/jobrank/internal/domain/model"
	"github.com/okian/jobrank/internal/domain/normalize"
	"github.com/okian/jobrank/internal/domain/source"
)

const (
	defaultBaseURL  = "https://api.lever.co"
	defaultPageSize = 100
)

type posting struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	HostedURL  string `json:"hostedUrl"`
	CreatedAt  int64  `json:"createdAt"`
	Categories struct {
		Commitment string `json:"commitment"`
		Location   string `json:"location"`
		Team       string `json:"team"`
	} `json:"categories"`
	Description      string   `json:"description"`
	DescriptionPlain string   `json:"descriptionPlain"`
	Tags             []string `json:"tags"`
}

// Adapter pages through one company's Lever board.
type Adapter struct {
	id       string
	slug     string
	company  string
	baseURL  string
	pageSize int
	client   *ratelimit.Client
}

// New creates an adapter for api.lever.co/v0/postings/<slug>.
func New(id, slug, company string, client *ratelimit.Client, opts ...Option) *Adapter {
	a := &Adapter{
		id:       id,
		slug:     slug,
		company:  company,
		baseURL:  defaultBaseURL,
		pageSize: defaultPageSize,
		client:   client,
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

// FetchPage fetches postings starting at the skip offset in cursor.
func (a *Adapter) FetchPage(ctx context.Context, cursor string) (source.Page, error) {
	skip := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return source.Page{}, fmt.Errorf("lever cursor %q: %w", cursor, err)
		}
		skip = n
	}

	q := url.Values{}
	q.Set("mode", "json")
	q.Set("skip", strconv.Itoa(skip))
	q.Set("limit", strconv.Itoa(a.pageSize))
	apiURL := fmt.Sprintf("%s/v0/postings/%s?%s", strings.TrimRight(a.baseURL, "/"), url.PathEscape(a.slug), q.Encode())

	body, err := a.client.Get(ctx, apiURL)
	if err != nil {
		return source.Page{}, fmt.Errorf("lever get: %w", err)
	}

	var postings []posting
	if err := json.Unmarshal(body, &postings); err != nil {
		return source.Page{}, fmt.Errorf("lever decode: %w", err)
	}

	page := source.Page{Records: make([]model.RawRecord, 0, len(postings))}
	for i := range postings {
		page.Records = append(page.Records, a.record(&postings[i]))
	}
	if len(postings) == a.pageSize {
		page.Next = strconv.Itoa(skip + len(postings))
	}
	return page, nil
}

func (a *Adapter) record(p *posting) model.RawRecord {
	desc := p.DescriptionPlain
	if desc == "" {
		desc = normalize.StripHTML(p.Description)
	}
	rec := model.RawRecord{
		normalize.KeyExternalID:  p.ID,
		normalize.KeyTitle:       p.Text,
		normalize.KeyCompany:     a.company,
		normalize.KeyDescription: desc,
		normalize.KeyApplyURL:    p.HostedURL,
		"location":               p.Categories.Location,
		"team":                   p.Categories.Team,
	}
	if p.CreatedAt > 0 {
		rec[normalize.KeyPostedAt] = p.CreatedAt
	}
	if len(p.Tags) > 0 {
		rec[normalize.KeySkills] = p.Tags
	}
	return rec
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBaseURL points the adapter at another API host.
func WithBaseURL(u string) Option {
	return func(a *Adapter) {
		if u != "" {
			a.baseURL = u
		}
	}
}

// WithPageSize sets the limit parameter.
func WithPageSize(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.pageSize = n
		}
	}
}
