// Package rss reads job postings from an RSS or Atom feed.
package rss

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/okian/jobrank/internal/adapters/source/ratelimit"
	"github.com/okian/jobrank/internal/domain/model"
	"github.com/okian/jobrank/internal/domain/normalize"
	"github.com/okian/jobrank/internal/domain/source"
)

// Adapter serves a whole feed as a single page.
type Adapter struct {
	id      string
	feedURL string
	company string
	client  *ratelimit.Client
	parser  *gofeed.Parser
}

// New creates an adapter for feedURL. company, when set, overrides the
// per-item company.
func New(id, feedURL, company string, client *ratelimit.Client) *Adapter {
	if client == nil {
		client = ratelimit.NewClient(nil, nil)
	}
	return &Adapter{
		id:      id,
		feedURL: feedURL,
		company: company,
		client:  client,
		parser:  gofeed.NewParser(),
	}
}

// ID returns the source id.
func (a *Adapter) ID() string { return a.id }

// FetchPage fetches and parses the feed.
func (a *Adapter) FetchPage(ctx context.Context, _ string) (source.Page, error) {
	body, err := a.client.Get(ctx, a.feedURL)
	if err != nil {
		return source.Page{}, fmt.Errorf("rss get: %w", err)
	}
	feed, err := a.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return source.Page{}, fmt.Errorf("rss parse: %w", err)
	}

	page := source.Page{Records: make([]model.RawRecord, 0, len(feed.Items))}
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		page.Records = append(page.Records, a.record(feed, it))
	}
	return page, nil
}

func (a *Adapter) record(feed *gofeed.Feed, it *gofeed.Item) model.RawRecord {
	title := strings.TrimSpace(it.Title)
	company := a.company
	if company == "" && it.Author != nil {
		company = strings.TrimSpace(it.Author.Name)
	}
	// Aggregator feeds often title items "Company: Role".
	if company == "" {
		if c, role, ok := strings.Cut(title, ": "); ok && c != "" && role != "" {
			company, title = c, role
		}
	}
	if company == "" {
		company = strings.TrimSpace(feed.Title)
	}

	desc := it.Content
	if desc == "" {
		desc = it.Description
	}

	rec := model.RawRecord{
		normalize.KeyExternalID:  strings.TrimSpace(it.GUID),
		normalize.KeyTitle:       title,
		normalize.KeyCompany:     company,
		normalize.KeyDescription: desc,
		normalize.KeyApplyURL:    strings.TrimSpace(it.Link),
	}
	switch {
	case it.PublishedParsed != nil:
		rec[normalize.KeyPostedAt] = *it.PublishedParsed
	case it.UpdatedParsed != nil:
		rec[normalize.KeyPostedAt] = *it.UpdatedParsed
	}
	if len(it.Categories) > 0 {
		rec[normalize.KeySkills] = it.Categories
	}
	return rec
}
