// Package feeds retrieves and parses the configured RSS/Atom feeds. The
// parser yields items newest-first, the order feeds publish in; the ingestion
// engine is responsible for reversing that before submitting.
package feeds

import (
	"context"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/mpetitjean/newsrack/pkg/errors"
)

// DefaultTimeout bounds a single feed fetch.
const DefaultTimeout = 15 * time.Second

// Item is one feed entry reduced to what ingestion needs.
type Item struct {
	// Link is the article URL, the canonical dedup identity.
	Link string

	// Title is carried for log output only.
	Title string
}

// Fetcher retrieves feeds over HTTP and parses them.
type Fetcher struct {
	parser *gofeed.Parser
}

// NewFetcher creates a Fetcher with the given per-request timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	p := gofeed.NewParser()
	p.Client = &http.Client{Timeout: timeout}
	p.UserAgent = "newsrack (+https://github.com/mpetitjean/newsrack)"
	return &Fetcher{parser: p}
}

// Parse fetches one feed and returns its items in the feed's own order,
// newest first. Items without a link are dropped here so downstream code
// never sees an empty dedup key.
func (f *Fetcher) Parse(ctx context.Context, feedURL string) ([]Item, error) {
	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, errors.WrapParse("feed", feedURL, err)
	}

	items := make([]Item, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil || it.Link == "" {
			continue
		}
		items = append(items, Item{Link: it.Link, Title: it.Title})
	}
	return items, nil
}
