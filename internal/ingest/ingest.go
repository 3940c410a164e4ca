// Package ingest walks the configured feeds and forwards unseen articles to
// the read-later service, recording each successful submission in the tracking
// snapshot. Per-item failures are logged and skipped; a run never aborts over
// one bad article or one dead feed.
package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mpetitjean/newsrack/internal/feeds"
	"github.com/mpetitjean/newsrack/internal/instapaper"
	"github.com/mpetitjean/newsrack/internal/track"
	"github.com/mpetitjean/newsrack/pkg/logging"
)

// DefaultDelay is the pause between consecutive submissions. The service
// throttles aggressive clients; for large backlogs bump this toward 2s.
const DefaultDelay = 1 * time.Second

// Remote is the single operation ingestion needs from the bookmarking
// service.
type Remote interface {
	Add(ctx context.Context, url string) (instapaper.Bookmark, error)
}

// Parser fetches one feed and returns its items newest-first.
type Parser interface {
	Parse(ctx context.Context, feedURL string) ([]feeds.Item, error)
}

// Options tunes a Runner.
type Options struct {
	// Delay is the pause after every submission attempt, success or not.
	Delay time.Duration

	// DryRun logs what would be submitted without calling the service.
	DryRun bool
}

// Runner is the ingestion engine. Strictly sequential: one feed at a time,
// one item at a time.
type Runner struct {
	remote Remote
	parser Parser
	opts   Options

	now   func() time.Time
	sleep func(time.Duration)
}

// New creates a Runner.
func New(remote Remote, parser Parser, opts Options) *Runner {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	return &Runner{
		remote: remote,
		parser: parser,
		opts:   opts,
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// Run processes the feeds in their configured order and mutates snap in
// place as submissions succeed, so dedup within the run sees fresh entries.
func (r *Runner) Run(ctx context.Context, feedURLs []string, snap track.Snapshot) {
	for _, feedURL := range feedURLs {
		log := logging.Ctx(ctx).With().Str("feed", feedURL).Logger()
		log.Info().Msg("Checking feed")

		items, err := r.parser.Parse(ctx, feedURL)
		if err != nil {
			log.Warn().Err(err).Msg("Feed fetch failed, skipping")
			continue
		}

		// The parser yields newest-first; submit oldest-first so that
		// monotonically issued bookmark IDs preserve article order.
		for i := len(items) - 1; i >= 0; i-- {
			if ctx.Err() != nil {
				log.Warn().Msg("Ingestion canceled")
				return
			}
			r.submit(ctx, &log, feedURL, items[i], snap)
		}
	}
}

// submit handles a single item: dedup check, remote add, snapshot insert,
// rate-limit pause.
func (r *Runner) submit(ctx context.Context, log *zerolog.Logger, feedURL string, item feeds.Item, snap track.Snapshot) {
	if snap.Contains(item.Link) {
		log.Debug().Str("url", item.Link).Msg("Already tracked")
		return
	}

	if r.opts.DryRun {
		log.Info().Str("url", item.Link).Msg("Would add (dry run)")
		return
	}

	bm, err := r.remote.Add(ctx, item.Link)
	if err != nil {
		// Recoverable: the URL stays untracked, so the next run
		// naturally retries it.
		log.Warn().Err(err).Str("url", item.Link).Msg("Add failed")
	} else {
		snap[item.Link] = track.Entry{
			AddedAt:    r.now(),
			BookmarkID: bm.ID,
			Source:     feedURL,
		}
		log.Info().Str("url", item.Link).Str("bookmark_id", bm.ID).Msg("Added")
	}

	r.sleep(r.opts.Delay)
}
