// Package retain decides, each cycle, which tracked articles survive, which
// are deleted from the read-later service, and which are merely dropped from
// local tracking. It is the reconciliation core of newsrack: local snapshot
// on one side, normalized remote bookmark state on the other.
//
// The one property everything else bends around: if remote state cannot be
// observed, nothing is deleted or purged. The input snapshot comes back
// unchanged and the cycle is retried next run.
package retain

import (
	"context"
	"sort"
	"time"

	"github.com/mpetitjean/newsrack/internal/instapaper"
	"github.com/mpetitjean/newsrack/internal/track"
	"github.com/mpetitjean/newsrack/pkg/logging"
)

// Decision is the per-entry outcome of a retention pass.
type Decision int

const (
	// Keep leaves the entry in the snapshot; no remote call.
	Keep Decision = iota

	// Purge drops the entry from local tracking only. Used when the
	// bookmark is starred, or already gone remotely: in neither case may
	// a delete be issued.
	Purge

	// DeleteRemote deletes the bookmark remotely and then drops the
	// entry locally, whether or not the delete succeeded.
	DeleteRemote
)

// String implements fmt.Stringer.
func (d Decision) String() string {
	switch d {
	case Keep:
		return "keep"
	case Purge:
		return "purge"
	case DeleteRemote:
		return "delete"
	default:
		return "unknown"
	}
}

// Mode selects the retention policy.
type Mode string

const (
	// ModeTTL retires entries older than a fixed time-to-live.
	ModeTTL Mode = "ttl"

	// ModeSourceCap keeps the most recent N entries per source feed.
	ModeSourceCap Mode = "source-cap"
)

// Policy configures the retention rule.
type Policy struct {
	Mode Mode

	// TTL is the maximum age before an entry is adjudicated (ModeTTL).
	TTL time.Duration

	// Cap is how many recent entries each source keeps (ModeSourceCap).
	Cap int
}

// DefaultPolicy is 24-hour TTL retention.
func DefaultPolicy() Policy {
	return Policy{Mode: ModeTTL, TTL: 24 * time.Hour, Cap: 10}
}

// Remote is what the engine needs from the bookmarking service.
type Remote interface {
	List(ctx context.Context) (map[string]instapaper.Bookmark, error)
	Delete(ctx context.Context, bookmarkID string) error
}

// Options tunes a Runner.
type Options struct {
	// DryRun logs decisions without remote deletes or local changes.
	DryRun bool
}

// Runner is the retention engine.
type Runner struct {
	remote Remote
	policy Policy
	opts   Options

	now func() time.Time
}

// New creates a Runner.
func New(remote Remote, policy Policy, opts Options) *Runner {
	if policy.Mode == "" {
		policy.Mode = ModeTTL
	}
	if policy.TTL <= 0 {
		policy.TTL = DefaultPolicy().TTL
	}
	if policy.Cap <= 0 {
		policy.Cap = DefaultPolicy().Cap
	}
	return &Runner{
		remote: remote,
		policy: policy,
		opts:   opts,
		now:    time.Now,
	}
}

// Run evaluates every tracked entry and returns the next snapshot. The input
// snapshot is never mutated. If listing remote bookmarks fails, the input is
// returned as-is: remote truth is unknowable, so nothing may be dropped.
func (r *Runner) Run(ctx context.Context, snap track.Snapshot) track.Snapshot {
	log := logging.Ctx(ctx)

	remote, err := r.remote.List(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Cleanup skipped: remote bookmark list unavailable")
		return snap
	}

	decisions := r.decide(snap, remote)

	next := make(track.Snapshot, len(snap))
	for _, url := range sortedKeys(snap) {
		entry := snap[url]
		switch decisions[url] {
		case Keep:
			next[url] = entry
			log.Debug().Str("url", url).Msg("Keeping")

		case Purge:
			log.Info().Str("url", url).Str("bookmark_id", entry.BookmarkID).
				Msg("Purging from local tracking")

		case DeleteRemote:
			if r.opts.DryRun {
				log.Info().Str("url", url).Msg("Would delete remotely (dry run)")
				break
			}
			if err := r.remote.Delete(ctx, entry.BookmarkID); err != nil {
				// Not retried: local tracking is advisory, and the
				// purge below proceeds regardless.
				log.Warn().Err(err).Str("url", url).Msg("Remote delete failed, purging anyway")
			} else {
				log.Info().Str("url", url).Str("bookmark_id", entry.BookmarkID).
					Msg("Deleted remotely and purged")
			}
		}
	}

	if r.opts.DryRun {
		return snap
	}
	return next
}

// decide computes the per-entry decisions without side effects.
func (r *Runner) decide(snap track.Snapshot, remote map[string]instapaper.Bookmark) map[string]Decision {
	if r.policy.Mode == ModeSourceCap {
		return r.decideSourceCap(snap, remote)
	}
	return r.decideTTL(snap, remote)
}

// decideTTL applies the age-based rule: entries within the TTL are kept
// without looking at remote state at all. Aged entries are adjudicated
// against the remote mapping: gone or starred means purge-only, present and
// unstarred means remote delete.
func (r *Runner) decideTTL(snap track.Snapshot, remote map[string]instapaper.Bookmark) map[string]Decision {
	now := r.now()
	out := make(map[string]Decision, len(snap))
	for url, entry := range snap {
		if entry.Age(now) <= r.policy.TTL {
			out[url] = Keep
			continue
		}
		bm, ok := remote[entry.BookmarkID]
		switch {
		case !ok:
			// Archived or removed by the user, or the listing was
			// degraded to empty. Either way there is nothing we can
			// safely delete.
			out[url] = Purge
		case bm.Starred:
			out[url] = Purge
		default:
			out[url] = DeleteRemote
		}
	}
	return out
}

// decideSourceCap applies the per-source rule: within each source feed,
// entries ranked by recency; rank below the cap or a remote star keeps the
// entry, everything else is deleted. Age is not consulted.
func (r *Runner) decideSourceCap(snap track.Snapshot, remote map[string]instapaper.Bookmark) map[string]Decision {
	groups := make(map[string][]string)
	for _, url := range sortedKeys(snap) {
		src := snap[url].Source
		groups[src] = append(groups[src], url)
	}

	out := make(map[string]Decision, len(snap))
	for _, members := range groups {
		// Most recent first; the stable sort keeps URL order for ties.
		sort.SliceStable(members, func(i, j int) bool {
			return snap[members[i]].AddedAt.After(snap[members[j]].AddedAt)
		})
		for rank, url := range members {
			entry := snap[url]
			starred := remote[entry.BookmarkID].Starred
			if rank < r.policy.Cap || starred {
				out[url] = Keep
			} else {
				out[url] = DeleteRemote
			}
		}
	}
	return out
}

// sortedKeys gives a deterministic processing order; map iteration order
// would make logs and tie-breaks jitter between runs.
func sortedKeys(snap track.Snapshot) []string {
	keys := make([]string, 0, len(snap))
	for url := range snap {
		keys = append(keys, url)
	}
	sort.Strings(keys)
	return keys
}
