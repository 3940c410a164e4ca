package retain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpetitjean/newsrack/internal/instapaper"
	"github.com/mpetitjean/newsrack/internal/track"
)

type fakeRemote struct {
	bookmarks map[string]instapaper.Bookmark
	listErr   error
	deleteErr error
	deleted   []string
}

func (f *fakeRemote) List(context.Context) (map[string]instapaper.Bookmark, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.bookmarks, nil
}

func (f *fakeRemote) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

func bookmark(id string, starred bool) instapaper.Bookmark {
	return instapaper.Bookmark{ID: id, Starred: starred}
}

var now = time.Unix(1724900000, 0)

func newTTLRunner(remote Remote) *Runner {
	r := New(remote, Policy{Mode: ModeTTL, TTL: 24 * time.Hour}, Options{})
	r.now = func() time.Time { return now }
	return r
}

func aged(h int, id, source string) track.Entry {
	return track.Entry{AddedAt: now.Add(-time.Duration(h) * time.Hour), BookmarkID: id, Source: source}
}

func TestTTLKeepsYoungEntries(t *testing.T) {
	remote := &fakeRemote{bookmarks: map[string]instapaper.Bookmark{}}
	r := newTTLRunner(remote)

	snap := track.Snapshot{
		"https://example.com/young": aged(1, "1", ""),
		"https://example.com/edge":  {AddedAt: now.Add(-24 * time.Hour), BookmarkID: "2"},
	}
	next := r.Run(context.Background(), snap)

	assert.Len(t, next, 2, "entries at or under the TTL survive")
	assert.Empty(t, remote.deleted)
}

func TestTTLDeletesAgedUnstarred(t *testing.T) {
	remote := &fakeRemote{bookmarks: map[string]instapaper.Bookmark{
		"1": bookmark("1", false),
	}}
	r := newTTLRunner(remote)

	snap := track.Snapshot{"https://example.com/a": aged(30, "1", "")}
	next := r.Run(context.Background(), snap)

	assert.Empty(t, next)
	assert.Equal(t, []string{"1"}, remote.deleted)
}

func TestTTLStarredExemption(t *testing.T) {
	// Aged and starred: removed from the snapshot, but the remote
	// bookmark is never touched.
	remote := &fakeRemote{bookmarks: map[string]instapaper.Bookmark{
		"1": bookmark("1", true),
	}}
	r := newTTLRunner(remote)

	snap := track.Snapshot{"https://example.com/a": aged(30, "1", "")}
	next := r.Run(context.Background(), snap)

	assert.Empty(t, next)
	assert.Empty(t, remote.deleted)
}

func TestTTLUnknownRemotePurge(t *testing.T) {
	// Aged but absent from the remote listing (archived or already
	// removed): purge locally with zero delete calls.
	remote := &fakeRemote{bookmarks: map[string]instapaper.Bookmark{}}
	r := newTTLRunner(remote)

	snap := track.Snapshot{"https://example.com/a": aged(30, "1", "")}
	next := r.Run(context.Background(), snap)

	assert.Empty(t, next)
	assert.Empty(t, remote.deleted)
}

func TestFailSafeOnUnreachableRemote(t *testing.T) {
	remote := &fakeRemote{listErr: errors.New("dial tcp: timeout")}
	r := newTTLRunner(remote)

	snap := track.Snapshot{
		"https://example.com/a": aged(30, "1", ""),
		"https://example.com/b": aged(1, "2", ""),
	}
	next := r.Run(context.Background(), snap)

	assert.Equal(t, snap, next, "unknowable remote state must not cause any local change")
	assert.Empty(t, remote.deleted)
}

func TestFailedDeleteStillPurges(t *testing.T) {
	remote := &fakeRemote{
		bookmarks: map[string]instapaper.Bookmark{"1": bookmark("1", false)},
		deleteErr: errors.New("500 internal"),
	}
	r := newTTLRunner(remote)

	snap := track.Snapshot{"https://example.com/a": aged(30, "1", "")}
	next := r.Run(context.Background(), snap)

	assert.Equal(t, []string{"1"}, remote.deleted)
	assert.Empty(t, next, "purge proceeds even when the remote delete failed")
}

func TestEndToEndScenario(t *testing.T) {
	// A: aged, unstarred remotely -> deleted and purged.
	// B: aged, starred remotely   -> purged without delete.
	// C: young, not yet in remote -> kept unchanged.
	remote := &fakeRemote{bookmarks: map[string]instapaper.Bookmark{
		"1": bookmark("1", false),
		"2": bookmark("2", true),
	}}
	r := newTTLRunner(remote)

	snap := track.Snapshot{
		"https://example.com/A": aged(30, "1", ""),
		"https://example.com/B": aged(30, "2", ""),
		"https://example.com/C": aged(1, "3", ""),
	}
	next := r.Run(context.Background(), snap)

	assert.Equal(t, []string{"1"}, remote.deleted)
	require.Len(t, next, 1)
	assert.Equal(t, snap["https://example.com/C"], next["https://example.com/C"])

	// The input snapshot was not mutated.
	assert.Len(t, snap, 3)
}

func TestDryRun(t *testing.T) {
	remote := &fakeRemote{bookmarks: map[string]instapaper.Bookmark{
		"1": bookmark("1", false),
	}}
	r := New(remote, Policy{Mode: ModeTTL, TTL: 24 * time.Hour}, Options{DryRun: true})
	r.now = func() time.Time { return now }

	snap := track.Snapshot{"https://example.com/a": aged(30, "1", "")}
	next := r.Run(context.Background(), snap)

	assert.Empty(t, remote.deleted)
	assert.Equal(t, snap, next)
}

func TestSourceCapRanking(t *testing.T) {
	// 12 entries in one source group with strictly decreasing recency:
	// ranks 0-9 kept, ranks 10-11 deleted unless starred.
	remote := &fakeRemote{bookmarks: map[string]instapaper.Bookmark{
		"id-11": bookmark("id-11", true), // oldest, but starred
	}}
	r := New(remote, Policy{Mode: ModeSourceCap, Cap: 10}, Options{})
	r.now = func() time.Time { return now }

	snap := track.Snapshot{}
	for i := 0; i < 12; i++ {
		url := fmt.Sprintf("https://example.com/%02d", i)
		snap[url] = track.Entry{
			AddedAt:    now.Add(-time.Duration(i) * time.Hour),
			BookmarkID: fmt.Sprintf("id-%d", i),
			Source:     "https://example.com/rss",
		}
	}

	next := r.Run(context.Background(), snap)

	// Rank 10 (id-10) deleted; rank 11 (id-11) starred, kept.
	assert.Equal(t, []string{"id-10"}, remote.deleted)
	assert.Len(t, next, 11)
	assert.False(t, next.Contains("https://example.com/10"))
	assert.True(t, next.Contains("https://example.com/11"))
}

func TestSourceCapGroupsBySource(t *testing.T) {
	remote := &fakeRemote{bookmarks: map[string]instapaper.Bookmark{}}
	r := New(remote, Policy{Mode: ModeSourceCap, Cap: 2}, Options{})
	r.now = func() time.Time { return now }

	snap := track.Snapshot{}
	for i := 0; i < 3; i++ {
		snap[fmt.Sprintf("https://one.example.com/%d", i)] = track.Entry{
			AddedAt:    now.Add(-time.Duration(i) * time.Hour),
			BookmarkID: fmt.Sprintf("one-%d", i),
			Source:     "https://one.example.com/rss",
		}
		snap[fmt.Sprintf("https://two.example.com/%d", i)] = track.Entry{
			AddedAt:    now.Add(-time.Duration(i) * time.Hour),
			BookmarkID: fmt.Sprintf("two-%d", i),
			Source:     "https://two.example.com/rss",
		}
	}
	// An entry with no recorded source lands in its own group and is
	// capped independently.
	snap["https://nowhere.example.com/x"] = track.Entry{
		AddedAt:    now,
		BookmarkID: "none-0",
	}

	next := r.Run(context.Background(), snap)

	assert.ElementsMatch(t, []string{"one-2", "two-2"}, remote.deleted)
	assert.Len(t, next, 5)
	assert.True(t, next.Contains("https://nowhere.example.com/x"))
}

func TestSourceCapIgnoresAge(t *testing.T) {
	// Entries far past any TTL survive under the cap: age is not a
	// factor in this mode.
	remote := &fakeRemote{bookmarks: map[string]instapaper.Bookmark{}}
	r := New(remote, Policy{Mode: ModeSourceCap, Cap: 10}, Options{})
	r.now = func() time.Time { return now }

	snap := track.Snapshot{
		"https://example.com/old": aged(24*30, "1", "https://example.com/rss"),
	}
	next := r.Run(context.Background(), snap)

	assert.Len(t, next, 1)
	assert.Empty(t, remote.deleted)
}

func TestSourceCapStableTieBreak(t *testing.T) {
	// Equal timestamps: ties resolve by URL order, so the decision set
	// is deterministic across runs.
	remote := &fakeRemote{bookmarks: map[string]instapaper.Bookmark{}}
	r := New(remote, Policy{Mode: ModeSourceCap, Cap: 1}, Options{})
	r.now = func() time.Time { return now }

	snap := track.Snapshot{
		"https://example.com/a": {AddedAt: now, BookmarkID: "1", Source: "s"},
		"https://example.com/b": {AddedAt: now, BookmarkID: "2", Source: "s"},
	}

	for i := 0; i < 5; i++ {
		remote.deleted = nil
		next := r.Run(context.Background(), snap)
		assert.True(t, next.Contains("https://example.com/a"))
		assert.Equal(t, []string{"2"}, remote.deleted)
	}
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "keep", Keep.String())
	assert.Equal(t, "purge", Purge.String())
	assert.Equal(t, "delete", DeleteRemote.String())
	assert.Equal(t, "unknown", Decision(99).String())
}

func TestNewDefaults(t *testing.T) {
	r := New(&fakeRemote{}, Policy{}, Options{})
	assert.Equal(t, ModeTTL, r.policy.Mode)
	assert.Equal(t, 24*time.Hour, r.policy.TTL)
	assert.Equal(t, 10, r.policy.Cap)
}
