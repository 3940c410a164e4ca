// Package track owns the local tracking snapshot: the keyed-by-URL record of
// every article newsrack has submitted to the read-later service. The snapshot
// is the sole persistent state of the program; everything else is refetched
// each cycle.
package track

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/mpetitjean/newsrack/pkg/errors"
	"github.com/mpetitjean/newsrack/pkg/logging"
)

// Entry links a submitted article URL to its remote bookmark identifier and
// the time it was added. Entries are immutable once created; a cycle replaces
// the snapshot wholesale rather than editing entries in place.
type Entry struct {
	// AddedAt is when the article was successfully submitted.
	AddedAt time.Time

	// BookmarkID is the remote identifier, kept as an opaque string.
	// The service has been observed returning it as both a JSON number
	// and a string; normalizing at this boundary keeps lookups exact.
	BookmarkID string

	// Source is the URL of the feed the article came from. Empty for
	// entries recorded before source tracking existed.
	Source string
}

// entryJSON is the persisted wire form: epoch seconds for added_at, and an
// id written as a string but read tolerant of the number-or-string ambiguity
// left behind by older state files.
type entryJSON struct {
	AddedAt float64         `json:"added_at"`
	ID      json.RawMessage `json:"id"`
	Source  string          `json:"source,omitempty"`
}

type entryOut struct {
	AddedAt float64 `json:"added_at"`
	ID      string  `json:"id"`
	Source  string  `json:"source,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryOut{
		AddedAt: float64(e.AddedAt.UnixNano()) / float64(time.Second),
		ID:      e.BookmarkID,
		Source:  e.Source,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	sec := int64(raw.AddedAt)
	nsec := int64((raw.AddedAt - float64(sec)) * float64(time.Second))
	e.AddedAt = time.Unix(sec, nsec)
	e.BookmarkID = idString(raw.ID)
	e.Source = raw.Source
	return nil
}

// idString coerces a raw id value to its string form, whether the file holds
// a JSON string or a bare number.
func idString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return string(raw)
}

// Age returns how long ago the entry was added, relative to now.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.AddedAt)
}

// Snapshot maps article URL to its tracked entry. Presence of a key means the
// article is still being watched locally, independent of its remote state.
type Snapshot map[string]Entry

// Contains reports whether the URL is already tracked.
func (s Snapshot) Contains(url string) bool {
	_, ok := s[url]
	return ok
}

// Clone returns a shallow copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for url, e := range s {
		out[url] = e
	}
	return out
}

// Load reads the snapshot from path. A missing file, an empty file, or
// unparsable content all yield an empty snapshot: the run proceeds as a cold
// start rather than failing, at worst re-adding the current cycle's articles.
func Load(path string) Snapshot {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warn().Err(err).Str("path", path).Msg("Tracking state unreadable, starting empty")
		}
		return Snapshot{}
	}

	if len(data) == 0 {
		return Snapshot{}
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("Tracking state corrupt, starting empty")
		return Snapshot{}
	}
	if snap == nil {
		snap = Snapshot{}
	}
	return snap
}

// Save writes the snapshot to path via a temp file and rename, so a crash
// mid-write leaves the previous file intact.
func Save(path string, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "    ")
	if err != nil {
		return errors.WrapParse("json", path, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.WrapIO("create", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.WrapIO("write", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.WrapIO("close", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.WrapIO("rename", path, err)
	}
	return nil
}
