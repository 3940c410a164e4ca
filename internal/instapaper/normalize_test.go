package instapaper

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decode mirrors the client's decoding: numbers come through as json.Number.
func decode(t *testing.T, raw string) any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	require.NoError(t, dec.Decode(&v))
	return v
}

func TestNormalizeBookmarksArray(t *testing.T) {
	body := decode(t, `[
        {"type": "meta"},
        {"type": "user", "user_id": 7},
        {"type": "bookmark", "bookmark_id": 101, "starred": "0"},
        {"type": "bookmark", "bookmark_id": "102", "starred": "1"}
    ]`)

	got := NormalizeBookmarks(body)
	require.Len(t, got, 2)
	assert.False(t, got["101"].Starred)
	assert.True(t, got["102"].Starred)
	assert.Equal(t, "101", got["101"].ID)
}

func TestNormalizeBookmarksWrappedObject(t *testing.T) {
	body := decode(t, `{
        "bookmarks": [
            {"type": "bookmark", "bookmark_id": 5, "starred": 1}
        ],
        "highlights": []
    }`)

	got := NormalizeBookmarks(body)
	require.Len(t, got, 1)
	assert.True(t, got["5"].Starred)
}

func TestNormalizeBookmarksTotality(t *testing.T) {
	// Whatever the decoder hands over, the normalizer returns a valid map.
	tests := []struct {
		name string
		raw  string
	}{
		{"scalar", `42`},
		{"string", `"oops"`},
		{"null", `null`},
		{"object without bookmarks", `{"error": "throttled"}`},
		{"bookmarks field not an array", `{"bookmarks": {"a": 1}}`},
		{"array of scalars", `[1, "two", null]`},
		{"bookmark without id", `[{"type": "bookmark", "starred": "1"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeBookmarks(decode(t, tt.raw))
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}

	t.Run("nil input", func(t *testing.T) {
		got := NormalizeBookmarks(nil)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}

func TestNormalizeBookmarksStarredVariants(t *testing.T) {
	body := decode(t, `[
        {"type": "bookmark", "bookmark_id": 1, "starred": "1"},
        {"type": "bookmark", "bookmark_id": 2, "starred": 1},
        {"type": "bookmark", "bookmark_id": 3, "starred": "0"},
        {"type": "bookmark", "bookmark_id": 4, "starred": true},
        {"type": "bookmark", "bookmark_id": 5},
        {"type": "bookmark", "bookmark_id": 6, "starred": null}
    ]`)

	got := NormalizeBookmarks(body)
	require.Len(t, got, 6)
	assert.True(t, got["1"].Starred)
	assert.True(t, got["2"].Starred, "numeric 1 compares through its string form")
	assert.False(t, got["3"].Starred)
	assert.False(t, got["4"].Starred, "only the exact string form \"1\" counts")
	assert.False(t, got["5"].Starred)
	assert.False(t, got["6"].Starred)
}

func TestNormalizeBookmarksLargeID(t *testing.T) {
	// IDs beyond float53 precision must survive intact.
	body := decode(t, `[{"type": "bookmark", "bookmark_id": 9007199254740995, "starred": "0"}]`)

	got := NormalizeBookmarks(body)
	require.Len(t, got, 1)
	_, ok := got["9007199254740995"]
	assert.True(t, ok)
}

func TestCoerceString(t *testing.T) {
	assert.Equal(t, "abc", coerceString("abc"))
	assert.Equal(t, "15", coerceString(json.Number("15")))
	assert.Equal(t, "1.5", coerceString(1.5))
	assert.Equal(t, "7", coerceString(7))
	assert.Equal(t, "true", coerceString(true))
	assert.Equal(t, "", coerceString(nil))
	assert.Equal(t, "", coerceString([]any{}))
}
