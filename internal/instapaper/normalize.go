package instapaper

import (
	"encoding/json"
	"strconv"
)

// NormalizeBookmarks converts a decoded /bookmarks/list response body into a
// map keyed by bookmark ID. The API has been observed returning either a raw
// array of records or an object wrapping that array under "bookmarks", with
// non-bookmark records (user and meta entries) mixed in. The function is
// total: any shape it does not recognize yields an empty map, which the
// retention engine treats as "no remote data" and degrades conservatively.
func NormalizeBookmarks(body any) map[string]Bookmark {
	out := make(map[string]Bookmark)

	var seq []any
	switch v := body.(type) {
	case []any:
		seq = v
	case map[string]any:
		if inner, ok := v["bookmarks"].([]any); ok {
			seq = inner
		}
	}

	for _, el := range seq {
		rec, ok := el.(map[string]any)
		if !ok {
			continue
		}
		if coerceString(rec["type"]) != "bookmark" {
			continue
		}
		id := coerceString(rec["bookmark_id"])
		if id == "" {
			continue
		}
		out[id] = Bookmark{
			ID:      id,
			Starred: coerceString(rec["starred"]) == "1",
			Raw:     rec,
		}
	}
	return out
}

// coerceString renders scalar JSON values through their string form so that
// identifier and flag comparisons do not depend on whether the API sent a
// number or a string. Anything non-scalar coerces to "".
func coerceString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
