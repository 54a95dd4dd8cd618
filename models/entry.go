package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Entry is one timestamped item of an append-only record sequence.
type Entry struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	// IsPrompt is only meaningful on topic entries; it marks topics that were
	// distilled from a free-form brief rather than supplied directly.
	IsPrompt *bool `json:"is_prompt,omitempty"`
}

// NewEntry builds an entry stamped with ts in UTC.
func NewEntry(content string, ts time.Time) Entry {
	return Entry{Content: content, Timestamp: ts.UTC()}
}

// NewTopicEntry builds a topic history entry carrying the is_prompt flag.
func NewTopicEntry(topic string, isPrompt bool, ts time.Time) Entry {
	e := NewEntry(topic, ts)
	e.IsPrompt = &isPrompt
	return e
}

var (
	contentKeys   = []string{"content", "text", "value", "body"}
	timestampKeys = []string{"timestamp", "created_at", "ts"}
	timeLayouts   = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"}
)

// NormalizeEntries coerces any stored shape into well-formed entries.
//
// Accepted inputs: nil, a bare string, a JSON document ([]byte or
// json.RawMessage), a single object, a list of strings, a list of objects
// or a mixture. Object fields are resolved in order:
//
//	content   <- content, text, value, body
//	timestamp <- timestamp, created_at, ts
//	is_prompt <- is_prompt (bool or "true"/"false")
//
// Items without usable content are dropped. Missing or unparsable timestamps
// become fallback. The result is a function of (raw, fallback) only, and
// normalizing an already normalized slice returns an equal slice.
func NormalizeEntries(raw any, fallback time.Time) []Entry {
	fallback = fallback.UTC()
	out := make([]Entry, 0)
	appendValue(&out, raw, fallback, 0)
	return out
}

// StripPromptFlag clears is_prompt on every entry. Only topic sequences keep it.
func StripPromptFlag(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		e.IsPrompt = nil
		out[i] = e
	}
	return out
}

// ContainsContent reports whether any entry carries content verbatim.
func ContainsContent(entries []Entry, content string) bool {
	for _, e := range entries {
		if e.Content == content {
			return true
		}
	}
	return false
}

// Contents returns the content of each entry, in order.
func Contents(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Content
	}
	return out
}

func appendValue(out *[]Entry, v any, fallback time.Time, depth int) {
	if depth > 2 {
		return
	}
	switch x := v.(type) {
	case nil:
	case Entry:
		appendEntry(out, x, fallback)
	case []Entry:
		for _, e := range x {
			appendEntry(out, e, fallback)
		}
	case string:
		appendString(out, x, fallback, depth)
	case []byte:
		appendString(out, string(x), fallback, depth)
	case json.RawMessage:
		// jsonb columns arrive here; null and scalar strings are valid documents
		var decoded any
		if err := json.Unmarshal(x, &decoded); err == nil {
			appendValue(out, decoded, fallback, depth+1)
			return
		}
		appendString(out, string(x), fallback, depth)
	case []string:
		for _, s := range x {
			appendEntry(out, Entry{Content: s}, fallback)
		}
	case []any:
		for _, item := range x {
			switch it := item.(type) {
			case []any:
				// nested lists are not a known legacy shape
				continue
			default:
				appendValue(out, it, fallback, depth+1)
			}
		}
	case map[string]any:
		appendEntry(out, entryFromObject(x), fallback)
	}
}

// appendString handles a bare string. JSON documents (legacy rows stored as
// text) are decoded first; anything else is a single entry.
func appendString(out *[]Entry, s string, fallback time.Time, depth int) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return
	}
	if depth == 0 && (strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{")) {
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			appendValue(out, decoded, fallback, depth+1)
			return
		}
	}
	appendEntry(out, Entry{Content: s}, fallback)
}

func appendEntry(out *[]Entry, e Entry, fallback time.Time) {
	if strings.TrimSpace(e.Content) == "" {
		return
	}
	e.Content = validUTF8(e.Content)
	if !storable(e.Timestamp) {
		e.Timestamp = fallback
	}
	e.Timestamp = e.Timestamp.UTC()
	*out = append(*out, e)
}

func entryFromObject(m map[string]any) Entry {
	var e Entry
	for _, k := range contentKeys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			e.Content = s
			break
		}
	}
	for _, k := range timestampKeys {
		if ts, ok := parseTime(m[k]); ok && storable(ts) {
			e.Timestamp = ts
			break
		}
	}
	if flag, ok := parseBool(m["is_prompt"]); ok {
		e.IsPrompt = &flag
	}
	return e
}

func parseTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
	case float64:
		switch {
		case x <= 0 || x >= maxEpochMillis:
		case x >= minEpochMillis:
			return time.UnixMilli(int64(x)).UTC(), true
		default:
			return time.Unix(int64(x), 0).UTC(), true
		}
	case time.Time:
		if !x.IsZero() {
			return x.UTC(), true
		}
	}
	return time.Time{}, false
}

// Numeric timestamps at or above minEpochMillis are read as milliseconds.
// 1e11 seconds is past the year 5000, 1e11 milliseconds is March 1973.
const (
	minEpochMillis = 1e11
	maxEpochMillis = 1e15
)

// storable reports whether ts is set and inside the year range JSON can encode.
func storable(ts time.Time) bool {
	if ts.IsZero() {
		return false
	}
	y := ts.UTC().Year()
	return y >= 1 && y <= 9999
}

// validUTF8 replaces every invalid byte with U+FFFD, the same way
// encoding/json does on output, so stored content reads back unchanged.
func validUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			b.WriteRune(utf8.RuneError)
		} else {
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	return b.String()
}

func parseBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return false, false
		}
		return b, true
	}
	return false, false
}
