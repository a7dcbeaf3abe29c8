// Package redact scrubs secret-shaped values from maps before they are
// persisted or logged. It is a heuristic defense-in-depth pass keyed on
// marker substrings, not a guarantee that no secret survives.
package redact

import "strings"

// Placeholder replaces every value judged secret-shaped.
const Placeholder = "[REDACTED]"

// longValueThreshold is the length past which a string value containing a
// marker is replaced even when its key looks harmless.
const longValueThreshold = 20

var markers = []string{
	"token",
	"password",
	"secret",
	"credential",
	"auth",
	"apikey",
	"api_key",
	"key",
	"bearer",
}

func markedKey(key string) bool {
	k := strings.ToLower(key)
	for _, m := range markers {
		if strings.Contains(k, m) {
			return true
		}
	}
	return false
}

func markedLongValue(s string) bool {
	if len(s) <= longValueThreshold {
		return false
	}
	v := strings.ToLower(s)
	for _, m := range markers {
		if strings.Contains(v, m) {
			return true
		}
	}
	return false
}

// Map returns a copy of in with secret-shaped values replaced. The input is
// never mutated. Nested maps and slices are walked recursively. Applying Map
// to its own output yields an identical map.
func Map(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if markedKey(k) {
			out[k] = Placeholder
			continue
		}
		out[k] = value(v)
	}
	return out
}

func value(v any) any {
	switch t := v.(type) {
	case string:
		if t == Placeholder {
			return t
		}
		if markedLongValue(t) {
			return Placeholder
		}
		return t
	case map[string]any:
		return Map(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = value(e)
		}
		return out
	default:
		return v
	}
}
