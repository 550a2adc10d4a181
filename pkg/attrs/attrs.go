// Package attrs reads values back out of slog-style key/value slices.
package attrs

// ExtractString returns the string value paired with key in a
// [key1, value1, key2, value2, ...] slice, or "" when absent or not a string.
// Later pairs win, so callers can override a value by appending.
func ExtractString(attrs []any, key string) string {
	out := ""
	for i := 0; i+1 < len(attrs); i += 2 {
		if k, ok := attrs[i].(string); ok && k == key {
			if v, ok := attrs[i+1].(string); ok {
				out = v
			}
		}
	}
	return out
}
