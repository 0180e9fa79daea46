package handles

import (
	"maps"
	"strconv"
)

// Settings is the key/value configuration passed to encoder and output
// primitives. Values are plain scalars (string, bool, int, float64).
type Settings map[string]any

// Clone returns a shallow copy. A nil receiver yields an empty map.
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	maps.Copy(out, s)
	return out
}

// Merge returns a copy of s with other's keys applied on top.
func (s Settings) Merge(other Settings) Settings {
	out := s.Clone()
	maps.Copy(out, other)
	return out
}

// Int returns the integer value for key, converting numeric and string
// representations. Missing or unparsable values yield 0.
func (s Settings) Int(key string) int {
	switch v := s[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case int32:
		return int(v)
	case float64:
		return int(v)
	case string:
		i, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return i
	}
	return 0
}

// String returns the string value for key, or "" when absent.
func (s Settings) String(key string) string {
	switch v := s[key].(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// Bool returns the boolean value for key.
func (s Settings) Bool(key string) bool {
	switch v := s[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	case int:
		return v != 0
	}
	return false
}

// Has reports whether key is present.
func (s Settings) Has(key string) bool {
	_, ok := s[key]
	return ok
}
