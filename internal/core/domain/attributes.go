package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Attributes is schema-less structured metadata.
// Values should be read through the typed accessors, which return the
// supplied default instead of coercing mismatched types.
type Attributes map[string]any

// Has reports whether key is present.
func (a Attributes) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// String returns the string at key, or def if absent or not a string.
func (a Attributes) String(key, def string) string {
	if s, ok := a[key].(string); ok {
		return s
	}
	return def
}

// Int returns the integer at key, or def.
// Floats are accepted only when they hold an exact integer, which is how
// JSON round-trips numbers.
func (a Attributes) Int(key string, def int64) int64 {
	switch v := a[key].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return int64(v)
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
	}
	return def
}

// Float returns the number at key, or def.
func (a Attributes) Float(key string, def float64) float64 {
	switch v := a[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return def
}

// Bool returns the boolean at key, or def. Strings are not parsed.
func (a Attributes) Bool(key string, def bool) bool {
	if b, ok := a[key].(bool); ok {
		return b
	}
	return def
}

// Time returns the time at key, or def.
// RFC 3339 strings and unix-second integers are accepted.
func (a Attributes) Time(key string, def time.Time) time.Time {
	switch v := a[key].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(n, 0).UTC()
		}
	case int64:
		return time.Unix(v, 0).UTC()
	case float64:
		if v == math.Trunc(v) {
			return time.Unix(int64(v), 0).UTC()
		}
	}
	return def
}

// Strings returns the string list at key, or nil.
// Non-string elements are dropped.
func (a Attributes) Strings(key string) []string {
	switch v := a[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Clone returns a shallow copy.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
