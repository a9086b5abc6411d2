package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// RawRecord is one provider-shaped candidate post prior to normalization.
type RawRecord map[string]any

// String returns the first non-empty string (or integral number rendered as
// a string) stored under any of keys.
func (r RawRecord) String(keys ...string) string {
	for _, key := range keys {
		raw, ok := r[key]
		if !ok || raw == nil {
			continue
		}
		switch v := raw.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		case float64:
			if v == math.Trunc(v) && !math.IsInf(v, 0) {
				return strconv.FormatInt(int64(v), 10)
			}
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			return strconv.Itoa(v)
		case int64:
			return strconv.FormatInt(v, 10)
		}
	}
	return ""
}

// Number returns the first numeric value stored under any of keys. Numeric
// strings count; other strings do not.
func (r RawRecord) Number(keys ...string) (float64, bool) {
	for _, key := range keys {
		raw, ok := r[key]
		if !ok || raw == nil {
			continue
		}
		switch v := raw.(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f, true
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// Strings returns the value under key when it is a proper list whose items
// are all strings. ok is false for absent keys and non-list values.
func (r RawRecord) Strings(key string) ([]string, bool) {
	raw, ok := r[key]
	if !ok || raw == nil {
		return nil, false
	}
	switch v := raw.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// Record returns the nested object under key, if any.
func (r RawRecord) Record(key string) (RawRecord, bool) {
	switch v := r[key].(type) {
	case map[string]any:
		return RawRecord(v), true
	case RawRecord:
		return v, true
	default:
		return nil, false
	}
}

// Has reports whether key is present with a non-nil value.
func (r RawRecord) Has(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}
