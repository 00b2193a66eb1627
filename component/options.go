package component

import (
	"math"
	"time"
)

// Option getter helpers for factories. Option maps come from YAML config or
// JSON flag values, so numbers arrive as int, int64, uint64 or float64
// depending on the decoder. Each getter tolerates the union and falls back
// to the default on a missing key or an unusable value.

// GetString extracts a string option with a default fallback.
func GetString(opts map[string]any, key, defaultValue string) string {
	if value, exists := opts[key]; exists {
		if s, ok := value.(string); ok {
			return s
		}
	}
	return defaultValue
}

// GetInt extracts an integer option with a default fallback. Float values
// are accepted when they carry an integral value within int range.
func GetInt(opts map[string]any, key string, defaultValue int) int {
	value, exists := opts[key]
	if !exists {
		return defaultValue
	}
	switch v := value.(type) {
	case int:
		return v
	case int64:
		if v < math.MinInt || v > math.MaxInt {
			return defaultValue
		}
		return int(v)
	case uint64:
		if v > math.MaxInt {
			return defaultValue
		}
		return int(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			return defaultValue
		}
		if v < math.MinInt || v > math.MaxInt {
			return defaultValue
		}
		return int(v)
	}
	return defaultValue
}

// GetBool extracts a boolean option with a default fallback.
func GetBool(opts map[string]any, key string, defaultValue bool) bool {
	if value, exists := opts[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
	}
	return defaultValue
}

// GetFloat64 extracts a float option with a default fallback.
func GetFloat64(opts map[string]any, key string, defaultValue float64) float64 {
	value, exists := opts[key]
	if !exists {
		return defaultValue
	}
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return defaultValue
		}
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	}
	return defaultValue
}

// GetDuration extracts a duration option with a default fallback. String
// values use time.ParseDuration syntax ("500ms", "10s"); numeric values are
// whole seconds.
func GetDuration(opts map[string]any, key string, defaultValue time.Duration) time.Duration {
	value, exists := opts[key]
	if !exists {
		return defaultValue
	}
	switch v := value.(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return defaultValue
		}
		return time.Duration(v * float64(time.Second))
	}
	return defaultValue
}

// GetStringSlice extracts a list-of-strings option. A bare string is treated
// as a one-element list. Lists with non-string elements fall back to the
// default.
func GetStringSlice(opts map[string]any, key string, defaultValue []string) []string {
	value, exists := opts[key]
	if !exists {
		return defaultValue
	}
	switch v := value.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, elem := range v {
			s, ok := elem.(string)
			if !ok {
				return defaultValue
			}
			out = append(out, s)
		}
		return out
	}
	return defaultValue
}

// GetStringMap extracts a string-to-string mapping option. Maps with
// non-string values fall back to the default.
func GetStringMap(opts map[string]any, key string, defaultValue map[string]string) map[string]string {
	value, exists := opts[key]
	if !exists {
		return defaultValue
	}
	switch v := value.(type) {
	case map[string]string:
		return v
	case map[string]any:
		out := make(map[string]string, len(v))
		for name, elem := range v {
			s, ok := elem.(string)
			if !ok {
				return defaultValue
			}
			out[name] = s
		}
		return out
	}
	return defaultValue
}
