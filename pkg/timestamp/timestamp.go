// Package timestamp parses the timestamp forms accepted in scan
// configuration: RFC 3339, a handful of progressively shorter date and
// datetime layouts, and numeric UNIX epochs whose unit is inferred from
// magnitude.
package timestamp

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// layouts are tried in order for string values that are not numeric.
// Layouts without a zone are interpreted in local time, matching how
// recording tools stamp bags on the machine that wrote them.
var layouts = []struct {
	layout string
	zoned  bool
}{
	{time.RFC3339Nano, true},
	{"2006-01-02T15:04:05.999999999", false},
	{"2006-01-02 15:04:05.999999999", false},
	{"2006-01-02T15:04", false},
	{"2006-01-02 15:04", false},
	{"2006-01-02", false},
}

// Epoch magnitude thresholds. Anything below the first is seconds, then
// milliseconds, then microseconds, then nanoseconds. 1e11 seconds is year
// 5138, far beyond any recorded stamp.
const (
	maxSeconds      = 1e11
	maxMilliseconds = 1e14
	maxMicroseconds = 1e17
)

// Parse converts a decoded config value into a time.Time. It accepts
// strings in the supported layouts, numeric strings, and JSON numbers.
// The zero time is returned with an error when the value cannot be
// interpreted.
func Parse(v any) (time.Time, error) {
	switch val := v.(type) {
	case string:
		return ParseString(val)
	case float64:
		return FromEpochFloat(val), nil
	case int:
		return FromEpoch(int64(val)), nil
	case int64:
		return FromEpoch(val), nil
	case time.Time:
		return val, nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp value %v (%T)", v, v)
	}
}

// ParseString converts a timestamp string. Numeric strings are treated as
// UNIX epochs, everything else is matched against the supported layouts.
func ParseString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return FromEpoch(n), nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return FromEpochFloat(f), nil
	}

	for _, l := range layouts {
		loc := time.Local
		if l.zoned {
			loc = time.UTC
		}
		if t, err := time.ParseInLocation(l.layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// FromEpoch converts an integer UNIX epoch whose unit is inferred from
// magnitude: seconds, milliseconds, microseconds or nanoseconds.
func FromEpoch(n int64) time.Time {
	abs := n
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs < maxSeconds:
		return time.Unix(n, 0).UTC()
	case abs < maxMilliseconds:
		return time.UnixMilli(n).UTC()
	case abs < maxMicroseconds:
		return time.UnixMicro(n).UTC()
	default:
		return time.Unix(0, n).UTC()
	}
}

// FromEpochFloat converts a fractional UNIX epoch. The integer part picks
// the unit the same way FromEpoch does, the fraction carries through.
func FromEpochFloat(f float64) time.Time {
	whole, frac := math.Modf(f)
	abs := math.Abs(whole)
	switch {
	case abs < maxSeconds:
		return time.Unix(int64(whole), int64(math.Round(frac*float64(time.Second)))).UTC()
	case abs < maxMilliseconds:
		return time.UnixMilli(int64(f)).UTC()
	case abs < maxMicroseconds:
		return time.UnixMicro(int64(f)).UTC()
	default:
		return time.Unix(0, int64(f)).UTC()
	}
}
