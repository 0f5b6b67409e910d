package tfutils

import (
	"errors"
	"time"
)

var ErrUnsupportedTimeframe = errors.New("unsupported timeframe")

// ParseTimeframe parses timeframe string (e.g., "5m", "1h") to time.Duration
func ParseTimeframe(timeframe string) (time.Duration, error) {
	dur := GetTimeframeDuration(timeframe)
	if dur == 0 {
		return 0, ErrUnsupportedTimeframe
	}
	return dur, nil
}

// GetTimeframeDuration returns the duration for a given timeframe
func GetTimeframeDuration(timeframe string) time.Duration {
	switch timeframe {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "10m":
		return 10 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "2h":
		return 2 * time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return 0
	}
}

// IsValidTimeframe checks if a timeframe is supported
func IsValidTimeframe(timeframe string) bool {
	return GetTimeframeDuration(timeframe) > 0
}

// Floor truncates t to a multiple of d measured on t's wall clock, so buckets
// line up with local session boundaries even for zones with half-hour offsets.
func Floor(t time.Time, d time.Duration) time.Time {
	if d <= 0 {
		return t
	}
	_, offset := t.Zone()
	shift := time.Duration(offset) * time.Second
	return t.Add(shift).Truncate(d).Add(-shift)
}
