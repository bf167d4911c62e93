package common

import (
	"fmt"
	"strconv"
	"time"

	"github.com/araddon/dateparse"
)

// Epoch seconds between 1973 and 5138 have 9 to 11 digits. Shorter digit
// strings, such as 20240301, are compact dates.
const (
	minEpochDigits = 9
	maxEpochDigits = 11
)

// ParseTime accepts RFC 3339, the other layouts dateparse understands, and
// unix epoch seconds. Zone-less inputs are read in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if len(s) >= minEpochDigits && len(s) <= maxEpochDigits {
		if secs, err := strconv.ParseUint(s, 10, 64); err == nil {
			return time.Unix(int64(secs), 0).UTC(), nil
		}
	}
	t, err := dateparse.ParseIn(s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t.UTC(), nil
}

// ParseOptionalTime parses s, returning nil for an empty string.
func ParseOptionalTime(s string, loc *time.Location) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := ParseTime(s, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
