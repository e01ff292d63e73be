package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var ttlUnits = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
}

// ParseTTL parses a token lifetime written as an integer followed by one of
// the units s, m, h or d ("15m", "7d"). Unknown units, missing units and
// non-positive values are errors.
func ParseTTL(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration %q: expected <number><s|m|h|d>", s)
	}
	unit, ok := ttlUnits[s[len(s)-1]]
	if !ok {
		return 0, fmt.Errorf("invalid duration %q: unknown unit %q", s, s[len(s)-1:])
	}
	n, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid duration %q: must be positive", s)
	}
	if n > math.MaxInt64/int64(unit) {
		return 0, fmt.Errorf("invalid duration %q: out of range", s)
	}
	return time.Duration(n) * unit, nil
}
