package parse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var ErrBadDuration = errors.New("unrecognised duration")

// Longer unit spellings come first so the alternation never settles on a
// prefix of the real unit.
var durationPattern = regexp.MustCompile(`(?i)^\s*(\d+)\s*(seconds?|secs?|s|minutes?|mins?|m|hours?|hrs?|h|days?|d)\s*$`)

// Duration parses strings such as "45m", "20 secs" or "2 Days" into a
// number of seconds.
func Duration(raw string) (int64, error) {
	match := durationPattern.FindStringSubmatch(raw)
	if match == nil {
		return 0, fmt.Errorf("%w: %q", ErrBadDuration, raw)
	}
	value, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadDuration, raw)
	}

	var unit int64
	switch strings.ToLower(match[2])[0] {
	case 's':
		unit = 1
	case 'm':
		unit = 60
	case 'h':
		unit = 3600
	case 'd':
		unit = 86400
	}
	if value > (1<<62)/unit/int64(time.Second) {
		return 0, fmt.Errorf("%w: %q is too large", ErrBadDuration, raw)
	}
	return value * unit, nil
}

// HMS formats seconds as "1h 2m 3s".
func HMS(seconds int64) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds%60)
}
