// Package interval parses the human interval strings used by alert
// definitions ("1 minute", "30s", "3600") into a time.Duration.
package interval

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parse accepts a bare integer (seconds) or "<n> <unit>" where unit is one
// of second(s)/s/sec/secs, minute(s)/m/min/mins, hour(s)/h/hr/hrs, day(s)/d.
// It is deterministic and total over its accepted grammar; unknown units or
// malformed input return an error.
func Parse(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)

	if secs, err := strconv.ParseUint(s, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}

	parts := strings.Fields(s)
	if len(parts) != 2 {
		return 0, fmt.Errorf("interval must be in format '<number> <unit>' or just '<seconds>', got %q", s)
	}

	value, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("interval value must be a number: %w", err)
	}
	unit := strings.ToLower(parts[1])

	switch unit {
	case "second", "seconds", "s", "sec", "secs":
		return time.Duration(value) * time.Second, nil
	case "minute", "minutes", "m", "min", "mins":
		return time.Duration(value) * time.Minute, nil
	case "hour", "hours", "h", "hr", "hrs":
		return time.Duration(value) * time.Hour, nil
	case "day", "days", "d":
		return time.Duration(value) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown interval unit: %s, expected: seconds, minutes, hours, or days", unit)
	}
}
