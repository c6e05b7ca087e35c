package perf

import (
	"fmt"
	"strconv"
	"strings"
)

const nanosPerSecond = 1e9

// ParseTime converts Ceph's "<seconds>.<nanoseconds>" time text into seconds.
//
// The fractional part is a nanosecond count, not a decimal fraction, so the
// two halves are parsed as integers and combined instead of parsing the
// whole text as a float.
func ParseTime(raw string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrTimeFormat, raw)
	}

	seconds, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: seconds: %v", ErrTimeFormat, raw, err)
	}
	nanos, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: nanoseconds: %v", ErrTimeFormat, raw, err)
	}
	if nanos >= nanosPerSecond {
		return 0, fmt.Errorf("%w: %q: nanoseconds out of range", ErrTimeFormat, raw)
	}

	return float64(seconds) + float64(nanos)/nanosPerSecond, nil
}

// timeValue reads a dump leaf as a time value.
func timeValue(value any) (float64, error) {
	text, ok := textOf(value)
	if !ok {
		return 0, fmt.Errorf("%w: %v (%T)", ErrTimeFormat, value, value)
	}
	return ParseTime(text)
}
