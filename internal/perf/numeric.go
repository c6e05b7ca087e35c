package perf

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// textOf returns the unparsed text of a decoded leaf. The dump decoder keeps
// numbers as json.Number, so both forms are accepted.
func textOf(value any) (string, bool) {
	switch typed := value.(type) {
	case json.Number:
		return typed.String(), true
	case string:
		return typed, true
	default:
		return "", false
	}
}

// Number reads a dump leaf as a finite float64. Integer text is parsed as an
// integer first so that large u64 counters do not go through float parsing.
func Number(value any) (float64, error) {
	parsed, err := number(value)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, fmt.Errorf("%w: non-finite %v", ErrNumberFormat, value)
	}
	return parsed, nil
}

func number(value any) (float64, error) {
	if text, ok := textOf(value); ok {
		if signed, err := strconv.ParseInt(text, 10, 64); err == nil {
			return float64(signed), nil
		}
		if unsigned, err := strconv.ParseUint(text, 10, 64); err == nil {
			return float64(unsigned), nil
		}
		parsed, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNumberFormat, text)
		}
		return parsed, nil
	}

	switch typed := value.(type) {
	case float64:
		return typed, nil
	case float32:
		return float64(typed), nil
	case int:
		return float64(typed), nil
	case int64:
		return float64(typed), nil
	case uint64:
		return float64(typed), nil
	default:
		return 0, fmt.Errorf("%w: %v (%T)", ErrNumberFormat, value, value)
	}
}
