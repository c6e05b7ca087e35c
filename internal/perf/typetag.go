package perf

import (
	"fmt"
	"strconv"
	"strings"
)

// Type bits as reported by `perf schema`.
const (
	bitTime       = 1 << 0
	bitU64        = 1 << 1
	bitLongRunAvg = 1 << 2
	bitCounter    = 1 << 3
)

// TypeTag is the decoded schema type of one counter. Flags are independent
// and may be combined, e.g. Time together with LongRunAvg.
type TypeTag struct {
	Time       bool
	U64        bool
	LongRunAvg bool
	Counter    bool
}

// ParseTypeTag decodes a schema type bitmask. Unknown bits are ignored.
func ParseTypeTag(bits uint64) TypeTag {
	return TypeTag{
		Time:       bits&bitTime != 0,
		U64:        bits&bitU64 != 0,
		LongRunAvg: bits&bitLongRunAvg != 0,
		Counter:    bits&bitCounter != 0,
	}
}

// Bits encodes the tag back into the schema bitmask.
func (t TypeTag) Bits() uint64 {
	var bits uint64
	if t.Time {
		bits |= bitTime
	}
	if t.U64 {
		bits |= bitU64
	}
	if t.LongRunAvg {
		bits |= bitLongRunAvg
	}
	if t.Counter {
		bits |= bitCounter
	}
	return bits
}

func (t TypeTag) String() string {
	names := make([]string, 0, 4)
	if t.Time {
		names = append(names, "time")
	}
	if t.U64 {
		names = append(names, "u64")
	}
	if t.LongRunAvg {
		names = append(names, "longrunavg")
	}
	if t.Counter {
		names = append(names, "counter")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// typeTagOf decodes the value stored under a schema "type" leaf.
func typeTagOf(value any) (TypeTag, error) {
	if text, ok := textOf(value); ok {
		bits, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return TypeTag{}, fmt.Errorf("type %q is not an unsigned integer", text)
		}
		return ParseTypeTag(bits), nil
	}

	switch typed := value.(type) {
	case float64:
		if typed < 0 || typed != float64(uint64(typed)) {
			return TypeTag{}, fmt.Errorf("type %v is not an unsigned integer", typed)
		}
		return ParseTypeTag(uint64(typed)), nil
	case int:
		if typed < 0 {
			return TypeTag{}, fmt.Errorf("type %d is negative", typed)
		}
		return ParseTypeTag(uint64(typed)), nil
	case uint64:
		return ParseTypeTag(typed), nil
	default:
		return TypeTag{}, fmt.Errorf("type has unsupported value %v (%T)", value, value)
	}
}
