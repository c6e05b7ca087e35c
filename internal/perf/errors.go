package perf

import "errors"

var (
	// ErrMalformedTree reports a tree node that is neither a mapping nor a scalar leaf.
	ErrMalformedTree = errors.New("malformed counter tree")
	// ErrMalformedSchema reports a schema leaf that does not end in the type marker
	// or carries a non-integer type.
	ErrMalformedSchema = errors.New("malformed perf schema")
	// ErrMissingKey reports a schema path that has no counterpart in the dump.
	ErrMissingKey = errors.New("missing key")
	// ErrTimeFormat reports a time value not shaped as "<seconds>.<nanoseconds>".
	ErrTimeFormat = errors.New("invalid time value")
	// ErrNumberFormat reports a dump value that is not numeric.
	ErrNumberFormat = errors.New("invalid numeric value")
	// ErrUnexpectedType reports a schema type with neither TIME nor U64 set.
	ErrUnexpectedType = errors.New("unexpected counter type")
)

// skippable reports whether err only invalidates the current counter.
func skippable(err error) bool {
	return errors.Is(err, ErrUnexpectedType) ||
		errors.Is(err, ErrTimeFormat) ||
		errors.Is(err, ErrNumberFormat)
}
