// Package units converts byte-valued metrics between binary units.
package units

import (
	"errors"
	"fmt"
	"strings"
)

// ByteSuffix is the name suffix that marks a byte-valued metric.
const ByteSuffix = "bytes"

// ErrUnknownUnit reports a unit symbol that is not a known binary data unit.
var ErrUnknownUnit = errors.New("unknown unit")

// bytesPer maps canonical unit names to their size in bytes.
var bytesPer = map[string]float64{
	"bit":      1.0 / 8,
	"byte":     1,
	"kilobyte": 1 << 10,
	"megabyte": 1 << 20,
	"gigabyte": 1 << 30,
	"terabyte": 1 << 40,
	"petabyte": 1 << 50,
	"exabyte":  1 << 60,
}

// aliases maps short symbols to canonical names. Lookups are case-sensitive
// only for "b" (bit) and "B" (byte).
var aliases = map[string]string{
	"b":  "bit",
	"B":  "byte",
	"kb": "kilobyte",
	"mb": "megabyte",
	"gb": "gigabyte",
	"tb": "terabyte",
	"pb": "petabyte",
	"eb": "exabyte",
}

// canonical resolves a unit symbol to its canonical name.
// Params: unit configured symbol.
// Returns: canonical name and true when known.
func canonical(unit string) (string, bool) {
	if _, ok := bytesPer[unit]; ok {
		return unit, true
	}
	if name, ok := aliases[unit]; ok {
		return name, true
	}
	lower := strings.ToLower(unit)
	if _, ok := bytesPer[lower]; ok {
		return lower, true
	}
	if len(lower) > 1 {
		if name, ok := aliases[lower]; ok {
			return name, true
		}
	}
	return "", false
}

// Convert scales value from one unit to another using powers of 1024.
// Params: value amount in unit from; from and to unit symbols.
// Returns: converted amount or ErrUnknownUnit.
func Convert(value float64, from, to string) (float64, error) {
	fromName, ok := canonical(from)
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownUnit, from)
	}
	toName, ok := canonical(to)
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownUnit, to)
	}
	return value * bytesPer[fromName] / bytesPer[toName], nil
}

// Validate checks that every unit symbol is known.
// Params: targets configured unit symbols.
// Returns: first ErrUnknownUnit found or nil.
func Validate(targets []string) error {
	for _, unit := range targets {
		if _, ok := canonical(unit); !ok {
			return fmt.Errorf("%w %q", ErrUnknownUnit, unit)
		}
	}
	return nil
}

// Converted is one expanded metric.
type Converted struct {
	Name  string
	Value float64
}

// Expand renames a byte metric once per target unit and converts its value.
// name must end with ByteSuffix and targets must pass Validate; anything
// else is a programming error and panics.
// Params: name byte metric name; bytes value in bytes; targets ordered unit symbols.
// Returns: one entry per target, in target order.
func Expand(name string, bytes float64, targets []string) []Converted {
	base, ok := strings.CutSuffix(name, ByteSuffix)
	if !ok {
		panic(fmt.Sprintf("units: metric %q does not end with %q", name, ByteSuffix))
	}

	out := make([]Converted, 0, len(targets))
	for _, unit := range targets {
		value, err := Convert(bytes, "byte", unit)
		if err != nil {
			panic(fmt.Sprintf("units: %v", err))
		}
		out = append(out, Converted{Name: base + unit, Value: value})
	}
	return out
}
