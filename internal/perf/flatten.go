package perf

import (
	"fmt"
	"iter"
	"maps"
	"slices"
)

// Leaf is one scalar value of a counter tree together with its location.
type Leaf struct {
	Path  KeyPath
	Value any
}

// Flatten walks tree depth-first, visiting keys in sorted order at every
// level, and yields one Leaf per scalar value. Yielded paths are never
// reused by the walk, so callers may keep them.
//
// A node that is neither a mapping nor a scalar stops the walk: it is
// yielded as a final (Leaf{}, err) pair wrapping ErrMalformedTree.
func Flatten(tree map[string]any) iter.Seq2[Leaf, error] {
	return func(yield func(Leaf, error) bool) {
		walk(tree, nil, yield)
	}
}

// walk returns false once the consumer stopped or an error was yielded.
func walk(node map[string]any, prefix KeyPath, yield func(Leaf, error) bool) bool {
	for _, key := range slices.Sorted(maps.Keys(node)) {
		path := prefix.child(key)
		switch value := node[key].(type) {
		case map[string]any:
			if !walk(value, path, yield) {
				return false
			}
		case []any:
			yield(Leaf{}, fmt.Errorf("%w: %s holds an array", ErrMalformedTree, path))
			return false
		default:
			if !yield(Leaf{Path: path, Value: value}, nil) {
				return false
			}
		}
	}
	return true
}
