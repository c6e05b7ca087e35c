package perf

import "fmt"

// Lookup descends tree through path and then extra, returning the node found
// there (a scalar or a nested mapping). A segment that is absent, or a
// descent into a scalar, returns an error wrapping ErrMissingKey.
func Lookup(tree map[string]any, path KeyPath, extra ...string) (any, error) {
	var node any = tree
	walked := make(KeyPath, 0, len(path)+len(extra))

	descend := func(segment string) error {
		mapping, ok := node.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %s is not a mapping", ErrMissingKey, walked)
		}
		walked = append(walked, segment)
		next, ok := mapping[segment]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingKey, walked)
		}
		node = next
		return nil
	}

	for _, segment := range path {
		if err := descend(segment); err != nil {
			return nil, err
		}
	}
	for _, segment := range extra {
		if err := descend(segment); err != nil {
			return nil, err
		}
	}
	return node, nil
}
