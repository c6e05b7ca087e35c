package perf

import "strings"

// KeyPath addresses one node of a counter tree, outermost segment first.
type KeyPath []string

// Clone returns an independent copy of the path.
func (p KeyPath) Clone() KeyPath {
	if p == nil {
		return nil
	}
	out := make(KeyPath, len(p))
	copy(out, p)
	return out
}

// Last returns the final segment or an empty string for an empty path.
func (p KeyPath) Last() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Parent returns a copy of the path without its final segment.
func (p KeyPath) Parent() KeyPath {
	if len(p) == 0 {
		return KeyPath{}
	}
	return p[:len(p)-1].Clone()
}

// WithLast returns a copy of the path whose final segment is replaced by name.
func (p KeyPath) WithLast(name string) KeyPath {
	out := p.Clone()
	if len(out) == 0 {
		return KeyPath{name}
	}
	out[len(out)-1] = name
	return out
}

// child returns a new path with segment appended; p is left untouched.
func (p KeyPath) child(segment string) KeyPath {
	out := make(KeyPath, len(p)+1)
	copy(out, p)
	out[len(p)] = segment
	return out
}

func (p KeyPath) String() string {
	return strings.Join(p, ".")
}
