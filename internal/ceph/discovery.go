package ceph

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
)

// Discovery lists the admin sockets to poll in one cycle.
type Discovery interface {
	Sources(ctx context.Context) ([]string, error)
}

// GlobDiscovery finds sockets named <prefix>*.<ext> inside one directory.
// Params: Dir socket directory; Prefix socket name prefix; Ext socket extension without dot.
// Returns: discovery implementation.
type GlobDiscovery struct {
	Dir    string
	Prefix string
	Ext    string
}

// Pattern returns the glob pattern used for discovery.
// Params: none.
// Returns: filesystem glob pattern.
func (d GlobDiscovery) Pattern() string {
	return filepath.Join(d.Dir, d.Prefix+"*."+d.Ext)
}

// Sources globs socket paths in sorted order.
// Params: ctx is unused; globbing does not block on I/O beyond one directory read.
// Returns: socket paths or malformed pattern error.
func (d GlobDiscovery) Sources(_ context.Context) ([]string, error) {
	matches, err := filepath.Glob(d.Pattern())
	if err != nil {
		return nil, fmt.Errorf("glob sockets %q: %w", d.Pattern(), err)
	}
	sort.Strings(matches)
	return matches, nil
}
