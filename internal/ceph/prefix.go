package ceph

import (
	"path/filepath"
	"strings"

	"cephagent/internal/perf"
)

// DefaultNamespace is the top-level metric namespace of every daemon.
const DefaultNamespace = "ceph"

// PrefixDeriver derives the metric prefix of one daemon from its socket name.
// Params: SocketPrefix stripped from socket base names; Namespace top-level token.
// Returns: pure deriver, safe for concurrent use.
type PrefixDeriver struct {
	SocketPrefix string
	Namespace    string
}

// Derive maps a socket path to a metric prefix.
// "/var/run/ceph/ceph-osd.0.asok" becomes "ceph.osd_0": dots inside the
// daemon name are replaced so that the name stays one metric path segment.
// Params: socket path or bare socket name.
// Returns: namespaced counter prefix.
func (d PrefixDeriver) Derive(socket string) string {
	base := filepath.Base(socket)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.TrimPrefix(base, d.SocketPrefix)
	base = strings.ReplaceAll(base, ".", "_")

	namespace := d.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return perf.MetricName(namespace, base)
}
