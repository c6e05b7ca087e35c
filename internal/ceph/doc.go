// Package ceph polls Ceph daemon admin sockets and publishes their perf counters.
package ceph
