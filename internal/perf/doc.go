// Package perf interprets Ceph perf counter dumps against their schema.
//
// A dump (`perf dump`) and a schema (`perf schema`) share the same nested
// shape; every schema leaf ends in a synthetic "type" key holding a
// bitmask that tells how the matching dump value must be read. The
// Interpreter walks the schema and turns each counter into one or more
// typed metrics (gauge or counter) with a fixed output precision.
package perf
