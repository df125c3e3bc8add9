// Package simlin is the embedder-facing handle layer: a small
// set of reference-counted handles — Project, Model, Sim, Error, Loops,
// Links — wrapping the internal datamodel, pipeline and VM packages.
// Every handle crosses the FFI boundary the same way: atomically
// refcounted, last unref frees, no weak references.
package simlin

import "sync/atomic"

// refcounted is embedded by every handle type. It is not itself exported;
// callers only ever see the concrete handle types below.
type refcounted struct {
	n atomic.Int32
}

func newRefcounted() refcounted {
	rc := refcounted{}
	rc.n.Store(1)
	return rc
}

// ref increments the count and returns the new value.
func (rc *refcounted) ref() int32 {
	return rc.n.Add(1)
}

// unref decrements the count and reports whether this was the last
// reference (the caller should free backing resources when true).
func (rc *refcounted) unref() bool {
	return rc.n.Add(-1) == 0
}

// refs reports the current count, for diagnostics/tests only.
func (rc *refcounted) refs() int32 {
	return rc.n.Load()
}
