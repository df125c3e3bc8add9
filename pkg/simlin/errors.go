package simlin

import serr "github.com/bpowers/simlin/internal/errors"

// Error is the FFI-facing view of a collected serr.Error:
// unlike the other handles it carries no refcount, since "free" is its only
// lifecycle verb — there is no ref to begin with.
type Error struct {
	err *serr.Error
}

// newError wraps e, or returns nil if e is empty.
func newError(e *serr.Error) *Error {
	if e.Empty() {
		return nil
	}
	return &Error{err: e}
}

// Free releases the handle. Go's GC reclaims the backing serr.Error on its
// own; Free exists so the handle's lifecycle matches the free/get_*
// surface an embedder would mirror through cgo.
func (e *Error) Free() {
	if e != nil {
		e.err = nil
	}
}

// Code returns the top-level error code.
func (e *Error) Code() serr.Code {
	if e == nil || e.err == nil {
		return serr.NoError
	}
	return e.err.Code
}

// Message returns the joined message of every collected detail.
func (e *Error) Message() string {
	if e == nil || e.err == nil {
		return ""
	}
	return e.err.Error()
}

// DetailCount returns the number of collected details.
func (e *Error) DetailCount() int {
	if e == nil || e.err == nil {
		return 0
	}
	return len(e.err.Details)
}

// Detail returns the i'th collected detail.
func (e *Error) Detail(i int) (serr.Detail, bool) {
	if e == nil || e.err == nil || i < 0 || i >= len(e.err.Details) {
		return serr.Detail{}, false
	}
	return e.err.Details[i], true
}
