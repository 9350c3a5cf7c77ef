package gassapi

import "github.com/nikandfor/errors"

// ErrNotImplemented is the cause of every panic raised for a declared extension point
// that has no implementation yet. Such panics must never be turned into a silent fallback.
var ErrNotImplemented = errors.New("not implemented")

// NotImplemented returns an error wrapping ErrNotImplemented which names the missing feature.
func NotImplemented(feature string) error {
	return errors.Wrap(ErrNotImplemented, "%s", feature)
}

// IsNotImplemented returns true if v, typically a recovered panic value, is an error caused by
// ErrNotImplemented.
func IsNotImplemented(v interface{}) bool {
	err, ok := v.(error)
	return ok && errors.Is(err, ErrNotImplemented)
}
