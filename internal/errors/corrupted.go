package errors

import "errors"

// CorruptedError signals malformed structural markers or inconsistent
// metadata in an input stream or the local database. It is fatal to the
// run and surfaced as its own terminal status so the caller can offer
// recovery instead of treating the input as a bad dump.
type CorruptedError struct {
	Reason string
}

func (e *CorruptedError) Error() string {
	return e.Reason
}

// NewCorruptedError creates a CorruptedError with the given reason.
func NewCorruptedError(reason string) *CorruptedError {
	return &CorruptedError{Reason: reason}
}

// IsCorruptedError reports whether err is a CorruptedError (even when wrapped).
func IsCorruptedError(err error) bool {
	var corruptedErr *CorruptedError
	return errors.As(err, &corruptedErr)
}
