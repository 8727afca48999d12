package errors

import (
	"errors"
	"fmt"
)

// LowDiskSpaceError signals that the free space on the storage volume
// dropped below the safety threshold. Work committed before the abort is
// retained; re-running after freeing space is safe.
type LowDiskSpaceError struct {
	Free      uint64
	Threshold uint64
}

func (e *LowDiskSpaceError) Error() string {
	return fmt.Sprintf("low disk space: %d bytes free, %d required", e.Free, e.Threshold)
}

// NewLowDiskSpaceError creates a LowDiskSpaceError with the observed free space.
func NewLowDiskSpaceError(free, threshold uint64) *LowDiskSpaceError {
	return &LowDiskSpaceError{Free: free, Threshold: threshold}
}

// IsLowDiskSpaceError reports whether err is a LowDiskSpaceError (even when wrapped).
func IsLowDiskSpaceError(err error) bool {
	var lowSpaceErr *LowDiskSpaceError
	return errors.As(err, &lowSpaceErr)
}
