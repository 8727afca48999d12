package errors

import (
	"errors"
	"fmt"
)

// DataNotFoundError signals that an expected structural marker (table
// definition, data section) never appeared before the end of the stream.
type DataNotFoundError struct {
	What string
}

func (e *DataNotFoundError) Error() string {
	return fmt.Sprintf("no %s found", e.What)
}

// NewDataNotFoundError creates a DataNotFoundError for the missing marker.
func NewDataNotFoundError(what string) *DataNotFoundError {
	return &DataNotFoundError{What: what}
}

// IsDataNotFoundError reports whether err is a DataNotFoundError (even when wrapped).
func IsDataNotFoundError(err error) bool {
	var notFoundErr *DataNotFoundError
	return errors.As(err, &notFoundErr)
}
