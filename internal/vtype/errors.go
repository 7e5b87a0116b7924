package vtype

import (
	"errors"
	"fmt"
)

// UnsupportedTypeError reports a wire type descriptor outside the set this
// engine implements. Mapping never approximates: an unknown descriptor is
// an explicit failure, not a fallback to some nearby type.
type UnsupportedTypeError struct {
	// Descriptor is the full wire descriptor that was being parsed.
	Descriptor string

	// Reason describes why the descriptor was rejected.
	Reason string
}

// Error implements the error interface.
func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported type %q: %s", e.Descriptor, e.Reason)
}

// IsUnsupportedType returns true if the error is an UnsupportedTypeError.
// Uses errors.As to handle wrapped errors.
func IsUnsupportedType(err error) bool {
	var ute *UnsupportedTypeError
	return errors.As(err, &ute)
}

func newUnsupportedType(desc, reason string) *UnsupportedTypeError {
	return &UnsupportedTypeError{Descriptor: desc, Reason: reason}
}
