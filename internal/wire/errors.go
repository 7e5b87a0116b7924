package wire

import (
	"errors"
	"fmt"
)

// ParseError reports malformed wire input: invalid JSON, a missing or
// unknown node kind, a constant whose value does not match its declared
// type, or any other structural defect. Not recoverable locally.
type ParseError struct {
	// Message describes the defect.
	Message string

	// NodeID identifies the offending node when known.
	NodeID string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	msg := "parse plan fragment: " + e.Message
	if e.NodeID != "" {
		msg += fmt.Sprintf(" (node=%s)", e.NodeID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error { return e.Err }

// IsParseError returns true if the error is a ParseError.
// Uses errors.As to handle wrapped errors.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// SchemaError reports a declared column type the engine's type system does
// not recognize. Detected at deserialization, before lowering ever runs.
type SchemaError struct {
	// NodeID identifies the node whose schema failed.
	NodeID string

	// Column is the offending column name.
	Column string

	// Descriptor is the rejected wire type descriptor.
	Descriptor string

	// Err is the underlying type-mapping error.
	Err error
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema for node %s: column %q has unrecognized type %q: %v",
		e.NodeID, e.Column, e.Descriptor, e.Err)
}

// Unwrap returns the underlying error.
func (e *SchemaError) Unwrap() error { return e.Err }

// IsSchemaError returns true if the error is a SchemaError.
// Uses errors.As to handle wrapped errors.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}
