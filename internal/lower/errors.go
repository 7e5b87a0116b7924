package lower

import (
	"errors"
	"fmt"
)

// LoweringError represents a failure detected while converting a wire
// plan tree into a native operator tree.
//
// Any lowering error aborts the whole conversion: no node is skipped and
// no partially lowered tree is ever returned. The error carries the
// offending node's id so callers can surface it; presentation is theirs.
type LoweringError struct {
	// Code identifies the error category.
	Code LoweringErrorCode

	// Message is a human-readable description.
	Message string

	// NodeID identifies the wire node where lowering failed.
	NodeID string

	// Column is the offending schema position for schema and literal
	// errors, -1 when not applicable.
	Column int

	// Err is the underlying collaborator error, if any.
	Err error
}

// LoweringErrorCode categorizes lowering errors.
type LoweringErrorCode string

const (
	// ErrCodeSchemaMismatch indicates the computed output schema
	// disagrees with the node's declared schema.
	ErrCodeSchemaMismatch LoweringErrorCode = "SCHEMA_MISMATCH"

	// ErrCodeUnsupportedNodeKind indicates a wire node kind this worker
	// cannot lower.
	ErrCodeUnsupportedNodeKind LoweringErrorCode = "UNSUPPORTED_NODE_KIND"

	// ErrCodeTypeMismatch indicates a literal whose declared type
	// differs from its target column's mapped type.
	ErrCodeTypeMismatch LoweringErrorCode = "TYPE_MISMATCH"

	// ErrCodeExpression indicates an expression that failed to compile
	// against its input schema.
	ErrCodeExpression LoweringErrorCode = "EXPRESSION_COMPILATION"

	// ErrCodeLiteralShape indicates malformed literal rows: a
	// non-constant entry or a values node with no columns.
	ErrCodeLiteralShape LoweringErrorCode = "LITERAL_SHAPE"

	// ErrCodeAllocation indicates the fragment's allocation scope
	// rejected a buffer reservation.
	ErrCodeAllocation LoweringErrorCode = "ALLOCATION"
)

// Error implements the error interface.
func (e *LoweringError) Error() string {
	msg := fmt.Sprintf("%s: %s (node=%s", e.Code, e.Message, e.NodeID)
	if e.Column >= 0 {
		msg += fmt.Sprintf(", column=%d", e.Column)
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *LoweringError) Unwrap() error { return e.Err }

// IsSchemaMismatch returns true if the error is a schema mismatch.
// Uses errors.As to handle wrapped errors.
func IsSchemaMismatch(err error) bool {
	return hasCode(err, ErrCodeSchemaMismatch)
}

// IsUnsupportedNodeKind returns true if the error is an unsupported node
// kind. Uses errors.As to handle wrapped errors.
func IsUnsupportedNodeKind(err error) bool {
	return hasCode(err, ErrCodeUnsupportedNodeKind)
}

// IsTypeMismatch returns true if the error is a literal type mismatch.
// Uses errors.As to handle wrapped errors.
func IsTypeMismatch(err error) bool {
	return hasCode(err, ErrCodeTypeMismatch)
}

// IsExpressionError returns true if the error is a failed expression
// compilation. Uses errors.As to handle wrapped errors.
func IsExpressionError(err error) bool {
	return hasCode(err, ErrCodeExpression)
}

func hasCode(err error, code LoweringErrorCode) bool {
	var le *LoweringError
	if errors.As(err, &le) {
		return le.Code == code
	}
	return false
}

func newError(code LoweringErrorCode, nodeID string, format string, args ...any) *LoweringError {
	return &LoweringError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		NodeID:  nodeID,
		Column:  -1,
	}
}

func newColumnError(code LoweringErrorCode, nodeID string, column int, format string, args ...any) *LoweringError {
	e := newError(code, nodeID, format, args...)
	e.Column = column
	return e
}

func wrapError(code LoweringErrorCode, nodeID string, err error, format string, args ...any) *LoweringError {
	e := newError(code, nodeID, format, args...)
	e.Err = err
	return e
}
