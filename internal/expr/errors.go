package expr

import (
	"errors"
	"fmt"
)

// CompilationError reports an expression that cannot be compiled against
// its input schema: an unresolved column reference, an unknown function,
// or a type disagreement between arguments and signature.
type CompilationError struct {
	// Expr is a rendering of the offending (sub)expression.
	Expr string

	// Reason describes the failure.
	Reason string
}

// Error implements the error interface.
func (e *CompilationError) Error() string {
	return fmt.Sprintf("compile expression %s: %s", e.Expr, e.Reason)
}

// IsCompilationError returns true if the error is a CompilationError.
// Uses errors.As to handle wrapped errors.
func IsCompilationError(err error) bool {
	var ce *CompilationError
	return errors.As(err, &ce)
}

func newCompilationError(expr, format string, args ...any) *CompilationError {
	return &CompilationError{Expr: expr, Reason: fmt.Sprintf(format, args...)}
}
