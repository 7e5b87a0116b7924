// Package memory provides the allocation scopes that back columnar data.
//
// A Scope is an arena-like accounting handle: one scope per plan fragment,
// created by the caller, borrowed by lowering and execution, and released
// as a whole when the fragment is done. Scopes are not safe for sharing
// across fragments; concurrent fragments each get their own.
package memory

import (
	"errors"
	"fmt"
)

// DefaultLimit is the per-fragment reservation limit applied when a scope
// is created without an explicit one.
const DefaultLimit = 1 << 30 // 1 GiB

// Scope tracks byte reservations for one fragment's columnar buffers.
//
// Each fragment has its own Scope instance. Reservations are checked
// against the limit on every Reserve; exceeding it fails the allocation
// rather than growing unbounded.
type Scope struct {
	label string // diagnostic label, typically the fragment id
	limit int64  // maximum reservable bytes
	used  int64  // currently reserved bytes
}

// NewScope creates a scope with the default limit.
//
// label: diagnostic label surfaced in errors, typically the fragment id.
func NewScope(label string) *Scope {
	return NewScopeWithLimit(label, DefaultLimit)
}

// NewScopeWithLimit creates a scope with an explicit reservation limit.
func NewScopeWithLimit(label string, limit int64) *Scope {
	return &Scope{label: label, limit: limit}
}

// Reserve records n additional bytes against the scope.
//
// Returns *LimitError if the reservation would exceed the limit; the
// scope's usage is unchanged in that case.
func (s *Scope) Reserve(n int64) error {
	if s.used+n > s.limit {
		return &LimitError{
			Label:     s.label,
			Requested: n,
			Used:      s.used,
			Limit:     s.limit,
		}
	}
	s.used += n
	return nil
}

// Release returns n bytes to the scope. Releasing more than is reserved
// clamps to zero; buffers are released wholesale when a fragment ends, so
// over-release indicates sloppy accounting rather than corruption.
func (s *Scope) Release(n int64) {
	s.used -= n
	if s.used < 0 {
		s.used = 0
	}
}

// Used returns the currently reserved byte count.
// Used for logging and diagnostics.
func (s *Scope) Used() int64 {
	return s.used
}

// Limit returns the reservation limit.
// Used for logging and diagnostics.
func (s *Scope) Limit() int64 {
	return s.limit
}

// Label returns the diagnostic label.
func (s *Scope) Label() string {
	return s.label
}

// LimitError is returned when a reservation would exceed the scope limit.
type LimitError struct {
	Label     string // The scope that rejected the reservation
	Requested int64  // Bytes requested
	Used      int64  // Bytes already reserved
	Limit     int64  // Maximum reservable bytes
}

// Error implements the error interface.
func (e *LimitError) Error() string {
	return fmt.Sprintf("scope %s exceeded memory limit: %d requested with %d/%d used",
		e.Label, e.Requested, e.Used, e.Limit)
}

// IsLimitError returns true if the error is a LimitError.
// Uses errors.As to handle wrapped errors.
func IsLimitError(err error) bool {
	var le *LimitError
	return errors.As(err, &le)
}
