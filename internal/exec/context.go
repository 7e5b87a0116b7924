package exec

import (
	"github.com/google/uuid"

	"github.com/corviddb/corvid/internal/memory"
)

// Context carries the per-fragment state lowering and execution borrow:
// the query identity and the allocation scope backing columnar buffers.
//
// The caller owns the context and its scope; lowering never frees either.
// One context per fragment; scopes are not shared across concurrently
// lowered fragments.
type Context struct {
	// QueryID is the stable query identifier, opaque to the worker.
	QueryID string

	// FragmentID identifies the fragment within the query.
	FragmentID string

	// TraceID tags this lowering attempt in the audit log.
	TraceID uuid.UUID

	// Scope is the fragment's allocation scope.
	Scope *memory.Scope
}

// NewContext creates a fragment context with a fresh trace id.
func NewContext(queryID, fragmentID string, scope *memory.Scope) *Context {
	return &Context{
		QueryID:    queryID,
		FragmentID: fragmentID,
		TraceID:    uuid.New(),
		Scope:      scope,
	}
}
