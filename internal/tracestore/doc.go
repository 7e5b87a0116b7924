// Package tracestore persists lowering outcomes to a local SQLite
// database. Node ids in wire plans are opaque tokens minted by an
// external coordinator; recording them per lowering lets operators join
// a worker's view of a plan back to coordinator-side tracing.
package tracestore
