// Package lower converts deserialized wire plan trees into native
// operator trees for the execution engine.
//
// The conversion walks the wire tree children-first: a parent's
// construction and schema validation need its children's resolved output
// schemas. Dispatch is an exhaustive type switch over the sealed wire
// node variants; a kind without a lowering is an explicit failure, never
// a default. Every lowered node keeps its wire node's id verbatim, and
// every node's computed output schema is validated against the declared
// one before the parent is built.
//
// Lowering is a pure function of the fragment and the execution context:
// synchronous, no I/O, no hidden state. Any failure anywhere in the tree
// aborts the whole conversion; callers either get a complete operator
// tree or none at all.
//
// Stage boundaries are not a node-local concern. Whether a synthesized
// exchange belongs between a parent and a child is decided by a
// BoundaryPolicy consulted during the walk, driven by fragment metadata
// the core otherwise ignores.
package lower
