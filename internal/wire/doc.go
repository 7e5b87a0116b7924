// Package wire defines the deserialized form of plan fragments exchanged
// between the planning tier and this worker, and the JSON codec for it.
//
// A fragment arrives as a JSON document: a fragment id, a root plan node
// (a recursively nested union of node kinds), and fragment-level metadata
// that the lowering core passes through uninterpreted. PlanNode and Expr
// are sealed variants; backend passes dispatch on them with exhaustive
// type switches, so adding a node kind is a compile-surfaced change.
//
// The codec obeys the round-trip law: Parse(Serialize(f)) is structurally
// equal to f for every fragment built from supported node kinds. Malformed
// structure fails with *ParseError; a declared column type outside the
// engine's type system fails with *SchemaError. Node ids are opaque
// tokens, copied verbatim and never interpreted.
package wire
