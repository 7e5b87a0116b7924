// Package vtype defines the execution engine's value-type system and the
// mapping from wire type descriptors to it.
//
// The wire protocol declares column types as lowercase textual descriptors
// ("integer", "varchar", "decimal(10,2)", "row(a integer, b varchar)").
// Parse maps a descriptor to a Type; it is pure and deterministic, and it
// refuses descriptors outside the supported set rather than approximating
// them. Type.String renders the canonical descriptor back, so
// Parse(t.String()) == t for every supported type.
//
// Value is a sealed variant used for constants and for element access on
// columnar data. Schema pairs ordered column names with resolved types;
// name comparison is NFC-normalized so that identifiers arriving from
// different planner frontends compare consistently.
package vtype
