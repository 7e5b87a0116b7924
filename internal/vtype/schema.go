package vtype

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Column is one ordered entry of a Schema.
type Column struct {
	Name string
	Type Type
}

// Schema is an ordered list of named, resolved column types. Order is
// significant: positional equality is what the lowering pass validates.
type Schema []Column

// CanonicalName normalizes an identifier for comparison. Identifiers
// arriving over the wire may differ in Unicode composition depending on
// which frontend produced the plan, so comparisons go through NFC.
func CanonicalName(name string) string {
	return norm.NFC.String(name)
}

// IndexOf returns the position of the named column, or -1 if absent.
// Lookup is by canonical (NFC) name.
func (s Schema) IndexOf(name string) int {
	want := CanonicalName(name)
	for i, c := range s {
		if CanonicalName(c.Name) == want {
			return i
		}
	}
	return -1
}

// Names returns the ordered column names.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Types returns the ordered column types.
func (s Schema) Types() []Type {
	types := make([]Type, len(s))
	for i, c := range s {
		types[i] = c.Type
	}
	return types
}

// Equal reports whether two schemas have the same length and, position by
// position, equal canonical names and equal types.
func (s Schema) Equal(o Schema) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if CanonicalName(s[i].Name) != CanonicalName(o[i].Name) {
			return false
		}
		if !s[i].Type.Equal(o[i].Type) {
			return false
		}
	}
	return true
}

// String renders the schema as "(name type, ...)" for diagnostics.
func (s Schema) String() string {
	parts := make([]string, len(s))
	for i, c := range s {
		parts[i] = c.Name + " " + c.Type.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
