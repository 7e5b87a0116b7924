package vtype

import (
	"encoding/hex"
	"fmt"
	"strconv"
)

// Value is a sealed interface over the constant values the engine moves
// around: literals decoded from the wire and elements read back out of
// columnar data. Only Null, Bool, Int, Float, Str, and Bytes implement it.
//
// A Value carries the natural Go representation of its family; the logical
// width (tinyint vs bigint, real vs double) is enforced by the column or
// constant that holds it, not by the Value itself.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents SQL NULL.
type Null struct{}

func (Null) value() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) value() {}

// Int represents any integer-family value (tinyint through bigint,
// date and timestamp included, which travel as integer counts).
type Int int64

func (Int) value() {}

// Float represents any floating-point-family value (real, double).
type Float float64

func (Float) value() {}

// Str represents a varchar value.
type Str string

func (Str) value() {}

// Bytes represents a varbinary value.
type Bytes []byte

func (Bytes) value() {}

// Format renders a value for diagnostics and plan dumps.
func Format(v Value) string {
	switch val := v.(type) {
	case Null:
		return "null"
	case Bool:
		return strconv.FormatBool(bool(val))
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Str:
		return strconv.Quote(string(val))
	case Bytes:
		return "x'" + hex.EncodeToString(val) + "'"
	default:
		return fmt.Sprintf("value(%T)", v)
	}
}

// FamilyOf reports the Kind family a value naturally belongs to. Null has
// no family; the second return is false for it.
func FamilyOf(v Value) (Kind, bool) {
	switch v.(type) {
	case Bool:
		return KindBoolean, true
	case Int:
		return KindBigint, true
	case Float:
		return KindDouble, true
	case Str:
		return KindVarchar, true
	case Bytes:
		return KindVarbinary, true
	default:
		return 0, false
	}
}

// AcceptsValue reports whether a value of v's family can populate a column
// of type t. Integer values fit all integer-width types plus date and
// timestamp; float values fit real and double; the rest map one to one.
// Null fits everything.
func AcceptsValue(t Type, v Value) bool {
	switch v.(type) {
	case Null:
		return true
	case Bool:
		return t.Kind == KindBoolean
	case Int:
		switch t.Kind {
		case KindTinyint, KindSmallint, KindInteger, KindBigint, KindDate, KindTimestamp:
			return true
		}
		return false
	case Float:
		return t.Kind == KindReal || t.Kind == KindDouble
	case Str:
		return t.Kind == KindVarchar
	case Bytes:
		return t.Kind == KindVarbinary
	default:
		return false
	}
}
