// Package batch implements typed columnar batches: tabular data held as
// one typed buffer per column. Buffers account their bytes against a
// memory.Scope and are exclusively owned by whichever operator node the
// producing code hands them to.
package batch

import (
	"fmt"

	"github.com/corviddb/corvid/internal/memory"
	"github.com/corviddb/corvid/internal/vtype"
)

// Column is a sealed interface over typed column buffers. Only the column
// types in this package implement it.
//
// A column's Type is the resolved logical type of its elements; the
// physical buffer may be wider (all integer widths share an int64 buffer).
// Append enforces that incoming values belong to the column's type family
// and never coerces across families.
type Column interface {
	column() // Marker method - seals interface to this package

	// Type returns the resolved element type.
	Type() vtype.Type

	// Len returns the number of appended elements.
	Len() int

	// Get returns the element at position i, or vtype.Null for nulls.
	Get(i int) vtype.Value

	// Append adds one element. Values outside the column's type family
	// are rejected with an error; nothing is coerced.
	Append(v vtype.Value) error
}

// NewColumn allocates an empty column buffer for the given element type,
// reserving its estimated footprint from the scope. Types with no columnar
// representation in this engine (decimal, array, row) are rejected with
// *vtype.UnsupportedTypeError.
func NewColumn(scope *memory.Scope, t vtype.Type, capacity int) (Column, error) {
	switch t.Kind {
	case vtype.KindBoolean:
		if err := scope.Reserve(int64(capacity) * 2); err != nil {
			return nil, err
		}
		return &BoolColumn{typ: t, vals: make([]bool, 0, capacity), nulls: make([]bool, 0, capacity)}, nil
	case vtype.KindTinyint, vtype.KindSmallint, vtype.KindInteger, vtype.KindBigint,
		vtype.KindDate, vtype.KindTimestamp:
		if err := scope.Reserve(int64(capacity) * 9); err != nil {
			return nil, err
		}
		return &IntColumn{typ: t, vals: make([]int64, 0, capacity), nulls: make([]bool, 0, capacity)}, nil
	case vtype.KindReal, vtype.KindDouble:
		if err := scope.Reserve(int64(capacity) * 9); err != nil {
			return nil, err
		}
		return &FloatColumn{typ: t, vals: make([]float64, 0, capacity), nulls: make([]bool, 0, capacity)}, nil
	case vtype.KindVarchar:
		if err := scope.Reserve(int64(capacity) * 17); err != nil {
			return nil, err
		}
		return &StringColumn{typ: t, scope: scope, vals: make([]string, 0, capacity), nulls: make([]bool, 0, capacity)}, nil
	case vtype.KindVarbinary:
		if err := scope.Reserve(int64(capacity) * 25); err != nil {
			return nil, err
		}
		return &BytesColumn{typ: t, scope: scope, vals: make([][]byte, 0, capacity), nulls: make([]bool, 0, capacity)}, nil
	default:
		return nil, &vtype.UnsupportedTypeError{
			Descriptor: t.String(),
			Reason:     "no columnar representation",
		}
	}
}

func appendTypeError(t vtype.Type, v vtype.Value) error {
	return fmt.Errorf("cannot append %s to %s column", vtype.Format(v), t)
}

// BoolColumn holds boolean elements.
type BoolColumn struct {
	typ   vtype.Type
	vals  []bool
	nulls []bool
}

func (*BoolColumn) column() {}

// Type returns the resolved element type.
func (c *BoolColumn) Type() vtype.Type { return c.typ }

// Len returns the number of appended elements.
func (c *BoolColumn) Len() int { return len(c.vals) }

// Get returns the element at position i.
func (c *BoolColumn) Get(i int) vtype.Value {
	if c.nulls[i] {
		return vtype.Null{}
	}
	return vtype.Bool(c.vals[i])
}

// Append adds one element.
func (c *BoolColumn) Append(v vtype.Value) error {
	switch val := v.(type) {
	case vtype.Null:
		c.vals = append(c.vals, false)
		c.nulls = append(c.nulls, true)
	case vtype.Bool:
		c.vals = append(c.vals, bool(val))
		c.nulls = append(c.nulls, false)
	default:
		return appendTypeError(c.typ, v)
	}
	return nil
}

// Values returns the underlying buffer. Null positions hold false.
func (c *BoolColumn) Values() []bool { return c.vals }

// IntColumn holds integer-family elements (tinyint through bigint, date,
// timestamp) in a shared int64 buffer.
type IntColumn struct {
	typ   vtype.Type
	vals  []int64
	nulls []bool
}

func (*IntColumn) column() {}

// Type returns the resolved element type.
func (c *IntColumn) Type() vtype.Type { return c.typ }

// Len returns the number of appended elements.
func (c *IntColumn) Len() int { return len(c.vals) }

// Get returns the element at position i.
func (c *IntColumn) Get(i int) vtype.Value {
	if c.nulls[i] {
		return vtype.Null{}
	}
	return vtype.Int(c.vals[i])
}

// Append adds one element.
func (c *IntColumn) Append(v vtype.Value) error {
	switch val := v.(type) {
	case vtype.Null:
		c.vals = append(c.vals, 0)
		c.nulls = append(c.nulls, true)
	case vtype.Int:
		c.vals = append(c.vals, int64(val))
		c.nulls = append(c.nulls, false)
	default:
		return appendTypeError(c.typ, v)
	}
	return nil
}

// Values returns the underlying buffer. Null positions hold zero.
func (c *IntColumn) Values() []int64 { return c.vals }

// FloatColumn holds floating-point elements (real, double) in a float64
// buffer.
type FloatColumn struct {
	typ   vtype.Type
	vals  []float64
	nulls []bool
}

func (*FloatColumn) column() {}

// Type returns the resolved element type.
func (c *FloatColumn) Type() vtype.Type { return c.typ }

// Len returns the number of appended elements.
func (c *FloatColumn) Len() int { return len(c.vals) }

// Get returns the element at position i.
func (c *FloatColumn) Get(i int) vtype.Value {
	if c.nulls[i] {
		return vtype.Null{}
	}
	return vtype.Float(c.vals[i])
}

// Append adds one element.
func (c *FloatColumn) Append(v vtype.Value) error {
	switch val := v.(type) {
	case vtype.Null:
		c.vals = append(c.vals, 0)
		c.nulls = append(c.nulls, true)
	case vtype.Float:
		c.vals = append(c.vals, float64(val))
		c.nulls = append(c.nulls, false)
	default:
		return appendTypeError(c.typ, v)
	}
	return nil
}

// Values returns the underlying buffer. Null positions hold zero.
func (c *FloatColumn) Values() []float64 { return c.vals }

// StringColumn holds varchar elements. Variable-length payloads reserve
// their bytes at append time.
type StringColumn struct {
	typ   vtype.Type
	scope *memory.Scope
	vals  []string
	nulls []bool
}

func (*StringColumn) column() {}

// Type returns the resolved element type.
func (c *StringColumn) Type() vtype.Type { return c.typ }

// Len returns the number of appended elements.
func (c *StringColumn) Len() int { return len(c.vals) }

// Get returns the element at position i.
func (c *StringColumn) Get(i int) vtype.Value {
	if c.nulls[i] {
		return vtype.Null{}
	}
	return vtype.Str(c.vals[i])
}

// Append adds one element.
func (c *StringColumn) Append(v vtype.Value) error {
	switch val := v.(type) {
	case vtype.Null:
		c.vals = append(c.vals, "")
		c.nulls = append(c.nulls, true)
	case vtype.Str:
		if c.scope != nil {
			if err := c.scope.Reserve(int64(len(val))); err != nil {
				return err
			}
		}
		c.vals = append(c.vals, string(val))
		c.nulls = append(c.nulls, false)
	default:
		return appendTypeError(c.typ, v)
	}
	return nil
}

// Values returns the underlying buffer. Null positions hold "".
func (c *StringColumn) Values() []string { return c.vals }

// BytesColumn holds varbinary elements.
type BytesColumn struct {
	typ   vtype.Type
	scope *memory.Scope
	vals  [][]byte
	nulls []bool
}

func (*BytesColumn) column() {}

// Type returns the resolved element type.
func (c *BytesColumn) Type() vtype.Type { return c.typ }

// Len returns the number of appended elements.
func (c *BytesColumn) Len() int { return len(c.vals) }

// Get returns the element at position i.
func (c *BytesColumn) Get(i int) vtype.Value {
	if c.nulls[i] {
		return vtype.Null{}
	}
	return vtype.Bytes(c.vals[i])
}

// Append adds one element.
func (c *BytesColumn) Append(v vtype.Value) error {
	switch val := v.(type) {
	case vtype.Null:
		c.vals = append(c.vals, nil)
		c.nulls = append(c.nulls, true)
	case vtype.Bytes:
		if c.scope != nil {
			if err := c.scope.Reserve(int64(len(val))); err != nil {
				return err
			}
		}
		c.vals = append(c.vals, []byte(val))
		c.nulls = append(c.nulls, false)
	default:
		return appendTypeError(c.typ, v)
	}
	return nil
}

// Values returns the underlying buffer. Null positions hold nil.
func (c *BytesColumn) Values() [][]byte { return c.vals }
