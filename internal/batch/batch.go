package batch

import (
	"fmt"

	"github.com/corviddb/corvid/internal/memory"
	"github.com/corviddb/corvid/internal/vtype"
)

// Batch is an ordered list of equal-length typed columns.
//
// Invariants, checked at construction:
//   - at least one column
//   - every column has the same length (= the batch's row count)
type Batch struct {
	cols []Column
	rows int
}

// New builds a batch from columns, validating the equal-length invariant.
func New(cols ...Column) (*Batch, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("batch requires at least one column")
	}
	rows := cols[0].Len()
	for i, c := range cols {
		if c.Len() != rows {
			return nil, fmt.Errorf("column %d has %d rows, want %d", i, c.Len(), rows)
		}
	}
	return &Batch{cols: cols, rows: rows}, nil
}

// NumRows returns the row count.
func (b *Batch) NumRows() int { return b.rows }

// NumCols returns the column count.
func (b *Batch) NumCols() int { return len(b.cols) }

// Column returns the column at position i.
func (b *Batch) Column(i int) Column { return b.cols[i] }

// Types returns the ordered element types of the batch's columns.
func (b *Batch) Types() []vtype.Type {
	types := make([]vtype.Type, len(b.cols))
	for i, c := range b.cols {
		types[i] = c.Type()
	}
	return types
}

// ConformsTo reports whether the batch's column types equal the schema's
// types position by position.
func (b *Batch) ConformsTo(s vtype.Schema) bool {
	if len(b.cols) != len(s) {
		return false
	}
	for i, c := range b.cols {
		if !c.Type().Equal(s[i].Type) {
			return false
		}
	}
	return true
}

// Gather builds a new batch containing the given row positions, in order.
// Buffers for the result are reserved from scope.
func (b *Batch) Gather(scope *memory.Scope, rows []int) (*Batch, error) {
	out := make([]Column, len(b.cols))
	for i, c := range b.cols {
		col, err := NewColumn(scope, c.Type(), len(rows))
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			if err := col.Append(c.Get(r)); err != nil {
				return nil, err
			}
		}
		out[i] = col
	}
	return New(out...)
}
