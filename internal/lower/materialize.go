package lower

import (
	"github.com/corviddb/corvid/internal/batch"
	"github.com/corviddb/corvid/internal/memory"
	"github.com/corviddb/corvid/internal/wire"
)

// materializeValues builds the single batch backing a values node.
// Every cell must be a constant whose declared type exactly matches the
// column type; anything looser would smuggle a coercion into plan
// lowering.
func (c *Converter) materializeValues(n *wire.ValuesNode) (*batch.Batch, error) {
	width := len(n.Schema)

	cols := make([]batch.Column, width)
	for i, col := range n.Schema {
		bc, err := batch.NewColumn(c.ctx.Scope, col.Type, len(n.Rows))
		if err != nil {
			return nil, wrapColumnAlloc(n.ID, i, err)
		}
		cols[i] = bc
	}

	for rowIdx, row := range n.Rows {
		if len(row) != width {
			return nil, newError(ErrCodeLiteralShape, n.ID,
				"row %d has %d cells, schema has %d columns", rowIdx, len(row), width)
		}
		for colIdx, cell := range row {
			con, ok := cell.(*wire.Constant)
			if !ok {
				return nil, newColumnError(ErrCodeLiteralShape, n.ID, colIdx,
					"row %d holds a non-constant expression %T", rowIdx, cell)
			}
			declared := n.Schema[colIdx].Type
			if !con.Type.Equal(declared) {
				return nil, newColumnError(ErrCodeTypeMismatch, n.ID, colIdx,
					"row %d literal is %s, column %q is %s",
					rowIdx, con.Type, n.Schema[colIdx].Name, declared)
			}
			if err := cols[colIdx].Append(con.Value); err != nil {
				return nil, wrapColumnAlloc(n.ID, colIdx, err)
			}
		}
	}

	b, err := batch.New(cols...)
	if err != nil {
		return nil, wrapError(ErrCodeLiteralShape, n.ID, err, "assembling literal batch")
	}
	return b, nil
}

func wrapColumnAlloc(nodeID string, column int, err error) *LoweringError {
	code := ErrCodeTypeMismatch
	if memory.IsLimitError(err) {
		code = ErrCodeAllocation
	}
	e := wrapError(code, nodeID, err, "materializing literal column")
	e.Column = column
	return e
}
