// Package testutil provides batch construction helpers shared by
// operator and lowering tests.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corviddb/corvid/internal/batch"
	"github.com/corviddb/corvid/internal/memory"
	"github.com/corviddb/corvid/internal/vtype"
)

// MakeBatch builds a batch from row-major values. Row width must match
// the schema; the test fails on any allocation or append error.
func MakeBatch(t *testing.T, scope *memory.Scope, schema vtype.Schema, rows [][]vtype.Value) *batch.Batch {
	t.Helper()
	cols := make([]batch.Column, len(schema))
	for i, c := range schema {
		col, err := batch.NewColumn(scope, c.Type, len(rows))
		require.NoError(t, err)
		cols[i] = col
	}
	for _, row := range rows {
		require.Len(t, row, len(schema))
		for i, v := range row {
			require.NoError(t, cols[i].Append(v))
		}
	}
	b, err := batch.New(cols...)
	require.NoError(t, err)
	return b
}

// CollectRows flattens batches back into row-major values for
// assertions.
func CollectRows(batches []*batch.Batch) [][]vtype.Value {
	var rows [][]vtype.Value
	for _, b := range batches {
		for r := 0; r < b.NumRows(); r++ {
			row := make([]vtype.Value, b.NumCols())
			for c := 0; c < b.NumCols(); c++ {
				row[c] = b.Column(c).Get(r)
			}
			rows = append(rows, row)
		}
	}
	return rows
}
