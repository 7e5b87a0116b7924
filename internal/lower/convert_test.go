package lower

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corviddb/corvid/internal/exec"
	"github.com/corviddb/corvid/internal/memory"
	"github.com/corviddb/corvid/internal/vtype"
	"github.com/corviddb/corvid/internal/wire"
)

func testConverter(t *testing.T) *Converter {
	t.Helper()
	scope := memory.NewScope("test")
	return NewConverter(exec.NewContext("q1", "f1", scope), nil)
}

func intConst(v int64) wire.Expr {
	return &wire.Constant{Type: vtype.Integer, Value: vtype.Int(v)}
}

func strConst(s string) wire.Expr {
	return &wire.Constant{Type: vtype.Varchar, Value: vtype.Str(s)}
}

// threeRowValues mirrors the canonical two-column literal source used
// throughout these tests: (1,"a"), (2,"b"), (3,"c").
func threeRowValues(id string) *wire.ValuesNode {
	return &wire.ValuesNode{
		ID: id,
		Schema: vtype.Schema{
			{Name: "a", Type: vtype.Integer},
			{Name: "b", Type: vtype.Varchar},
		},
		Rows: [][]wire.Expr{
			{intConst(1), strConst("a")},
			{intConst(2), strConst("b")},
			{intConst(3), strConst("c")},
		},
	}
}

func TestLowerValues(t *testing.T) {
	c := testConverter(t)

	lowered, err := c.LowerNode(threeRowValues("0"))
	require.NoError(t, err)

	vn, ok := lowered.(*exec.ValuesNode)
	require.True(t, ok, "expected a values operator, got %T", lowered)
	assert.Equal(t, "0", vn.ID())

	require.Len(t, vn.Batches, 1)
	b := vn.Batches[0]
	assert.Equal(t, 3, b.NumRows())
	assert.Equal(t, 2, b.NumCols())

	assert.Equal(t, vtype.Int(2), b.Column(0).Get(1))
	assert.Equal(t, vtype.Str("c"), b.Column(1).Get(2))
}

func TestLowerValuesEmpty(t *testing.T) {
	c := testConverter(t)

	lowered, err := c.LowerNode(&wire.ValuesNode{
		ID:     "empty",
		Schema: vtype.Schema{{Name: "a", Type: vtype.Integer}},
	})
	require.NoError(t, err)

	vn := lowered.(*exec.ValuesNode)
	require.Len(t, vn.Batches, 1)
	assert.Equal(t, 0, vn.Batches[0].NumRows())
}

func TestLowerValuesNullLiteral(t *testing.T) {
	c := testConverter(t)

	lowered, err := c.LowerNode(&wire.ValuesNode{
		ID:     "n",
		Schema: vtype.Schema{{Name: "a", Type: vtype.Integer}},
		Rows: [][]wire.Expr{
			{&wire.Constant{Type: vtype.Integer, Value: vtype.Null{}}},
			{intConst(7)},
		},
	})
	require.NoError(t, err)

	b := lowered.(*exec.ValuesNode).Batches[0]
	assert.Equal(t, vtype.Null{}, b.Column(0).Get(0))
	assert.Equal(t, vtype.Int(7), b.Column(0).Get(1))
}

func TestLowerValuesTypeMismatch(t *testing.T) {
	c := testConverter(t)

	_, err := c.LowerNode(&wire.ValuesNode{
		ID:     "bad",
		Schema: vtype.Schema{{Name: "a", Type: vtype.Integer}},
		Rows: [][]wire.Expr{
			{&wire.Constant{Type: vtype.Bigint, Value: vtype.Int(1)}},
		},
	})
	require.Error(t, err)
	assert.True(t, IsTypeMismatch(err))

	var le *LoweringError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "bad", le.NodeID)
	assert.Equal(t, 0, le.Column)
}

func TestLowerValuesRowWidth(t *testing.T) {
	c := testConverter(t)

	_, err := c.LowerNode(&wire.ValuesNode{
		ID: "ragged",
		Schema: vtype.Schema{
			{Name: "a", Type: vtype.Integer},
			{Name: "b", Type: vtype.Varchar},
		},
		Rows: [][]wire.Expr{
			{intConst(1)},
		},
	})
	require.Error(t, err)

	var le *LoweringError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeLiteralShape, le.Code)
}

func TestLowerValuesNonConstantCell(t *testing.T) {
	c := testConverter(t)

	_, err := c.LowerNode(&wire.ValuesNode{
		ID:     "expr-cell",
		Schema: vtype.Schema{{Name: "a", Type: vtype.Integer}},
		Rows: [][]wire.Expr{
			{&wire.ColumnRef{Name: "x", Type: vtype.Integer}},
		},
	})
	require.Error(t, err)

	var le *LoweringError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeLiteralShape, le.Code)
}

func TestLowerValuesScopeLimit(t *testing.T) {
	scope := memory.NewScopeWithLimit("tiny", 8)
	c := NewConverter(exec.NewContext("q1", "f1", scope), nil)

	_, err := c.LowerNode(threeRowValues("0"))
	require.Error(t, err)

	var le *LoweringError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeAllocation, le.Code)
	assert.True(t, memory.IsLimitError(le.Err))
}

func TestLowerProject(t *testing.T) {
	c := testConverter(t)

	project := &wire.ProjectNode{
		ID: "1",
		Schema: vtype.Schema{
			{Name: "a2", Type: vtype.Integer},
			{Name: "b", Type: vtype.Varchar},
		},
		Source: threeRowValues("0"),
		Exprs: []wire.Expr{
			&wire.Call{Name: "multiply", Type: vtype.Integer, Args: []wire.Expr{
				&wire.ColumnRef{Name: "a", Type: vtype.Integer},
				intConst(2),
			}},
			&wire.ColumnRef{Name: "b", Type: vtype.Varchar},
		},
	}

	lowered, err := c.LowerNode(project)
	require.NoError(t, err)

	pn, ok := lowered.(*exec.ProjectNode)
	require.True(t, ok)
	assert.Equal(t, "1", pn.ID())
	assert.Equal(t, "0", pn.Input.ID(), "child id carried through verbatim")
	assert.True(t, pn.OutputSchema().Equal(project.Schema))
}

func TestLowerProjectDeclaredTypeMismatch(t *testing.T) {
	c := testConverter(t)

	// The expression computes integer but the node declares varchar.
	project := &wire.ProjectNode{
		ID:     "1",
		Schema: vtype.Schema{{Name: "a", Type: vtype.Varchar}},
		Source: threeRowValues("0"),
		Exprs: []wire.Expr{
			&wire.ColumnRef{Name: "a", Type: vtype.Integer},
		},
	}

	_, err := c.LowerNode(project)
	require.Error(t, err)
	assert.True(t, IsSchemaMismatch(err))

	var le *LoweringError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "1", le.NodeID)
	assert.Equal(t, 0, le.Column)
}

func TestLowerProjectUnknownColumn(t *testing.T) {
	c := testConverter(t)

	project := &wire.ProjectNode{
		ID:     "1",
		Schema: vtype.Schema{{Name: "z", Type: vtype.Integer}},
		Source: threeRowValues("0"),
		Exprs: []wire.Expr{
			&wire.ColumnRef{Name: "z", Type: vtype.Integer},
		},
	}

	_, err := c.LowerNode(project)
	require.Error(t, err)
	assert.True(t, IsExpressionError(err))
}

func TestLowerFilter(t *testing.T) {
	c := testConverter(t)

	filter := &wire.FilterNode{
		ID: "4",
		Schema: vtype.Schema{
			{Name: "a", Type: vtype.Integer},
			{Name: "b", Type: vtype.Varchar},
		},
		Source: threeRowValues("0"),
		Predicate: &wire.Call{Name: "gt", Type: vtype.Boolean, Args: []wire.Expr{
			&wire.ColumnRef{Name: "a", Type: vtype.Integer},
			intConst(1),
		}},
	}

	lowered, err := c.LowerNode(filter)
	require.NoError(t, err)

	fn, ok := lowered.(*exec.FilterNode)
	require.True(t, ok)
	assert.Equal(t, "4", fn.ID())
	assert.False(t, fn.PassThrough)
}

func TestLowerFilterConstantTrue(t *testing.T) {
	c := testConverter(t)

	filter := &wire.FilterNode{
		ID: "4",
		Schema: vtype.Schema{
			{Name: "a", Type: vtype.Integer},
			{Name: "b", Type: vtype.Varchar},
		},
		Source:    threeRowValues("0"),
		Predicate: &wire.Constant{Type: vtype.Boolean, Value: vtype.Bool(true)},
	}

	lowered, err := c.LowerNode(filter)
	require.NoError(t, err)
	assert.True(t, lowered.(*exec.FilterNode).PassThrough)
}

func TestLowerFilterNonBooleanPredicate(t *testing.T) {
	c := testConverter(t)

	filter := &wire.FilterNode{
		ID: "4",
		Schema: vtype.Schema{
			{Name: "a", Type: vtype.Integer},
			{Name: "b", Type: vtype.Varchar},
		},
		Source:    threeRowValues("0"),
		Predicate: &wire.ColumnRef{Name: "a", Type: vtype.Integer},
	}

	_, err := c.LowerNode(filter)
	require.Error(t, err)
	assert.True(t, IsExpressionError(err))
}

func TestLowerTableScanRejected(t *testing.T) {
	c := testConverter(t)

	_, err := c.LowerNode(&wire.TableScanNode{
		ID:     "scan",
		Schema: vtype.Schema{{Name: "a", Type: vtype.Integer}},
		Table:  "tpch.lineitem",
	})
	require.Error(t, err)
	assert.True(t, IsUnsupportedNodeKind(err))

	var le *LoweringError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "scan", le.NodeID)
}

// A failure anywhere in the tree aborts the whole lowering; no partial
// tree comes back.
func TestLowerAbortsOnDeepFailure(t *testing.T) {
	c := testConverter(t)

	root := &wire.OutputNode{
		ID:          "out",
		Schema:      vtype.Schema{{Name: "a", Type: vtype.Integer}},
		ColumnNames: []string{"a"},
		Source: &wire.FilterNode{
			ID:     "f",
			Schema: vtype.Schema{{Name: "a", Type: vtype.Integer}},
			Source: &wire.TableScanNode{
				ID:     "scan",
				Schema: vtype.Schema{{Name: "a", Type: vtype.Integer}},
				Table:  "t",
			},
			Predicate: &wire.Constant{Type: vtype.Boolean, Value: vtype.Bool(true)},
		},
	}

	lowered, err := c.LowerNode(root)
	require.Error(t, err)
	assert.Nil(t, lowered)
	assert.True(t, IsUnsupportedNodeKind(err))
}

func TestLowerExchangeHash(t *testing.T) {
	c := testConverter(t)

	ex := &wire.ExchangeNode{
		ID: "x",
		Schema: vtype.Schema{
			{Name: "a", Type: vtype.Integer},
			{Name: "b", Type: vtype.Varchar},
		},
		Scope:        wire.ExchangeLocal,
		Partitioning: wire.PartitionHash,
		Keys:         []string{"a"},
		Srcs:         []wire.PlanNode{threeRowValues("0"), threeRowValues("1")},
	}

	lowered, err := c.LowerNode(ex)
	require.NoError(t, err)

	xn, ok := lowered.(*exec.ExchangeNode)
	require.True(t, ok)
	assert.Equal(t, exec.PartitionHash, xn.Partitioning.Func)
	assert.Equal(t, []int{0}, xn.Partitioning.KeyColumns)
	assert.Len(t, xn.Inputs, 2)
}

func TestLowerExchangeHashUnknownKey(t *testing.T) {
	c := testConverter(t)

	ex := &wire.ExchangeNode{
		ID: "x",
		Schema: vtype.Schema{
			{Name: "a", Type: vtype.Integer},
			{Name: "b", Type: vtype.Varchar},
		},
		Scope:        wire.ExchangeLocal,
		Partitioning: wire.PartitionHash,
		Keys:         []string{"missing"},
		Srcs:         []wire.PlanNode{threeRowValues("0")},
	}

	_, err := c.LowerNode(ex)
	require.Error(t, err)
	assert.True(t, IsSchemaMismatch(err))
}

func TestLowerSemiJoin(t *testing.T) {
	c := testConverter(t)

	sj := &wire.SemiJoinNode{
		ID: "sj",
		Schema: vtype.Schema{
			{Name: "a", Type: vtype.Integer},
			{Name: "b", Type: vtype.Varchar},
			{Name: "match", Type: vtype.Boolean},
		},
		Source:              threeRowValues("0"),
		FilteringSource:     threeRowValues("1"),
		SourceJoinColumn:    "a",
		FilteringJoinColumn: "a",
		OutputColumn:        "match",
	}

	lowered, err := c.LowerNode(sj)
	require.NoError(t, err)

	n, ok := lowered.(*exec.SemiJoinNode)
	require.True(t, ok)
	assert.Equal(t, 0, n.ProbeKey)
	assert.Equal(t, 0, n.BuildKey)
}

func TestLowerSemiJoinKeyTypeDisagreement(t *testing.T) {
	c := testConverter(t)

	build := &wire.ValuesNode{
		ID:     "1",
		Schema: vtype.Schema{{Name: "k", Type: vtype.Varchar}},
	}
	sj := &wire.SemiJoinNode{
		ID: "sj",
		Schema: vtype.Schema{
			{Name: "a", Type: vtype.Integer},
			{Name: "b", Type: vtype.Varchar},
			{Name: "match", Type: vtype.Boolean},
		},
		Source:              threeRowValues("0"),
		FilteringSource:     build,
		SourceJoinColumn:    "a",
		FilteringJoinColumn: "k",
		OutputColumn:        "match",
	}

	_, err := c.LowerNode(sj)
	require.Error(t, err)
	assert.True(t, IsSchemaMismatch(err))
}

func TestLowerMergeJoin(t *testing.T) {
	c := testConverter(t)

	right := &wire.ValuesNode{
		ID: "r",
		Schema: vtype.Schema{
			{Name: "k", Type: vtype.Integer},
			{Name: "v", Type: vtype.Varchar},
		},
		Rows: [][]wire.Expr{
			{intConst(1), strConst("x")},
		},
	}
	mj := &wire.MergeJoinNode{
		ID: "mj",
		Schema: vtype.Schema{
			{Name: "a", Type: vtype.Integer},
			{Name: "v", Type: vtype.Varchar},
		},
		Left:     threeRowValues("l"),
		Right:    right,
		Criteria: []wire.EquiClause{{Left: "a", Right: "k"}},
	}

	lowered, err := c.LowerNode(mj)
	require.NoError(t, err)

	n, ok := lowered.(*exec.MergeJoinNode)
	require.True(t, ok)
	assert.Equal(t, []int{0}, n.LeftKeys)
	assert.Equal(t, []int{0}, n.RightKeys)
	require.Len(t, n.Outputs, 2)
	assert.True(t, n.Outputs[0].FromLeft)
	assert.False(t, n.Outputs[1].FromLeft)
}

func TestLowerMergeJoinUnknownOutput(t *testing.T) {
	c := testConverter(t)

	mj := &wire.MergeJoinNode{
		ID:       "mj",
		Schema:   vtype.Schema{{Name: "nope", Type: vtype.Integer}},
		Left:     threeRowValues("l"),
		Right:    threeRowValues("r"),
		Criteria: []wire.EquiClause{{Left: "a", Right: "a"}},
	}

	_, err := c.LowerNode(mj)
	require.Error(t, err)
	assert.True(t, IsSchemaMismatch(err))
}

// Lower a whole fragment and run it: filter(a > 1) over project(a, b)
// over the literal rows. Ids from the wire plan survive into the
// operator tree untouched.
func TestLowerFragmentEndToEnd(t *testing.T) {
	scope := memory.NewScope("e2e")
	ctx := exec.NewContext("q1", "f1", scope)
	c := NewConverter(ctx, nil)

	frag := &wire.Fragment{
		ID: "f1",
		Root: &wire.OutputNode{
			ID: "out",
			Schema: vtype.Schema{
				{Name: "a", Type: vtype.Integer},
				{Name: "b", Type: vtype.Varchar},
			},
			ColumnNames: []string{"a", "b"},
			Source: &wire.FilterNode{
				ID: "4",
				Schema: vtype.Schema{
					{Name: "a", Type: vtype.Integer},
					{Name: "b", Type: vtype.Varchar},
				},
				Source: &wire.ProjectNode{
					ID: "1",
					Schema: vtype.Schema{
						{Name: "a", Type: vtype.Integer},
						{Name: "b", Type: vtype.Varchar},
					},
					Source: threeRowValues("0"),
					Exprs: []wire.Expr{
						&wire.ColumnRef{Name: "a", Type: vtype.Integer},
						&wire.ColumnRef{Name: "b", Type: vtype.Varchar},
					},
				},
				Predicate: &wire.Call{Name: "gt", Type: vtype.Boolean, Args: []wire.Expr{
					&wire.ColumnRef{Name: "a", Type: vtype.Integer},
					intConst(1),
				}},
			},
		},
	}

	root, err := c.Lower(frag)
	require.NoError(t, err)
	assert.Equal(t, "out", root.ID())

	out, err := exec.Run(ctx, root)
	require.NoError(t, err)

	var rows int
	for _, b := range out {
		rows += b.NumRows()
	}
	assert.Equal(t, 2, rows, "rows with a > 1")
}

func TestLowerFragmentStageBoundary(t *testing.T) {
	scope := memory.NewScope("stages")
	ctx := exec.NewContext("q1", "f1", scope)
	c := NewConverter(ctx, StagePolicy{})

	schema := vtype.Schema{
		{Name: "a", Type: vtype.Integer},
		{Name: "b", Type: vtype.Varchar},
	}
	frag := &wire.Fragment{
		ID: "f1",
		StageAssignments: map[string]string{
			"4": "1",
			"0": "0",
		},
		Root: &wire.FilterNode{
			ID:     "4",
			Schema: schema,
			Source: threeRowValues("0"),
			Predicate: &wire.Call{Name: "gt", Type: vtype.Boolean, Args: []wire.Expr{
				&wire.ColumnRef{Name: "a", Type: vtype.Integer},
				intConst(1),
			}},
		},
	}

	root, err := c.Lower(frag)
	require.NoError(t, err)

	fn, ok := root.(*exec.FilterNode)
	require.True(t, ok)
	assert.Equal(t, "4", fn.ID())

	// A gather exchange was synthesized between the filter and its
	// child, with an id derived from the child's.
	xn, ok := fn.Input.(*exec.ExchangeNode)
	require.True(t, ok, "expected a synthesized exchange, got %T", fn.Input)
	assert.Equal(t, "boundary:0", xn.ID())
	assert.Equal(t, exec.PartitionGather, xn.Partitioning.Func)
	require.Len(t, xn.Inputs, 1)
	assert.Equal(t, "0", xn.Inputs[0].ID())

	out, err := exec.Run(ctx, root)
	require.NoError(t, err)
	var rows int
	for _, b := range out {
		rows += b.NumRows()
	}
	assert.Equal(t, 2, rows)
}
