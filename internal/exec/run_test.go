package exec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corviddb/corvid/internal/batch"
	"github.com/corviddb/corvid/internal/expr"
	"github.com/corviddb/corvid/internal/memory"
	"github.com/corviddb/corvid/internal/testutil"
	"github.com/corviddb/corvid/internal/vtype"
	"github.com/corviddb/corvid/internal/wire"
)

func testContext(t *testing.T) *Context {
	t.Helper()
	return NewContext("q1", "f1", memory.NewScope(t.Name()))
}

func makeBatch(t *testing.T, scope *memory.Scope, schema vtype.Schema, rows [][]vtype.Value) *batch.Batch {
	t.Helper()
	return testutil.MakeBatch(t, scope, schema, rows)
}

func collectRows(batches []*batch.Batch) [][]vtype.Value {
	return testutil.CollectRows(batches)
}

func compile(t *testing.T, e wire.Expr, in vtype.Schema) *expr.Compiled {
	t.Helper()
	ce, err := expr.Compile(e, in)
	require.NoError(t, err)
	return ce
}

var abSchema = vtype.Schema{
	{Name: "a", Type: vtype.Integer},
	{Name: "b", Type: vtype.Varchar},
}

func abValues(t *testing.T, ctx *Context, id string) *ValuesNode {
	t.Helper()
	b := makeBatch(t, ctx.Scope, abSchema, [][]vtype.Value{
		{vtype.Int(1), vtype.Str("a")},
		{vtype.Int(2), vtype.Str("b")},
		{vtype.Int(3), vtype.Str("c")},
	})
	return NewValues(id, abSchema, []*batch.Batch{b})
}

func TestRunValues(t *testing.T) {
	ctx := testContext(t)

	out, err := Run(ctx, abValues(t, ctx, "0"))
	require.NoError(t, err)

	rows := collectRows(out)
	require.Len(t, rows, 3)
	assert.Equal(t, []vtype.Value{vtype.Int(2), vtype.Str("b")}, rows[1])
}

func TestRunProject(t *testing.T) {
	ctx := testContext(t)
	src := abValues(t, ctx, "0")

	doubled := compile(t, &wire.Call{Name: "multiply", Type: vtype.Integer, Args: []wire.Expr{
		&wire.ColumnRef{Name: "a", Type: vtype.Integer},
		&wire.Constant{Type: vtype.Integer, Value: vtype.Int(2)},
	}}, abSchema)

	schema := vtype.Schema{{Name: "a2", Type: vtype.Integer}}
	out, err := Run(ctx, NewProject("1", schema, src, []*expr.Compiled{doubled}))
	require.NoError(t, err)

	rows := collectRows(out)
	require.Len(t, rows, 3)
	assert.Equal(t, vtype.Int(2), rows[0][0])
	assert.Equal(t, vtype.Int(6), rows[2][0])
}

func TestRunFilter(t *testing.T) {
	ctx := testContext(t)
	src := abValues(t, ctx, "0")

	pred := compile(t, &wire.Call{Name: "gt", Type: vtype.Boolean, Args: []wire.Expr{
		&wire.ColumnRef{Name: "a", Type: vtype.Integer},
		&wire.Constant{Type: vtype.Integer, Value: vtype.Int(1)},
	}}, abSchema)

	out, err := Run(ctx, NewFilter("4", abSchema, src, pred))
	require.NoError(t, err)

	rows := collectRows(out)
	require.Len(t, rows, 2)
	assert.Equal(t, vtype.Str("b"), rows[0][1])
	assert.Equal(t, vtype.Str("c"), rows[1][1])
}

func TestRunFilterPassThrough(t *testing.T) {
	ctx := testContext(t)
	src := abValues(t, ctx, "0")

	pred := compile(t, &wire.Constant{Type: vtype.Boolean, Value: vtype.Bool(true)}, abSchema)
	f := NewFilter("4", abSchema, src, pred)
	require.True(t, f.PassThrough)

	out, err := Run(ctx, f)
	require.NoError(t, err)

	// The pass-through filter hands the input batches through untouched.
	require.Len(t, out, 1)
	assert.Same(t, src.Batches[0], out[0])
}

func TestRunFilterNullPredicateDropsRow(t *testing.T) {
	ctx := testContext(t)
	schema := vtype.Schema{{Name: "a", Type: vtype.Integer}}
	b := makeBatch(t, ctx.Scope, schema, [][]vtype.Value{
		{vtype.Int(1)},
		{vtype.Null{}},
		{vtype.Int(3)},
	})
	src := NewValues("0", schema, []*batch.Batch{b})

	pred := compile(t, &wire.Call{Name: "gt", Type: vtype.Boolean, Args: []wire.Expr{
		&wire.ColumnRef{Name: "a", Type: vtype.Integer},
		&wire.Constant{Type: vtype.Integer, Value: vtype.Int(0)},
	}}, schema)

	out, err := Run(ctx, NewFilter("f", schema, src, pred))
	require.NoError(t, err)

	rows := collectRows(out)
	require.Len(t, rows, 2)
	assert.Equal(t, vtype.Int(1), rows[0][0])
	assert.Equal(t, vtype.Int(3), rows[1][0])
}

func TestRunOutputPassesThrough(t *testing.T) {
	ctx := testContext(t)
	src := abValues(t, ctx, "0")

	out, err := Run(ctx, NewOutput("out", abSchema, src, []string{"x", "y"}))
	require.NoError(t, err)
	assert.Len(t, collectRows(out), 3)
}

func TestRunExchangeGatherMerges(t *testing.T) {
	ctx := testContext(t)

	ex := NewExchange("x", abSchema,
		[]Node{abValues(t, ctx, "0"), abValues(t, ctx, "1")},
		Partitioning{Func: PartitionGather})

	out, err := Run(ctx, ex)
	require.NoError(t, err)
	assert.Len(t, collectRows(out), 6)
}

func TestRunExchangeHashRepartition(t *testing.T) {
	ctx := testContext(t)

	ex := NewExchange("x", abSchema,
		[]Node{abValues(t, ctx, "0")},
		Partitioning{Func: PartitionHash, KeyColumns: []int{0}, Partitions: 4})

	out, err := Run(ctx, ex)
	require.NoError(t, err)

	// Every input row survives, regrouped by key hash.
	rows := collectRows(out)
	require.Len(t, rows, 3)
	seen := map[int64]string{}
	for _, row := range rows {
		seen[int64(row[0].(vtype.Int))] = string(row[1].(vtype.Str))
	}
	assert.Equal(t, map[int64]string{1: "a", 2: "b", 3: "c"}, seen)

	// Rows with equal keys land in the same output batch.
	b2 := makeBatch(t, ctx.Scope, abSchema, [][]vtype.Value{
		{vtype.Int(1), vtype.Str("a")},
		{vtype.Int(1), vtype.Str("a2")},
	})
	ex2 := NewExchange("x2", abSchema,
		[]Node{NewValues("0", abSchema, []*batch.Batch{b2})},
		Partitioning{Func: PartitionHash, KeyColumns: []int{0}, Partitions: 8})
	out2, err := Run(ctx, ex2)
	require.NoError(t, err)
	require.Len(t, out2, 1)
	assert.Equal(t, 2, out2[0].NumRows())
}

func semiJoinFixture(t *testing.T, ctx *Context, buildKeys []vtype.Value) *SemiJoinNode {
	t.Helper()
	probeSchema := vtype.Schema{{Name: "a", Type: vtype.Integer}}
	probe := NewValues("p", probeSchema, []*batch.Batch{
		makeBatch(t, ctx.Scope, probeSchema, [][]vtype.Value{
			{vtype.Int(1)},
			{vtype.Int(2)},
			{vtype.Null{}},
		}),
	})

	buildSchema := vtype.Schema{{Name: "k", Type: vtype.Integer}}
	buildRows := make([][]vtype.Value, len(buildKeys))
	for i, v := range buildKeys {
		buildRows[i] = []vtype.Value{v}
	}
	build := NewValues("b", buildSchema, []*batch.Batch{
		makeBatch(t, ctx.Scope, buildSchema, buildRows),
	})

	outSchema := vtype.Schema{
		{Name: "a", Type: vtype.Integer},
		{Name: "match", Type: vtype.Boolean},
	}
	return NewSemiJoin("sj", outSchema, probe, build, 0, 0)
}

func TestRunSemiJoin(t *testing.T) {
	ctx := testContext(t)
	sj := semiJoinFixture(t, ctx, []vtype.Value{vtype.Int(1), vtype.Int(5)})

	out, err := Run(ctx, sj)
	require.NoError(t, err)

	rows := collectRows(out)
	require.Len(t, rows, 3)
	assert.Equal(t, vtype.Bool(true), rows[0][1])
	assert.Equal(t, vtype.Bool(false), rows[1][1])
	assert.Equal(t, vtype.Null{}, rows[2][1], "null probe key is unknown")
}

func TestRunSemiJoinNullOnBuildSide(t *testing.T) {
	ctx := testContext(t)
	sj := semiJoinFixture(t, ctx, []vtype.Value{vtype.Int(1), vtype.Null{}})

	out, err := Run(ctx, sj)
	require.NoError(t, err)

	rows := collectRows(out)
	require.Len(t, rows, 3)
	assert.Equal(t, vtype.Bool(true), rows[0][1])
	assert.Equal(t, vtype.Null{}, rows[1][1], "miss against nulls is unknown, not false")
	assert.Equal(t, vtype.Null{}, rows[2][1])
}

func TestRunMergeJoin(t *testing.T) {
	ctx := testContext(t)

	leftSchema := vtype.Schema{
		{Name: "k", Type: vtype.Integer},
		{Name: "l", Type: vtype.Varchar},
	}
	left := NewValues("l", leftSchema, []*batch.Batch{
		makeBatch(t, ctx.Scope, leftSchema, [][]vtype.Value{
			{vtype.Int(1), vtype.Str("l1")},
			{vtype.Int(2), vtype.Str("l2")},
			{vtype.Int(4), vtype.Str("l4")},
		}),
	})

	rightSchema := vtype.Schema{
		{Name: "k", Type: vtype.Integer},
		{Name: "r", Type: vtype.Varchar},
	}
	right := NewValues("r", rightSchema, []*batch.Batch{
		makeBatch(t, ctx.Scope, rightSchema, [][]vtype.Value{
			{vtype.Int(2), vtype.Str("r2a")},
			{vtype.Int(2), vtype.Str("r2b")},
			{vtype.Int(3), vtype.Str("r3")},
			{vtype.Int(4), vtype.Str("r4")},
		}),
	})

	outSchema := vtype.Schema{
		{Name: "l", Type: vtype.Varchar},
		{Name: "r", Type: vtype.Varchar},
	}
	mj := NewMergeJoin("mj", outSchema, left, right,
		[]int{0}, []int{0},
		[]OutputSource{
			{FromLeft: true, Column: 1},
			{FromLeft: false, Column: 1},
		})

	out, err := Run(ctx, mj)
	require.NoError(t, err)

	rows := collectRows(out)
	require.Len(t, rows, 3)
	assert.Equal(t, []vtype.Value{vtype.Str("l2"), vtype.Str("r2a")}, rows[0])
	assert.Equal(t, []vtype.Value{vtype.Str("l2"), vtype.Str("r2b")}, rows[1])
	assert.Equal(t, []vtype.Value{vtype.Str("l4"), vtype.Str("r4")}, rows[2])
}

func TestRunMergeJoinNullKeysNeverMatch(t *testing.T) {
	ctx := testContext(t)

	schema := vtype.Schema{{Name: "k", Type: vtype.Integer}}
	left := NewValues("l", schema, []*batch.Batch{
		makeBatch(t, ctx.Scope, schema, [][]vtype.Value{
			{vtype.Null{}},
			{vtype.Int(1)},
		}),
	})
	right := NewValues("r", schema, []*batch.Batch{
		makeBatch(t, ctx.Scope, schema, [][]vtype.Value{
			{vtype.Null{}},
			{vtype.Int(1)},
		}),
	})

	mj := NewMergeJoin("mj", schema, left, right,
		[]int{0}, []int{0},
		[]OutputSource{{FromLeft: true, Column: 0}})

	out, err := Run(ctx, mj)
	require.NoError(t, err)

	rows := collectRows(out)
	require.Len(t, rows, 1)
	assert.Equal(t, vtype.Int(1), rows[0][0])
}

func TestRunMergeJoinEmpty(t *testing.T) {
	ctx := testContext(t)

	schema := vtype.Schema{{Name: "k", Type: vtype.Integer}}
	left := NewValues("l", schema, []*batch.Batch{
		makeBatch(t, ctx.Scope, schema, nil),
	})
	right := NewValues("r", schema, []*batch.Batch{
		makeBatch(t, ctx.Scope, schema, nil),
	})

	mj := NewMergeJoin("mj", schema, left, right,
		[]int{0}, []int{0},
		[]OutputSource{{FromLeft: true, Column: 0}})

	out, err := Run(ctx, mj)
	require.NoError(t, err)
	assert.Empty(t, collectRows(out))
}

func TestRunMergeJoinZeroOutputColumns(t *testing.T) {
	ctx := testContext(t)

	schema := vtype.Schema{{Name: "k", Type: vtype.Integer}}
	left := NewValues("l", schema, []*batch.Batch{
		makeBatch(t, ctx.Scope, schema, [][]vtype.Value{{vtype.Int(1)}}),
	})
	right := NewValues("r", schema, []*batch.Batch{
		makeBatch(t, ctx.Scope, schema, [][]vtype.Value{{vtype.Int(1)}}),
	})

	mj := NewMergeJoin("mj", vtype.Schema{}, left, right,
		[]int{0}, []int{0}, nil)

	out, err := Run(ctx, mj)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestContextTraceID(t *testing.T) {
	a := NewContext("q1", "f1", memory.NewScope("a"))
	b := NewContext("q1", "f1", memory.NewScope("b"))
	assert.NotEqual(t, a.TraceID, b.TraceID)
}
