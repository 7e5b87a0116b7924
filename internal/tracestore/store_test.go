package tracestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corviddb/corvid/internal/exec"
	"github.com/corviddb/corvid/internal/lower"
	"github.com/corviddb/corvid/internal/memory"
	"github.com/corviddb/corvid/internal/vtype"
	"github.com/corviddb/corvid/internal/wire"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(traceID, queryID string) Record {
	return Record{
		TraceID:    traceID,
		QueryID:    queryID,
		FragmentID: "f1",
		RootNodeID: "out",
		NodeCount:  2,
		Status:     StatusLowered,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.RecordLowering(context.Background(), testRecord("t1", "q1"), nil))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	recs, err := s2.ListByQuery(context.Background(), "q1")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestRecordAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	older := testRecord("t1", "q1")
	older.CreatedAt = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	newer := testRecord("t2", "q1")
	newer.CreatedAt = time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC)
	other := testRecord("t3", "q2")

	require.NoError(t, s.RecordLowering(ctx, newer, nil))
	require.NoError(t, s.RecordLowering(ctx, older, nil))
	require.NoError(t, s.RecordLowering(ctx, other, nil))

	recs, err := s.ListByQuery(ctx, "q1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "t1", recs[0].TraceID, "oldest first")
	assert.Equal(t, "t2", recs[1].TraceID)
	assert.Equal(t, older.CreatedAt, recs[0].CreatedAt)
}

func TestListUnknownQuery(t *testing.T) {
	s := openTestStore(t)

	recs, err := s.ListByQuery(context.Background(), "absent")
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestRecordIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := testRecord("t1", "q1")
	nodes := []NodeRecord{
		{Position: 0, NodeID: "out", Kind: "output", Depth: 0},
		{Position: 1, NodeID: "0", Kind: "values", Depth: 1},
	}
	require.NoError(t, s.RecordLowering(ctx, rec, nodes))

	// A second write of the same trace id changes nothing.
	rec2 := rec
	rec2.Status = StatusFailed
	require.NoError(t, s.RecordLowering(ctx, rec2, nil))

	got, gotNodes, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusLowered, got.Status)
	assert.Len(t, gotNodes, 2)
}

func TestGetWithNodes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := testRecord("t1", "q1")
	nodes := []NodeRecord{
		{Position: 0, NodeID: "out", Kind: "output", Depth: 0},
		{Position: 1, NodeID: "4", Kind: "filter", Depth: 1},
		{Position: 2, NodeID: "0", Kind: "values", Depth: 2},
	}
	require.NoError(t, s.RecordLowering(ctx, rec, nodes))

	got, gotNodes, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "q1", got.QueryID)
	require.Len(t, gotNodes, 3)
	assert.Equal(t, "filter", gotNodes[1].Kind)
	assert.Equal(t, 2, gotNodes[2].Depth)
}

func TestGetUnknownTrace(t *testing.T) {
	s := openTestStore(t)

	_, _, err := s.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotLoweredTree(t *testing.T) {
	scope := memory.NewScope("snap")
	ctx := exec.NewContext("q1", "f1", scope)
	c := lower.NewConverter(ctx, nil)

	root, err := c.LowerNode(&wire.FilterNode{
		ID:     "4",
		Schema: vtype.Schema{{Name: "a", Type: vtype.Integer}},
		Source: &wire.ValuesNode{
			ID:     "0",
			Schema: vtype.Schema{{Name: "a", Type: vtype.Integer}},
		},
		Predicate: &wire.Constant{Type: vtype.Boolean, Value: vtype.Bool(true)},
	})
	require.NoError(t, err)

	rec, nodes := Snapshot(ctx, root, nil)
	assert.Equal(t, ctx.TraceID.String(), rec.TraceID)
	assert.Equal(t, StatusLowered, rec.Status)
	assert.Equal(t, "4", rec.RootNodeID)
	assert.Equal(t, 2, rec.NodeCount)

	require.Len(t, nodes, 2)
	assert.Equal(t, NodeRecord{Position: 0, NodeID: "4", Kind: "filter", Depth: 0}, nodes[0])
	assert.Equal(t, NodeRecord{Position: 1, NodeID: "0", Kind: "values", Depth: 1}, nodes[1])
}

func TestSnapshotFailure(t *testing.T) {
	scope := memory.NewScope("snap")
	ctx := exec.NewContext("q1", "f1", scope)
	c := lower.NewConverter(ctx, nil)

	_, lowerErr := c.LowerNode(&wire.TableScanNode{
		ID:     "scan",
		Schema: vtype.Schema{{Name: "a", Type: vtype.Integer}},
		Table:  "t",
	})
	require.Error(t, lowerErr)

	rec, nodes := Snapshot(ctx, nil, lowerErr)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, string(lower.ErrCodeUnsupportedNodeKind), rec.ErrorCode)
	assert.NotEmpty(t, rec.Error)
	assert.Empty(t, nodes)
}
