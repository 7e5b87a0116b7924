package tracestore

import (
	"errors"
	"time"

	"github.com/corviddb/corvid/internal/exec"
	"github.com/corviddb/corvid/internal/lower"
)

// Lowering statuses.
const (
	StatusLowered = "lowered"
	StatusFailed  = "failed"
)

// Record is one lowering attempt.
type Record struct {
	TraceID    string
	QueryID    string
	FragmentID string
	RootNodeID string
	NodeCount  int
	Status     string
	ErrorCode  string
	Error      string
	CreatedAt  time.Time
}

// NodeRecord is one operator of a lowered tree, in depth-first preorder.
type NodeRecord struct {
	Position int
	NodeID   string
	Kind     string
	Depth    int
}

// Snapshot builds the audit record for a finished lowering attempt.
// root may be nil when err is set; node records are only collected for
// successful attempts.
func Snapshot(ctx *exec.Context, root exec.Node, err error) (Record, []NodeRecord) {
	rec := Record{
		TraceID:    ctx.TraceID.String(),
		QueryID:    ctx.QueryID,
		FragmentID: ctx.FragmentID,
		Status:     StatusLowered,
		CreatedAt:  time.Now().UTC(),
	}
	if err != nil {
		rec.Status = StatusFailed
		rec.Error = err.Error()
		var le *lower.LoweringError
		if errors.As(err, &le) {
			rec.ErrorCode = string(le.Code)
		}
		return rec, nil
	}

	rec.RootNodeID = root.ID()
	nodes := collectNodes(root, 0, nil)
	for i := range nodes {
		nodes[i].Position = i
	}
	rec.NodeCount = len(nodes)
	return rec, nodes
}

func collectNodes(n exec.Node, depth int, acc []NodeRecord) []NodeRecord {
	acc = append(acc, NodeRecord{NodeID: n.ID(), Kind: exec.KindName(n), Depth: depth})
	for _, src := range n.Sources() {
		acc = collectNodes(src, depth+1, acc)
	}
	return acc
}
