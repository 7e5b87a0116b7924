package tracestore

import (
	"context"
	"fmt"
	"time"
)

// RecordLowering inserts a lowering record and its node rows in one
// transaction. Uses ON CONFLICT DO NOTHING for idempotency; writing the
// same trace id twice is silently ignored.
func (s *Store) RecordLowering(ctx context.Context, rec Record, nodes []NodeRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record lowering: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO lowerings
		(trace_id, query_id, fragment_id, root_node_id, node_count, status, error_code, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trace_id) DO NOTHING
	`,
		rec.TraceID,
		rec.QueryID,
		rec.FragmentID,
		rec.RootNodeID,
		rec.NodeCount,
		rec.Status,
		rec.ErrorCode,
		rec.Error,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record lowering: %w", err)
	}

	// The node rows belong to the first write of this trace id only.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return tx.Commit()
	}

	for _, node := range nodes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO lowering_nodes (trace_id, position, node_id, kind, depth)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, rec.TraceID, node.Position, node.NodeID, node.Kind, node.Depth)
		if err != nil {
			return fmt.Errorf("record lowering node %s: %w", node.NodeID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record lowering: %w", err)
	}
	return nil
}
