package tracestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound reports a trace id with no recorded lowering.
var ErrNotFound = errors.New("tracestore: no such lowering")

// ListByQuery returns all lowering records for a query id, oldest
// first, ties broken by trace id for deterministic output.
//
// Returns an empty slice (not nil) if no records exist.
func (s *Store) ListByQuery(ctx context.Context, queryID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trace_id, query_id, fragment_id, root_node_id, node_count, status, error_code, error, created_at
		FROM lowerings
		WHERE query_id = ?
		ORDER BY created_at ASC, trace_id COLLATE BINARY ASC
	`, queryID)
	if err != nil {
		return nil, fmt.Errorf("query lowerings: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lowerings: %w", err)
	}
	return records, nil
}

// Get returns one lowering record and its node rows in tree preorder.
func (s *Store) Get(ctx context.Context, traceID string) (Record, []NodeRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT trace_id, query_id, fragment_id, root_node_id, node_count, status, error_code, error, created_at
		FROM lowerings
		WHERE trace_id = ?
	`, traceID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, nil, ErrNotFound
	}
	if err != nil {
		return Record{}, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT position, node_id, kind, depth
		FROM lowering_nodes
		WHERE trace_id = ?
		ORDER BY position ASC
	`, traceID)
	if err != nil {
		return Record{}, nil, fmt.Errorf("query lowering nodes: %w", err)
	}
	defer rows.Close()

	var nodes []NodeRecord
	for rows.Next() {
		var n NodeRecord
		if err := rows.Scan(&n.Position, &n.NodeID, &n.Kind, &n.Depth); err != nil {
			return Record{}, nil, fmt.Errorf("scan lowering node: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return Record{}, nil, fmt.Errorf("iterate lowering nodes: %w", err)
	}

	return rec, nodes, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var createdAt string
	err := row.Scan(
		&rec.TraceID,
		&rec.QueryID,
		&rec.FragmentID,
		&rec.RootNodeID,
		&rec.NodeCount,
		&rec.Status,
		&rec.ErrorCode,
		&rec.Error,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("scan lowering: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Record{}, fmt.Errorf("parse lowering timestamp: %w", err)
	}
	rec.CreatedAt = ts
	return rec, nil
}
