package storage

import (
	"context"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/google/uuid"
)

// AppendEvent stores one entry of a request's event log. The caller assigns
// Seq; a duplicate (request_id, seq) pair is rejected by the schema.
func AppendEvent(ctx context.Context, db Execer, ev *ExecutionEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO execution_events (id, request_id, seq, type, data, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query, ev.ID, ev.RequestID, ev.Seq, ev.Type, ev.Data, ev.CreatedAt)
	return err
}

// NextEventSeq returns the sequence number the next event of a request should use.
func NextEventSeq(ctx context.Context, db sqlscan.Querier, requestID string) (int64, error) {
	var last int64
	err := sqlscan.Get(ctx, db, &last, `SELECT COALESCE(MAX(seq), 0) FROM execution_events WHERE request_id = ?`, requestID)
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

// ListEvents returns the events of a request with seq greater than after.
func ListEvents(ctx context.Context, db sqlscan.Querier, requestID string, after int64) ([]*ExecutionEvent, error) {
	query := `SELECT id, request_id, seq, type, data, created_at FROM execution_events
		WHERE request_id = ? AND seq > ? ORDER BY seq ASC`
	var events []*ExecutionEvent
	if err := sqlscan.Select(ctx, db, &events, query, requestID, after); err != nil {
		return nil, err
	}
	return events, nil
}
