package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/google/uuid"
)

const requestColumns = `id, user_id, thread_id, triggering_message_id, agent_type, content, status, progress,
	response_message_id, results, checkpoint, token_cost, version, created_at, updated_at, completed_at`

// GetRequestByID retrieves an agent request by its ID
func GetRequestByID(ctx context.Context, db sqlscan.Querier, requestID string) (*AgentRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM agent_requests WHERE id = ?`
	var r AgentRequest
	err := sqlscan.Get(ctx, db, &r, query, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

// ListRequestsByThread returns the requests of a thread, oldest first.
func ListRequestsByThread(ctx context.Context, db sqlscan.Querier, threadID string) ([]*AgentRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM agent_requests WHERE thread_id = ? ORDER BY created_at ASC, rowid ASC`
	var requests []*AgentRequest
	if err := sqlscan.Select(ctx, db, &requests, query, threadID); err != nil {
		return nil, err
	}
	return requests, nil
}

// CreateRequest inserts a new request at version 1.
func CreateRequest(ctx context.Context, db Execer, r *AgentRequest) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Status == "" {
		r.Status = RequestPending
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	r.Version = 1

	query := `INSERT INTO agent_requests (` + requestColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		r.ID, r.UserID, r.ThreadID, r.TriggeringMessageID, r.AgentType, r.Content, r.Status, r.Progress,
		r.ResponseMessageID, r.Results, r.Checkpoint, r.TokenCost, r.Version, r.CreatedAt, r.UpdatedAt, r.CompletedAt)
	return err
}

// UpdateRequest writes the mutable fields of r if the stored row is still at
// r.Version. On success r.Version is advanced; otherwise ErrStaleVersion is returned.
func UpdateRequest(ctx context.Context, db Execer, r *AgentRequest) error {
	updatedAt := time.Now().UTC()

	query := `UPDATE agent_requests SET status = ?, progress = ?, response_message_id = ?, results = ?, checkpoint = ?,
		token_cost = ?, completed_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`
	res, err := db.ExecContext(ctx, query,
		r.Status, r.Progress, r.ResponseMessageID, r.Results, r.Checkpoint,
		r.TokenCost, r.CompletedAt, updatedAt, r.ID, r.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update request %s at version %d: %w", r.ID, r.Version, ErrStaleVersion)
	}
	r.Version++
	r.UpdatedAt = updatedAt
	return nil
}

// SetResponseMessageID anchors the request to its response message. Setting the
// same ID twice is a no-op; pointing at a different message fails with
// ErrResponseMessageConflict.
func SetResponseMessageID(ctx context.Context, db ExecQuerier, r *AgentRequest, messageID string) error {
	updatedAt := time.Now().UTC()

	query := `UPDATE agent_requests SET response_message_id = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ? AND (response_message_id IS NULL OR response_message_id = ?)`
	res, err := db.ExecContext(ctx, query, messageID, updatedAt, r.ID, r.Version, messageID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		r.ResponseMessageID = &messageID
		r.Version++
		r.UpdatedAt = updatedAt
		return nil
	}

	current, err := GetRequestByID(ctx, db, r.ID)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("request %s: %w", r.ID, sql.ErrNoRows)
	}
	if current.HasResponseMessage() {
		if *current.ResponseMessageID != messageID {
			return fmt.Errorf("request %s points at %s: %w", r.ID, *current.ResponseMessageID, ErrResponseMessageConflict)
		}
		// another caller anchored the same message first
		*r = *current
		return nil
	}
	return fmt.Errorf("set response message on request %s: %w", r.ID, ErrStaleVersion)
}
