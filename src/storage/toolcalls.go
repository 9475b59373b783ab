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

const toolCallColumns = `id, request_id, thread_id, owner_user_id, tool_name, tool_input, approval_status,
	requires_approval, native_execution, tool_output, output_is_error, rejection_reason, revision_count,
	revision_history, decided_by, created_at, updated_at`

// GetToolCallByID retrieves a tool call by its ID
func GetToolCallByID(ctx context.Context, db sqlscan.Querier, toolCallID string) (*AgentToolCall, error) {
	query := `SELECT ` + toolCallColumns + ` FROM agent_tool_calls WHERE id = ?`
	var tc AgentToolCall
	err := sqlscan.Get(ctx, db, &tc, query, toolCallID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &tc, nil
}

// ListToolCallsByThread returns every tool call recorded in a thread.
func ListToolCallsByThread(ctx context.Context, db sqlscan.Querier, threadID string) ([]*AgentToolCall, error) {
	query := `SELECT ` + toolCallColumns + ` FROM agent_tool_calls WHERE thread_id = ? ORDER BY created_at ASC, rowid ASC`
	var calls []*AgentToolCall
	if err := sqlscan.Select(ctx, db, &calls, query, threadID); err != nil {
		return nil, err
	}
	return calls, nil
}

// ListToolCallsByRequest returns the tool calls made while serving a request.
func ListToolCallsByRequest(ctx context.Context, db sqlscan.Querier, requestID string) ([]*AgentToolCall, error) {
	query := `SELECT ` + toolCallColumns + ` FROM agent_tool_calls WHERE request_id = ? ORDER BY created_at ASC, rowid ASC`
	var calls []*AgentToolCall
	if err := sqlscan.Select(ctx, db, &calls, query, requestID); err != nil {
		return nil, err
	}
	return calls, nil
}

// GetLatestToolCallForTool returns the most recent call of toolName within a
// request, or nil if there is none.
func GetLatestToolCallForTool(ctx context.Context, db sqlscan.Querier, requestID, toolName string) (*AgentToolCall, error) {
	query := `SELECT ` + toolCallColumns + ` FROM agent_tool_calls
		WHERE request_id = ? AND tool_name = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`
	var tc AgentToolCall
	err := sqlscan.Get(ctx, db, &tc, query, requestID, toolName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &tc, nil
}

// CreateToolCall inserts a new tool call record.
func CreateToolCall(ctx context.Context, db Execer, tc *AgentToolCall) error {
	if tc.ID == "" {
		tc.ID = uuid.New().String()
	}
	if tc.ApprovalStatus == "" {
		tc.ApprovalStatus = ApprovalPending
	}
	if len(tc.ToolInput) == 0 {
		tc.ToolInput = JSONRaw(`{}`)
	}
	if tc.RevisionHistory == nil {
		tc.RevisionHistory = RevisionHistory{}
	}
	now := time.Now().UTC()
	if tc.CreatedAt.IsZero() {
		tc.CreatedAt = now
	}
	tc.UpdatedAt = now

	query := `INSERT INTO agent_tool_calls (` + toolCallColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		tc.ID, tc.RequestID, tc.ThreadID, tc.OwnerUserID, tc.ToolName, tc.ToolInput, tc.ApprovalStatus,
		tc.RequiresApproval, tc.NativeExecution, tc.ToolOutput, tc.OutputIsError, tc.RejectionReason, tc.RevisionCount,
		tc.RevisionHistory, tc.DecidedBy, tc.CreatedAt, tc.UpdatedAt)
	return err
}

// DecideToolCall records a decision on a pending tool call. Only the first
// decision wins: deciding a call that is no longer pending returns
// ErrToolCallNotPending.
func DecideToolCall(ctx context.Context, db Execer, tc *AgentToolCall) error {
	updatedAt := time.Now().UTC()

	query := `UPDATE agent_tool_calls SET approval_status = ?, rejection_reason = ?, decided_by = ?,
		revision_count = ?, revision_history = ?, updated_at = ?
		WHERE id = ? AND approval_status = 'pending'`
	res, err := db.ExecContext(ctx, query,
		tc.ApprovalStatus, tc.RejectionReason, tc.DecidedBy, tc.RevisionCount, tc.RevisionHistory, updatedAt, tc.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("decide tool call %s: %w", tc.ID, ErrToolCallNotPending)
	}
	tc.UpdatedAt = updatedAt
	return nil
}

// SetToolCallOutput stores the result of executing a tool call.
func SetToolCallOutput(ctx context.Context, db Execer, tc *AgentToolCall) error {
	tc.UpdatedAt = time.Now().UTC()

	query := `UPDATE agent_tool_calls SET approval_status = ?, tool_output = ?, output_is_error = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, tc.ApprovalStatus, tc.ToolOutput, tc.OutputIsError, tc.UpdatedAt, tc.ID)
	return err
}
