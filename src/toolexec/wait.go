package toolexec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elee1766/threadagent/src/conversation"
	"github.com/elee1766/threadagent/src/notify"
	"github.com/elee1766/threadagent/src/storage"
)

// ApprovalResult is how a blocking wait resolved.
type ApprovalResult struct {
	Approved bool
	Reason   string
	Record   *storage.AgentToolCall
}

// WaitForApproval blocks until the tool call leaves pending or timeout
// elapses. A timeout of zero uses the configured default. On timeout the
// call is moved to the timeout status and resolves as not approved with
// reason "Timeout"; a decision that lands first wins.
func (h *Handler) WaitForApproval(ctx context.Context, toolCallID string, timeout time.Duration) (*ApprovalResult, error) {
	if timeout <= 0 {
		timeout = h.approvalTimeout
	}

	// subscribe before the first read so a decision between the two is not missed
	sub := h.notifier.Subscribe(notify.ChannelToolCalls)
	defer sub.Close()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	recheck := time.NewTicker(h.recheckInterval)
	defer recheck.Stop()

	for {
		record, err := storage.GetToolCallByID(ctx, h.db, toolCallID)
		if err != nil {
			return nil, fmt.Errorf("load tool call: %w", err)
		}
		if record == nil {
			return nil, fmt.Errorf("%w: %s", ErrToolCallNotFound, toolCallID)
		}
		if record.ApprovalStatus != storage.ApprovalPending {
			return resolved(record), nil
		}

	wait:
		for {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-timer.C:
				return h.expire(ctx, record)
			case <-recheck.C:
				break wait
			case n, ok := <-sub.C:
				if !ok {
					return nil, errors.New("toolexec: notification subscription closed")
				}
				if n.Payload == toolCallID || sub.Missed() {
					break wait
				}
			}
		}
	}
}

func (h *Handler) expire(ctx context.Context, record *storage.AgentToolCall) (*ApprovalResult, error) {
	record.ApprovalStatus = storage.ApprovalTimeout
	reason := conversation.TimeoutReason
	record.RejectionReason = &reason

	err := h.withRetry(ctx, func() error { return storage.DecideToolCall(ctx, h.db, record) })
	switch {
	case err == nil:
		h.count(ctx, record)
		h.logger.InfoContext(ctx, "tool call approval timed out", "tool_call_id", record.ID, "tool", record.ToolName)
		h.publish(ctx, record.ID)
		return resolved(record), nil
	case errors.Is(err, storage.ErrToolCallNotPending):
		current, err := storage.GetToolCallByID(ctx, h.db, record.ID)
		if err != nil {
			return nil, fmt.Errorf("load tool call: %w", err)
		}
		return resolved(current), nil
	default:
		return nil, fmt.Errorf("expire tool call: %w", err)
	}
}

func resolved(record *storage.AgentToolCall) *ApprovalResult {
	if record.ApprovalStatus == storage.ApprovalApproved {
		return &ApprovalResult{Approved: true, Record: record}
	}
	return &ApprovalResult{Approved: false, Reason: declinedReason(record), Record: record}
}
