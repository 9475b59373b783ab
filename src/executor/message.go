package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/elee1766/threadagent/src/aisdk"
	"github.com/elee1766/threadagent/src/storage"
)

// MessageOrchestrator owns the single assistant message of each request.
type MessageOrchestrator struct {
	db     storage.ExecQuerier
	logger *slog.Logger
}

// NewMessageOrchestrator creates a message orchestrator.
func NewMessageOrchestrator(db storage.ExecQuerier, logger *slog.Logger) *MessageOrchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageOrchestrator{db: db, logger: logger}
}

// GetOrCreateResponseMessage returns the assistant message of requestID,
// creating it on first use. The message is keyed by the request ID, so
// duplicate or concurrent calls converge on the same row. isNew reports
// whether this call inserted it.
func (m *MessageOrchestrator) GetOrCreateResponseMessage(ctx context.Context, requestID string) (msg *storage.Message, isNew bool, err error) {
	req, err := storage.GetRequestByID(ctx, m.db, requestID)
	if err != nil {
		return nil, false, fmt.Errorf("load request: %w", err)
	}
	if req == nil {
		return nil, false, fmt.Errorf("%w: %s", ErrRequestNotFound, requestID)
	}
	return m.responseMessageFor(ctx, req)
}

// responseMessageFor is GetOrCreateResponseMessage for an already loaded
// request. On success req points at the message and carries the new version.
func (m *MessageOrchestrator) responseMessageFor(ctx context.Context, req *storage.AgentRequest) (*storage.Message, bool, error) {
	if req.HasResponseMessage() {
		msg, err := storage.GetMessageByID(ctx, m.db, *req.ResponseMessageID)
		if err != nil {
			return nil, false, fmt.Errorf("load response message: %w", err)
		}
		if msg == nil {
			return nil, false, fmt.Errorf("%w: %s", ErrResponseMessageMissing, *req.ResponseMessageID)
		}
		return msg, false, nil
	}

	msg, created, err := storage.CreateMessageIdempotent(ctx, m.db, req.ID, &storage.Message{
		ThreadID:    req.ThreadID,
		OwnerUserID: req.UserID,
		Role:        aisdk.RoleAssistant,
		Content:     storage.ContentBlocks{},
	})
	if err != nil {
		return nil, false, fmt.Errorf("create response message: %w", err)
	}

	err = storage.SetResponseMessageID(ctx, m.db, req, msg.ID)
	if errors.Is(err, storage.ErrStaleVersion) {
		// a concurrent caller moved the row; anchoring to the same message is still fine
		current, rerr := storage.GetRequestByID(ctx, m.db, req.ID)
		if rerr != nil {
			return nil, false, fmt.Errorf("reload request: %w", rerr)
		}
		*req = *current
		err = storage.SetResponseMessageID(ctx, m.db, req, msg.ID)
	}
	if err != nil {
		return nil, false, fmt.Errorf("anchor response message: %w", err)
	}

	if created {
		m.logger.DebugContext(ctx, "created response message", "request_id", req.ID, "message_id", msg.ID)
	}
	return msg, created, nil
}

// AppendText adds streamed text to msg in memory. Text following a text
// block is merged into it.
func (m *MessageOrchestrator) AppendText(msg *storage.Message, text string) {
	if text == "" {
		return
	}
	if n := len(msg.Content); n > 0 && msg.Content[n-1].Type == aisdk.BlockText {
		msg.Content[n-1].Text += text
		return
	}
	msg.Content = append(msg.Content, aisdk.TextBlock(text))
}

// AppendToolInvocation adds a tool invocation block with status to msg in
// memory and lists its ID in the message's tool calls.
func (m *MessageOrchestrator) AppendToolInvocation(msg *storage.Message, call *aisdk.ToolCall, status string) {
	block := aisdk.ToolInvocationBlock(call.ID, call.Function.Name, call.Function.Arguments)
	block.Status = status
	msg.Content = append(msg.Content, block)
	msg.ToolCalls = append(msg.ToolCalls, call.ID)
}

// Save persists the content of msg.
func (m *MessageOrchestrator) Save(ctx context.Context, msg *storage.Message) error {
	return storage.WithRetry(ctx, 3, 10*time.Millisecond, func() error {
		return storage.UpdateMessage(ctx, m.db, msg)
	})
}

// FinalizeMessage writes the final tool call list and token usage of msg.
func (m *MessageOrchestrator) FinalizeMessage(ctx context.Context, msg *storage.Message, tokensUsed int64) error {
	msg.TokensUsed = tokensUsed
	if err := m.Save(ctx, msg); err != nil {
		return fmt.Errorf("finalize response message: %w", err)
	}
	return nil
}
