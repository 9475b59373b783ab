package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/elee1766/threadagent/src/aisdk"
	"github.com/elee1766/threadagent/src/storage"
	"github.com/google/uuid"
)

// DefaultAgentType is recorded on requests that do not name one.
const DefaultAgentType = "default"

// ErrEmptyPrompt is returned by Submit for a blank prompt.
var ErrEmptyPrompt = errors.New("prompt text is required")

// Submission is a user message that should start an agent request.
type Submission struct {
	// ThreadID continues an existing thread; empty starts a new one.
	ThreadID  string
	UserID    string
	Text      string
	AgentType string
}

// Submit stores the user message and a pending request triggered by it.
// The request is ready for Orchestrator.Execute.
func Submit(ctx context.Context, db storage.ExecQuerier, s Submission) (*storage.AgentRequest, error) {
	text := strings.TrimSpace(s.Text)
	if text == "" {
		return nil, ErrEmptyPrompt
	}
	if s.ThreadID == "" {
		s.ThreadID = uuid.New().String()
	}
	if s.AgentType == "" {
		s.AgentType = DefaultAgentType
	}

	msg := &storage.Message{
		ID:          uuid.New().String(),
		ThreadID:    s.ThreadID,
		OwnerUserID: s.UserID,
		Role:        aisdk.RoleUser,
		Content:     storage.ContentBlocks{aisdk.TextBlock(text)},
	}
	req := &storage.AgentRequest{
		ID:                  uuid.New().String(),
		UserID:              s.UserID,
		ThreadID:            s.ThreadID,
		TriggeringMessageID: msg.ID,
		AgentType:           s.AgentType,
		Content:             text,
	}

	// the message and its request land together or not at all
	err := storage.WithRetry(ctx, 5, 20*time.Millisecond, func() error {
		return storage.InTx(ctx, db, func(tx storage.ExecQuerier) error {
			if err := storage.CreateMessage(ctx, tx, msg); err != nil {
				return fmt.Errorf("store user message: %w", err)
			}
			if err := storage.CreateRequest(ctx, tx, req); err != nil {
				return fmt.Errorf("store agent request: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}
