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

const messageColumns = `id, thread_id, owner_user_id, role, content, tool_calls, tokens_used, idempotency_key, created_at, updated_at`

// GetMessageByID retrieves a message by its ID
func GetMessageByID(ctx context.Context, db sqlscan.Querier, messageID string) (*Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = ?`
	var m Message
	err := sqlscan.Get(ctx, db, &m, query, messageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// GetMessageByIdempotencyKey retrieves the message created under key, if any.
func GetMessageByIdempotencyKey(ctx context.Context, db sqlscan.Querier, key string) (*Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE idempotency_key = ?`
	var m Message
	err := sqlscan.Get(ctx, db, &m, query, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// ListThreadMessages returns up to limit of the most recent messages of a
// thread in chronological order. A limit <= 0 returns the whole thread.
func ListThreadMessages(ctx context.Context, db sqlscan.Querier, threadID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT ` + messageColumns + ` FROM messages WHERE rowid IN (
			SELECT rowid FROM messages WHERE thread_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?
		) ORDER BY created_at ASC, rowid ASC`
	var messages []*Message
	if err := sqlscan.Select(ctx, db, &messages, query, threadID, limit); err != nil {
		return nil, err
	}
	return messages, nil
}

func prepareMessage(m *Message) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Content == nil {
		m.Content = ContentBlocks{}
	}
	if m.ToolCalls == nil {
		m.ToolCalls = JSONStringArray{}
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
}

// CreateMessage creates a new message in the database
func CreateMessage(ctx context.Context, db Execer, m *Message) error {
	prepareMessage(m)

	query := `INSERT INTO messages (` + messageColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		m.ID, m.ThreadID, m.OwnerUserID, m.Role, m.Content, m.ToolCalls, m.TokensUsed, m.IdempotencyKey, m.CreatedAt, m.UpdatedAt)
	return err
}

// CreateMessageIdempotent inserts m under key unless a message already holds
// that key, in which case the existing message is returned and created is false.
func CreateMessageIdempotent(ctx context.Context, db ExecQuerier, key string, m *Message) (msg *Message, created bool, err error) {
	if key == "" {
		return nil, false, fmt.Errorf("idempotency key is required")
	}
	m.IdempotencyKey = &key
	prepareMessage(m)

	query := `INSERT INTO messages (` + messageColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(idempotency_key) DO NOTHING`
	res, err := db.ExecContext(ctx, query,
		m.ID, m.ThreadID, m.OwnerUserID, m.Role, m.Content, m.ToolCalls, m.TokensUsed, m.IdempotencyKey, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if n == 1 {
		return m, true, nil
	}

	existing, err := GetMessageByIdempotencyKey(ctx, db, key)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("message with idempotency key %s vanished", key)
	}
	return existing, false, nil
}

// UpdateMessage rewrites the content, tool call list and token count of a message.
func UpdateMessage(ctx context.Context, db Execer, m *Message) error {
	m.UpdatedAt = time.Now().UTC()
	if m.Content == nil {
		m.Content = ContentBlocks{}
	}
	if m.ToolCalls == nil {
		m.ToolCalls = JSONStringArray{}
	}

	query := `UPDATE messages SET content = ?, tool_calls = ?, tokens_used = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, m.Content, m.ToolCalls, m.TokensUsed, m.UpdatedAt, m.ID)
	return err
}
