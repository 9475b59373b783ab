package executor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/elee1766/threadagent/src/aisdk"
	"github.com/elee1766/threadagent/src/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitStartsThreadAndRequest(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	req, err := Submit(ctx, db.DB(), Submission{UserID: "user-1", Text: "  list the files  "})
	require.NoError(t, err)
	assert.NotEmpty(t, req.ThreadID)
	assert.Equal(t, storage.RequestPending, req.Status)
	assert.Equal(t, DefaultAgentType, req.AgentType)
	assert.Equal(t, "list the files", req.Content)

	stored, err := storage.GetRequestByID(ctx, db.DB(), req.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.False(t, stored.HasResponseMessage())

	msgs, err := storage.ListThreadMessages(ctx, db.DB(), req.ThreadID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, req.TriggeringMessageID, msgs[0].ID)
	assert.Equal(t, aisdk.RoleUser, msgs[0].Role)
	assert.Equal(t, "list the files", msgs[0].Content[0].Text)

	next, err := Submit(ctx, db.DB(), Submission{ThreadID: req.ThreadID, UserID: "user-1", Text: "now read one"})
	require.NoError(t, err)
	assert.Equal(t, req.ThreadID, next.ThreadID)

	msgs, err = storage.ListThreadMessages(ctx, db.DB(), req.ThreadID, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestSubmitRejectsBlankPrompt(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = Submit(context.Background(), db.DB(), Submission{Text: " \n"})
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}
