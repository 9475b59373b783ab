package conversation

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/elee1766/threadagent/src/aisdk"
	"github.com/elee1766/threadagent/src/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderResolvesPendingCallOnceDecided(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	user := &storage.Message{ThreadID: "th", OwnerUserID: "u", Role: aisdk.RoleUser, Content: storage.ContentBlocks{aisdk.TextBlock("write a.txt")}}
	require.NoError(t, storage.CreateMessage(ctx, db.DB(), user))

	req := &storage.AgentRequest{UserID: "u", ThreadID: "th", TriggeringMessageID: user.ID, AgentType: "default", Content: "write a.txt"}
	require.NoError(t, storage.CreateRequest(ctx, db.DB(), req))

	loader := NewLoader(db.DB(), NewBuilder(nil), 100)
	conv, err := loader.Load(ctx, req)
	require.NoError(t, err)
	assert.False(t, conv.Resume)
	require.Len(t, conv.Turns, 1)

	tc := &storage.AgentToolCall{ID: "call-1", RequestID: req.ID, ThreadID: "th", OwnerUserID: "u", ToolName: "write_file",
		ToolInput: storage.JSONRaw(`{"path":"a.txt"}`), RequiresApproval: true}
	require.NoError(t, storage.CreateToolCall(ctx, db.DB(), tc))

	resp, _, err := storage.CreateMessageIdempotent(ctx, db.DB(), req.ID, &storage.Message{ThreadID: "th", OwnerUserID: "u", Role: aisdk.RoleAssistant,
		Content: storage.ContentBlocks{aisdk.ToolInvocationBlock("call-1", "write_file", json.RawMessage(`{"path":"a.txt"}`))}})
	require.NoError(t, err)
	require.NoError(t, storage.SetResponseMessageID(ctx, db.DB(), req, resp.ID))

	conv, err = loader.Load(ctx, req)
	require.NoError(t, err)
	assert.True(t, conv.Resume)
	require.Len(t, conv.Turns, 2, "pending call has no result yet")

	tc.ApprovalStatus = storage.ApprovalApproved
	require.NoError(t, storage.DecideToolCall(ctx, db.DB(), tc))
	tc.ToolOutput = storage.JSONRaw(`"ok"`)
	require.NoError(t, storage.SetToolCallOutput(ctx, db.DB(), tc))

	conv, err = loader.Load(ctx, req)
	require.NoError(t, err)
	require.Len(t, conv.Turns, 3)
	assert.Equal(t, "ok", conv.Turns[2].Content[0].Text)
}

func TestLoaderStartsHistoryWindowAtUserTurn(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	thread := []*storage.Message{
		{Role: aisdk.RoleUser, Content: storage.ContentBlocks{aisdk.TextBlock("read a.txt")}},
		{Role: aisdk.RoleAssistant, Content: storage.ContentBlocks{
			aisdk.ToolInvocationBlock("call-1", "read_file", json.RawMessage(`{}`)),
			aisdk.TextBlock("it says contents"),
		}},
		{Role: aisdk.RoleUser, Content: storage.ContentBlocks{aisdk.TextBlock("thanks")}},
	}
	for _, m := range thread {
		m.ThreadID, m.OwnerUserID = "th", "u"
		require.NoError(t, storage.CreateMessage(ctx, db.DB(), m))
	}
	req := &storage.AgentRequest{UserID: "u", ThreadID: "th", TriggeringMessageID: thread[2].ID, AgentType: "default", Content: "thanks"}
	require.NoError(t, storage.CreateRequest(ctx, db.DB(), req))
	require.NoError(t, storage.CreateToolCall(ctx, db.DB(), &storage.AgentToolCall{ID: "call-1", RequestID: req.ID, ThreadID: "th", OwnerUserID: "u",
		ToolName: "read_file", ApprovalStatus: storage.ApprovalApproved, ToolOutput: storage.JSONRaw(`"contents"`)}))

	full, err := NewLoader(db.DB(), NewBuilder(nil), 0).Load(ctx, req)
	require.NoError(t, err)
	require.Len(t, full.Turns, 5)
	assert.Equal(t, aisdk.RoleUser, full.Turns[0].Role)

	windowed, err := NewLoader(db.DB(), NewBuilder(nil), 2).Load(ctx, req)
	require.NoError(t, err)
	require.Len(t, windowed.Messages, 2)
	assert.Equal(t, aisdk.RoleAssistant, windowed.Messages[0].Role)
	require.Len(t, windowed.Turns, 1)
	assert.Equal(t, aisdk.RoleUser, windowed.Turns[0].Role)
	assert.Equal(t, "thanks", windowed.Turns[0].Content[0].Text)
}
