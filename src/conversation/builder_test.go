package conversation

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/elee1766/threadagent/src/aisdk"
	"github.com/elee1766/threadagent/src/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invocation(id, name string) aisdk.ContentBlock {
	return aisdk.ToolInvocationBlock(id, name, json.RawMessage(`{"path":"a.txt"}`))
}

func assistant(blocks ...aisdk.ContentBlock) *storage.Message {
	return &storage.Message{ID: "msg-1", Role: aisdk.RoleAssistant, Content: blocks}
}

func call(id string, status storage.ApprovalStatus) *storage.AgentToolCall {
	return &storage.AgentToolCall{ID: id, ToolName: "write_file", ApprovalStatus: status}
}

func strPtr(s string) *string { return &s }

func TestBuildInterleavesSegmentsAndResults(t *testing.T) {
	approved := call("t1", storage.ApprovalApproved)
	approved.ToolOutput = storage.JSONRaw(`"wrote 3 bytes"`)

	msg := assistant(aisdk.TextBlock("before"), invocation("t1", "write_file"), aisdk.TextBlock("after"))
	turns := NewBuilder(nil).BuildMessage(context.Background(), msg, map[string]*storage.AgentToolCall{"t1": approved})

	require.Len(t, turns, 4)
	assert.Equal(t, aisdk.RoleAssistant, turns[0].Role)
	assert.Equal(t, "before", turns[0].Text())
	assert.Equal(t, aisdk.BlockToolInvocation, turns[1].Content[0].Type)
	assert.Equal(t, aisdk.RoleUser, turns[2].Role)
	require.True(t, turns[2].IsToolResult())
	assert.Equal(t, "t1", turns[2].Content[0].ToolCallID)
	assert.Equal(t, "wrote 3 bytes", turns[2].Content[0].Text)
	assert.False(t, turns[2].Content[0].IsError)
	assert.Equal(t, "after", turns[3].Text())
}

func TestBuildRejectedCallBecomesErrorResult(t *testing.T) {
	rejected := call("t1", storage.ApprovalRejected)
	rejected.RejectionReason = strPtr("User declined file write")

	turns := NewBuilder(nil).BuildMessage(context.Background(), assistant(invocation("t1", "write_file")),
		map[string]*storage.AgentToolCall{"t1": rejected})

	require.Len(t, turns, 2)
	result := turns[1].Content[0]
	assert.True(t, result.IsError)
	assert.Contains(t, result.Text, "User declined")
	assert.Contains(t, result.Text, "User declined file write")
}

func TestBuildTimedOutCallMentionsTimeout(t *testing.T) {
	timedOut := call("t1", storage.ApprovalTimeout)

	turns := NewBuilder(nil).BuildMessage(context.Background(), assistant(invocation("t1", "write_file")),
		map[string]*storage.AgentToolCall{"t1": timedOut})

	require.Len(t, turns, 2)
	assert.True(t, turns[1].Content[0].IsError)
	assert.Contains(t, turns[1].Content[0].Text, DeclinedPrefix)
	assert.Contains(t, turns[1].Content[0].Text, TimeoutReason)
}

func TestBuildPendingCallHasNoResult(t *testing.T) {
	msg := assistant(aisdk.TextBlock("let me write that"), invocation("t1", "write_file"))
	turns := NewBuilder(nil).BuildMessage(context.Background(), msg,
		map[string]*storage.AgentToolCall{"t1": call("t1", storage.ApprovalPending)})

	require.Len(t, turns, 2)
	last := turns[len(turns)-1]
	assert.Equal(t, aisdk.BlockToolInvocation, last.Content[0].Type)
	for _, turn := range turns {
		assert.False(t, turn.IsToolResult())
	}
}

func TestBuildDropsOrphanedInvocation(t *testing.T) {
	msg := assistant(aisdk.TextBlock("text A"), invocation("missing", "write_file"), aisdk.TextBlock("text B"))
	turns := NewBuilder(nil).BuildMessage(context.Background(), msg, map[string]*storage.AgentToolCall{})

	require.Len(t, turns, 2)
	assert.Equal(t, "text A", turns[0].Text())
	assert.Equal(t, "text B", turns[1].Text())
}

func TestBuildConsecutiveInvocationsArePaired(t *testing.T) {
	first := call("t1", storage.ApprovalApproved)
	first.ToolOutput = storage.JSONRaw(`{"ok":true}`)
	second := call("t2", storage.ApprovalApproved)
	second.ToolOutput = storage.JSONRaw(`{"ok":false}`)

	msg := assistant(invocation("t1", "read_file"), invocation("t2", "read_file"))
	turns := NewBuilder(nil).BuildMessage(context.Background(), msg, map[string]*storage.AgentToolCall{"t1": first, "t2": second})

	require.Len(t, turns, 4)
	assert.Equal(t, "t1", turns[0].Content[0].ID)
	assert.Equal(t, "t1", turns[1].Content[0].ToolCallID)
	assert.JSONEq(t, `{"ok":true}`, turns[1].Content[0].Text)
	assert.Equal(t, "t2", turns[2].Content[0].ID)
	assert.Equal(t, "t2", turns[3].Content[0].ToolCallID)
}

func TestBuildSanitizesInvocation(t *testing.T) {
	block := invocation("t1", "write_file")
	block.Status = aisdk.InvocationAwaitingApproval
	block.Text = "stray"

	turns := NewBuilder(nil).BuildMessage(context.Background(), assistant(block),
		map[string]*storage.AgentToolCall{"t1": call("t1", storage.ApprovalPending)})

	require.Len(t, turns, 1)
	got := turns[0].Content[0]
	assert.Equal(t, aisdk.ContentBlock{Type: aisdk.BlockToolInvocation, ID: "t1", Name: "write_file", Input: block.Input}, got)

	raw, err := json.Marshal(got)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "status")
}

func TestBuildNativeExecutionHasNoSynthesizedResult(t *testing.T) {
	native := call("t1", storage.ApprovalApproved)
	native.NativeExecution = true
	native.ToolOutput = storage.JSONRaw(`"done"`)

	turns := NewBuilder(nil).BuildMessage(context.Background(), assistant(invocation("t1", "web_search")),
		map[string]*storage.AgentToolCall{"t1": native})
	require.Len(t, turns, 1)
}

func TestBuildUserMessagesPassThrough(t *testing.T) {
	user := &storage.Message{ID: "u1", Role: aisdk.RoleUser, Content: storage.ContentBlocks{
		aisdk.TextBlock("look at this"),
		{Type: aisdk.BlockImage, MediaType: "image/png", Data: "aGk="},
	}}
	turns := NewBuilder(nil).Build(context.Background(), []*storage.Message{user, assistant(aisdk.TextBlock("ok"))}, nil)

	require.Len(t, turns, 2)
	assert.Equal(t, aisdk.RoleUser, turns[0].Role)
	assert.Len(t, turns[0].Content, 2)
	assert.Equal(t, aisdk.RoleAssistant, turns[1].Role)
}
