package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndDecode(t *testing.T) {
	ev, err := New(TypeToolCallProposed, "req-1", ToolCallProposed{ToolCallID: "tc-1", ToolName: "write_file", Input: []byte(`{"path":"a"}`)})
	require.NoError(t, err)
	assert.Equal(t, "req-1", ev.RequestID)
	assert.False(t, ev.Timestamp.IsZero())
	assert.True(t, ev.IsTerminal())

	var payload ToolCallProposed
	require.NoError(t, ev.Decode(&payload))
	assert.Equal(t, "tc-1", payload.ToolCallID)
	assert.JSONEq(t, `{"path":"a"}`, string(payload.Input))

	delta, err := New(TypeTextDelta, "req-1", TextDelta{Text: "hi"})
	require.NoError(t, err)
	assert.False(t, delta.IsTerminal())

	assert.Error(t, Event{Type: TypeError}.Decode(&Error{}))
}
