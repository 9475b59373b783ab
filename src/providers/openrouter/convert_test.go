package openrouter

import (
	"encoding/json"
	"testing"

	"github.com/elee1766/threadagent/src/aisdk"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertTurns(t *testing.T) {
	turns := []aisdk.Turn{
		{Role: aisdk.RoleUser, Content: []aisdk.ContentBlock{aisdk.TextBlock("save it")}},
		{Role: aisdk.RoleAssistant, Content: []aisdk.ContentBlock{
			aisdk.TextBlock("Writing."),
			aisdk.ToolInvocationBlock("call_1", "write_file", json.RawMessage(`{"path":"/x"}`)),
		}},
		{Role: aisdk.RoleUser, Content: []aisdk.ContentBlock{
			aisdk.ToolResultBlock("call_1", "user declined: wrong file", true),
			aisdk.TextBlock("use /y instead"),
		}},
	}

	messages, err := convertTurns("sys", turns)
	require.NoError(t, err)
	require.Len(t, messages, 5)

	assert.Equal(t, openai.ChatMessageRoleSystem, messages[0].Role)
	assert.Equal(t, "sys", messages[0].Content)

	assert.Equal(t, openai.ChatMessageRoleUser, messages[1].Role)
	assert.Equal(t, "save it", messages[1].Content)

	assert.Equal(t, openai.ChatMessageRoleAssistant, messages[2].Role)
	assert.Equal(t, "Writing.", messages[2].Content)
	require.Len(t, messages[2].ToolCalls, 1)
	assert.Equal(t, "call_1", messages[2].ToolCalls[0].ID)
	assert.Equal(t, `{"path":"/x"}`, messages[2].ToolCalls[0].Function.Arguments)

	assert.Equal(t, openai.ChatMessageRoleTool, messages[3].Role)
	assert.Equal(t, "call_1", messages[3].ToolCallID)
	assert.Equal(t, "Error: user declined: wrong file", messages[3].Content)

	assert.Equal(t, openai.ChatMessageRoleUser, messages[4].Role)
	assert.Equal(t, "use /y instead", messages[4].Content)
}

func TestConvertTurnsImages(t *testing.T) {
	turns := []aisdk.Turn{{Role: aisdk.RoleUser, Content: []aisdk.ContentBlock{
		aisdk.TextBlock("what is this"),
		{Type: aisdk.BlockImage, MediaType: "image/png", Data: "aGVsbG8="},
	}}}

	messages, err := convertTurns("", turns)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Len(t, messages[0].MultiContent, 2)
	assert.Equal(t, "data:image/png;base64,aGVsbG8=", messages[0].MultiContent[1].ImageURL.URL)

	_, err = convertTurns("", []aisdk.Turn{{Role: aisdk.RoleUser, Content: []aisdk.ContentBlock{{Type: aisdk.BlockImage}}}})
	assert.Error(t, err)
}

func TestConvertToolsDefaultsParameters(t *testing.T) {
	tools := convertTools([]*aisdk.ChatTool{{Type: "function", Function: aisdk.ChatToolFunction{Name: "noop", Description: "does nothing"}}})
	require.Len(t, tools, 1)
	assert.Equal(t, openai.ToolTypeFunction, tools[0].Type)
	assert.Equal(t, "noop", tools[0].Function.Name)

	raw, err := json.Marshal(tools[0].Function.Parameters)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(raw))

	assert.Nil(t, convertTools(nil))
}
