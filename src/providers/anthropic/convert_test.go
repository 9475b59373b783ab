package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/elee1766/threadagent/src/aisdk"
	"github.com/elee1766/threadagent/src/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	jsonschema "github.com/swaggest/jsonschema-go"
)

func TestConvertTurnsMergesAndMapsBlocks(t *testing.T) {
	turns := providers.NormalizeTurns([]aisdk.Turn{
		{Role: aisdk.RoleUser, Content: []aisdk.ContentBlock{aisdk.TextBlock("write it")}},
		{Role: aisdk.RoleAssistant, Content: []aisdk.ContentBlock{aisdk.TextBlock("Sure.")}},
		{Role: aisdk.RoleAssistant, Content: []aisdk.ContentBlock{aisdk.ToolInvocationBlock("toolu_1", "write_file", json.RawMessage(`{"path":"/a"}`))}},
		{Role: aisdk.RoleUser, Content: []aisdk.ContentBlock{aisdk.ToolResultBlock("toolu_1", "declined", true)}},
	})

	messages, err := convertTurns(turns)
	require.NoError(t, err)
	require.Len(t, messages, 3)

	raw, err := json.Marshal(messages)
	require.NoError(t, err)
	var decoded []struct {
		Role    string `json:"role"`
		Content []struct {
			Type      string          `json:"type"`
			Text      string          `json:"text"`
			ID        string          `json:"id"`
			Name      string          `json:"name"`
			Input     json.RawMessage `json:"input"`
			ToolUseID string          `json:"tool_use_id"`
			IsError   bool            `json:"is_error"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, "user", decoded[0].Role)
	assert.Equal(t, "assistant", decoded[1].Role)
	require.Len(t, decoded[1].Content, 2)
	assert.Equal(t, "text", decoded[1].Content[0].Type)
	assert.Equal(t, "tool_use", decoded[1].Content[1].Type)
	assert.Equal(t, "toolu_1", decoded[1].Content[1].ID)
	assert.JSONEq(t, `{"path":"/a"}`, string(decoded[1].Content[1].Input))

	assert.Equal(t, "user", decoded[2].Role)
	assert.Equal(t, "tool_result", decoded[2].Content[0].Type)
	assert.Equal(t, "toolu_1", decoded[2].Content[0].ToolUseID)
	assert.True(t, decoded[2].Content[0].IsError)
}

func TestConvertTools(t *testing.T) {
	str := jsonschema.SimpleType("string")
	obj := jsonschema.SimpleType("object")
	tools, err := convertTools([]*aisdk.ChatTool{{
		Type: "function",
		Function: aisdk.ChatToolFunction{
			Name:        "read_file",
			Description: "Reads a file",
			Parameters: &jsonschema.Schema{
				Type:       &jsonschema.Type{SimpleTypes: &obj},
				Properties: map[string]jsonschema.SchemaOrBool{"path": {TypeObject: &jsonschema.Schema{Type: &jsonschema.Type{SimpleTypes: &str}}}},
				Required:   []string{"path"},
			},
		},
	}})
	require.NoError(t, err)
	require.Len(t, tools, 1)

	raw, err := json.Marshal(tools[0])
	require.NoError(t, err)
	var decoded struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		InputSchema struct {
			Type       string         `json:"type"`
			Properties map[string]any `json:"properties"`
			Required   []string       `json:"required"`
		} `json:"input_schema"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "read_file", decoded.Name)
	assert.Equal(t, "Reads a file", decoded.Description)
	assert.Equal(t, "object", decoded.InputSchema.Type)
	assert.Contains(t, decoded.InputSchema.Properties, "path")
	assert.Equal(t, []string{"path"}, decoded.InputSchema.Required)
}
