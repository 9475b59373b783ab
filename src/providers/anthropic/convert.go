package anthropic

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/elee1766/threadagent/src/aisdk"
)

func convertBlock(b aisdk.ContentBlock) (anthropic.ContentBlockParamUnion, bool) {
	switch b.Type {
	case aisdk.BlockText:
		return anthropic.NewTextBlock(b.Text), true
	case aisdk.BlockToolInvocation:
		input := b.Input
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		return anthropic.NewToolUseBlock(b.ID, input, b.Name), true
	case aisdk.BlockToolResult:
		return anthropic.NewToolResultBlock(b.ToolCallID, b.Text, b.IsError), true
	case aisdk.BlockImage:
		if b.Data != "" {
			return anthropic.NewImageBlockBase64(b.MediaType, b.Data), true
		}
		if b.URL != "" {
			return anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: b.URL}), true
		}
	}
	return anthropic.ContentBlockParamUnion{}, false
}

// convertTurns expects turns already normalized so roles alternate.
func convertTurns(turns []aisdk.Turn) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(turns))
	for i, turn := range turns {
		content := make([]anthropic.ContentBlockParamUnion, 0, len(turn.Content))
		for _, block := range turn.Content {
			if param, ok := convertBlock(block); ok {
				content = append(content, param)
			}
		}
		if len(content) == 0 {
			continue
		}
		switch turn.Role {
		case aisdk.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(content...))
		case aisdk.RoleUser:
			out = append(out, anthropic.NewUserMessage(content...))
		default:
			return nil, fmt.Errorf("turn %d: unsupported role %q", i, turn.Role)
		}
	}
	return out, nil
}

func convertTools(tools []*aisdk.ChatTool) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		schema := anthropic.ToolInputSchemaParam{}
		if tool.Function.Parameters != nil {
			raw, err := json.Marshal(tool.Function.Parameters)
			if err != nil {
				return nil, fmt.Errorf("tool %s: %w", tool.Function.Name, err)
			}
			var decoded struct {
				Properties map[string]any `json:"properties"`
				Required   []string       `json:"required"`
			}
			if err := json.Unmarshal(raw, &decoded); err != nil {
				return nil, fmt.Errorf("tool %s: %w", tool.Function.Name, err)
			}
			schema.Properties = decoded.Properties
			schema.Required = decoded.Required
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Function.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("tool %s: missing tool definition", tool.Function.Name)
		}
		param.OfTool.Description = anthropic.String(tool.Function.Description)
		out = append(out, param)
	}
	return out, nil
}
