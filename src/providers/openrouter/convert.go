package openrouter

import (
	"fmt"
	"strings"

	"github.com/elee1766/threadagent/src/aisdk"
	openai "github.com/sashabaranov/go-openai"
)

// convertTurns maps turns onto chat messages. Tool results become "tool"
// messages placed ahead of any user text in the same turn.
func convertTurns(system string, turns []aisdk.Turn) ([]openai.ChatCompletionMessage, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, turn := range turns {
		switch turn.Role {
		case aisdk.RoleAssistant:
			messages = append(messages, assistantMessage(turn))
		case aisdk.RoleUser:
			msgs, err := userMessages(turn)
			if err != nil {
				return nil, err
			}
			messages = append(messages, msgs...)
		default:
			return nil, fmt.Errorf("unknown role %q", turn.Role)
		}
	}
	return messages, nil
}

func assistantMessage(turn aisdk.Turn) openai.ChatCompletionMessage {
	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant}
	var text strings.Builder
	for _, block := range turn.Content {
		switch block.Type {
		case aisdk.BlockText:
			text.WriteString(block.Text)
		case aisdk.BlockToolInvocation:
			args := string(block.Input)
			if strings.TrimSpace(args) == "" {
				args = "{}"
			}
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:       block.ID,
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: block.Name, Arguments: args},
			})
		}
	}
	msg.Content = text.String()
	return msg
}

func userMessages(turn aisdk.Turn) ([]openai.ChatCompletionMessage, error) {
	var (
		messages []openai.ChatCompletionMessage
		parts    []openai.ChatMessagePart
		hasImage bool
	)
	for _, block := range turn.Content {
		switch block.Type {
		case aisdk.BlockToolResult:
			content := block.Text
			if block.IsError {
				content = "Error: " + content
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: block.ToolCallID,
				Content:    content,
			})
		case aisdk.BlockText:
			parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: block.Text})
		case aisdk.BlockImage:
			url := block.URL
			if url == "" {
				if block.Data == "" {
					return nil, fmt.Errorf("image block has neither url nor data")
				}
				url = "data:" + block.MediaType + ";base64," + block.Data
			}
			hasImage = true
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: url, Detail: openai.ImageURLDetailAuto},
			})
		}
	}

	if len(parts) == 0 {
		return messages, nil
	}
	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if hasImage {
		user.MultiContent = parts
	} else {
		texts := make([]string, len(parts))
		for i, p := range parts {
			texts[i] = p.Text
		}
		user.Content = strings.Join(texts, "\n\n")
	}
	return append(messages, user), nil
}

func convertTools(tools []*aisdk.ChatTool) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		var params any = map[string]any{"type": "object", "properties": map[string]any{}}
		if tool.Function.Parameters != nil {
			params = tool.Function.Parameters
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
