// Package aisdk holds the provider-neutral shapes the engine speaks: turns,
// content blocks, tool calls and streamed completion items.
package aisdk

import (
	"encoding/json"
)

// Role is the author of a turn or persisted message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType identifies the kind of a content block.
type BlockType string

const (
	BlockText           BlockType = "text"
	BlockToolInvocation BlockType = "tool-invocation"
	BlockToolResult     BlockType = "tool-result"
	BlockImage          BlockType = "image"
)

// Invocation block statuses. These are bookkeeping only and never reach a provider.
const (
	InvocationProposed         = "proposed"
	InvocationExecuted         = "executed"
	InvocationAwaitingApproval = "awaiting_approval"
)

// ContentBlock is one atomic unit of a message or a turn.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool-invocation
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool-result
	ToolCallID string `json:"tool_call_id,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`

	// image
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"` // base64
	URL       string `json:"url,omitempty"`

	// Status tracks processing of a persisted tool-invocation block.
	Status string `json:"status,omitempty"`
}

// TextBlock creates a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolInvocationBlock creates a tool-invocation content block.
func ToolInvocationBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: BlockToolInvocation, ID: id, Name: name, Input: input}
}

// ToolResultBlock creates a tool-result content block answering the invocation toolCallID.
func ToolResultBlock(toolCallID, text string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolCallID: toolCallID, Text: text, IsError: isError}
}

// SanitizeInvocation keeps only the fields a provider accepts on a tool
// invocation: type, id, name and input.
func SanitizeInvocation(b ContentBlock) ContentBlock {
	input := b.Input
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	return ContentBlock{
		Type:  BlockToolInvocation,
		ID:    b.ID,
		Name:  b.Name,
		Input: input,
	}
}

// Turn is one role-tagged entry in the conversation sent to the model.
type Turn struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// IsToolResult reports whether the turn carries a tool result.
func (t Turn) IsToolResult() bool {
	for _, b := range t.Content {
		if b.Type == BlockToolResult {
			return true
		}
	}
	return false
}

// Text concatenates the text blocks of the turn.
func (t Turn) Text() string {
	var out string
	for _, b := range t.Content {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}
