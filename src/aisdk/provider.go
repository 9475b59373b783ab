package aisdk

import (
	"context"
)

// ModelClient streams completions from one language model.
type ModelClient interface {
	// Stream starts a streamed completion. Items are read until io.EOF.
	Stream(ctx context.Context, req *CompletionRequest) (StreamInterface, error)

	// ModelID returns the identifier of the model the client talks to.
	ModelID() string
}

// CompletionRequest is everything the engine sends for one model call.
type CompletionRequest struct {
	Model        string      `json:"model,omitempty"`
	SystemPrompt string      `json:"system_prompt,omitempty"`
	Turns        []Turn      `json:"turns"`
	Tools        []*ChatTool `json:"tools,omitempty"`
	MaxTokens    int         `json:"max_tokens,omitempty"`
	Temperature  *float64    `json:"temperature,omitempty"`
}

// StreamItemType identifies the kind of a streamed item.
type StreamItemType string

const (
	ItemTextDelta      StreamItemType = "text-delta"
	ItemToolInvocation StreamItemType = "tool-invocation"
	ItemCompletion     StreamItemType = "completion"
)

// StreamItem is one element of a streamed model response.
type StreamItem struct {
	Type       StreamItemType `json:"type"`
	Text       string         `json:"text,omitempty"`
	ToolCall   *ToolCall      `json:"tool_call,omitempty"`
	Completion *Completion    `json:"completion,omitempty"`
}

// Completion closes a streamed response.
type Completion struct {
	StopReason   string `json:"stop_reason"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// TotalTokens returns input plus output tokens.
func (c *Completion) TotalTokens() int64 {
	if c == nil {
		return 0
	}
	return c.InputTokens + c.OutputTokens
}

// Stop reasons reported in Completion.StopReason.
const (
	StopEndTurn   = "end_turn"
	StopToolUse   = "tool_use"
	StopMaxTokens = "max_tokens"
)
