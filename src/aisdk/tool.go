package aisdk

import (
	"encoding/json"

	jsonschema "github.com/swaggest/jsonschema-go"
)

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // Always "function" for now
	Function FunctionCall `json:"function"`
}

// FunctionCall contains the function name and arguments.
type FunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// NewToolCall builds a function tool call.
func NewToolCall(id, name string, args json.RawMessage) *ToolCall {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	return &ToolCall{
		ID:   id,
		Type: "function",
		Function: FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}
}

// ToolResponse is the JSON-serializable outcome of running a tool.
type ToolResponse struct {
	Type     string `json:"type"`
	Content  []byte `json:"content"`
	Metadata string `json:"metadata,omitempty"`
	IsError  bool   `json:"is_error"`
}

// NewErrorToolResponse creates an error tool response with the given message.
func NewErrorToolResponse(message string) *ToolResponse {
	return &ToolResponse{
		Type:    "error",
		Content: []byte(message),
		IsError: true,
	}
}

// NewTextToolResponse creates a successful tool response with text content.
func NewTextToolResponse(text string) *ToolResponse {
	return &ToolResponse{
		Type:    "success",
		Content: []byte(text),
	}
}

// ChatTool represents a tool in the format expected by chat completion APIs
type ChatTool struct {
	Type     string           `json:"type"` // Always "function" for function tools
	Function ChatToolFunction `json:"function"`
}

// ChatToolFunction represents the function definition for chat APIs
type ChatToolFunction struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"` // JSON Schema for parameters
}
