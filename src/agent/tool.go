package agent

import (
	"context"

	"github.com/elee1766/threadagent/src/aisdk"
	jsonschema "github.com/swaggest/jsonschema-go"
)

// Tool is something the model can call by name.
type Tool interface {
	// GetType is the declaration kind sent to the model, "function" for every
	// tool in this module.
	GetType() string
	GetName() string
	GetDescription() string
	// GetParameters is the JSON schema of the call input.
	GetParameters() *jsonschema.Schema

	// Execute runs call. Bad input is reported as an error response, not as
	// a Go error; a Go error means the tool itself broke.
	Execute(ctx context.Context, call *aisdk.ToolCall) (*aisdk.ToolResponse, error)
}

// Previewer is implemented by tools that can describe the effect of a call
// before it runs. The preview is shown to whoever approves the call.
type Previewer interface {
	Preview(ctx context.Context, call *aisdk.ToolCall) (string, error)
}

// ToChatTools declares tools to the model in the order given.
func ToChatTools[T Tool](tools []T) []*aisdk.ChatTool {
	out := make([]*aisdk.ChatTool, 0, len(tools))
	for _, tool := range tools {
		out = append(out, &aisdk.ChatTool{
			Type: tool.GetType(),
			Function: aisdk.ChatToolFunction{
				Name:        tool.GetName(),
				Description: tool.GetDescription(),
				Parameters:  tool.GetParameters(),
			},
		})
	}
	return out
}
