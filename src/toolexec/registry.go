package toolexec

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/elee1766/threadagent/src/agent"
	"github.com/elee1766/threadagent/src/aisdk"
)

// ApprovalClassifier decides which tool names need a human decision.
type ApprovalClassifier interface {
	RequiresApproval(toolName string) bool
}

// Entry describes one registered tool.
type Entry struct {
	Tool             agent.Tool
	RequiresApproval bool
	// Native tools are executed by the provider; no result is ever synthesized for them.
	Native bool
}

// RegisterOption adjusts how a tool is registered.
type RegisterOption func(*Entry)

// Native marks a tool as executed by the provider itself.
func Native() RegisterOption {
	return func(e *Entry) { e.Native = true }
}

// Registry is the tool dispatch table: tool name to implementation and
// approval classification.
type Registry struct {
	box    *agent.DefaultToolbox
	policy ApprovalClassifier
	native map[string]bool
	logger *slog.Logger
}

// NewRegistry creates an empty registry classified by policy.
func NewRegistry(policy ApprovalClassifier, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	box := agent.NewToolbox[agent.Tool]()
	box.RegisterMiddleware(agent.LoggingMiddleware(logger))
	return &Registry{
		box:    box,
		policy: policy,
		native: make(map[string]bool),
		logger: logger,
	}
}

// Register adds a tool.
func (r *Registry) Register(tool agent.Tool, opts ...RegisterOption) error {
	entry := Entry{Tool: tool}
	for _, opt := range opts {
		opt(&entry)
	}
	if err := r.box.RegisterTool(tool); err != nil {
		return err
	}
	if entry.Native {
		r.native[tool.GetName()] = true
	}
	return nil
}

// RegisterMiddleware wraps every tool execution.
func (r *Registry) RegisterMiddleware(mw agent.ToolMiddleware) {
	r.box.RegisterMiddleware(mw)
}

// Lookup returns the entry for name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	tool, ok := r.box.GetTool(name)
	if !ok {
		return Entry{}, false
	}
	return Entry{
		Tool:             tool,
		RequiresApproval: r.RequiresApproval(name),
		Native:           r.native[name],
	}, true
}

// RequiresApproval reports whether calls to name must wait for a decision.
func (r *Registry) RequiresApproval(name string) bool {
	if r.policy == nil {
		return false
	}
	return r.policy.RequiresApproval(name)
}

// Entries returns every registered tool ordered by name.
func (r *Registry) Entries() []Entry {
	tools := r.box.Tools()
	out := make([]Entry, 0, len(tools))
	for _, tool := range tools {
		entry, _ := r.Lookup(tool.GetName())
		out = append(out, entry)
	}
	return out
}

// ChatTools returns the tool definitions sent to the model.
func (r *Registry) ChatTools() []*aisdk.ChatTool {
	return agent.ToChatTools(r.box.Tools())
}

// Execute runs call through the middleware chain.
func (r *Registry) Execute(ctx context.Context, call *aisdk.ToolCall) (*aisdk.ToolResponse, error) {
	if !r.box.HasTool(call.Function.Name) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, call.Function.Name)
	}
	return r.box.ExecuteTool(ctx, call)
}

// Preview describes call for an approver. Tools that cannot preview fall
// back to their name and raw arguments.
func (r *Registry) Preview(ctx context.Context, call *aisdk.ToolCall) string {
	tool, ok := r.box.GetTool(call.Function.Name)
	if !ok {
		return ""
	}
	previewer, ok := tool.(agent.Previewer)
	if !ok {
		return fmt.Sprintf("%s %s", call.Function.Name, string(call.Function.Arguments))
	}
	preview, err := previewer.Preview(ctx, call)
	if err != nil {
		r.logger.Debug("tool preview failed", "tool", call.Function.Name, "error", err)
		return fmt.Sprintf("%s %s\n(preview unavailable: %v)", call.Function.Name, string(call.Function.Arguments), err)
	}
	return preview
}
