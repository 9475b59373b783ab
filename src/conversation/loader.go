package conversation

import (
	"context"
	"fmt"

	"github.com/elee1766/threadagent/src/aisdk"
	"github.com/elee1766/threadagent/src/storage"
	"github.com/georgysavva/scany/v2/sqlscan"
)

// Conversation is everything loaded for one execution attempt.
type Conversation struct {
	Messages  []*storage.Message
	ToolCalls map[string]*storage.AgentToolCall
	Turns     []aisdk.Turn
	// Resume is set when the request already owns a response message, so the
	// attempt continues an earlier one.
	Resume bool
}

// Loader assembles the conversation of a request's thread.
type Loader struct {
	db           sqlscan.Querier
	builder      *Builder
	historyLimit int
}

// NewLoader creates a loader that reads at most historyLimit recent messages.
func NewLoader(db sqlscan.Querier, builder *Builder, historyLimit int) *Loader {
	return &Loader{db: db, builder: builder, historyLimit: historyLimit}
}

// Load reads the thread of req and builds its turns. Resume mode is decided
// from req as passed in, before any response message is created.
func (l *Loader) Load(ctx context.Context, req *storage.AgentRequest) (*Conversation, error) {
	messages, err := storage.ListThreadMessages(ctx, l.db, req.ThreadID, l.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load thread messages: %w", err)
	}

	calls, err := storage.ListToolCallsByThread(ctx, l.db, req.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("load tool calls: %w", err)
	}
	byID := make(map[string]*storage.AgentToolCall, len(calls))
	for _, tc := range calls {
		byID[tc.ID] = tc
	}

	return &Conversation{
		Messages:  messages,
		ToolCalls: byID,
		Turns:     trimLeading(l.builder.Build(ctx, messages, byID)),
		Resume:    req.HasResponseMessage(),
	}, nil
}

// trimLeading drops turns ahead of the first plain user turn. A history
// window can open on an assistant turn or on a result whose invocation fell
// outside it, and providers require the conversation to start with the user.
func trimLeading(turns []aisdk.Turn) []aisdk.Turn {
	for i, turn := range turns {
		if turn.Role == aisdk.RoleUser && !turn.IsToolResult() {
			return turns[i:]
		}
	}
	return turns
}
