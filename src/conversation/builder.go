// Package conversation rebuilds the provider-facing conversation of a thread
// from its persisted messages and tool call records.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/elee1766/threadagent/src/aisdk"
	"github.com/elee1766/threadagent/src/storage"
	"github.com/elee1766/threadagent/src/telemetry"
	"go.opentelemetry.io/otel/metric"
)

// DeclinedPrefix starts the text of every result synthesized for a rejected
// or timed out tool call.
const DeclinedPrefix = "User declined"

// TimeoutReason is the rejection reason recorded when an approval wait expires.
const TimeoutReason = "Timeout"

// Builder turns persisted messages into model turns. It is pure apart from
// logging and counting orphaned tool invocations.
type Builder struct {
	logger  *slog.Logger
	orphans metric.Int64Counter
}

// NewBuilder creates a builder. A nil logger uses slog.Default.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		logger:  logger,
		orphans: telemetry.Engine().OrphanedToolInvocations,
	}
}

// Build converts messages, in the order given, into turns.
func (b *Builder) Build(ctx context.Context, messages []*storage.Message, toolCalls map[string]*storage.AgentToolCall) []aisdk.Turn {
	var turns []aisdk.Turn
	for _, msg := range messages {
		turns = append(turns, b.BuildMessage(ctx, msg, toolCalls)...)
	}
	return turns
}

// BuildMessage converts one message. A user message becomes a single user
// turn. An assistant message is split at every tool invocation: the text
// before it, the invocation and, when the call has been decided, its result
// each become their own turn, in the original order.
func (b *Builder) BuildMessage(ctx context.Context, msg *storage.Message, toolCalls map[string]*storage.AgentToolCall) []aisdk.Turn {
	if len(msg.Content) == 0 {
		return nil
	}
	if msg.Role != aisdk.RoleAssistant {
		content := make([]aisdk.ContentBlock, len(msg.Content))
		copy(content, msg.Content)
		return []aisdk.Turn{{Role: msg.Role, Content: content}}
	}

	var (
		turns   []aisdk.Turn
		segment []aisdk.ContentBlock
	)
	flush := func() {
		if len(segment) == 0 {
			return
		}
		turns = append(turns, aisdk.Turn{Role: aisdk.RoleAssistant, Content: segment})
		segment = nil
	}

	for _, block := range msg.Content {
		if block.Type != aisdk.BlockToolInvocation {
			segment = append(segment, block)
			continue
		}

		flush()

		tc, ok := toolCalls[block.ID]
		if !ok {
			b.logger.WarnContext(ctx, "dropping orphaned tool invocation",
				"tool_call_id", block.ID, "tool", block.Name, "message_id", msg.ID)
			b.orphans.Add(ctx, 1)
			continue
		}

		turns = append(turns, aisdk.Turn{
			Role:    aisdk.RoleAssistant,
			Content: []aisdk.ContentBlock{aisdk.SanitizeInvocation(block)},
		})
		if result, ok := resultFor(block.ID, tc); ok {
			turns = append(turns, aisdk.Turn{
				Role:    aisdk.RoleUser,
				Content: []aisdk.ContentBlock{result},
			})
		}
	}
	flush()

	return turns
}

// resultFor synthesizes the result block for a tool call, or reports false
// when the model must not see a result yet.
func resultFor(invocationID string, tc *storage.AgentToolCall) (aisdk.ContentBlock, bool) {
	if tc.NativeExecution {
		return aisdk.ContentBlock{}, false
	}
	switch tc.ApprovalStatus {
	case storage.ApprovalApproved:
		if !tc.HasOutput() {
			return aisdk.ContentBlock{}, false
		}
		return aisdk.ToolResultBlock(invocationID, OutputText(tc.ToolOutput), tc.OutputIsError), true
	case storage.ApprovalRejected, storage.ApprovalTimeout:
		return aisdk.ToolResultBlock(invocationID, DeclinedText(tc), true), true
	default:
		return aisdk.ContentBlock{}, false
	}
}

// DeclinedText is the error text shown to the model for a declined call.
func DeclinedText(tc *storage.AgentToolCall) string {
	reason := ""
	if tc.RejectionReason != nil {
		reason = *tc.RejectionReason
	}
	if reason == "" && tc.ApprovalStatus == storage.ApprovalTimeout {
		reason = TimeoutReason
	}
	if reason == "" {
		return fmt.Sprintf("%s to run %s.", DeclinedPrefix, tc.ToolName)
	}
	return fmt.Sprintf("%s to run %s. Reason: %s", DeclinedPrefix, tc.ToolName, reason)
}

// OutputText renders a stored tool output as text. JSON strings are unquoted;
// any other document is passed through as JSON text.
func OutputText(output storage.JSONRaw) string {
	var s string
	if err := json.Unmarshal(output, &s); err == nil {
		return s
	}
	return string(output)
}
