// Package toolexec classifies, records and executes the tool calls the
// model proposes, and runs the approval workflow for calls that need a
// human decision.
package toolexec

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/elee1766/threadagent/src/aisdk"
	"github.com/elee1766/threadagent/src/conversation"
	"github.com/elee1766/threadagent/src/notify"
	"github.com/elee1766/threadagent/src/storage"
	"github.com/elee1766/threadagent/src/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	DefaultApprovalTimeout = 10 * time.Minute
	DefaultMaxRevisions    = 3
	DefaultRecheckInterval = 5 * time.Second
)

// Config configures a Handler.
type Config struct {
	DB       storage.ExecQuerier
	Registry *Registry
	Notifier notify.Notifier

	// MaxRevisions is the rejection count at which MaxRevisionsReached is raised.
	MaxRevisions int
	// ApprovalTimeout bounds WaitForApproval when no timeout is passed.
	ApprovalTimeout time.Duration
	// RecheckInterval is how often WaitForApproval re-reads the record in
	// case its notification was dropped.
	RecheckInterval time.Duration

	Logger *slog.Logger
}

// Handler is the tool execution handler.
type Handler struct {
	db              storage.ExecQuerier
	registry        *Registry
	notifier        notify.Notifier
	maxRevisions    int
	approvalTimeout time.Duration
	recheckInterval time.Duration
	logger          *slog.Logger
	toolCalls       metric.Int64Counter
}

// NewHandler creates a handler.
func NewHandler(cfg Config) *Handler {
	if cfg.MaxRevisions <= 0 {
		cfg.MaxRevisions = DefaultMaxRevisions
	}
	if cfg.ApprovalTimeout <= 0 {
		cfg.ApprovalTimeout = DefaultApprovalTimeout
	}
	if cfg.RecheckInterval <= 0 {
		cfg.RecheckInterval = DefaultRecheckInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.NewHub(16)
	}
	return &Handler{
		db:              cfg.DB,
		registry:        cfg.Registry,
		notifier:        cfg.Notifier,
		maxRevisions:    cfg.MaxRevisions,
		approvalTimeout: cfg.ApprovalTimeout,
		recheckInterval: cfg.RecheckInterval,
		logger:          cfg.Logger,
		toolCalls:       telemetry.Engine().ToolCalls,
	}
}

// Registry returns the dispatch table the handler executes against.
func (h *Handler) Registry() *Registry {
	return h.registry
}

// Proposal is a tool invocation proposed by the model while serving a request.
type Proposal struct {
	RequestID   string
	ThreadID    string
	OwnerUserID string
	Call        *aisdk.ToolCall
}

// Outcome is the result of handling a proposal.
type Outcome struct {
	Record *storage.AgentToolCall

	// NeedsApproval means the call was recorded as pending and the attempt must suspend.
	NeedsApproval bool
	// Preview describes the pending call for the approver.
	Preview string

	// Response is the tool result of an auto-executed call.
	Response *aisdk.ToolResponse

	// MaxRevisionsReached is set when earlier attempts of this call were
	// rejected at least MaxRevisions times. No policy is applied here.
	MaxRevisionsReached bool
}

// Handle records p and either executes it right away or leaves it pending
// for approval. A follow-up call to a tool whose previous call in the same
// request was declined inherits that call's revision history.
func (h *Handler) Handle(ctx context.Context, p Proposal) (*Outcome, error) {
	entry, ok := h.registry.Lookup(p.Call.Function.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, p.Call.Function.Name)
	}

	record := &storage.AgentToolCall{
		ID:               p.Call.ID,
		RequestID:        p.RequestID,
		ThreadID:         p.ThreadID,
		OwnerUserID:      p.OwnerUserID,
		ToolName:         p.Call.Function.Name,
		ToolInput:        storage.JSONRaw(p.Call.Function.Arguments),
		ApprovalStatus:   storage.ApprovalPending,
		RequiresApproval: entry.RequiresApproval,
		NativeExecution:  entry.Native,
	}
	if err := h.inheritLineage(ctx, record); err != nil {
		return nil, err
	}

	outcome := &Outcome{
		Record:              record,
		MaxRevisionsReached: record.RevisionCount >= h.maxRevisions,
	}

	if entry.RequiresApproval {
		if err := h.withRetry(ctx, func() error { return storage.CreateToolCall(ctx, h.db, record) }); err != nil {
			return nil, fmt.Errorf("record tool call: %w", err)
		}
		h.count(ctx, record)
		outcome.NeedsApproval = true
		outcome.Preview = h.registry.Preview(ctx, p.Call)
		h.logger.InfoContext(ctx, "tool call awaiting approval",
			"tool", record.ToolName, "tool_call_id", record.ID, "request_id", record.RequestID,
			"revision_count", record.RevisionCount)
		return outcome, nil
	}

	record.ApprovalStatus = storage.ApprovalApproved
	if err := h.withRetry(ctx, func() error { return storage.CreateToolCall(ctx, h.db, record) }); err != nil {
		return nil, fmt.Errorf("record tool call: %w", err)
	}
	h.count(ctx, record)

	resp, err := h.run(ctx, record)
	if err != nil {
		return nil, err
	}
	outcome.Response = resp
	return outcome, nil
}

// ExecuteApproved runs an approved call that has no output yet and stores
// the result. Calls that already have output return it without running again.
func (h *Handler) ExecuteApproved(ctx context.Context, toolCallID string) (*storage.AgentToolCall, error) {
	record, err := storage.GetToolCallByID(ctx, h.db, toolCallID)
	if err != nil {
		return nil, fmt.Errorf("load tool call: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolCallNotFound, toolCallID)
	}
	if record.ApprovalStatus != storage.ApprovalApproved {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotApproved, toolCallID, record.ApprovalStatus)
	}
	if record.HasOutput() || record.NativeExecution {
		return record, nil
	}
	if _, err := h.run(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// run executes record and stores its output on it.
func (h *Handler) run(ctx context.Context, record *storage.AgentToolCall) (*aisdk.ToolResponse, error) {
	call := aisdk.NewToolCall(record.ID, record.ToolName, json.RawMessage(record.ToolInput))
	resp, err := h.registry.Execute(ctx, call)
	if err != nil {
		return nil, fmt.Errorf("execute %s: %w", record.ToolName, err)
	}
	if resp == nil {
		resp = aisdk.NewTextToolResponse("")
	}

	record.ToolOutput = outputJSON(resp)
	record.OutputIsError = resp.IsError
	if err := h.withRetry(ctx, func() error { return storage.SetToolCallOutput(ctx, h.db, record) }); err != nil {
		return nil, fmt.Errorf("store tool output: %w", err)
	}
	return resp, nil
}

// Decision is the result of approving or rejecting a call.
type Decision struct {
	Record              *storage.AgentToolCall
	MaxRevisionsReached bool
}

// Approve marks a pending call approved. The call runs when the request resumes.
func (h *Handler) Approve(ctx context.Context, toolCallID, decidedBy string) (*Decision, error) {
	return h.decide(ctx, toolCallID, func(record *storage.AgentToolCall) {
		record.ApprovalStatus = storage.ApprovalApproved
		record.DecidedBy = optional(decidedBy)
	})
}

// Reject marks a pending call rejected with reason and records the attempt
// in its revision history.
func (h *Handler) Reject(ctx context.Context, toolCallID, decidedBy, reason string) (*Decision, error) {
	return h.decide(ctx, toolCallID, func(record *storage.AgentToolCall) {
		record.ApprovalStatus = storage.ApprovalRejected
		record.DecidedBy = optional(decidedBy)
		record.RejectionReason = optional(reason)
		record.RevisionCount++
		record.RevisionHistory = append(record.RevisionHistory, storage.Revision{
			ToolCallID: record.ID,
			Input:      json.RawMessage(record.ToolInput),
			Reason:     reason,
			RejectedAt: time.Now().UTC(),
		})
	})
}

func (h *Handler) decide(ctx context.Context, toolCallID string, apply func(*storage.AgentToolCall)) (*Decision, error) {
	record, err := storage.GetToolCallByID(ctx, h.db, toolCallID)
	if err != nil {
		return nil, fmt.Errorf("load tool call: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolCallNotFound, toolCallID)
	}

	apply(record)
	if err := h.withRetry(ctx, func() error { return storage.DecideToolCall(ctx, h.db, record) }); err != nil {
		return nil, err
	}
	h.count(ctx, record)
	h.logger.InfoContext(ctx, "tool call decided",
		"tool_call_id", record.ID, "tool", record.ToolName, "status", record.ApprovalStatus)

	h.publish(ctx, record.ID)
	return &Decision{
		Record:              record,
		MaxRevisionsReached: record.RevisionCount >= h.maxRevisions,
	}, nil
}

func (h *Handler) inheritLineage(ctx context.Context, record *storage.AgentToolCall) error {
	prev, err := storage.GetLatestToolCallForTool(ctx, h.db, record.RequestID, record.ToolName)
	if err != nil {
		return fmt.Errorf("load previous tool call: %w", err)
	}
	if prev == nil {
		return nil
	}
	if prev.ApprovalStatus != storage.ApprovalRejected && prev.ApprovalStatus != storage.ApprovalTimeout {
		return nil
	}
	record.RevisionCount = prev.RevisionCount
	record.RevisionHistory = append(storage.RevisionHistory{}, prev.RevisionHistory...)
	return nil
}

func (h *Handler) publish(ctx context.Context, toolCallID string) {
	if err := h.notifier.Notify(ctx, notify.ChannelToolCalls, toolCallID); err != nil {
		h.logger.WarnContext(ctx, "failed to publish tool call change", "tool_call_id", toolCallID, "error", err)
	}
}

func (h *Handler) count(ctx context.Context, record *storage.AgentToolCall) {
	h.toolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", record.ToolName),
		attribute.String("approval_status", string(record.ApprovalStatus)),
	))
}

func (h *Handler) withRetry(ctx context.Context, fn func() error) error {
	return storage.WithRetry(ctx, 3, 10*time.Millisecond, fn)
}

// outputJSON stores JSON tool output as is and wraps anything else in a JSON string.
func outputJSON(resp *aisdk.ToolResponse) storage.JSONRaw {
	if len(resp.Content) > 0 && json.Valid(resp.Content) {
		return storage.JSONRaw(append([]byte(nil), resp.Content...))
	}
	data, _ := json.Marshal(string(resp.Content))
	return storage.JSONRaw(data)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// declinedReason mirrors the text the model sees for a declined call.
func declinedReason(record *storage.AgentToolCall) string {
	if record.RejectionReason != nil && *record.RejectionReason != "" {
		return *record.RejectionReason
	}
	if record.ApprovalStatus == storage.ApprovalTimeout {
		return conversation.TimeoutReason
	}
	return ""
}
