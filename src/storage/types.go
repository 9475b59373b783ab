package storage

import (
	"encoding/json"
	"time"

	"github.com/elee1766/threadagent/src/aisdk"
)

// RequestStatus is the lifecycle state of an AgentRequest.
type RequestStatus string

const (
	RequestPending    RequestStatus = "pending"
	RequestInProgress RequestStatus = "in_progress"
	RequestCompleted  RequestStatus = "completed"
	RequestFailed     RequestStatus = "failed"
)

// IsTerminal reports whether no further attempt will run without an explicit resume.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestCompleted || s == RequestFailed
}

// AgentRequest is one logical agent turn triggered by a user message.
type AgentRequest struct {
	ID                  string               `json:"id" db:"id"`
	UserID              string               `json:"user_id" db:"user_id"`
	ThreadID            string               `json:"thread_id" db:"thread_id"`
	TriggeringMessageID string               `json:"triggering_message_id" db:"triggering_message_id"`
	AgentType           string               `json:"agent_type" db:"agent_type"`
	Content             string               `json:"content" db:"content"`
	Status              RequestStatus        `json:"status" db:"status"`
	Progress            float64              `json:"progress" db:"progress"`
	ResponseMessageID   *string              `json:"response_message_id,omitempty" db:"response_message_id"`
	Results             *RequestResults      `json:"results,omitempty" db:"results"`
	Checkpoint          *ExecutionCheckpoint `json:"checkpoint,omitempty" db:"checkpoint"`
	TokenCost           int64                `json:"token_cost" db:"token_cost"`
	Version             int64                `json:"version" db:"version"`
	CreatedAt           time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at" db:"updated_at"`
	CompletedAt         *time.Time           `json:"completed_at,omitempty" db:"completed_at"`
}

// HasResponseMessage reports whether the idempotency anchor is set.
func (r *AgentRequest) HasResponseMessage() bool {
	return r.ResponseMessageID != nil && *r.ResponseMessageID != ""
}

// RequestResults is the free-form summary kept on a request.
type RequestResults struct {
	Iterations   int             `json:"iterations"`
	StopReason   string          `json:"stop_reason,omitempty"`
	ToolCalls    []string        `json:"tool_calls,omitempty"`
	InputTokens  int64           `json:"input_tokens"`
	OutputTokens int64           `json:"output_tokens"`
	Error        string          `json:"error,omitempty"`
	LastEvents   json.RawMessage `json:"last_events,omitempty"`
}

// CheckpointStatusAwaitingApproval marks a request paused on a tool approval.
const CheckpointStatusAwaitingApproval = "awaiting_approval"

// ExecutionCheckpoint is the snapshot a paused request is resumed from.
type ExecutionCheckpoint struct {
	ConversationHistory []aisdk.Turn        `json:"conversation_history"`
	LastToolCall        *CheckpointToolCall `json:"last_tool_call,omitempty"`
	IterationCount      int                 `json:"iteration_count"`
	AccumulatedContent  string              `json:"accumulated_content"`
	Status              string              `json:"status"`
	SavedAt             time.Time           `json:"saved_at"`
}

// CheckpointToolCall identifies the invocation the checkpoint waits on.
type CheckpointToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ApprovalStatus is the decision state of an AgentToolCall.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalTimeout  ApprovalStatus = "timeout"
)

// AgentToolCall is one tool invocation proposed by the model.
type AgentToolCall struct {
	ID               string          `json:"id" db:"id"`
	RequestID        string          `json:"request_id" db:"request_id"`
	ThreadID         string          `json:"thread_id" db:"thread_id"`
	OwnerUserID      string          `json:"owner_user_id" db:"owner_user_id"`
	ToolName         string          `json:"tool_name" db:"tool_name"`
	ToolInput        JSONRaw         `json:"tool_input" db:"tool_input"`
	ApprovalStatus   ApprovalStatus  `json:"approval_status" db:"approval_status"`
	RequiresApproval bool            `json:"requires_approval" db:"requires_approval"`
	NativeExecution  bool            `json:"native_execution" db:"native_execution"`
	ToolOutput       JSONRaw         `json:"tool_output,omitempty" db:"tool_output"`
	OutputIsError    bool            `json:"output_is_error" db:"output_is_error"`
	RejectionReason  *string         `json:"rejection_reason,omitempty" db:"rejection_reason"`
	RevisionCount    int             `json:"revision_count" db:"revision_count"`
	RevisionHistory  RevisionHistory `json:"revision_history" db:"revision_history"`
	DecidedBy        *string         `json:"decided_by,omitempty" db:"decided_by"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// HasOutput reports whether a result has been stored for the call.
func (t *AgentToolCall) HasOutput() bool {
	return len(t.ToolOutput) > 0
}

// Revision records one rejected attempt of a tool call.
type Revision struct {
	ToolCallID string          `json:"tool_call_id"`
	Input      json.RawMessage `json:"input"`
	Reason     string          `json:"reason"`
	RejectedAt time.Time       `json:"rejected_at"`
}

// Message is a persisted turn in a thread.
type Message struct {
	ID             string          `json:"id" db:"id"`
	ThreadID       string          `json:"thread_id" db:"thread_id"`
	OwnerUserID    string          `json:"owner_user_id" db:"owner_user_id"`
	Role           aisdk.Role      `json:"role" db:"role"`
	Content        ContentBlocks   `json:"content" db:"content"`
	ToolCalls      JSONStringArray `json:"tool_calls" db:"tool_calls"`
	TokensUsed     int64           `json:"tokens_used" db:"tokens_used"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty" db:"idempotency_key"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// ExecutionEvent is one persisted entry of a request's append-only event log.
type ExecutionEvent struct {
	ID        string    `json:"id" db:"id"`
	RequestID string    `json:"request_id" db:"request_id"`
	Seq       int64     `json:"seq" db:"seq"`
	Type      string    `json:"type" db:"type"`
	Data      JSONRaw   `json:"data" db:"data"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
