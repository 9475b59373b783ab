// Package events defines the execution events an attempt produces and the
// payload carried by each event type.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type identifies an execution event.
type Type string

const (
	TypeTextDelta        Type = "text-delta"
	TypeToolCallProposed Type = "tool-call-proposed"
	TypeCompletion       Type = "completion"
	TypeError            Type = "error"
)

// Event is the envelope persisted to the event log and published to live listeners.
type Event struct {
	Seq       int64           `json:"seq"`
	Type      Type            `json:"type"`
	RequestID string          `json:"request_id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// TextDelta is streamed assistant text.
type TextDelta struct {
	Text string `json:"text"`
}

// ToolCallProposed announces a tool call that is waiting for approval.
type ToolCallProposed struct {
	ToolCallID          string          `json:"tool_call_id"`
	ToolName            string          `json:"tool_name"`
	Input               json.RawMessage `json:"input"`
	Preview             string          `json:"preview,omitempty"`
	RevisionCount       int             `json:"revision_count"`
	MaxRevisionsReached bool            `json:"max_revisions_reached,omitempty"`
}

// Completion ends an attempt that ran to completion.
type Completion struct {
	StopReason   string `json:"stop_reason"`
	Iterations   int    `json:"iterations"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	Exhausted    bool   `json:"exhausted,omitempty"`
}

// Error ends an attempt that failed.
type Error struct {
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
}

// New builds an event of type t for requestID with payload marshalled into Data.
// Seq is assigned by whoever persists the event.
func New(t Type, requestID string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Event{
		Type:      t,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

// Decode unmarshals the payload of e into v.
func (e Event) Decode(v interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s event has no data", e.Type)
	}
	return json.Unmarshal(e.Data, v)
}

// IsTerminal reports whether e ends an attempt's stream.
func (e Event) IsTerminal() bool {
	return e.Type == TypeCompletion || e.Type == TypeError || e.Type == TypeToolCallProposed
}
