package toolexec

import "errors"

var (
	// ErrUnknownTool is returned when the model proposes a tool that is not registered.
	ErrUnknownTool = errors.New("toolexec: unknown tool")

	// ErrToolCallNotFound is returned when a decision or wait names a missing tool call.
	ErrToolCallNotFound = errors.New("toolexec: tool call not found")

	// ErrNotApproved is returned when executing a call that has not been approved.
	ErrNotApproved = errors.New("toolexec: tool call is not approved")
)
