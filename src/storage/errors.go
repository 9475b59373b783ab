package storage

import "errors"

var (
	// ErrStaleVersion is returned when a compare-and-set update finds the
	// row at a different version than the caller read.
	ErrStaleVersion = errors.New("storage: stale version")

	// ErrToolCallNotPending is returned when deciding a tool call that has
	// already been approved, rejected or timed out.
	ErrToolCallNotPending = errors.New("storage: tool call is not pending")

	// ErrResponseMessageConflict is returned when a request already points at
	// a different response message.
	ErrResponseMessageConflict = errors.New("storage: response message already set")
)
