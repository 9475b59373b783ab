package executor

import "errors"

var (
	// Request lifecycle errors
	ErrRequestNotFound     = errors.New("agent request not found")
	ErrInvalidTransition   = errors.New("invalid request status transition")
	ErrNotResumable        = errors.New("agent request is not resumable")
	ErrApprovalPending     = errors.New("tool call is still awaiting approval")
	ErrModelClientRequired = errors.New("model client is required")
	ErrDatabaseRequired    = errors.New("database is required")

	// Response message errors
	ErrResponseMessageMissing = errors.New("response message not found")
)
