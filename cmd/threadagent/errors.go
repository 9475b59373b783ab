package main

import (
	"context"
	"errors"

	"github.com/elee1766/threadagent/src/executor"
	"github.com/elee1766/threadagent/src/providers"
	"github.com/elee1766/threadagent/src/storage"
	"github.com/elee1766/threadagent/src/toolexec"
)

// Exit codes following standard conventions
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error
	ExitUsage       = 2 // Usage error
	ExitConfig      = 3 // Configuration error
	ExitAuth        = 4 // Authentication error
	ExitNotFound    = 5 // Request or tool call not found
	ExitConflict    = 6 // Lost a race with another writer, or wrong state
	ExitTimeout     = 7 // Timeout error
	ExitInterrupted = 8 // Interrupted by user
	ExitAwaiting    = 10
)

// errAwaitingApproval ends run and resume when the request paused on a tool call.
var errAwaitingApproval = errors.New("request is waiting for a tool call approval")

// errConfig marks configuration failures for exitCode.
type errConfig struct{ err error }

func (e errConfig) Error() string { return e.err.Error() }
func (e errConfig) Unwrap() error { return e.err }

// exitCode determines the appropriate exit code for an error
func exitCode(err error) int {
	var cfgErr errConfig
	var apiErr *providers.APIError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, errAwaitingApproval):
		return ExitAwaiting
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeout
	case errors.As(err, &cfgErr):
		return ExitConfig
	case errors.Is(err, providers.ErrNoAPIKey), errors.As(err, &apiErr) && apiErr.IsAuthError():
		return ExitAuth
	case errors.Is(err, executor.ErrRequestNotFound), errors.Is(err, toolexec.ErrToolCallNotFound):
		return ExitNotFound
	case errors.Is(err, storage.ErrStaleVersion), errors.Is(err, storage.ErrToolCallNotPending),
		errors.Is(err, executor.ErrNotResumable), errors.Is(err, executor.ErrApprovalPending),
		errors.Is(err, executor.ErrInvalidTransition):
		return ExitConflict
	case errors.Is(err, executor.ErrEmptyPrompt):
		return ExitUsage
	default:
		return ExitError
	}
}
