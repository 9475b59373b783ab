package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/elee1766/threadagent/src/executor"
	"github.com/elee1766/threadagent/src/storage"
)

// RunCmd sends a user message and runs the agent on it
type RunCmd struct {
	Text   []string `arg:"" optional:"" help:"The message to send"`
	File   string   `short:"f" help:"Read the message from a file ('-' for stdin)" type:"path"`
	Thread string   `short:"t" help:"Continue an existing thread"`

	Console ConsoleOptions `embed:""`
}

func (c *RunCmd) Run(ctx context.Context, cli *CLI) error {
	text, err := c.message()
	if err != nil {
		return err
	}

	e, err := newEngine(ctx, cli, engineOptions{})
	if err != nil {
		return err
	}
	defer e.Close(context.WithoutCancel(ctx))

	orch, err := e.orchestrator()
	if err != nil {
		return err
	}

	req, err := executor.Submit(ctx, e.db.DB(), executor.Submission{
		ThreadID: c.Thread,
		UserID:   cli.User,
		Text:     text,
	})
	if err != nil {
		return err
	}
	e.logger.Info("request submitted", "request_id", req.ID, "thread_id", req.ThreadID)
	if !c.Console.Raw {
		fmt.Fprintf(os.Stderr, "request %s on thread %s\n", req.ID, req.ThreadID)
	}

	res, err := e.follow(ctx, req.ID, c.Console.processor(), func(ctx context.Context) (*executor.Result, error) {
		return orch.Execute(ctx, req.ID)
	})
	if err != nil {
		return err
	}
	return report(res)
}

func (c *RunCmd) message() (string, error) {
	switch c.File {
	case "":
		return strings.Join(c.Text, " "), nil
	case "-":
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	default:
		data, err := os.ReadFile(c.File)
		if err != nil {
			return "", fmt.Errorf("failed to read message file: %w", err)
		}
		return string(data), nil
	}
}

// ResumeCmd starts a new attempt of a paused or failed request
type ResumeCmd struct {
	Request string `arg:"" help:"Request id"`

	Console ConsoleOptions `embed:""`
}

func (c *ResumeCmd) Run(ctx context.Context, cli *CLI) error {
	e, err := newEngine(ctx, cli, engineOptions{})
	if err != nil {
		return err
	}
	defer e.Close(context.WithoutCancel(ctx))
	return e.resume(ctx, c.Request, c.Console)
}

func (e *engine) resume(ctx context.Context, requestID string, opts ConsoleOptions) error {
	orch, err := e.orchestrator()
	if err != nil {
		return err
	}
	res, err := e.follow(ctx, requestID, opts.processor(), func(ctx context.Context) (*executor.Result, error) {
		return orch.Resume(ctx, requestID)
	})
	if err != nil {
		return err
	}
	return report(res)
}

// report turns how an attempt ended into the command's outcome.
func report(res *executor.Result) error {
	switch res.State {
	case executor.StateAwaitingApproval:
		if res.MaxRevisionsReached {
			fmt.Fprintf(os.Stderr, "tool call %s has been rejected the maximum number of times\n", res.PendingToolCall.ID)
		}
		return fmt.Errorf("%w: %s", errAwaitingApproval, res.PendingToolCall.ID)
	case executor.StateFailed:
		if res.Err == nil {
			return fmt.Errorf("request %s failed", res.Request.ID)
		}
		return fmt.Errorf("request %s failed: %w", res.Request.ID, res.Err)
	default:
		if res.Request.Status != storage.RequestCompleted {
			return fmt.Errorf("request %s ended as %s", res.Request.ID, res.Request.Status)
		}
		return nil
	}
}
