package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/elee1766/threadagent/src/config"
	"github.com/elee1766/threadagent/src/toolexec"
	"golang.org/x/sync/errgroup"
)

// ApproveCmd approves a pending tool call
type ApproveCmd struct {
	ToolCall string `arg:"" help:"Tool call id"`
	Resume   bool   `short:"r" help:"Resume the request right away"`

	Console ConsoleOptions `embed:""`
}

func (c *ApproveCmd) Run(ctx context.Context, cli *CLI) error {
	e, err := newEngine(ctx, cli, engineOptions{})
	if err != nil {
		return err
	}
	defer e.Close(context.WithoutCancel(ctx))

	decision, err := e.tools.Approve(ctx, c.ToolCall, cli.User)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "approved %s (%s) on request %s\n",
		decision.Record.ID, decision.Record.ToolName, decision.Record.RequestID)

	if !c.Resume {
		return nil
	}
	return e.resume(ctx, decision.Record.RequestID, c.Console)
}

// RejectCmd rejects a pending tool call with a reason the model will see
type RejectCmd struct {
	ToolCall string `arg:"" help:"Tool call id"`
	Reason   string `required:"" help:"Why the call was rejected"`
	Resume   bool   `short:"r" help:"Resume the request right away"`

	Console ConsoleOptions `embed:""`
}

func (c *RejectCmd) Run(ctx context.Context, cli *CLI) error {
	e, err := newEngine(ctx, cli, engineOptions{})
	if err != nil {
		return err
	}
	defer e.Close(context.WithoutCancel(ctx))

	decision, err := e.tools.Reject(ctx, c.ToolCall, cli.User, c.Reason)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "rejected %s (%s), revision %d\n",
		decision.Record.ID, decision.Record.ToolName, decision.Record.RevisionCount)
	if decision.MaxRevisionsReached {
		fmt.Fprintf(os.Stderr, "maximum revisions reached for %s\n", decision.Record.ToolName)
	}

	if !c.Resume {
		return nil
	}
	return e.resume(ctx, decision.Record.RequestID, c.Console)
}

// WaitCmd blocks until a tool call is approved, rejected or times out
type WaitCmd struct {
	ToolCall string        `arg:"" help:"Tool call id"`
	Timeout  time.Duration `help:"How long to wait (defaults to approval.timeout)"`
}

func (c *WaitCmd) Run(ctx context.Context, cli *CLI) error {
	e, err := newEngine(ctx, cli, engineOptions{readOnly: true})
	if err != nil {
		return err
	}
	defer e.Close(context.WithoutCancel(ctx))

	if e.cfg.Notify.Driver == config.NotifyMemory {
		e.logger.Warn("memory notify driver only sees decisions made by this process; the wait resolves at the timeout")
	}

	g, gctx := errgroup.WithContext(ctx)
	listenCtx, stopListening := context.WithCancel(gctx)
	defer stopListening()
	if e.listen != nil {
		g.Go(func() error { return e.listen(listenCtx) })
	}

	var result *toolexec.ApprovalResult
	g.Go(func() error {
		defer stopListening()
		r, err := e.tools.WaitForApproval(gctx, c.ToolCall, c.Timeout)
		result = r
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if result.Approved {
		fmt.Printf("approved %s\n", result.Record.ID)
		return nil
	}
	fmt.Printf("%s %s: %s\n", result.Record.ApprovalStatus, result.Record.ID, result.Reason)
	return nil
}
