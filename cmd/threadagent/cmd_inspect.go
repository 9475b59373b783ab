package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/elee1766/threadagent/src/aisdk"
	"github.com/elee1766/threadagent/src/executor"
	"github.com/elee1766/threadagent/src/storage"
	"github.com/elee1766/threadagent/src/theme"
)

// EventsCmd replays a request's persisted event log
type EventsCmd struct {
	Request string `arg:"" help:"Request id"`
	After   int64  `help:"Only events with a higher sequence number"`
	JSON    bool   `help:"Print raw events as JSON lines"`

	Console ConsoleOptions `embed:""`
}

func (c *EventsCmd) Run(ctx context.Context, cli *CLI) error {
	e, err := newEngine(ctx, cli, engineOptions{readOnly: true})
	if err != nil {
		return err
	}
	defer e.Close(context.WithoutCancel(ctx))

	if _, err := loadRequest(ctx, e, c.Request); err != nil {
		return err
	}
	evs, err := executor.Replay(ctx, e.db.DB(), c.Request, c.After)
	if err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		for _, ev := range evs {
			if err := enc.Encode(ev); err != nil {
				return err
			}
		}
		return nil
	}

	c.Console.Timestamps = true
	proc := c.Console.processor()
	defer proc.Close()
	for _, ev := range evs {
		if err := proc.Process(ev); err != nil {
			return err
		}
	}
	return nil
}

// ShowCmd prints a request, its tool calls and its response message
type ShowCmd struct {
	Request string `arg:"" help:"Request id"`
	JSON    bool   `help:"Print as JSON"`
}

type requestView struct {
	Request   *storage.AgentRequest    `json:"request"`
	ToolCalls []*storage.AgentToolCall `json:"tool_calls"`
	Response  *storage.Message         `json:"response,omitempty"`
}

func (c *ShowCmd) Run(ctx context.Context, cli *CLI) error {
	e, err := newEngine(ctx, cli, engineOptions{readOnly: true})
	if err != nil {
		return err
	}
	defer e.Close(context.WithoutCancel(ctx))

	view := requestView{}
	if view.Request, err = loadRequest(ctx, e, c.Request); err != nil {
		return err
	}
	if view.ToolCalls, err = storage.ListToolCallsByRequest(ctx, e.db.DB(), c.Request); err != nil {
		return fmt.Errorf("failed to list tool calls: %w", err)
	}
	if view.Request.HasResponseMessage() {
		if view.Response, err = storage.GetMessageByID(ctx, e.db.DB(), *view.Request.ResponseMessageID); err != nil {
			return fmt.Errorf("failed to load response: %w", err)
		}
	}

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	printRequest(view)
	return nil
}

func loadRequest(ctx context.Context, e *engine, id string) (*storage.AgentRequest, error) {
	req, err := storage.GetRequestByID(ctx, e.db.DB(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to load request: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: %s", executor.ErrRequestNotFound, id)
	}
	return req, nil
}

func printRequest(view requestView) {
	styles := theme.NewStyles()
	req := view.Request

	fmt.Println(styles.Title.Render("Request " + req.ID))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Thread:\t%s\n", req.ThreadID)
	fmt.Fprintf(w, "Status:\t%s\n", req.Status)
	fmt.Fprintf(w, "Progress:\t%.0f%%\n", req.Progress*100)
	fmt.Fprintf(w, "Tokens:\t%d\n", req.TokenCost)
	fmt.Fprintf(w, "Version:\t%d\n", req.Version)
	fmt.Fprintf(w, "Created:\t%s\n", req.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if req.CompletedAt != nil {
		fmt.Fprintf(w, "Finished:\t%s\n", req.CompletedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if req.Checkpoint != nil {
		fmt.Fprintf(w, "Checkpoint:\t%s after %d iteration(s)\n", req.Checkpoint.Status, req.Checkpoint.IterationCount)
	}
	if r := req.Results; r != nil {
		fmt.Fprintf(w, "Iterations:\t%d\n", r.Iterations)
		if r.StopReason != "" {
			fmt.Fprintf(w, "Stop reason:\t%s\n", r.StopReason)
		}
		if r.Error != "" {
			fmt.Fprintf(w, "Error:\t%s\n", styles.Error.Render(r.Error))
		}
	}
	w.Flush()

	if len(view.ToolCalls) > 0 {
		fmt.Println()
		fmt.Println(styles.Title.Render("Tool calls"))
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTOOL\tSTATUS\tREVISIONS\tNOTE")
		for _, tc := range view.ToolCalls {
			note := ""
			if tc.RejectionReason != nil {
				note = *tc.RejectionReason
			} else if tc.OutputIsError {
				note = "tool returned an error"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", tc.ID, tc.ToolName, tc.ApprovalStatus, tc.RevisionCount, note)
		}
		w.Flush()
	}

	if view.Response != nil {
		fmt.Println()
		fmt.Println(styles.Title.Render("Response"))
		for _, block := range view.Response.Content {
			switch block.Type {
			case aisdk.BlockText:
				fmt.Println(strings.TrimSpace(block.Text))
			case aisdk.BlockToolInvocation:
				fmt.Println(styles.Muted.Render(fmt.Sprintf("[%s %s]", block.Name, block.ID)))
			}
		}
	}
}
