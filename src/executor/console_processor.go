package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/x/ansi"
	"github.com/elee1766/threadagent/src/eventbus"
	"github.com/elee1766/threadagent/src/events"
	"github.com/elee1766/threadagent/src/theme"
)

// EventProcessor handles execution events in order.
type EventProcessor interface {
	Process(ev events.Event) error
	Close() error
}

// ConsoleProcessorConfig configures the console event processor
type ConsoleProcessorConfig struct {
	Out io.Writer

	ShowTimestamps    bool
	ShowToolArguments bool
	// RawMode prints streamed text only.
	RawMode bool
	// Highlight colors approval previews; disable when Out is not a terminal.
	Highlight bool
	// MaxPreviewWidth truncates preview lines, zero means no limit.
	MaxPreviewWidth int
}

// ConsoleEventProcessor renders execution events to a terminal.
type ConsoleEventProcessor struct {
	config ConsoleProcessorConfig
	styles theme.Styles
	inText bool
}

// NewConsoleEventProcessor creates a new console event processor
func NewConsoleEventProcessor(config ConsoleProcessorConfig) *ConsoleEventProcessor {
	if config.Out == nil {
		config.Out = os.Stdout
	}
	return &ConsoleEventProcessor{
		config: config,
		styles: theme.NewStyles(),
	}
}

// Process handles a single event
func (p *ConsoleEventProcessor) Process(ev events.Event) error {
	if p.config.RawMode {
		if ev.Type == events.TypeTextDelta {
			var d events.TextDelta
			if err := ev.Decode(&d); err != nil {
				return err
			}
			_, err := io.WriteString(p.config.Out, d.Text)
			return err
		}
		return nil
	}

	switch ev.Type {
	case events.TypeTextDelta:
		var d events.TextDelta
		if err := ev.Decode(&d); err != nil {
			return err
		}
		p.inText = true
		_, err := io.WriteString(p.config.Out, d.Text)
		return err
	case events.TypeToolCallProposed:
		var d events.ToolCallProposed
		if err := ev.Decode(&d); err != nil {
			return err
		}
		return p.processToolCallProposed(ev, d)
	case events.TypeCompletion:
		var d events.Completion
		if err := ev.Decode(&d); err != nil {
			return err
		}
		return p.processCompletion(ev, d)
	case events.TypeError:
		var d events.Error
		if err := ev.Decode(&d); err != nil {
			return err
		}
		p.endText()
		p.printf("%s%s\n", p.stamp(ev), p.styles.Error.Render(fmt.Sprintf("error in %s: %s", d.Stage, d.Message)))
	}
	return nil
}

// Close cleans up resources
func (p *ConsoleEventProcessor) Close() error {
	p.endText()
	return nil
}

func (p *ConsoleEventProcessor) processToolCallProposed(ev events.Event, d events.ToolCallProposed) error {
	p.endText()

	var body strings.Builder
	body.WriteString(p.styles.Warning.Render("approval required: " + d.ToolName))
	fmt.Fprintf(&body, "\ntool call %s", d.ToolCallID)
	if d.RevisionCount > 0 {
		fmt.Fprintf(&body, "\nrejected %d time(s) before", d.RevisionCount)
	}
	if d.MaxRevisionsReached {
		body.WriteString("\n" + p.styles.Error.Render("maximum revisions reached"))
	}
	if p.config.ShowToolArguments && len(d.Input) > 0 {
		body.WriteString("\n" + p.styles.Muted.Render(prettyJSON(d.Input)))
	}
	if d.Preview != "" {
		body.WriteString("\n\n" + p.renderPreview(d.Preview))
	}

	p.printf("%s%s\n", p.stamp(ev), p.styles.Approval.Render(body.String()))
	p.printf("%s\n", p.styles.Muted.Render(fmt.Sprintf("approve with: threadagent approve %s --resume", d.ToolCallID)))
	return nil
}

func (p *ConsoleEventProcessor) processCompletion(ev events.Event, d events.Completion) error {
	p.endText()
	if d.Exhausted {
		p.printf("%s%s\n", p.stamp(ev), p.styles.Warning.Render(fmt.Sprintf("maximum iterations reached (%d used)", d.Iterations)))
	}
	p.printf("%s%s\n", p.stamp(ev), p.styles.Muted.Render(fmt.Sprintf("done: %s, %d iteration(s), %d in / %d out tokens",
		d.StopReason, d.Iterations, d.InputTokens, d.OutputTokens)))
	return nil
}

// renderPreview highlights diff previews and clips long lines.
func (p *ConsoleEventProcessor) renderPreview(preview string) string {
	if p.config.MaxPreviewWidth > 0 {
		lines := strings.Split(preview, "\n")
		for i, line := range lines {
			lines[i] = ansi.Truncate(line, p.config.MaxPreviewWidth, "…")
		}
		preview = strings.Join(lines, "\n")
	}
	if !p.config.Highlight || !looksLikeDiff(preview) {
		return preview
	}
	var out strings.Builder
	if err := quick.Highlight(&out, preview, "diff", "terminal256", "monokai"); err != nil {
		return preview
	}
	return strings.TrimRight(out.String(), "\n")
}

func (p *ConsoleEventProcessor) endText() {
	if p.inText {
		p.printf("\n")
		p.inText = false
	}
}

func (p *ConsoleEventProcessor) stamp(ev events.Event) string {
	if !p.config.ShowTimestamps {
		return ""
	}
	return p.styles.Muted.Render(ev.Timestamp.Local().Format("15:04:05")) + " "
}

func (p *ConsoleEventProcessor) printf(format string, args ...interface{}) {
	fmt.Fprintf(p.config.Out, format, args...)
}

func looksLikeDiff(s string) bool {
	return strings.HasPrefix(s, "--- ") || strings.Contains(s, "\n@@ ")
}

func prettyJSON(raw json.RawMessage) string {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}

// Follow feeds backlog and then the live events of sub to processors until
// the subscription closes or ctx is done. Events at or below afterSeq are
// skipped. Subscribe before starting the attempt so nothing is missed.
func Follow(ctx context.Context, backlog []events.Event, sub *eventbus.Subscription, afterSeq int64, processors ...EventProcessor) error {
	defer sub.Close()

	last := afterSeq
	deliver := func(ev events.Event) error {
		if ev.Seq <= last {
			return nil
		}
		last = ev.Seq
		for _, proc := range processors {
			if err := proc.Process(ev); err != nil {
				return err
			}
		}
		return nil
	}

	for _, ev := range backlog {
		if err := deliver(ev); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := deliver(ev); err != nil {
				return err
			}
		}
	}
}
