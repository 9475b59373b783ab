package executor

import (
	"fmt"
	"strings"
)

// PromptState is what the loop knows about the attempt when it calls the model.
type PromptState struct {
	// Iteration is the 1-based model call within this attempt.
	Iteration int
	// MaxIterations bounds the attempt.
	MaxIterations int
	// Resuming is set when the attempt continues after a tool approval decision.
	Resuming bool
	// ToolsEnabled is set when tool definitions are sent with the call.
	ToolsEnabled bool
}

// SystemPromptFor appends the attempt's iteration budget to base.
func SystemPromptFor(base string, state PromptState) string {
	if state.MaxIterations <= 0 {
		return base
	}

	var sections []string

	remaining := state.MaxIterations - state.Iteration + 1
	if remaining > 1 {
		var turn strings.Builder
		turn.WriteString("# Turn Information\n")
		fmt.Fprintf(&turn, "You have %d model turns remaining in this run.", remaining)
		if state.ToolsEnabled {
			turn.WriteString("\nUse them to finish the task on your own. Propose at most one tool call per turn.")
		}
		sections = append(sections, turn.String())
	} else {
		sections = append(sections, "# Turn Information\nThis is your final turn in this run. Answer with what you have.")
	}

	if state.Resuming && state.Iteration == 1 {
		sections = append(sections, "# Execution Status\n"+
			"The user has decided on your last tool call. Its result, or the reason it was declined, is in the conversation. "+
			"Continue the original request from there.")
	}

	var out strings.Builder
	out.WriteString(base)
	if base != "" {
		out.WriteString("\n\n")
	}
	out.WriteString("<system-reminder>\n")
	out.WriteString(strings.Join(sections, "\n\n"))
	out.WriteString("\n</system-reminder>")
	return out.String()
}
