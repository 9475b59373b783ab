package providers

import (
	"github.com/elee1766/threadagent/src/aisdk"
)

// NormalizeTurns merges consecutive turns of the same role and drops empty
// ones. Providers reject two user or two assistant messages in a row, which
// the conversation builder produces around tool results and split segments.
func NormalizeTurns(turns []aisdk.Turn) []aisdk.Turn {
	out := make([]aisdk.Turn, 0, len(turns))
	for _, turn := range turns {
		content := make([]aisdk.ContentBlock, 0, len(turn.Content))
		for _, block := range turn.Content {
			if block.Type == aisdk.BlockText && block.Text == "" {
				continue
			}
			content = append(content, block)
		}
		if len(content) == 0 {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == turn.Role {
			out[n-1].Content = append(out[n-1].Content, content...)
			continue
		}
		out = append(out, aisdk.Turn{Role: turn.Role, Content: content})
	}
	return out
}

// MapStopReason translates provider stop reasons to the aisdk constants.
// Unknown reasons pass through.
func MapStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop", "stop_sequence":
		return aisdk.StopEndTurn
	case "tool_use", "tool_calls", "function_call":
		return aisdk.StopToolUse
	case "max_tokens", "length":
		return aisdk.StopMaxTokens
	case "":
		return aisdk.StopEndTurn
	}
	return reason
}
