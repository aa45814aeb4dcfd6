package agent

import "github.com/millwright-ai/millwright/internal/provider"

// newTranscript builds the outbound conversation: persisted history as a
// strict prefix, then the new user message. The input slice is never
// mutated; growth is copy-on-append so concurrent readers of the old
// history stay valid.
func newTranscript(history []provider.ChatMessage, user provider.ChatMessage) []provider.ChatMessage {
	transcript := make([]provider.ChatMessage, 0, len(history)+1)
	transcript = append(transcript, history...)
	return append(transcript, user)
}

// sanitizeHistory strips tool scaffolding from replayed history. Persisted
// turns carry only user and assistant text; tool turns or dangling tool
// calls from old or hand-edited session files would break provider replay.
func sanitizeHistory(messages []provider.ChatMessage) []provider.ChatMessage {
	out := make([]provider.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == provider.RoleTool {
			continue
		}
		if len(msg.ToolCalls) > 0 {
			msg.ToolCalls = nil
		}
		out = append(out, msg)
	}
	return out
}
