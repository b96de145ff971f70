package havenmem

import (
	"encoding/json"
	"strings"
)

// guidelineBlock is the fixed operating-instructions text appended to every
// system message (§4.3). It never varies per agent or per turn.
const guidelineBlock = `You are an autonomous assistant with access to a closed set of tools. ` +
	`Call a tool only when it is necessary to answer the request. Tool results ` +
	`are visible to you but not directly to the user: synthesize what you learn ` +
	`from them into your final reply. Memory beyond what is shown here is only ` +
	`reachable by explicitly calling search_memory.`

// buildSystemMessage concatenates the agent's static system memory, the
// JSON-schema description of every registered tool, and the fixed
// guideline block into one system message (§4.3). The concatenation order
// never changes.
func buildSystemMessage(agent Agent, tools []ToolDefinition) string {
	var b strings.Builder
	b.WriteString(agent.SystemMemoryText)
	b.WriteString("\n\n")
	b.WriteString("Available tools:\n")
	for _, t := range tools {
		b.WriteString("- ")
		b.WriteString(t.Name)
		b.WriteString(": ")
		b.WriteString(t.Description)
		if len(t.Parameters) > 0 {
			b.WriteString(" params=")
			b.Write(t.Parameters)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(guidelineBlock)
	return b.String()
}

// assembleContext builds the deterministic message list handed to the chat
// provider (§4.3): system memory + tool schemas + guideline block, the
// working-memory document, and the FIFO view translated into chat roles.
//
// Translation rules:
//   - user, system_announcement entries become their own message.
//   - assistant entries open a pending assistant message; any immediately
//     following tool_call entries fold into that message's ToolCalls.
//   - tool_result entries close the pending assistant message (if any) and
//     become a "tool" role message correlated by CorrelationID.
//
// No reordering, deduplication, truncation, or archival injection happens
// here (§4.3 Non-goals) — assembleContext is a pure, order-preserving
// translation of exactly what the FIFO view holds.
func assembleContext(agent Agent, tools []ToolDefinition, workingMemoryText string, items []ConversationEntry) []ChatMessage {
	msgs := make([]ChatMessage, 0, len(items)+2)
	msgs = append(msgs, SystemChatMessage(buildSystemMessage(agent, tools)))
	msgs = append(msgs, SystemChatMessage("Working memory:\n"+workingMemoryText))

	var (
		pendingText  string
		pendingCalls []ToolCall
		pendingOpen  bool
	)
	flush := func() {
		if pendingOpen {
			msgs = append(msgs, AssistantChatMessage(pendingText, pendingCalls))
			pendingText = ""
			pendingCalls = nil
			pendingOpen = false
		}
	}

	for _, e := range items {
		switch e.Role {
		case RoleUser:
			flush()
			msgs = append(msgs, UserChatMessage(e.Content))
		case RoleAssistant:
			flush()
			pendingText = e.Content
			pendingOpen = true
		case RoleToolCall:
			pendingCalls = append(pendingCalls, ToolCall{
				ID:   e.CorrelationID,
				Name: e.ToolName,
				Args: json.RawMessage(e.ToolArgs),
			})
			pendingOpen = true
		case RoleToolResult:
			flush()
			msgs = append(msgs, ToolResultChatMessage(e.CorrelationID, e.Content))
		case RoleSystemAnnouncement:
			flush()
			msgs = append(msgs, SystemChatMessage(e.Content))
		}
	}
	flush()

	return msgs
}
