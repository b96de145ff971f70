package havenmem

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestBuildSystemMessageConcatenationOrder(t *testing.T) {
	agent := Agent{SystemMemoryText: "You are Iris, a research assistant."}
	tools := []ToolDefinition{
		{Name: "save_memory", Description: "Save a fact to archival memory.", Parameters: json.RawMessage(`{"type":"object"}`)},
	}
	msg := buildSystemMessage(agent, tools)

	memIdx := strings.Index(msg, agent.SystemMemoryText)
	toolsIdx := strings.Index(msg, "Available tools:")
	defIdx := strings.Index(msg, "save_memory")
	guideIdx := strings.Index(msg, guidelineBlock)

	if memIdx == -1 || toolsIdx == -1 || defIdx == -1 || guideIdx == -1 {
		t.Fatalf("expected all four sections present, got %q", msg)
	}
	if !(memIdx < toolsIdx && toolsIdx < defIdx && defIdx < guideIdx) {
		t.Fatalf("expected system memory, then tool list, then guideline block, got order mem=%d tools=%d def=%d guide=%d", memIdx, toolsIdx, defIdx, guideIdx)
	}
}

func TestBuildSystemMessageWithNoTools(t *testing.T) {
	msg := buildSystemMessage(Agent{SystemMemoryText: "static memory"}, nil)
	if !strings.Contains(msg, "static memory") {
		t.Error("expected system memory text present")
	}
	if !strings.Contains(msg, guidelineBlock) {
		t.Error("expected guideline block present even with no tools")
	}
}

func TestAssembleContextLeadingMessages(t *testing.T) {
	msgs := assembleContext(Agent{SystemMemoryText: "base"}, nil, "mood: curious\n", nil)
	if len(msgs) != 2 {
		t.Fatalf("expected exactly 2 leading messages for an empty FIFO view, got %d", len(msgs))
	}
	if msgs[0].Role != "system" || !strings.Contains(msgs[0].Content, "base") {
		t.Errorf("expected first message to be the system message, got %+v", msgs[0])
	}
	if msgs[1].Role != "system" || !strings.Contains(msgs[1].Content, "mood: curious") {
		t.Errorf("expected second message to carry working memory text, got %+v", msgs[1])
	}
}

func TestAssembleContextUserMessage(t *testing.T) {
	items := []ConversationEntry{{Role: RoleUser, Content: "hello there"}}
	msgs := assembleContext(Agent{}, nil, "", items)
	last := msgs[len(msgs)-1]
	if last.Role != RoleUser || last.Content != "hello there" {
		t.Fatalf("expected a trailing user message, got %+v", last)
	}
}

// Assistant entries open a pending message; immediately following tool_call
// entries fold into that message's ToolCalls until a flush.
func TestAssembleContextFoldsToolCallsIntoAssistantMessage(t *testing.T) {
	items := []ConversationEntry{
		{Role: RoleAssistant, Content: "let me check that"},
		{Role: RoleToolCall, ToolName: "search_memory", CorrelationID: "c1", ToolArgs: json.RawMessage(`{"query":"color"}`)},
		{Role: RoleToolCall, ToolName: "read_file", CorrelationID: "c2", ToolArgs: json.RawMessage(`{"path":"a.txt"}`)},
		{Role: RoleToolResult, ToolName: "search_memory", CorrelationID: "c1", Content: "purple"},
	}
	msgs := assembleContext(Agent{}, nil, "", items)

	var assistantMsg *ChatMessage
	for i := range msgs {
		if msgs[i].Role == RoleAssistant {
			assistantMsg = &msgs[i]
		}
	}
	if assistantMsg == nil {
		t.Fatal("expected an assistant message in the assembled context")
	}
	if assistantMsg.Content != "let me check that" {
		t.Errorf("unexpected assistant content: %q", assistantMsg.Content)
	}
	if len(assistantMsg.ToolCalls) != 2 {
		t.Fatalf("expected 2 folded tool calls, got %d", len(assistantMsg.ToolCalls))
	}
	if assistantMsg.ToolCalls[0].ID != "c1" || assistantMsg.ToolCalls[1].ID != "c2" {
		t.Errorf("expected tool calls in order c1, c2, got %+v", assistantMsg.ToolCalls)
	}

	last := msgs[len(msgs)-1]
	if last.Role != "tool" || last.ToolCallID != "c1" || last.Content != "purple" {
		t.Fatalf("expected a trailing tool-role message correlated by c1, got %+v", last)
	}
}

// A tool_result entry flushes any pending assistant message before becoming
// its own "tool"-role message.
func TestAssembleContextToolResultFlushesPendingAssistant(t *testing.T) {
	items := []ConversationEntry{
		{Role: RoleAssistant, Content: "checking"},
		{Role: RoleToolResult, ToolName: "noop", CorrelationID: "c1", Content: "ok"},
	}
	msgs := assembleContext(Agent{}, nil, "", items)

	var roles []string
	for _, m := range msgs {
		roles = append(roles, m.Role)
	}
	foundAssistant := false
	foundTool := false
	assistantBeforeTool := false
	for i, r := range roles {
		if r == RoleAssistant {
			foundAssistant = true
		}
		if r == "tool" {
			foundTool = true
			if foundAssistant {
				assistantBeforeTool = true
			}
			_ = i
		}
	}
	if !foundAssistant || !foundTool || !assistantBeforeTool {
		t.Fatalf("expected assistant message to precede the tool message, got roles %v", roles)
	}
}

// system_announcement entries (the iteration-ceiling marker) become their
// own system message.
func TestAssembleContextSystemAnnouncementBecomesSystemMessage(t *testing.T) {
	items := []ConversationEntry{
		{Role: RoleUser, Content: "keep going"},
		{Role: RoleSystemAnnouncement, Content: "tool iteration limit reached"},
	}
	msgs := assembleContext(Agent{}, nil, "", items)
	last := msgs[len(msgs)-1]
	if last.Role != "system" || last.Content != "tool iteration limit reached" {
		t.Fatalf("expected a trailing system message carrying the announcement, got %+v", last)
	}
}

// assembleContext is a pure, order-preserving translation: it must not
// reorder, deduplicate, or drop entries from the FIFO view.
func TestAssembleContextPreservesOrderNoTruncation(t *testing.T) {
	items := []ConversationEntry{
		{Role: RoleUser, Content: "one"},
		{Role: RoleAssistant, Content: "two"},
		{Role: RoleUser, Content: "three"},
		{Role: RoleAssistant, Content: "four"},
	}
	msgs := assembleContext(Agent{}, nil, "", items)

	var contents []string
	for _, m := range msgs {
		if m.Content == "one" || m.Content == "two" || m.Content == "three" || m.Content == "four" {
			contents = append(contents, m.Content)
		}
	}
	want := []string{"one", "two", "three", "four"}
	if len(contents) != len(want) {
		t.Fatalf("expected all 4 entries represented, got %v", contents)
	}
	for i := range want {
		if contents[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, contents)
		}
	}
}
