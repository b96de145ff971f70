package havenmem

import "encoding/json"

// Role values for ConversationEntry.
const (
	RoleUser              = "user"
	RoleAssistant         = "assistant"
	RoleToolCall          = "tool_call"
	RoleToolResult        = "tool_result"
	RoleSystemAnnouncement = "system_announcement"
)

// Agent is the identity for one memory hierarchy: a display name, a chat
// model, static system memory, a mutable working-memory document, a FIFO
// capacity, and a disjoint workspace root.
type Agent struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	ModelID           string `json:"model_id"`
	SystemMemoryText  string `json:"system_memory_text"`
	WorkingMemoryText string `json:"working_memory_text"`
	FIFOCapacity      int    `json:"fifo_capacity"`
	WorkspaceRoot     string `json:"workspace_root"`
	CreatedAt         int64  `json:"created_at"`
	UpdatedAt         int64  `json:"updated_at"`
}

// MemoryEntry is one archival row: durable (content, vector) pair owned by
// an agent. Entries are append-only; deletion happens only via cascading
// agent removal.
type MemoryEntry struct {
	ID        string            `json:"id"`
	AgentID   string            `json:"agent_id"`
	Content   string            `json:"content"`
	Embedding []float32         `json:"-"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt int64             `json:"created_at"`
}

// ScoredMemoryEntry pairs a MemoryEntry with its cosine similarity to a
// query vector. Score is in [-1, 1]; for unit-normalized vectors it is in
// [0, 1].
type ScoredMemoryEntry struct {
	MemoryEntry
	Score float32 `json:"score"`
}

// ConversationEntry is one row of the append-only conversation log and, in
// its last-K view, one element of the in-memory FIFO queue.
type ConversationEntry struct {
	ID            string `json:"id"`
	AgentID       string `json:"agent_id"`
	Role          string `json:"role"`
	Content       string `json:"content"`
	ToolName      string `json:"tool_name,omitempty"`
	ToolArgs      json.RawMessage `json:"tool_args,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	CreatedAt     int64  `json:"created_at"`
}

// --- LLM protocol types ---

// ChatMessage is one element of the message list handed to the chat client.
type ChatMessage struct {
	Role       string     `json:"role"` // "system", "user", "assistant", "tool"
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a transient, correlation-id-tagged request to invoke a named
// tool with structured arguments. Produced by the chat client, consumed by
// the dispatcher; never persisted as a distinct entity — the role=tool_call
// ConversationEntry is its persistence form.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ToolDefinition is the JSON-schema description of one callable tool,
// supplied to the chat client on every request.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ChatRequest is one call to the chat client: the full assembled message
// list plus the closed tool set.
type ChatRequest struct {
	Messages []ChatMessage    `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}

// ChatResponse is the chat client's reply: either terminal text, or text
// plus a list of tool calls to execute before the loop continues.
type ChatResponse struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
}

// Usage reports token accounting for one chat call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// --- ChatMessage constructors ---

func UserChatMessage(text string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: text}
}

func SystemChatMessage(text string) ChatMessage {
	return ChatMessage{Role: "system", Content: text}
}

func AssistantChatMessage(text string, calls []ToolCall) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: text, ToolCalls: calls}
}

func ToolResultChatMessage(correlationID, content string) ChatMessage {
	return ChatMessage{Role: "tool", Content: content, ToolCallID: correlationID}
}
