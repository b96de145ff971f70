package havenmem

import "context"

// Store abstracts persistence over a relational backend with vector-search
// support: the agent record, the append-only conversation log, and the
// archival memory-entry table with its HNSW (or brute-force) cosine index.
//
// Every method that accepts an agentID filters strictly by it; no
// implementation may allow a cross-agent read or write to reach another
// agent's rows (§3 agent isolation invariant).
type Store interface {
	// --- Agents ---

	CreateAgent(ctx context.Context, agent Agent) error
	GetAgent(ctx context.Context, id string) (Agent, error)
	GetAgentByName(ctx context.Context, name string) (Agent, error)
	UpdateAgent(ctx context.Context, agent Agent) error
	DeleteAgent(ctx context.Context, id string) error

	// --- Conversation log (§4.2, §4.8) ---

	// AppendConversationEntry appends one row to the append-only log. Each
	// append is its own transaction (§4.8).
	AppendConversationEntry(ctx context.Context, entry ConversationEntry) error
	// RecentConversationEntries returns the last limit rows for an agent, in
	// chronological order (oldest first) — the shape load_from_log needs to
	// seed the FIFO view on restart.
	RecentConversationEntries(ctx context.Context, agentID string, limit int) ([]ConversationEntry, error)

	// --- Archival store (§4.1) ---

	// InsertMemoryEntry inserts one (content, vector) pair. A store built
	// with a fixed dimension (pgvector with WithEmbeddingDimension) rejects a
	// vector of another length; litestore stores vectors of any length.
	// Session checks the length against the embedding provider's
	// Dimensions() before calling this.
	InsertMemoryEntry(ctx context.Context, entry MemoryEntry) error
	// SearchMemoryEntries returns up to topK entries for agentID ordered by
	// descending cosine similarity to queryVector.
	SearchMemoryEntries(ctx context.Context, agentID string, queryVector []float32, topK int) ([]ScoredMemoryEntry, error)
	// CountMemoryEntries returns the number of archival rows for an agent.
	CountMemoryEntries(ctx context.Context, agentID string) (int, error)

	// --- Lifecycle ---

	Init(ctx context.Context) error
	Close() error
}
