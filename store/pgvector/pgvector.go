// Package pgvector implements havenmem.Store using PostgreSQL with the
// pgvector extension for native HNSW vector similarity search over cosine
// distance.
//
// Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package pgvector

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lucentlabs/havenmem"
)

// Store implements havenmem.Store backed by PostgreSQL with pgvector.
// Vector search uses an HNSW index with cosine distance.
type Store struct {
	pool *pgxpool.Pool
	cfg  pgConfig
}

// pgConfig holds store configuration set via Option functions.
type pgConfig struct {
	embeddingDimension int // 0 = untyped vector
	hnswM              int // 0 = pgvector default (16)
	hnswEFConstruction int // 0 = pgvector default (64)
	hnswEFSearch       int // 0 = pgvector default (40); havenmem's default is 64
}

// Option configures a PostgreSQL Store.
type Option func(*pgConfig)

// WithEmbeddingDimension sets the vector column dimension (e.g. 1536, 768).
// When set, CREATE TABLE uses vector(N) instead of untyped vector, enabling
// better index optimization and catching dimension mismatches at insert
// time. Only affects new table creation (no ALTER on existing tables).
func WithEmbeddingDimension(dim int) Option {
	return func(c *pgConfig) { c.embeddingDimension = dim }
}

// WithHNSWM sets the HNSW m parameter (max connections per node). Higher
// values improve recall at the cost of memory. Only affects index
// creation (CREATE INDEX IF NOT EXISTS).
func WithHNSWM(m int) Option {
	return func(c *pgConfig) { c.hnswM = m }
}

// WithEFConstruction sets the HNSW ef_construction parameter (build-time
// candidate list size). Higher values improve index quality at the cost
// of slower builds. Only affects index creation.
func WithEFConstruction(ef int) Option {
	return func(c *pgConfig) { c.hnswEFConstruction = ef }
}

// WithEFSearch sets the HNSW ef_search parameter (query-time candidate
// list size). Higher values improve recall at the cost of latency.
// Applied with SET LOCAL inside each SearchMemoryEntries transaction; Init
// also issues a session-level SET on the one pooled connection it runs on.
func WithEFSearch(ef int) Option {
	return func(c *pgConfig) { c.hnswEFSearch = ef }
}

var _ havenmem.Store = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	var cfg pgConfig
	for _, o := range opts {
		o(&cfg)
	}
	return &Store{pool: pool, cfg: cfg}
}

// vectorType returns "vector" or "vector(N)" depending on config.
func (s *Store) vectorType() string {
	if s.cfg.embeddingDimension > 0 {
		return fmt.Sprintf("vector(%d)", s.cfg.embeddingDimension)
	}
	return "vector"
}

// hnswWithClause returns the WITH (...) clause for HNSW index creation,
// or an empty string if no tuning params are set.
func (s *Store) hnswWithClause() string {
	var parts []string
	if s.cfg.hnswM > 0 {
		parts = append(parts, fmt.Sprintf("m = %d", s.cfg.hnswM))
	}
	if s.cfg.hnswEFConstruction > 0 {
		parts = append(parts, fmt.Sprintf("ef_construction = %d", s.cfg.hnswEFConstruction))
	}
	if len(parts) == 0 {
		return ""
	}
	return " WITH (" + strings.Join(parts, ", ") + ")"
}

// Init creates the pgvector extension, all required tables, and indexes.
// Safe to call multiple times (all statements are idempotent).
func (s *Store) Init(ctx context.Context) error {
	vtype := s.vectorType()
	hnswWith := s.hnswWithClause()

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		`CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			model_id TEXT NOT NULL DEFAULT '',
			system_memory_text TEXT NOT NULL DEFAULT '',
			working_memory_text TEXT NOT NULL DEFAULT '',
			fifo_capacity INTEGER NOT NULL DEFAULT 50,
			workspace_root TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS conversation_history (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_name TEXT NOT NULL DEFAULT '',
			tool_args JSONB,
			correlation_id TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_history_agent ON conversation_history(agent_id, created_at)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memory_entries (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding %s NOT NULL,
			metadata JSONB,
			created_at BIGINT NOT NULL
		)`, vtype),
		`CREATE INDEX IF NOT EXISTS idx_memory_entries_agent ON memory_entries(agent_id)`,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_memory_entries_embedding ON memory_entries USING hnsw (embedding vector_cosine_ops)%s`, hnswWith),
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgvector: init: %w", err)
		}
	}

	if s.cfg.hnswEFSearch > 0 {
		if _, err := s.pool.Exec(ctx, fmt.Sprintf("SET hnsw.ef_search = %d", s.cfg.hnswEFSearch)); err != nil {
			return fmt.Errorf("pgvector: set ef_search: %w", err)
		}
	}

	return nil
}

// --- Agents ---

func (s *Store) CreateAgent(ctx context.Context, agent havenmem.Agent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agents (id, name, model_id, system_memory_text, working_memory_text, fifo_capacity, workspace_root, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		agent.ID, agent.Name, agent.ModelID, agent.SystemMemoryText, agent.WorkingMemoryText,
		agent.FIFOCapacity, agent.WorkspaceRoot, agent.CreatedAt, agent.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pgvector: create agent: %w", err)
	}
	return nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (havenmem.Agent, error) {
	return s.scanOneAgent(ctx,
		`SELECT id, name, model_id, system_memory_text, working_memory_text, fifo_capacity, workspace_root, created_at, updated_at FROM agents WHERE id = $1`, id)
}

func (s *Store) GetAgentByName(ctx context.Context, name string) (havenmem.Agent, error) {
	return s.scanOneAgent(ctx,
		`SELECT id, name, model_id, system_memory_text, working_memory_text, fifo_capacity, workspace_root, created_at, updated_at FROM agents WHERE name = $1`, name)
}

func (s *Store) scanOneAgent(ctx context.Context, query, arg string) (havenmem.Agent, error) {
	var a havenmem.Agent
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&a.ID, &a.Name, &a.ModelID, &a.SystemMemoryText, &a.WorkingMemoryText,
		&a.FIFOCapacity, &a.WorkspaceRoot, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return havenmem.Agent{}, fmt.Errorf("pgvector: get agent: %w", err)
	}
	return a, nil
}

func (s *Store) UpdateAgent(ctx context.Context, agent havenmem.Agent) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE agents SET name=$1, model_id=$2, system_memory_text=$3, working_memory_text=$4, fifo_capacity=$5, workspace_root=$6, updated_at=$7 WHERE id=$8`,
		agent.Name, agent.ModelID, agent.SystemMemoryText, agent.WorkingMemoryText,
		agent.FIFOCapacity, agent.WorkspaceRoot, agent.UpdatedAt, agent.ID)
	if err != nil {
		return fmt.Errorf("pgvector: update agent: %w", err)
	}
	return nil
}

func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgvector: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM conversation_history WHERE agent_id = $1`, id); err != nil {
		return fmt.Errorf("pgvector: delete agent history: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM memory_entries WHERE agent_id = $1`, id); err != nil {
		return fmt.Errorf("pgvector: delete agent memory entries: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("pgvector: delete agent: %w", err)
	}
	return tx.Commit(ctx)
}

// --- Conversation log ---

func (s *Store) AppendConversationEntry(ctx context.Context, entry havenmem.ConversationEntry) error {
	var toolArgs *string
	if len(entry.ToolArgs) > 0 {
		v := string(entry.ToolArgs)
		toolArgs = &v
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversation_history (id, agent_id, role, content, tool_name, tool_args, correlation_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)`,
		entry.ID, entry.AgentID, entry.Role, entry.Content, entry.ToolName, toolArgs, entry.CorrelationID, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("pgvector: append conversation entry: %w", err)
	}
	return nil
}

func (s *Store) RecentConversationEntries(ctx context.Context, agentID string, limit int) ([]havenmem.ConversationEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_id, role, content, tool_name, tool_args, correlation_id, created_at
		 FROM conversation_history
		 WHERE agent_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("pgvector: recent conversation entries: %w", err)
	}
	defer rows.Close()

	var entries []havenmem.ConversationEntry
	for rows.Next() {
		var e havenmem.ConversationEntry
		var toolArgs []byte
		if err := rows.Scan(&e.ID, &e.AgentID, &e.Role, &e.Content, &e.ToolName, &toolArgs, &e.CorrelationID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgvector: scan conversation entry: %w", err)
		}
		if toolArgs != nil {
			e.ToolArgs = json.RawMessage(toolArgs)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: iterate conversation entries: %w", err)
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// --- Archival store ---

func (s *Store) InsertMemoryEntry(ctx context.Context, entry havenmem.MemoryEntry) error {
	var metaJSON *string
	if len(entry.Metadata) > 0 {
		data, _ := json.Marshal(entry.Metadata)
		v := string(data)
		metaJSON = &v
	}

	embStr := serializeEmbedding(entry.Embedding)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO memory_entries (id, agent_id, content, embedding, metadata, created_at)
		 VALUES ($1, $2, $3, $4::vector, $5::jsonb, $6)`,
		entry.ID, entry.AgentID, entry.Content, embStr, metaJSON, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("pgvector: insert memory entry: %w", err)
	}
	return nil
}

func (s *Store) SearchMemoryEntries(ctx context.Context, agentID string, queryVector []float32, topK int) ([]havenmem.ScoredMemoryEntry, error) {
	embStr := serializeEmbedding(queryVector)

	// A read-only transaction scopes SET LOCAL to the connection running the query.
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pgvector: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if s.cfg.hnswEFSearch > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", s.cfg.hnswEFSearch)); err != nil {
			return nil, fmt.Errorf("pgvector: set ef_search: %w", err)
		}
	}

	rows, err := tx.Query(ctx,
		`SELECT id, agent_id, content, metadata, created_at,
		        1 - (embedding <=> $1::vector) AS score
		 FROM memory_entries
		 WHERE agent_id = $2
		 ORDER BY embedding <=> $1::vector
		 LIMIT $3`,
		embStr, agentID, topK)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search memory entries: %w", err)
	}
	defer rows.Close()

	var results []havenmem.ScoredMemoryEntry
	for rows.Next() {
		var e havenmem.MemoryEntry
		var metaJSON []byte
		var score float32
		if err := rows.Scan(&e.ID, &e.AgentID, &e.Content, &metaJSON, &e.CreatedAt, &score); err != nil {
			return nil, fmt.Errorf("pgvector: scan memory entry: %w", err)
		}
		if metaJSON != nil {
			_ = json.Unmarshal(metaJSON, &e.Metadata)
		}
		results = append(results, havenmem.ScoredMemoryEntry{MemoryEntry: e, Score: score})
	}
	return results, rows.Err()
}

func (s *Store) CountMemoryEntries(ctx context.Context, agentID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM memory_entries WHERE agent_id = $1`, agentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pgvector: count memory entries: %w", err)
	}
	return n, nil
}

// Close is a no-op. The caller owns the pool and manages its lifecycle.
func (s *Store) Close() error {
	return nil
}

// serializeEmbedding converts []float32 to a string like "[0.1,0.2,0.3]"
// suitable for pgvector's text input format.
func serializeEmbedding(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
