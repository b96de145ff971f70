// Package litestore implements havenmem.Store using pure-Go SQLite with
// in-process brute-force vector search. Zero CGO required; intended for
// development and tests, not for production-scale archival search.
package litestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/lucentlabs/havenmem"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a litestore Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store logs Init, agent writes, conversation-log appends and
// reads, and archival inserts and searches at debug level with timing (Init
// completion at info); agent lookups and counts are not logged. If not set,
// no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements havenmem.Store backed by a local SQLite file. Embeddings
// are stored as JSON text and vector search is done in-process using
// brute-force cosine similarity.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ havenmem.Store = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("litestore: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("litestore: store opened", "path", dbPath)
	return s
}

// Init creates the agents, conversation_history, and memory_entries tables.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	s.logger.Debug("litestore: init started")

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			model_id TEXT NOT NULL DEFAULT '',
			system_memory_text TEXT NOT NULL DEFAULT '',
			working_memory_text TEXT NOT NULL DEFAULT '',
			fifo_capacity INTEGER NOT NULL DEFAULT 50,
			workspace_root TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_history (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_name TEXT NOT NULL DEFAULT '',
			tool_args TEXT,
			correlation_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_history_agent ON conversation_history(agent_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS memory_entries (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding TEXT NOT NULL,
			metadata TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_entries_agent ON memory_entries(agent_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("litestore: init: %w", err)
		}
	}

	s.logger.Info("litestore: init completed", "duration", time.Since(start))
	return nil
}

// --- Agents ---

func (s *Store) CreateAgent(ctx context.Context, agent havenmem.Agent) error {
	start := time.Now()
	s.logger.Debug("litestore: create agent", "id", agent.ID, "name", agent.Name)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (id, name, model_id, system_memory_text, working_memory_text, fifo_capacity, workspace_root, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		agent.ID, agent.Name, agent.ModelID, agent.SystemMemoryText, agent.WorkingMemoryText,
		agent.FIFOCapacity, agent.WorkspaceRoot, agent.CreatedAt, agent.UpdatedAt)
	if err != nil {
		s.logger.Error("litestore: create agent failed", "id", agent.ID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("litestore: create agent: %w", err)
	}
	s.logger.Debug("litestore: create agent ok", "id", agent.ID, "duration", time.Since(start))
	return nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (havenmem.Agent, error) {
	return s.scanOneAgent(ctx, `SELECT id, name, model_id, system_memory_text, working_memory_text, fifo_capacity, workspace_root, created_at, updated_at FROM agents WHERE id = ?`, id)
}

func (s *Store) GetAgentByName(ctx context.Context, name string) (havenmem.Agent, error) {
	return s.scanOneAgent(ctx, `SELECT id, name, model_id, system_memory_text, working_memory_text, fifo_capacity, workspace_root, created_at, updated_at FROM agents WHERE name = ?`, name)
}

func (s *Store) scanOneAgent(ctx context.Context, query, arg string) (havenmem.Agent, error) {
	var a havenmem.Agent
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&a.ID, &a.Name, &a.ModelID, &a.SystemMemoryText, &a.WorkingMemoryText,
		&a.FIFOCapacity, &a.WorkspaceRoot, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return havenmem.Agent{}, fmt.Errorf("litestore: get agent: %w", err)
	}
	return a, nil
}

func (s *Store) UpdateAgent(ctx context.Context, agent havenmem.Agent) error {
	start := time.Now()
	s.logger.Debug("litestore: update agent", "id", agent.ID)

	_, err := s.db.ExecContext(ctx,
		`UPDATE agents SET name=?, model_id=?, system_memory_text=?, working_memory_text=?, fifo_capacity=?, workspace_root=?, updated_at=? WHERE id=?`,
		agent.Name, agent.ModelID, agent.SystemMemoryText, agent.WorkingMemoryText,
		agent.FIFOCapacity, agent.WorkspaceRoot, agent.UpdatedAt, agent.ID)
	if err != nil {
		s.logger.Error("litestore: update agent failed", "id", agent.ID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("litestore: update agent: %w", err)
	}
	s.logger.Debug("litestore: update agent ok", "id", agent.ID, "duration", time.Since(start))
	return nil
}

func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	start := time.Now()
	s.logger.Debug("litestore: delete agent", "id", id)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("litestore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_history WHERE agent_id = ?`, id); err != nil {
		return fmt.Errorf("litestore: delete agent history: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_entries WHERE agent_id = ?`, id); err != nil {
		return fmt.Errorf("litestore: delete agent memory entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("litestore: delete agent: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("litestore: delete agent commit: %w", err)
	}
	s.logger.Debug("litestore: delete agent ok", "id", id, "duration", time.Since(start))
	return nil
}

// --- Conversation log ---

func (s *Store) AppendConversationEntry(ctx context.Context, entry havenmem.ConversationEntry) error {
	start := time.Now()
	s.logger.Debug("litestore: append conversation entry", "id", entry.ID, "agent_id", entry.AgentID, "role", entry.Role)

	var toolArgs *string
	if len(entry.ToolArgs) > 0 {
		v := string(entry.ToolArgs)
		toolArgs = &v
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_history (id, agent_id, role, content, tool_name, tool_args, correlation_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.AgentID, entry.Role, entry.Content, entry.ToolName, toolArgs, entry.CorrelationID, entry.CreatedAt)
	if err != nil {
		s.logger.Error("litestore: append conversation entry failed", "id", entry.ID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("litestore: append conversation entry: %w", err)
	}
	s.logger.Debug("litestore: append conversation entry ok", "id", entry.ID, "duration", time.Since(start))
	return nil
}

func (s *Store) RecentConversationEntries(ctx context.Context, agentID string, limit int) ([]havenmem.ConversationEntry, error) {
	start := time.Now()
	s.logger.Debug("litestore: recent conversation entries", "agent_id", agentID, "limit", limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, role, content, tool_name, tool_args, correlation_id, created_at
		 FROM conversation_history
		 WHERE agent_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		agentID, limit)
	if err != nil {
		s.logger.Error("litestore: recent conversation entries failed", "agent_id", agentID, "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("litestore: recent conversation entries: %w", err)
	}
	defer rows.Close()

	var entries []havenmem.ConversationEntry
	for rows.Next() {
		var e havenmem.ConversationEntry
		var toolArgs sql.NullString
		if err := rows.Scan(&e.ID, &e.AgentID, &e.Role, &e.Content, &e.ToolName, &toolArgs, &e.CorrelationID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("litestore: scan conversation entry: %w", err)
		}
		if toolArgs.Valid {
			e.ToolArgs = json.RawMessage(toolArgs.String)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("litestore: iterate conversation entries: %w", err)
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	s.logger.Debug("litestore: recent conversation entries ok", "agent_id", agentID, "count", len(entries), "duration", time.Since(start))
	return entries, nil
}

// --- Archival store ---

func (s *Store) InsertMemoryEntry(ctx context.Context, entry havenmem.MemoryEntry) error {
	start := time.Now()
	s.logger.Debug("litestore: insert memory entry", "id", entry.ID, "agent_id", entry.AgentID)

	var metaJSON *string
	if len(entry.Metadata) > 0 {
		data, _ := json.Marshal(entry.Metadata)
		v := string(data)
		metaJSON = &v
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_entries (id, agent_id, content, embedding, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.AgentID, entry.Content, serializeEmbedding(entry.Embedding), metaJSON, entry.CreatedAt)
	if err != nil {
		s.logger.Error("litestore: insert memory entry failed", "id", entry.ID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("litestore: insert memory entry: %w", err)
	}
	s.logger.Debug("litestore: insert memory entry ok", "id", entry.ID, "duration", time.Since(start))
	return nil
}

func (s *Store) SearchMemoryEntries(ctx context.Context, agentID string, queryVector []float32, topK int) ([]havenmem.ScoredMemoryEntry, error) {
	start := time.Now()
	s.logger.Debug("litestore: search memory entries", "agent_id", agentID, "top_k", topK, "embedding_dim", len(queryVector))

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, content, embedding, metadata, created_at
		 FROM memory_entries WHERE agent_id = ?`, agentID)
	if err != nil {
		s.logger.Error("litestore: search memory entries failed", "agent_id", agentID, "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("litestore: search memory entries: %w", err)
	}
	defer rows.Close()

	var results []havenmem.ScoredMemoryEntry
	scanned := 0
	for rows.Next() {
		var e havenmem.MemoryEntry
		var embJSON string
		var metaJSON sql.NullString
		if err := rows.Scan(&e.ID, &e.AgentID, &e.Content, &embJSON, &metaJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("litestore: scan memory entry: %w", err)
		}
		scanned++
		if metaJSON.Valid {
			_ = json.Unmarshal([]byte(metaJSON.String), &e.Metadata)
		}
		stored, err := deserializeEmbedding(embJSON)
		if err != nil {
			continue
		}
		results = append(results, havenmem.ScoredMemoryEntry{MemoryEntry: e, Score: cosineSimilarity(queryVector, stored)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("litestore: iterate memory entries: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].CreatedAt > results[j].CreatedAt
	})
	if len(results) > topK {
		results = results[:topK]
	}

	s.logger.Debug("litestore: search memory entries ok", "scanned", scanned, "returned", len(results), "duration", time.Since(start))
	return results, nil
}

func (s *Store) CountMemoryEntries(ctx context.Context, agentID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_entries WHERE agent_id = ?`, agentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("litestore: count memory entries: %w", err)
	}
	return n, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.logger.Debug("litestore: closing store")
	err := s.db.Close()
	if err != nil {
		s.logger.Error("litestore: close failed", "error", err)
	}
	return err
}

// --- Vector math ---

// cosineSimilarity computes the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}

// serializeEmbedding converts []float32 to a JSON array string.
func serializeEmbedding(embedding []float32) string {
	data, _ := json.Marshal(embedding)
	return string(data)
}

// deserializeEmbedding parses a JSON array string back to []float32.
func deserializeEmbedding(s string) ([]float32, error) {
	var v []float32
	err := json.Unmarshal([]byte(s), &v)
	return v, err
}
