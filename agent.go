package havenmem

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultMaxToolIterations caps the number of model/tool round-trips within
// a single Step call before a forced synthesis pass (§4.7, §9 resolution:
// 8, not the 10 some chat frameworks default to).
const DefaultMaxToolIterations = 8

// maxConcurrentToolCalls bounds the worker pool used to dispatch same-turn
// tool calls concurrently (§4.7, §5).
const maxConcurrentToolCalls = 10

// Config wires the backends a Session needs: persistence, the chat and
// embedding providers, and the closed tool set.
type Config struct {
	Store             Store
	Provider          ChatProvider
	Embedding         EmbeddingProvider
	Tools             *ToolRegistry
	Logger            *slog.Logger
	MaxToolIterations int
}

// Session is one running memory hierarchy: an Agent record plus the live
// FIFO view and working-memory document backing it. A Session serializes
// its own turns; concurrent Step calls on the same Session block on one
// another (§5).
type Session struct {
	record Agent
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex // serializes Step calls against this session
	fifo *fifoQueue
	wm   *workingMemoryDoc
}

// NewSession loads the agent named defaults.Name from cfg.Store, creating
// it with the given defaults if it does not yet exist, seeds the FIFO view
// from the persisted log, and parses the working-memory document (§4.2
// restart replay).
func NewSession(ctx context.Context, cfg Config, defaults Agent) (*Session, error) {
	if cfg.Store == nil || cfg.Provider == nil || cfg.Embedding == nil || cfg.Tools == nil {
		return nil, &ErrConfig{Field: "Config", Reason: "Store, Provider, Embedding, and Tools are all required"}
	}
	if cfg.MaxToolIterations <= 0 {
		cfg.MaxToolIterations = DefaultMaxToolIterations
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(discardHandler{})
	}

	rec, err := cfg.Store.GetAgentByName(ctx, defaults.Name)
	if err != nil {
		if defaults.ID == "" {
			defaults.ID = NewID()
		}
		if defaults.FIFOCapacity <= 0 {
			defaults.FIFOCapacity = DefaultFIFOCapacity
		}
		now := NowUnix()
		defaults.CreatedAt = now
		defaults.UpdatedAt = now
		if err := cfg.Store.CreateAgent(ctx, defaults); err != nil {
			return nil, fmt.Errorf("havenmem: create agent %q: %w", defaults.Name, err)
		}
		rec = defaults
	}

	limit := rec.FIFOCapacity
	if limit <= 0 {
		limit = DefaultFIFOCapacity
	}
	entries, err := cfg.Store.RecentConversationEntries(ctx, rec.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("havenmem: load conversation log for %q: %w", rec.Name, err)
	}

	fifo := newFIFOQueue(limit)
	fifo.loadFromLog(entries)

	s := &Session{
		record: rec,
		cfg:    cfg,
		logger: logger,
		fifo:   fifo,
		wm:     parseWorkingMemoryDoc(rec.WorkingMemoryText),
	}
	return s, nil
}

// ID returns the session's agent identifier.
func (s *Session) ID() string { return s.record.ID }

// Name returns the agent's display name.
func (s *Session) Name() string { return s.record.Name }

// Step runs one full turn of the step loop state machine (§4.7):
// idle → awaiting_model → executing_tools → (loop) → terminal.
//
// The user message is persisted before any model call. Each model/tool
// round trip persists the assistant message, its tool_call rows, and the
// resulting tool_result rows, in that order, before the loop continues.
// If cfg.MaxToolIterations round trips (DefaultMaxToolIterations when
// unset) pass without a terminal (no
// tool calls) response, a final call is made with no tools offered, forcing
// a synthesis pass.
func (s *Session) Step(ctx context.Context, userText string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.appendEntry(ctx, ConversationEntry{
		AgentID: s.record.ID,
		Role:    RoleUser,
		Content: userText,
	}); err != nil {
		return "", err
	}

	toolDefs := s.cfg.Tools.AllDefinitions()

	for iter := 0; iter < s.cfg.MaxToolIterations; iter++ {
		resp, err := s.callModel(ctx, toolDefs)
		if err != nil {
			return "", err
		}
		if len(resp.ToolCalls) == 0 {
			if err := s.appendEntry(ctx, ConversationEntry{
				AgentID: s.record.ID,
				Role:    RoleAssistant,
				Content: resp.Content,
			}); err != nil {
				return "", err
			}
			return resp.Content, nil
		}

		if err := s.appendEntry(ctx, ConversationEntry{
			AgentID: s.record.ID,
			Role:    RoleAssistant,
			Content: resp.Content,
		}); err != nil {
			return "", err
		}
		for _, call := range resp.ToolCalls {
			if err := s.appendEntry(ctx, ConversationEntry{
				AgentID:       s.record.ID,
				Role:          RoleToolCall,
				ToolName:      call.Name,
				ToolArgs:      json.RawMessage(call.Args),
				CorrelationID: call.ID,
			}); err != nil {
				return "", err
			}
		}

		results := s.dispatchToolCalls(ctx, resp.ToolCalls)
		for i, call := range resp.ToolCalls {
			if err := s.appendEntry(ctx, ConversationEntry{
				AgentID:       s.record.ID,
				Role:          RoleToolResult,
				Content:       results[i].content(),
				ToolName:      call.Name,
				CorrelationID: call.ID,
			}); err != nil {
				return "", err
			}
		}
	}

	// Ceiling reached: force a synthesis pass with no tools offered.
	if err := s.appendEntry(ctx, ConversationEntry{
		AgentID: s.record.ID,
		Role:    RoleSystemAnnouncement,
		Content: "tool iteration limit reached",
	}); err != nil {
		return "", err
	}
	resp, err := s.callModel(ctx, nil)
	if err != nil {
		return "", err
	}
	if err := s.appendEntry(ctx, ConversationEntry{
		AgentID: s.record.ID,
		Role:    RoleAssistant,
		Content: resp.Content,
	}); err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (s *Session) callModel(ctx context.Context, toolDefs []ToolDefinition) (ChatResponse, error) {
	messages := assembleContext(s.record, toolDefs, s.wm.text(), s.fifo.items())
	resp, err := s.cfg.Provider.Chat(ctx, ChatRequest{Messages: messages, Tools: toolDefs})
	if err != nil {
		return ChatResponse{}, &ErrBackendUnavailable{Backend: s.cfg.Provider.Name(), Cause: err}
	}
	return resp, nil
}

// appendEntry persists entry to the log, then mutates the in-memory FIFO
// view, then — if that mutation overflowed — attempts archival promotion
// of the evicted entry in the background, best-effort (§4.2, §4.8: the log
// write is always the durable record; promotion never blocks the turn).
func (s *Session) appendEntry(ctx context.Context, entry ConversationEntry) error {
	entry.ID = NewID()
	entry.CreatedAt = NowUnix()

	if err := s.cfg.Store.AppendConversationEntry(ctx, entry); err != nil {
		return &ErrBackendUnavailable{Backend: "store", Cause: err}
	}

	overflowed, ok := s.fifo.append(entry)
	if !ok || !eligibleForArchival(overflowed) {
		return nil
	}
	s.promoteToArchival(overflowed)
	return nil
}

func (s *Session) promoteToArchival(entry ConversationEntry) {
	go func() {
		ctx := context.WithoutCancel(context.Background())
		vector, err := s.cfg.Embedding.Embed(ctx, entry.Content)
		if err != nil {
			s.logger.Warn("archival promotion embed failed", "agent_id", s.record.ID, "entry_id", entry.ID, "error", err)
			return
		}
		if want := s.cfg.Embedding.Dimensions(); len(vector) != want {
			s.logger.Warn("archival promotion embedding dimension mismatch", "agent_id", s.record.ID, "entry_id", entry.ID, "want", want, "got", len(vector))
			return
		}
		mem := MemoryEntry{
			ID:        NewID(),
			AgentID:   s.record.ID,
			Content:   entry.Content,
			Embedding: vector,
			Metadata:  map[string]string{"source_role": entry.Role, "source_entry_id": entry.ID},
			CreatedAt: NowUnix(),
		}
		if err := s.cfg.Store.InsertMemoryEntry(ctx, mem); err != nil {
			s.logger.Warn("archival promotion insert failed", "agent_id", s.record.ID, "entry_id", entry.ID, "error", err)
		}
	}()
}

// SaveMemory embeds content and inserts it into the archival store,
// tagged with the given metadata (§4.6 save_memory).
func (s *Session) SaveMemory(ctx context.Context, content string, tags map[string]string) error {
	vector, err := s.cfg.Embedding.Embed(ctx, content)
	if err != nil {
		return &ErrBackendUnavailable{Backend: s.cfg.Embedding.Name(), Cause: err}
	}
	if want := s.cfg.Embedding.Dimensions(); len(vector) != want {
		return &ErrValidation{Field: "embedding", Reason: fmt.Sprintf("dimension mismatch: provider returned %d, store expects %d", len(vector), want)}
	}
	mem := MemoryEntry{
		ID:        NewID(),
		AgentID:   s.record.ID,
		Content:   content,
		Embedding: vector,
		Metadata:  tags,
		CreatedAt: NowUnix(),
	}
	if err := s.cfg.Store.InsertMemoryEntry(ctx, mem); err != nil {
		return &ErrBackendUnavailable{Backend: "store", Cause: err}
	}
	return nil
}

// SearchMemory embeds query and returns the topK nearest archival entries
// for this agent (§4.6 search_memory).
func (s *Session) SearchMemory(ctx context.Context, query string, topK int) ([]ScoredMemoryEntry, error) {
	vector, err := s.cfg.Embedding.Embed(ctx, query)
	if err != nil {
		return nil, &ErrBackendUnavailable{Backend: s.cfg.Embedding.Name(), Cause: err}
	}
	results, err := s.cfg.Store.SearchMemoryEntries(ctx, s.record.ID, vector, topK)
	if err != nil {
		return nil, &ErrBackendUnavailable{Backend: "store", Cause: err}
	}
	return results, nil
}

// UpdateWorkingMemory sets field to value in the working-memory document
// and persists the agent record with the re-rendered document text. The
// update is rejected without mutating state if it would exceed
// MaxWorkingMemoryBytes (§4.6 update_working_memory).
func (s *Session) UpdateWorkingMemory(ctx context.Context, field, value string) error {
	rendered, err := s.wm.set(field, value)
	if err != nil {
		return err
	}
	s.record.WorkingMemoryText = rendered
	s.record.UpdatedAt = NowUnix()
	if err := s.cfg.Store.UpdateAgent(ctx, s.record); err != nil {
		return &ErrBackendUnavailable{Backend: "store", Cause: err}
	}
	return nil
}

// toolExecResult is the outcome of one dispatched tool call, paired with
// any dispatch-level failure (panic recovery, per §5).
type toolExecResult struct {
	result ToolResult
	err    error
}

func (r toolExecResult) content() string {
	if r.err != nil {
		return "tool execution failed: " + r.err.Error()
	}
	if r.result.Error != "" {
		return "error: " + r.result.Error
	}
	return r.result.Content
}

// dispatchToolCalls runs independent same-turn tool calls concurrently,
// bounded to maxConcurrentToolCalls workers, but returns results in the
// same order the calls were issued so the persisted log stays
// deterministic regardless of completion order (§4.7, §5; grounded on the
// bounded worker-pool dispatch pattern used for concurrent same-turn work).
func (s *Session) dispatchToolCalls(ctx context.Context, calls []ToolCall) []toolExecResult {
	results := make([]toolExecResult, len(calls))
	if len(calls) == 0 {
		return results
	}

	width := maxConcurrentToolCalls
	if width > len(calls) {
		width = len(calls)
	}
	sem := make(chan struct{}, width)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, call ToolCall) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = s.safeDispatch(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

// safeDispatch executes one tool call, converting a panic in tool code
// into a toolExecResult error instead of crashing the step loop, and logs
// the call's duration and outcome at debug level.
func (s *Session) safeDispatch(ctx context.Context, call ToolCall) (out toolExecResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = toolExecResult{err: fmt.Errorf("panic: %v", r)}
		}
		ok := out.err == nil && out.result.Error == ""
		s.logger.Debug("tool call", "agent_id", s.record.ID, "tool", call.Name, "duration", time.Since(start), "ok", ok)
	}()
	result, err := s.cfg.Tools.Execute(ctx, call.Name, call.Args)
	if err != nil {
		return toolExecResult{err: err}
	}
	return toolExecResult{result: result}
}
