// Package havenmem implements a hierarchical memory engine for a long-running
// conversational agent: a four-tier memory system (system, working, FIFO,
// archival) that provides bounded context to a language model while
// preserving unbounded semantic recall through vector search.
//
// # Quick Start
//
// Construct a Session by composing implementations of the core interfaces:
//
//	store := pgvector.New(pool)
//	if err := store.Init(ctx); err != nil {
//		return err
//	}
//	registry := havenmem.NewToolRegistry()
//	session, err := havenmem.NewSession(ctx, havenmem.Config{
//		Store:     store,
//		Provider:  openaicompat.NewProvider(apiKey, "gpt-4o-mini", baseURL),
//		Embedding: myEmbeddingProvider,
//		Tools:     registry,
//	}, havenmem.Agent{Name: "assistant", ModelID: "gpt-4o-mini"})
//	registry.Add(memory.New(session))
//	reply, err := session.Step(ctx, "remember that my favorite color is purple")
//
// # Core Interfaces
//
// The root package defines the contracts every component implements:
//
//   - [ChatProvider] — the LLM chat backend (messages + tool schemas in, text + tool calls out)
//   - [EmbeddingProvider] — text-to-vector embedding
//   - [Store] — durable per-agent conversation log and archival vector search
//   - [Tool] — a pluggable capability invoked by the model via function calling
//
// # Included Implementations
//
// Providers: provider/openaicompat (any OpenAI-compatible chat endpoint).
// Storage: store/pgvector (PostgreSQL + pgvector, HNSW), store/litestore (pure-Go SQLite, brute-force).
// Tools: tools/file, tools/shell, tools/python, tools/web, tools/memory, tools/workingmem.
//
// See cmd/havenmem for a complete reference CLI built on these pieces.
package havenmem
