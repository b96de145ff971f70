package memory

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/lucentlabs/havenmem"
	"github.com/lucentlabs/havenmem/store/litestore"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if text == "likes cats" || text == "favorite animal" {
		return []float32{1, 0, 0}, nil
	}
	return []float32{0, 1, 0}, nil
}
func (fakeEmbedder) Dimensions() int { return 3 }
func (fakeEmbedder) Name() string    { return "fake" }

type fakeChat struct{}

func (fakeChat) Chat(_ context.Context, _ havenmem.ChatRequest) (havenmem.ChatResponse, error) {
	return havenmem.ChatResponse{Content: "ok"}, nil
}
func (fakeChat) Name() string { return "fake" }

func testSession(t *testing.T) *havenmem.Session {
	t.Helper()
	s := litestore.New(filepath.Join(t.TempDir(), "mem.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	session, err := havenmem.NewSession(context.Background(), havenmem.Config{
		Store:     s,
		Provider:  fakeChat{},
		Embedding: fakeEmbedder{},
		Tools:     havenmem.NewToolRegistry(),
	}, havenmem.Agent{Name: "memtest"})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return session
}

func TestSaveThenSearchMemory(t *testing.T) {
	session := testSession(t)
	tool := New(session)

	args, _ := json.Marshal(map[string]any{"content": "likes cats"})
	result, err := tool.Execute(context.Background(), "save_memory", args)
	if err != nil {
		t.Fatal(err)
	}
	if result.Error != "" {
		t.Fatalf("save_memory: %s", result.Error)
	}
	if result.Content != "Saved to archival memory" {
		t.Errorf("unexpected result: %q", result.Content)
	}

	searchArgs, _ := json.Marshal(map[string]any{"query": "favorite animal"})
	searchResult, err := tool.Execute(context.Background(), "search_memory", searchArgs)
	if err != nil {
		t.Fatal(err)
	}
	if searchResult.Error != "" {
		t.Fatalf("search_memory: %s", searchResult.Error)
	}
	if searchResult.Content == "" {
		t.Fatal("expected a match")
	}
}

func TestSaveMemoryRequiresContent(t *testing.T) {
	session := testSession(t)
	tool := New(session)
	args, _ := json.Marshal(map[string]any{"content": ""})
	result, _ := tool.Execute(context.Background(), "save_memory", args)
	if result.Error == "" {
		t.Fatal("expected error for empty content")
	}
}

func TestSearchMemoryNoResults(t *testing.T) {
	session := testSession(t)
	tool := New(session)
	args, _ := json.Marshal(map[string]any{"query": "anything"})
	result, err := tool.Execute(context.Background(), "search_memory", args)
	if err != nil {
		t.Fatal(err)
	}
	if result.Content != "No matching memories found." {
		t.Errorf("unexpected result: %q", result.Content)
	}
}

func TestSearchMemoryLimitClamped(t *testing.T) {
	session := testSession(t)
	tool := New(session)
	args, _ := json.Marshal(map[string]any{"query": "x", "limit": 1000})
	_, err := tool.Execute(context.Background(), "search_memory", args)
	if err != nil {
		t.Fatal(err)
	}
}

func TestMemoryDefinitions(t *testing.T) {
	session := testSession(t)
	tool := New(session)
	defs := tool.Definitions()
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
}
