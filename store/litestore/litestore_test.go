package litestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/lucentlabs/havenmem"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "test.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func TestInitIdempotent(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "init.db"))
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("first Init: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("second Init: %v", err)
	}
}

func TestAgentCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	now := havenmem.NowUnix()
	agent := havenmem.Agent{
		ID: havenmem.NewID(), Name: "assistant-1", ModelID: "gpt-4o",
		SystemMemoryText: "Be helpful.", FIFOCapacity: 50, WorkspaceRoot: "/tmp/ws",
		CreatedAt: now, UpdatedAt: now,
	}
	if err := s.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	got, err := s.GetAgent(ctx, agent.ID)
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if got.Name != "assistant-1" || got.ModelID != "gpt-4o" {
		t.Errorf("unexpected agent: %+v", got)
	}

	byName, err := s.GetAgentByName(ctx, "assistant-1")
	if err != nil {
		t.Fatalf("GetAgentByName: %v", err)
	}
	if byName.ID != agent.ID {
		t.Errorf("expected id %q, got %q", agent.ID, byName.ID)
	}

	agent.WorkingMemoryText = "## notes\nremember this"
	agent.UpdatedAt = havenmem.NowUnix()
	if err := s.UpdateAgent(ctx, agent); err != nil {
		t.Fatalf("UpdateAgent: %v", err)
	}
	got, _ = s.GetAgent(ctx, agent.ID)
	if got.WorkingMemoryText != agent.WorkingMemoryText {
		t.Errorf("expected updated working memory text, got %q", got.WorkingMemoryText)
	}

	if err := s.DeleteAgent(ctx, agent.ID); err != nil {
		t.Fatalf("DeleteAgent: %v", err)
	}
	if _, err := s.GetAgent(ctx, agent.ID); err == nil {
		t.Fatal("expected error getting deleted agent")
	}
}

func TestConversationLog(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	now := havenmem.NowUnix()
	agent := havenmem.Agent{ID: havenmem.NewID(), Name: "a1", FIFOCapacity: 50, CreatedAt: now, UpdatedAt: now}
	if err := s.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	entries := []havenmem.ConversationEntry{
		{ID: havenmem.NewID(), AgentID: agent.ID, Role: havenmem.RoleUser, Content: "Hello", CreatedAt: 1000},
		{ID: havenmem.NewID(), AgentID: agent.ID, Role: havenmem.RoleAssistant, Content: "Hi!", CreatedAt: 1001},
		{ID: havenmem.NewID(), AgentID: agent.ID, Role: havenmem.RoleUser, Content: "Bye", CreatedAt: 1002},
	}
	for _, e := range entries {
		if err := s.AppendConversationEntry(ctx, e); err != nil {
			t.Fatalf("AppendConversationEntry: %v", err)
		}
	}

	got, err := s.RecentConversationEntries(ctx, agent.ID, 10)
	if err != nil {
		t.Fatalf("RecentConversationEntries: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[0].Content != "Hello" || got[2].Content != "Bye" {
		t.Errorf("entries not in chronological order: %+v", got)
	}

	got2, err := s.RecentConversationEntries(ctx, agent.ID, 2)
	if err != nil {
		t.Fatalf("RecentConversationEntries limit 2: %v", err)
	}
	if len(got2) != 2 || got2[0].Content != "Hi!" {
		t.Errorf("limit 2: expected [Hi!, Bye], got %+v", got2)
	}
}

func TestMemoryEntrySearch(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	now := havenmem.NowUnix()
	agent := havenmem.Agent{ID: havenmem.NewID(), Name: "a1", FIFOCapacity: 50, CreatedAt: now, UpdatedAt: now}
	if err := s.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	other := havenmem.Agent{ID: havenmem.NewID(), Name: "a2", FIFOCapacity: 50, CreatedAt: now, UpdatedAt: now}
	if err := s.CreateAgent(ctx, other); err != nil {
		t.Fatalf("CreateAgent (other): %v", err)
	}

	entries := []havenmem.MemoryEntry{
		{ID: havenmem.NewID(), AgentID: agent.ID, Content: "likes cats", Embedding: []float32{1, 0, 0}, CreatedAt: now},
		{ID: havenmem.NewID(), AgentID: agent.ID, Content: "likes dogs", Embedding: []float32{0, 1, 0}, CreatedAt: now},
		{ID: havenmem.NewID(), AgentID: other.ID, Content: "other agent's memory", Embedding: []float32{1, 0, 0}, CreatedAt: now},
	}
	for _, e := range entries {
		if err := s.InsertMemoryEntry(ctx, e); err != nil {
			t.Fatalf("InsertMemoryEntry: %v", err)
		}
	}

	results, err := s.SearchMemoryEntries(ctx, agent.ID, []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("SearchMemoryEntries: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results scoped to agent, got %d", len(results))
	}
	if results[0].Content != "likes cats" {
		t.Errorf("expected top match 'likes cats', got %q", results[0].Content)
	}

	count, err := s.CountMemoryEntries(ctx, agent.ID)
	if err != nil {
		t.Fatalf("CountMemoryEntries: %v", err)
	}
	if count != 2 {
		t.Errorf("expected count 2, got %d", count)
	}
}

func TestAgentIsolation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	now := havenmem.NowUnix()
	a1 := havenmem.Agent{ID: havenmem.NewID(), Name: "a1", FIFOCapacity: 50, CreatedAt: now, UpdatedAt: now}
	a2 := havenmem.Agent{ID: havenmem.NewID(), Name: "a2", FIFOCapacity: 50, CreatedAt: now, UpdatedAt: now}
	if err := s.CreateAgent(ctx, a1); err != nil {
		t.Fatalf("CreateAgent a1: %v", err)
	}
	if err := s.CreateAgent(ctx, a2); err != nil {
		t.Fatalf("CreateAgent a2: %v", err)
	}

	if err := s.AppendConversationEntry(ctx, havenmem.ConversationEntry{
		ID: havenmem.NewID(), AgentID: a1.ID, Role: havenmem.RoleUser, Content: "a1 only", CreatedAt: now,
	}); err != nil {
		t.Fatalf("AppendConversationEntry: %v", err)
	}

	entries, err := s.RecentConversationEntries(ctx, a2.ID, 10)
	if err != nil {
		t.Fatalf("RecentConversationEntries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected a2 to see no entries from a1, got %d", len(entries))
	}
}
