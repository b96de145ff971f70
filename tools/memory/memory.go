// Package memory implements the save_memory and search_memory tools
// (§4.6): explicit LLM-driven archival writes and recall.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lucentlabs/havenmem"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 20
)

// Tool exposes archival save/search against a single agent's Session.
type Tool struct {
	session *havenmem.Session
}

// New creates a memory Tool bound to session.
func New(session *havenmem.Session) *Tool {
	return &Tool{session: session}
}

func (t *Tool) Definitions() []havenmem.ToolDefinition {
	return []havenmem.ToolDefinition{
		{
			Name:        "save_memory",
			Description: "Save a fact to archival memory for later recall across conversations.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"content":{"type":"string"},"tags":{"type":"array","items":{"type":"string"}}},"required":["content"]}`),
		},
		{
			Name:        "search_memory",
			Description: "Search archival memory for facts relevant to a query, ranked by similarity.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"},"limit":{"type":"integer","description":"Max results (default 5, max 20)"}},"required":["query"]}`),
		},
	}
}

func (t *Tool) Execute(ctx context.Context, name string, args json.RawMessage) (havenmem.ToolResult, error) {
	switch name {
	case "save_memory":
		return t.save(ctx, args)
	case "search_memory":
		return t.search(ctx, args)
	default:
		return havenmem.ToolResult{Error: "unknown memory tool: " + name}, nil
	}
}

func (t *Tool) save(ctx context.Context, args json.RawMessage) (havenmem.ToolResult, error) {
	var params struct {
		Content string   `json:"content"`
		Tags    []string `json:"tags"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return havenmem.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if strings.TrimSpace(params.Content) == "" {
		return havenmem.ToolResult{Error: "content is required"}, nil
	}

	var tags map[string]string
	if len(params.Tags) > 0 {
		tags = make(map[string]string, len(params.Tags))
		for i, tag := range params.Tags {
			tags[fmt.Sprintf("tag_%d", i)] = tag
		}
	}

	if err := t.session.SaveMemory(ctx, params.Content, tags); err != nil {
		return havenmem.ToolResult{Error: err.Error()}, nil
	}
	return havenmem.ToolResult{Content: "Saved to archival memory"}, nil
}

func (t *Tool) search(ctx context.Context, args json.RawMessage) (havenmem.ToolResult, error) {
	var params struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return havenmem.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if strings.TrimSpace(params.Query) == "" {
		return havenmem.ToolResult{Error: "query is required"}, nil
	}

	limit := params.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	results, err := t.session.SearchMemory(ctx, params.Query, limit)
	if err != nil {
		return havenmem.ToolResult{Error: err.Error()}, nil
	}
	if len(results) == 0 {
		return havenmem.ToolResult{Content: "No matching memories found."}, nil
	}

	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "[%.2f] %s\n", r.Score, r.Content)
	}
	return havenmem.ToolResult{Content: strings.TrimRight(b.String(), "\n")}, nil
}
