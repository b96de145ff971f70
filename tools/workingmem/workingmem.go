// Package workingmem implements the update_working_memory tool (§4.6): an
// explicit, LLM-driven write to the agent's mutable working-memory document.
package workingmem

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lucentlabs/havenmem"
)

// Tool exposes working-memory updates against a single agent's Session.
type Tool struct {
	session *havenmem.Session
}

// New creates a workingmem Tool bound to session.
func New(session *havenmem.Session) *Tool {
	return &Tool{session: session}
}

func (t *Tool) Definitions() []havenmem.ToolDefinition {
	return []havenmem.ToolDefinition{{
		Name:        "update_working_memory",
		Description: "Set a field in the agent's working-memory document (persisted across turns, bounded to 2 KiB total).",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"field":{"type":"string"},"value":{"type":"string"}},"required":["field","value"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (havenmem.ToolResult, error) {
	var params struct {
		Field string `json:"field"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return havenmem.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if strings.TrimSpace(params.Field) == "" {
		return havenmem.ToolResult{Error: "field is required"}, nil
	}

	if err := t.session.UpdateWorkingMemory(ctx, params.Field, params.Value); err != nil {
		return havenmem.ToolResult{Error: err.Error()}, nil
	}
	return havenmem.ToolResult{Content: fmt.Sprintf("Updated %s", params.Field)}, nil
}
