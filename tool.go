package havenmem

import (
	"context"
	"encoding/json"
)

// Tool defines an agent capability exposed to the model via function
// calling. A single Tool value may answer to more than one name (e.g. a
// file tool answering read_file, write_file, edit_file, delete_file).
type Tool interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error)
}

// ToolResult is the outcome of a tool execution. Errors are data, not
// exceptions: a failed tool call still returns (ToolResult, nil) with Error
// set, so the LLM can see and react to the failure (§4.6, §7).
type ToolResult struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// ToolRegistry holds the closed set of registered tools and dispatches
// execution by name.
type ToolRegistry struct {
	tools []Tool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{}
}

// Add registers a tool.
func (r *ToolRegistry) Add(t Tool) {
	r.tools = append(r.tools, t)
}

// AllDefinitions returns tool definitions from every registered tool, for
// inclusion in the context assembler's system message (§4.3).
func (r *ToolRegistry) AllDefinitions() []ToolDefinition {
	var defs []ToolDefinition
	for _, t := range r.tools {
		defs = append(defs, t.Definitions()...)
	}
	return defs
}

// Execute looks up the tool owning name and dispatches to it. An unknown
// name returns an error result rather than an error value (§4.6 dispatch
// step 1).
func (r *ToolRegistry) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	for _, t := range r.tools {
		for _, d := range t.Definitions() {
			if d.Name == name {
				return t.Execute(ctx, name, args)
			}
		}
	}
	return ToolResult{Error: "unknown tool: " + name}, nil
}
