package openaicompat

import (
	"encoding/json"

	"github.com/lucentlabs/havenmem"
)

// ParseResponse converts an OpenAI-format ChatResponse to a havenmem
// ChatResponse. It extracts content, tool calls, and usage from choices[0].
func ParseResponse(resp ChatResponse) (havenmem.ChatResponse, error) {
	var out havenmem.ChatResponse

	if len(resp.Choices) == 0 {
		return out, nil
	}

	choice := resp.Choices[0]
	if choice.Message != nil {
		out.Content = choice.Message.Content
		out.ToolCalls = ParseToolCalls(choice.Message.ToolCalls)
	}

	if resp.Usage != nil {
		out.Usage = havenmem.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}

	return out, nil
}

// ParseToolCalls converts OpenAI tool call requests to havenmem ToolCalls.
// OpenAI returns function.arguments as a JSON string; we parse it into
// json.RawMessage, substituting an empty object for malformed arguments
// rather than failing the whole response.
func ParseToolCalls(tcs []ToolCallRequest) []havenmem.ToolCall {
	if len(tcs) == 0 {
		return nil
	}

	out := make([]havenmem.ToolCall, 0, len(tcs))
	for _, tc := range tcs {
		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		out = append(out, havenmem.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return out
}
