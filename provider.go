package havenmem

import "context"

// ChatProvider abstracts the LLM chat backend (§6).
type ChatProvider interface {
	// Chat sends a message list and the closed tool schema set, and returns
	// either terminal text or text plus tool calls to execute.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// Name returns the provider name (e.g. "openai", "ollama").
	Name() string
}

// EmbeddingProvider abstracts the text-to-vector embedding backend (§6).
type EmbeddingProvider interface {
	// Embed returns a fixed-dimension vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimensions returns D, the vector length this provider produces.
	Dimensions() int
	// Name returns the provider name.
	Name() string
}
