package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/lucentlabs/havenmem"
)

// embeddingRequest is the OpenAI embeddings request body.
type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embeddingResponse is the OpenAI embeddings response body.
type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbeddingProvider implements havenmem.EmbeddingProvider for any
// OpenAI-compatible embeddings API.
type EmbeddingProvider struct {
	apiKey     string
	model      string
	baseURL    string
	dimensions int
	client     *http.Client
	name       string
}

// NewEmbeddingProvider creates an OpenAI-compatible embedding provider.
// dimensions is the fixed vector length the model produces. Embed does not
// check responses against it; havenmem.Session compares each returned
// vector's length with it and rejects a mismatch before insert.
func NewEmbeddingProvider(apiKey, model, baseURL string, dimensions int) *EmbeddingProvider {
	return &EmbeddingProvider{
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		dimensions: dimensions,
		client:     &http.Client{},
		name:       "openai",
	}
}

// Name returns the provider name.
func (e *EmbeddingProvider) Name() string { return e.name }

// Dimensions returns the fixed vector length this provider produces.
func (e *EmbeddingProvider) Dimensions() int { return e.dimensions }

// Embed returns a single embedding vector for text.
func (e *EmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(embeddingRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("openaicompat: marshal embedding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("openaicompat: create embedding request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openaicompat: embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openaicompat: %s embeddings: status %d: %s", e.name, resp.StatusCode, string(body))
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("openaicompat: decode embedding response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("openaicompat: embedding response contained no data")
	}
	return parsed.Data[0].Embedding, nil
}

// Compile-time interface check.
var _ havenmem.EmbeddingProvider = (*EmbeddingProvider)(nil)
