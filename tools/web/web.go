// Package web implements the fetch_url tool (§4.6): a bounded, GET-only
// HTTP fetcher with HTML readability extraction.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	"github.com/lucentlabs/havenmem"
)

const (
	fetchTimeout = 30 * time.Second
	maxBodyBytes = 10 << 20 // 10 MiB
)

// Tool fetches URLs and extracts readable text content.
type Tool struct {
	client *http.Client
}

// New creates a web Tool with a client that refuses to follow a redirect
// off the http/https scheme.
func New() *Tool {
	return &Tool{
		client: &http.Client{
			Timeout: fetchTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
					return fmt.Errorf("redirect to unsupported scheme %q", req.URL.Scheme)
				}
				return nil
			},
		},
	}
}

func (t *Tool) Definitions() []havenmem.ToolDefinition {
	return []havenmem.ToolDefinition{{
		Name:        "fetch_url",
		Description: "Fetch a URL via HTTP GET and extract its readable text content.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"url":{"type":"string","description":"URL to fetch (http or https only)"}},"required":["url"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (havenmem.ToolResult, error) {
	var params struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return havenmem.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}

	content, err := t.fetch(ctx, params.URL)
	if err != nil {
		return havenmem.ToolResult{Error: err.Error()}, nil
	}
	return havenmem.ToolResult{Content: content}, nil
}

func (t *Tool) fetch(ctx context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported URL scheme %q: only http and https are allowed", parsed.Scheme)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; HavenMemBot/1.0)")

	resp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("fetch timed out after %s", fetchTimeout)
		}
		return "", fmt.Errorf("fetch error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	limited := io.LimitReader(resp.Body, maxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return "", fmt.Errorf("read error: %w", err)
	}
	truncated := len(body) > maxBodyBytes
	if truncated {
		body = body[:maxBodyBytes]
	}

	contentType := resp.Header.Get("Content-Type")
	var out string
	if strings.Contains(contentType, "text/html") {
		article, err := readability.FromReader(strings.NewReader(string(body)), parsed)
		if err == nil && strings.TrimSpace(article.TextContent) != "" {
			out = strings.TrimSpace(article.TextContent)
		}
	}
	if out == "" {
		out = string(body)
	}
	if truncated {
		out += "\n... (truncated at 10 MiB)"
	}
	return out, nil
}
