package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchURLBasic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body><article><p>Hello from test server, this is the readable body of the article with enough text to be extracted.</p></article></body></html>"))
	}))
	defer srv.Close()

	tool := New()
	args, _ := json.Marshal(map[string]string{"url": srv.URL})
	result, err := tool.Execute(context.Background(), "fetch_url", args)
	if err != nil {
		t.Fatal(err)
	}
	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if result.Content == "" {
		t.Error("expected content")
	}
}

func TestFetchURLNonHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("plain text body"))
	}))
	defer srv.Close()

	tool := New()
	args, _ := json.Marshal(map[string]string{"url": srv.URL})
	result, err := tool.Execute(context.Background(), "fetch_url", args)
	if err != nil {
		t.Fatal(err)
	}
	if result.Content != "plain text body" {
		t.Errorf("expected raw body returned, got %q", result.Content)
	}
}

func TestFetchURL404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
	}))
	defer srv.Close()

	tool := New()
	args, _ := json.Marshal(map[string]string{"url": srv.URL})
	result, _ := tool.Execute(context.Background(), "fetch_url", args)
	if result.Error == "" {
		t.Error("expected error for 404")
	}
}

func TestFetchURLRejectsNonHTTPScheme(t *testing.T) {
	tool := New()
	for _, u := range []string{"file:///etc/passwd", "ftp://example.com/file", "not-a-url-at-all://"} {
		args, _ := json.Marshal(map[string]string{"url": u})
		result, err := tool.Execute(context.Background(), "fetch_url", args)
		if err != nil {
			t.Fatal(err)
		}
		if result.Error == "" {
			t.Errorf("expected scheme rejection for %q", u)
		}
	}
}

func TestFetchURLSmallBodyNotTruncated(t *testing.T) {
	bigContent := make([]byte, 10000)
	for i := range bigContent {
		bigContent[i] = 'A'
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write(bigContent)
	}))
	defer srv.Close()

	tool := New()
	args, _ := json.Marshal(map[string]string{"url": srv.URL})
	result, _ := tool.Execute(context.Background(), "fetch_url", args)
	if len(result.Content) != 10000 {
		t.Errorf("expected full small body untruncated, got %d bytes", len(result.Content))
	}
}
