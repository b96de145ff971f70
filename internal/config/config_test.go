package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Store.Backend != "litestore" {
		t.Errorf("expected litestore, got %s", cfg.Store.Backend)
	}
	if cfg.Store.HNSWEFSearch != 64 {
		t.Errorf("expected ef_search 64, got %d", cfg.Store.HNSWEFSearch)
	}
	if cfg.Embedding.Dimensions != 1536 {
		t.Errorf("expected 1536, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Agent.MaxToolIterations != 8 {
		t.Errorf("expected 8, got %d", cfg.Agent.MaxToolIterations)
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	if err := os.WriteFile(path, []byte(`
[store]
backend = "pgvector"
dsn = "postgres://localhost/havenmem"

[agent]
fifo_capacity = 100
`), 0644); err != nil {
		t.Fatalf("write test toml: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Backend != "pgvector" {
		t.Errorf("expected pgvector, got %s", cfg.Store.Backend)
	}
	if cfg.Store.DSN != "postgres://localhost/havenmem" {
		t.Errorf("expected dsn override, got %s", cfg.Store.DSN)
	}
	if cfg.Agent.FIFOCapacity != 100 {
		t.Errorf("expected 100, got %d", cfg.Agent.FIFOCapacity)
	}
	// Defaults preserved for fields the file didn't set.
	if cfg.Embedding.Dimensions != 1536 {
		t.Errorf("default should be preserved, got %d", cfg.Embedding.Dimensions)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("HAVENMEM_PROVIDER_API_KEY", "env-key")
	t.Setenv("HAVENMEM_STORE_BACKEND", "pgvector")

	cfg, err := Load("/nonexistent/path.toml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.APIKey != "env-key" {
		t.Errorf("expected env-key, got %s", cfg.Provider.APIKey)
	}
	if cfg.Store.Backend != "pgvector" {
		t.Errorf("expected pgvector, got %s", cfg.Store.Backend)
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("missing config file should not error, got %v", err)
	}
	if cfg.Store.Backend != "litestore" {
		t.Errorf("expected default backend preserved, got %s", cfg.Store.Backend)
	}
}
