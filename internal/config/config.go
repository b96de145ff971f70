// Package config loads havenmem's configuration: defaults, then an
// optional TOML file, then environment-variable overrides (§9 AMBIENT
// STACK, "Configuration").
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Config is the full configuration surface for a havenmem process: which
// store backend to use, which chat and embedding providers to call, and
// the default shape of new agents.
type Config struct {
	Store     StoreConfig     `toml:"store"`
	Provider  ProviderConfig  `toml:"provider"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Agent     AgentDefaults   `toml:"agent"`
}

// StoreConfig selects and configures the persistence backend (§4.1).
// Backend is either "pgvector" or "litestore".
type StoreConfig struct {
	Backend          string `toml:"backend" env:"HAVENMEM_STORE_BACKEND"`
	DSN              string `toml:"dsn" env:"HAVENMEM_STORE_DSN"`
	SQLitePath       string `toml:"sqlite_path" env:"HAVENMEM_SQLITE_PATH"`
	HNSWM            int    `toml:"hnsw_m" env:"HAVENMEM_HNSW_M"`
	HNSWEFConstruct  int    `toml:"hnsw_ef_construction" env:"HAVENMEM_HNSW_EF_CONSTRUCTION"`
	HNSWEFSearch     int    `toml:"hnsw_ef_search" env:"HAVENMEM_HNSW_EF_SEARCH"`
	EmbeddingDimensn int    `toml:"embedding_dimensions" env:"HAVENMEM_STORE_EMBEDDING_DIMENSIONS"`
}

// ProviderConfig configures the chat backend (§6).
type ProviderConfig struct {
	BaseURL string `toml:"base_url" env:"HAVENMEM_PROVIDER_BASE_URL"`
	Model   string `toml:"model" env:"HAVENMEM_PROVIDER_MODEL"`
	APIKey  string `toml:"api_key" env:"HAVENMEM_PROVIDER_API_KEY"`
}

// EmbeddingConfig configures the embedding backend (§6).
type EmbeddingConfig struct {
	BaseURL    string `toml:"base_url" env:"HAVENMEM_EMBEDDING_BASE_URL"`
	Model      string `toml:"model" env:"HAVENMEM_EMBEDDING_MODEL"`
	Dimensions int    `toml:"dimensions" env:"HAVENMEM_EMBEDDING_DIMENSIONS"`
	APIKey     string `toml:"api_key" env:"HAVENMEM_EMBEDDING_API_KEY"`
}

// AgentDefaults fills in the fields of a new Agent record that are not
// supplied on the command line (§3 Agent, §9 Open Question 1).
type AgentDefaults struct {
	FIFOCapacity      int    `toml:"fifo_capacity" env:"HAVENMEM_AGENT_FIFO_CAPACITY"`
	MaxToolIterations int    `toml:"max_tool_iterations" env:"HAVENMEM_AGENT_MAX_TOOL_ITERATIONS"`
	SystemMemoryText  string `toml:"system_memory_text" env:"HAVENMEM_AGENT_SYSTEM_MEMORY_TEXT"`
	WorkspaceRoot     string `toml:"workspace_root" env:"HAVENMEM_AGENT_WORKSPACE_ROOT"`
}

// Default returns a Config with every field set to its built-in default,
// before any file or environment override is applied.
func Default() Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp"
	}
	return Config{
		Store: StoreConfig{
			Backend:          "litestore",
			SQLitePath:       "havenmem.db",
			HNSWM:            16,
			HNSWEFConstruct:  64,
			HNSWEFSearch:     64,
			EmbeddingDimensn: 1536,
		},
		Provider: ProviderConfig{
			Model: "gpt-4o-mini",
		},
		Embedding: EmbeddingConfig{
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
		},
		Agent: AgentDefaults{
			FIFOCapacity:      50,
			MaxToolIterations: 8,
			WorkspaceRoot:     filepath.Join(home, "havenmem-workspace"),
		},
	}
}

// Load reads configuration in three layers: built-in defaults, an optional
// TOML file at path (silently skipped if absent — a missing config file is
// not an error), then environment-variable overrides via struct tags
// (env wins). path == "" falls back to "havenmem.toml" in the current
// directory.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = "havenmem.toml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}

	return cfg, nil
}
