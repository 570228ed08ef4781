// Package config provides configuration loading for codescout.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the top-level configuration.
type Config struct {
	// DataDir holds the catalog database and any embedded vector data.
	DataDir string `koanf:"data_dir"`

	Log       LogConfig       `koanf:"log"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Store     StoreConfig     `koanf:"store"`
	Index     IndexConfig     `koanf:"index"`
	Search    SearchConfig    `koanf:"search"`
}

// LogConfig controls logger output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`
	// Format is "console" or "json".
	Format string `koanf:"format"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "ollama" or "openai".
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	// Dimension must match the model's output size.
	Dimension int `koanf:"dimension"`
	// BaseURL is the Ollama endpoint (ignored for openai).
	BaseURL string `koanf:"base_url"`
	// APIKey authenticates against OpenAI. Falls back to OPENAI_API_KEY.
	APIKey    string        `koanf:"api_key"`
	BatchSize int           `koanf:"batch_size"`
	Timeout   time.Duration `koanf:"timeout"`
}

// StoreConfig selects and configures the vector store backend.
type StoreConfig struct {
	// Backend is "qdrant" or "sqlite".
	Backend string       `koanf:"backend"`
	Qdrant  QdrantConfig `koanf:"qdrant"`
}

// QdrantConfig holds Qdrant gRPC connection settings.
type QdrantConfig struct {
	Host string `koanf:"host"`
	// Port is the gRPC port (6334), not the HTTP REST port.
	Port   int  `koanf:"port"`
	UseTLS bool `koanf:"use_tls"`
}

// IndexConfig tunes the indexing pipeline.
type IndexConfig struct {
	// Workers bounds concurrent chunking goroutines. 0 means NumCPU.
	Workers int `koanf:"workers"`
	// MaxFileSize in bytes; larger files are skipped.
	MaxFileSize int64 `koanf:"max_file_size"`
}

// SearchConfig tunes query behavior.
type SearchConfig struct {
	TopK int `koanf:"top_k"`
	// MinScore drops results below this similarity. 0 disables the cutoff.
	MinScore float32 `koanf:"min_score"`
}

// Default returns the configuration defaults applied before file and
// environment overrides.
func Default() *Config {
	dataDir := ""
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".local", "share", "codescout")
	}
	return &Config{
		DataDir: dataDir,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			Model:     "nomic-embed-text",
			Dimension: 768,
			BaseURL:   "http://localhost:11434",
			BatchSize: 32,
			Timeout:   2 * time.Minute,
		},
		Store: StoreConfig{
			Backend: "sqlite",
			Qdrant: QdrantConfig{
				Host: "localhost",
				Port: 6334,
			},
		},
		Index: IndexConfig{
			MaxFileSize: 1 << 20,
		},
		Search: SearchConfig{
			TopK: 10,
		},
	}
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	switch c.Embedding.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("embedding.provider must be ollama or openai, got %q", c.Embedding.Provider)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}
	switch c.Store.Backend {
	case "qdrant", "sqlite":
	default:
		return fmt.Errorf("store.backend must be qdrant or sqlite, got %q", c.Store.Backend)
	}
	if c.Store.Backend == "qdrant" {
		if c.Store.Qdrant.Host == "" {
			return fmt.Errorf("store.qdrant.host is required")
		}
		if c.Store.Qdrant.Port <= 0 || c.Store.Qdrant.Port > 65535 {
			return fmt.Errorf("store.qdrant.port invalid: %d", c.Store.Qdrant.Port)
		}
	}
	if c.Index.MaxFileSize <= 0 {
		return fmt.Errorf("index.max_file_size must be positive")
	}
	if c.Search.TopK <= 0 {
		return fmt.Errorf("search.top_k must be positive, got %d", c.Search.TopK)
	}
	return nil
}
