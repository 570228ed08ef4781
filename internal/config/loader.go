package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CODESCOUT_"

// envKeys maps CODESCOUT_* environment variables to config keys.
var envKeys = map[string]string{
	"DATA_DIR":             "data_dir",
	"LOG_LEVEL":            "log.level",
	"LOG_FORMAT":           "log.format",
	"EMBEDDING_PROVIDER":   "embedding.provider",
	"EMBEDDING_MODEL":      "embedding.model",
	"EMBEDDING_DIMENSION":  "embedding.dimension",
	"EMBEDDING_BASE_URL":   "embedding.base_url",
	"EMBEDDING_API_KEY":    "embedding.api_key",
	"EMBEDDING_BATCH_SIZE": "embedding.batch_size",
	"EMBEDDING_TIMEOUT":    "embedding.timeout",
	"STORE_BACKEND":        "store.backend",
	"STORE_QDRANT_HOST":    "store.qdrant.host",
	"STORE_QDRANT_PORT":    "store.qdrant.port",
	"STORE_QDRANT_USE_TLS": "store.qdrant.use_tls",
	"INDEX_WORKERS":        "index.workers",
	"INDEX_MAX_FILE_SIZE":  "index.max_file_size",
	"SEARCH_TOP_K":         "search.top_k",
	"SEARCH_MIN_SCORE":     "search.min_score",
}

// DefaultPath returns the default config file location
// (~/.config/codescout/config.yaml).
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "codescout", "config.yaml")
}

// Load reads configuration with the following precedence, highest first:
//
//  1. Environment variables (CODESCOUT_EMBEDDING_MODEL, CODESCOUT_STORE_BACKEND, ...)
//  2. YAML config file (configPath, or DefaultPath when empty)
//  3. Defaults
//
// A missing config file is not an error; defaults and environment apply.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		configPath = DefaultPath()
	}

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err == nil {
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", configPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file %s: %w", configPath, err)
		}
	}

	// Underscores are ambiguous (data_dir vs store.qdrant.host), so the
	// mapping is explicit. Unmapped CODESCOUT_* variables are ignored.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return envKeys[strings.TrimPrefix(s, envPrefix)]
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment overrides: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}
