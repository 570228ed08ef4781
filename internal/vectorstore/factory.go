package vectorstore

import (
	"fmt"
	"path/filepath"

	"codescout/internal/config"
)

// New builds the vector store backend selected by config. The sqlite
// backend lives in dataDir; qdrant connects to the configured endpoint.
func New(cfg config.StoreConfig, dataDir string) (Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return NewSQLiteVec(filepath.Join(dataDir, "vectors.db"))
	case "qdrant":
		return NewQdrant(cfg.Qdrant)
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", cfg.Backend)
	}
}
