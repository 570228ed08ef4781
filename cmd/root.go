package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"codescout/internal/catalog"
	"codescout/internal/chunker"
	"codescout/internal/chunker/languages"
	"codescout/internal/config"
	"codescout/internal/embedder"
	"codescout/internal/logging"
	"codescout/internal/vectorstore"
)

var flagConfig string

var rootCmd = &cobra.Command{
	Use:           "codescout",
	Short:         "Natural-language semantic search over source code",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default ~/.config/codescout/config.yaml)")
}

// app bundles the collaborators every command needs.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	catalog  *catalog.Catalog
	store    vectorstore.Store
	embedder embedder.Embedder
	registry *chunker.Registry
}

// newApp loads config and wires the catalog, vector store, and embedder.
func newApp() (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	cat, err := catalog.Open(filepath.Join(cfg.DataDir, "catalog.db"))
	if err != nil {
		return nil, err
	}

	store, err := vectorstore.New(cfg.Store, cfg.DataDir)
	if err != nil {
		cat.Close()
		return nil, err
	}

	emb, err := embedder.New(cfg.Embedding)
	if err != nil {
		store.Close()
		cat.Close()
		return nil, err
	}

	reg := chunker.NewRegistry()
	languages.RegisterAll(reg)

	return &app{
		cfg:      cfg,
		log:      log,
		catalog:  cat,
		store:    store,
		embedder: emb,
		registry: reg,
	}, nil
}

func (a *app) Close() {
	_ = a.store.Close()
	_ = a.catalog.Close()
	_ = a.log.Sync()
}
