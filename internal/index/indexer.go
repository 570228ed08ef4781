// Package index orchestrates the indexing pipeline: walk, diff, chunk,
// embed, upsert, commit.
package index

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"codescout/internal/catalog"
	"codescout/internal/chunker"
	"codescout/internal/embedder"
	"codescout/internal/vectorstore"
)

// Stage names an indexing pipeline phase, reported in errors so a failed
// run can say where it stopped.
type Stage string

const (
	StageWalking    Stage = "walking"
	StageDiffing    Stage = "diffing"
	StageChunking   Stage = "chunking"
	StageEmbedding  Stage = "embedding"
	StageUpserting  Stage = "upserting"
	StageCommitting Stage = "committing"
)

// Stats reports the outcome of an index run.
type Stats struct {
	FilesTotal     int
	FilesAdded     int
	FilesModified  int
	FilesDeleted   int
	FilesUnchanged int
	FilesSkipped   int
	ChunksIndexed  int
	ChunksDeleted  int
}

// Config holds indexer tuning knobs.
type Config struct {
	// Workers bounds concurrent chunking and embedding goroutines.
	// 0 means runtime.NumCPU.
	Workers int
	// MaxFileSize in bytes; larger files are skipped by the walker.
	// 0 means the walker default.
	MaxFileSize int64
}

// Indexer runs full and incremental index passes over registered
// repositories.
type Indexer struct {
	catalog  *catalog.Catalog
	store    vectorstore.Store
	embedder embedder.Embedder
	chunker  *chunker.Chunker
	registry *chunker.Registry
	log      *zap.Logger
	cfg      Config
}

// New assembles an indexer from its collaborators.
func New(cat *catalog.Catalog, store vectorstore.Store, emb embedder.Embedder,
	reg *chunker.Registry, log *zap.Logger, cfg Config) *Indexer {
	return &Indexer{
		catalog:  cat,
		store:    store,
		embedder: emb,
		chunker:  chunker.New(reg),
		registry: reg,
		log:      log,
		cfg:      cfg,
	}
}

// stageError wraps a pipeline failure with the stage and repository it
// happened in. Prior committed state is untouched when Run returns one.
func stageError(stage Stage, repoID string, err error) error {
	return fmt.Errorf("index %s: stage %s: %w", repoID, stage, err)
}

// Run indexes the repository incrementally: unchanged files are skipped
// entirely, modified and added files are re-chunked and re-embedded, and
// entries for deleted files are removed from the namespace. The ledger is
// committed only after every vector write has succeeded.
func (idx *Indexer) Run(ctx context.Context, repo catalog.Repo) (*Stats, error) {
	log := idx.log.With(zap.String("repo", repo.ID), zap.String("name", repo.Name))

	// A changed embedding model makes every stored vector incomparable to
	// new ones; wipe the namespace and start over.
	if repo.Model != "" && repo.Model != idx.embedder.Model() {
		log.Warn("embedding model changed, rebuilding index",
			zap.String("old", repo.Model), zap.String("new", idx.embedder.Model()))
		if err := idx.reset(ctx, repo); err != nil {
			return nil, stageError(StageDiffing, repo.ID, err)
		}
	}

	stats := &Stats{}

	// Walking: enumerate files, fingerprint content.
	files, err := idx.walk(ctx, repo, stats)
	if err != nil {
		return stats, stageError(StageWalking, repo.ID, err)
	}
	log.Debug("walk complete", zap.Int("files", len(files)))

	// Diffing: compare against the ledger.
	current := make(map[string]string, len(files))
	for path, f := range files {
		current[path] = f.fingerprint
	}
	delta, err := idx.catalog.Diff(repo.ID, current)
	if err != nil {
		return stats, stageError(StageDiffing, repo.ID, err)
	}
	stats.FilesAdded = len(delta.Added)
	stats.FilesModified = len(delta.Modified)
	stats.FilesDeleted = len(delta.Deleted)
	stats.FilesUnchanged = len(files) - stats.FilesAdded - stats.FilesModified

	if delta.Empty() {
		log.Info("index up to date", zap.Int("files", len(files)))
		return stats, nil
	}
	log.Info("delta computed",
		zap.Int("added", stats.FilesAdded),
		zap.Int("modified", stats.FilesModified),
		zap.Int("deleted", stats.FilesDeleted))

	snapshot, err := idx.catalog.Snapshot(repo.ID)
	if err != nil {
		return stats, stageError(StageDiffing, repo.ID, err)
	}

	if err := idx.store.EnsureNamespace(ctx, repo.Namespace, idx.embedder.Dimension()); err != nil {
		return stats, stageError(StageUpserting, repo.ID, err)
	}

	// Chunking: added and modified files only.
	work := append(append([]string{}, delta.Added...), delta.Modified...)
	chunked, err := idx.chunkFiles(ctx, files, work)
	if err != nil {
		return stats, stageError(StageChunking, repo.ID, err)
	}

	// Embedding + Upserting, per file with bounded concurrency.
	records, err := idx.embedAndUpsert(ctx, repo, files, chunked, snapshot, work, stats)
	if err != nil {
		return stats, err
	}

	// Deleted files: remove every chunk the ledger says they produced.
	for _, path := range delta.Deleted {
		rec := snapshot[path]
		ids := chunkIDs(repo.ID, path, rec.ChunkCount)
		if err := idx.store.Delete(ctx, repo.Namespace, ids); err != nil {
			return stats, stageError(StageUpserting, repo.ID, err)
		}
		stats.ChunksDeleted += len(ids)
	}

	// Committing: ledger reflects the store only after the store is durable.
	if err := idx.catalog.Commit(repo.ID, records, delta.Deleted); err != nil {
		return stats, stageError(StageCommitting, repo.ID, err)
	}
	if repo.Model == "" {
		if err := idx.catalog.PinModel(repo.ID, idx.embedder.Model(), idx.embedder.Dimension()); err != nil {
			return stats, stageError(StageCommitting, repo.ID, err)
		}
	}

	totalChunks := 0
	if ledger, err := idx.catalog.Snapshot(repo.ID); err == nil {
		for _, rec := range ledger {
			totalChunks += rec.ChunkCount
		}
	}
	if err := idx.catalog.TouchRepo(repo.ID, len(files), totalChunks); err != nil {
		return stats, stageError(StageCommitting, repo.ID, err)
	}

	stats.FilesTotal = len(files)
	log.Info("index run complete",
		zap.Int("chunks_indexed", stats.ChunksIndexed),
		zap.Int("chunks_deleted", stats.ChunksDeleted),
		zap.Int("files_skipped", stats.FilesSkipped))
	return stats, nil
}

// reset drops the repository's namespace and ledger ahead of a full
// rebuild (embedding model change).
func (idx *Indexer) reset(ctx context.Context, repo catalog.Repo) error {
	if err := idx.store.DropNamespace(ctx, repo.Namespace); err != nil {
		return err
	}
	snapshot, err := idx.catalog.Snapshot(repo.ID)
	if err != nil {
		return err
	}
	paths := make([]string, 0, len(snapshot))
	for path := range snapshot {
		paths = append(paths, path)
	}
	if err := idx.catalog.Commit(repo.ID, nil, paths); err != nil {
		return err
	}
	return idx.catalog.PinModel(repo.ID, idx.embedder.Model(), idx.embedder.Dimension())
}

// chunkIDs reconstructs the deterministic chunk identifiers a file
// produced, given how many chunks the ledger recorded.
func chunkIDs(repoID, path string, count int) []string {
	ids := make([]string, count)
	for i := range ids {
		ids[i] = chunker.ID(repoID, path, i)
	}
	return ids
}
