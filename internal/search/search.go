// Package search answers natural-language queries against one repository's
// indexed chunks.
package search

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"codescout/internal/catalog"
	"codescout/internal/embedder"
	"codescout/internal/vectorstore"
)

// ErrModelMismatch is returned when the configured embedding model differs
// from the model the repository was indexed with. Comparing vectors across
// models is meaningless, so the search is refused rather than degraded.
var ErrModelMismatch = errors.New("embedding model mismatch")

// Result is one ranked hit.
type Result struct {
	ChunkID   string
	Path      string
	StartLine int
	EndLine   int
	Language  string
	Name      string
	Kind      string
	// Score is similarity, higher = more relevant.
	Score float32
	// Snippet is the chunk text cached at index time.
	Snippet string
}

// Options tunes result assembly.
type Options struct {
	// MinScore drops results below this similarity. 0 disables the cutoff.
	MinScore float32
}

// Engine embeds queries and runs namespace-scoped similarity searches.
type Engine struct {
	catalog  *catalog.Catalog
	store    vectorstore.Store
	embedder embedder.Embedder
	log      *zap.Logger
	opts     Options
}

// New assembles a search engine from its collaborators.
func New(cat *catalog.Catalog, store vectorstore.Store, emb embedder.Embedder,
	log *zap.Logger, opts Options) *Engine {
	return &Engine{
		catalog:  cat,
		store:    store,
		embedder: emb,
		log:      log,
		opts:     opts,
	}
}

// Search resolves the repository, embeds the query with the model pinned at
// index time, and returns up to topK ranked results. A repository with no
// indexed content yields an empty result set, not an error.
func (e *Engine) Search(ctx context.Context, repoRef, query string, topK int) ([]Result, error) {
	if query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	repo, err := e.catalog.GetRepo(repoRef)
	if err != nil {
		return nil, err
	}

	// Never indexed: nothing to search, and no pinned model to honor.
	if repo.Model == "" {
		return nil, nil
	}
	if repo.Model != e.embedder.Model() {
		return nil, fmt.Errorf("%w: repository %s was indexed with %q but the configured model is %q; re-index to switch models",
			ErrModelMismatch, repo.Name, repo.Model, e.embedder.Model())
	}

	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	scored, err := e.store.Query(ctx, repo.Namespace, vector, topK)
	if err != nil {
		if errors.Is(err, vectorstore.ErrNamespaceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query namespace %s: %w", repo.Namespace, err)
	}

	results := make([]Result, 0, len(scored))
	for _, s := range scored {
		if e.opts.MinScore > 0 && s.Score < e.opts.MinScore {
			continue
		}
		results = append(results, Result{
			ChunkID:   s.ID,
			Path:      s.Payload.Path,
			StartLine: s.Payload.StartLine,
			EndLine:   s.Payload.EndLine,
			Language:  s.Payload.Language,
			Name:      s.Payload.Name,
			Kind:      s.Payload.Kind,
			Score:     s.Score,
			Snippet:   s.Payload.Text,
		})
	}

	e.log.Debug("search complete",
		zap.String("repo", repo.ID),
		zap.Int("hits", len(results)))
	return results, nil
}
