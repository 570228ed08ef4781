package index_test

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"codescout/internal/catalog"
	"codescout/internal/chunker"
	"codescout/internal/chunker/languages"
	"codescout/internal/index"
	"codescout/internal/vectorstore"
)

// fakeEmbedder produces deterministic vectors from text content and counts
// every embedded text, so tests can assert exactly what got re-embedded.
type fakeEmbedder struct {
	mu       sync.Mutex
	model    string
	fail     bool
	embedded []string
}

func newFakeEmbedder(model string) *fakeEmbedder {
	return &fakeEmbedder{model: model}
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, fmt.Errorf("embedding backend down")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		f.embedded = append(f.embedded, text)
		sum := sha256.Sum256([]byte(text))
		vec := make([]float32, 4)
		for j := range vec {
			vec[j] = float32(sum[j]) / 255
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) Model() string     { return f.model }
func (f *fakeEmbedder) Dimension() int    { return 4 }
func (f *fakeEmbedder) MaxBatchSize() int { return 8 }

func (f *fakeEmbedder) embedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.embedded)
}

func (f *fakeEmbedder) resetCount() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedded = nil
}

// fakeStore is an in-memory Store keyed namespace -> entry ID.
type fakeStore struct {
	mu         sync.Mutex
	namespaces map[string]map[string]vectorstore.Entry
}

func newFakeStore() *fakeStore {
	return &fakeStore{namespaces: make(map[string]map[string]vectorstore.Entry)}
}

func (s *fakeStore) EnsureNamespace(_ context.Context, ns string, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.namespaces[ns]; !ok {
		s.namespaces[ns] = make(map[string]vectorstore.Entry)
	}
	return nil
}

func (s *fakeStore) DropNamespace(_ context.Context, ns string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.namespaces, ns)
	return nil
}

func (s *fakeStore) Upsert(_ context.Context, ns string, entries []vectorstore.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.namespaces[ns]
	if !ok {
		return fmt.Errorf("%w: %s", vectorstore.ErrNamespaceNotFound, ns)
	}
	for _, e := range entries {
		m[e.ID] = e
	}
	return nil
}

func (s *fakeStore) Delete(_ context.Context, ns string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.namespaces[ns]
	if !ok {
		return nil
	}
	for _, id := range ids {
		delete(m, id)
	}
	return nil
}

func (s *fakeStore) Query(_ context.Context, ns string, _ []float32, topK int) ([]vectorstore.Scored, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.namespaces[ns]
	if !ok {
		return nil, fmt.Errorf("%w: %s", vectorstore.ErrNamespaceNotFound, ns)
	}
	var out []vectorstore.Scored
	for id, e := range m {
		out = append(out, vectorstore.Scored{ID: id, Score: 1, Payload: e.Payload})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) count(ns string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.namespaces[ns])
}

func (s *fakeStore) paths(ns string) map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make(map[string]bool)
	for _, e := range s.namespaces[ns] {
		paths[e.Payload.Path] = true
	}
	return paths
}

// harness wires an indexer against a real catalog, a fake store, and a
// fake embedder over a temp directory of source files.
type harness struct {
	cat   *catalog.Catalog
	store *fakeStore
	emb   *fakeEmbedder
	root  string
	repo  catalog.Repo
	idx   *index.Indexer
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cat, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	root := t.TempDir()
	writeSource(t, root, "alpha.go", goSource("Alpha", "does the first thing"))
	writeSource(t, root, "beta.go", goSource("Beta", "does the second thing"))

	repo, err := cat.EnsureRepo(root, "")
	require.NoError(t, err)

	h := &harness{
		cat:   cat,
		store: newFakeStore(),
		emb:   newFakeEmbedder("fake-model"),
		root:  root,
		repo:  repo,
	}
	h.rebuild(t)
	return h
}

// rebuild recreates the indexer, picking up any embedder swap.
func (h *harness) rebuild(t *testing.T) {
	t.Helper()
	reg := chunker.NewRegistry()
	languages.RegisterAll(reg)
	h.idx = index.New(h.cat, h.store, h.emb, reg, zap.NewNop(), index.Config{
		Workers:     2,
		MaxFileSize: 1 << 20,
	})
}

// run refreshes the repo from the catalog and executes one index pass.
func (h *harness) run(t *testing.T) *index.Stats {
	t.Helper()
	repo, err := h.cat.GetRepo(h.repo.ID)
	require.NoError(t, err)
	stats, err := h.idx.Run(context.Background(), repo)
	require.NoError(t, err)
	return stats
}

func writeSource(t *testing.T, root, rel, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, rel), []byte(content), 0o644))
}

func goSource(name, doc string) string {
	return fmt.Sprintf(`package demo

// %s %s, with enough body to stand as its own chunk.
func %s(input []string) []string {
	out := make([]string, 0, len(input))
	for _, s := range input {
		out = append(out, s+s)
	}
	return out
}
`, name, doc, name)
}

func TestInitialIndexRun(t *testing.T) {
	h := newHarness(t)

	stats := h.run(t)
	assert.Equal(t, 2, stats.FilesAdded)
	assert.Equal(t, 0, stats.FilesModified)
	assert.Equal(t, 2, stats.FilesTotal)
	assert.Equal(t, stats.ChunksIndexed, h.store.count(h.repo.Namespace))
	assert.Positive(t, stats.ChunksIndexed)

	repo, err := h.cat.GetRepo(h.repo.ID)
	require.NoError(t, err)
	assert.Equal(t, "fake-model", repo.Model)
	assert.Equal(t, 4, repo.Dimension)
	assert.Equal(t, 2, repo.FileCount)
}

func TestReindexUnchangedEmbedsNothing(t *testing.T) {
	h := newHarness(t)
	h.run(t)
	h.emb.resetCount()

	stats := h.run(t)
	assert.Equal(t, 0, stats.FilesAdded)
	assert.Equal(t, 0, stats.FilesModified)
	assert.Equal(t, 2, stats.FilesUnchanged)
	assert.Equal(t, 0, stats.ChunksIndexed)
	assert.Zero(t, h.emb.embedCount(), "unchanged files must not be re-embedded")
}

func TestReindexModifiedFileOnly(t *testing.T) {
	h := newHarness(t)
	h.run(t)
	h.emb.resetCount()

	writeSource(t, h.root, "alpha.go", goSource("AlphaChanged", "now renamed"))

	stats := h.run(t)
	assert.Equal(t, 1, stats.FilesModified)
	assert.Equal(t, 1, stats.FilesUnchanged)
	assert.Positive(t, h.emb.embedCount())
	for _, text := range h.emb.embedded {
		assert.Contains(t, text, "alpha.go", "only the changed file should be embedded")
	}
}

func TestReindexDeletedFileRemovesChunks(t *testing.T) {
	h := newHarness(t)
	h.run(t)

	require.NoError(t, os.Remove(filepath.Join(h.root, "beta.go")))

	stats := h.run(t)
	assert.Equal(t, 1, stats.FilesDeleted)
	assert.Positive(t, stats.ChunksDeleted)

	paths := h.store.paths(h.repo.Namespace)
	assert.False(t, paths["beta.go"])
	assert.True(t, paths["alpha.go"])

	snapshot, err := h.cat.Snapshot(h.repo.ID)
	require.NoError(t, err)
	assert.NotContains(t, snapshot, "beta.go")
}

func TestReindexShrunkFileDeletesStaleChunks(t *testing.T) {
	h := newHarness(t)

	// Start alpha.go with three functions so it produces several chunks.
	writeSource(t, h.root, "alpha.go",
		goSource("One", "first")+"\n"+goSource("Two", "second")[len("package demo\n"):]+
			"\n"+goSource("Three", "third")[len("package demo\n"):])
	h.run(t)

	before := h.store.count(h.repo.Namespace)

	writeSource(t, h.root, "alpha.go", goSource("One", "only survivor"))
	h.run(t)

	after := h.store.count(h.repo.Namespace)
	assert.Less(t, after, before, "stale chunk entries must be deleted")

	snapshot, err := h.cat.Snapshot(h.repo.ID)
	require.NoError(t, err)
	total := 0
	for _, rec := range snapshot {
		total += rec.ChunkCount
	}
	assert.Equal(t, total, after, "store contents must match the ledger")
}

func TestModelChangeTriggersRebuild(t *testing.T) {
	h := newHarness(t)
	h.run(t)
	firstCount := h.store.count(h.repo.Namespace)
	require.Positive(t, firstCount)

	h.emb = newFakeEmbedder("other-model")
	h.rebuild(t)

	stats := h.run(t)
	assert.Equal(t, 2, stats.FilesAdded, "model change must re-index everything")

	repo, err := h.cat.GetRepo(h.repo.ID)
	require.NoError(t, err)
	assert.Equal(t, "other-model", repo.Model)
	assert.Equal(t, firstCount, h.store.count(h.repo.Namespace))
}

func TestEmbedFailureLeavesCommittedState(t *testing.T) {
	h := newHarness(t)
	h.run(t)

	snapshotBefore, err := h.cat.Snapshot(h.repo.ID)
	require.NoError(t, err)

	writeSource(t, h.root, "alpha.go", goSource("Broken", "will fail to embed"))
	h.emb.fail = true

	repo, err := h.cat.GetRepo(h.repo.ID)
	require.NoError(t, err)
	_, err = h.idx.Run(context.Background(), repo)
	require.Error(t, err)

	snapshotAfter, err := h.cat.Snapshot(h.repo.ID)
	require.NoError(t, err)
	assert.Equal(t, snapshotBefore["alpha.go"].Fingerprint, snapshotAfter["alpha.go"].Fingerprint,
		"a failed run must not advance the ledger")
}
