package vectorstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codescout/internal/vectorstore"
)

func openStore(t *testing.T) *vectorstore.SQLiteVec {
	t.Helper()
	s, err := vectorstore.NewSQLiteVec(filepath.Join(t.TempDir(), "vectors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func entry(id string, path string, vec []float32) vectorstore.Entry {
	return vectorstore.Entry{
		ID:     id,
		Vector: vec,
		Payload: vectorstore.Payload{
			RepoID:    "r1",
			Path:      path,
			StartLine: 1,
			EndLine:   10,
			Language:  "go",
			Kind:      "function_declaration",
			Text:      "func example() {}",
		},
	}
}

func TestValidateNamespace(t *testing.T) {
	assert.NoError(t, vectorstore.ValidateNamespace("repo_abc123"))
	assert.NoError(t, vectorstore.ValidateNamespace("a"))

	for _, bad := range []string{"", "Repo_ABC", "repo-abc", "repo.abc", "repo abc", "repo;drop"} {
		assert.ErrorIs(t, vectorstore.ValidateNamespace(bad), vectorstore.ErrInvalidNamespace, "namespace %q", bad)
	}
}

func TestEnsureNamespaceIdempotent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureNamespace(ctx, "repo_a", 3))
	require.NoError(t, s.EnsureNamespace(ctx, "repo_a", 3))
}

func TestUpsertIntoMissingNamespace(t *testing.T) {
	s := openStore(t)
	err := s.Upsert(context.Background(), "repo_missing", []vectorstore.Entry{
		entry("id-1", "a.go", []float32{1, 0, 0}),
	})
	assert.ErrorIs(t, err, vectorstore.ErrNamespaceNotFound)
}

func TestQueryRanksBySimilarity(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureNamespace(ctx, "repo_a", 3))

	require.NoError(t, s.Upsert(ctx, "repo_a", []vectorstore.Entry{
		entry("exact", "exact.go", []float32{1, 0, 0}),
		entry("close", "close.go", []float32{0.9, 0.1, 0}),
		entry("far", "far.go", []float32{0, 0, 1}),
	}))

	results, err := s.Query(ctx, "repo_a", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "exact", results[0].ID)
	assert.Equal(t, "close", results[1].ID)
	assert.Equal(t, "far", results[2].ID)

	assert.InDelta(t, 1.0, results[0].Score, 0.01)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Score, results[i-1].Score)
	}

	// Payload round-trips with the hit.
	assert.Equal(t, "exact.go", results[0].Payload.Path)
	assert.Equal(t, "go", results[0].Payload.Language)
}

func TestQueryRespectsTopK(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureNamespace(ctx, "repo_a", 3))

	require.NoError(t, s.Upsert(ctx, "repo_a", []vectorstore.Entry{
		entry("a", "a.go", []float32{1, 0, 0}),
		entry("b", "b.go", []float32{0, 1, 0}),
		entry("c", "c.go", []float32{0, 0, 1}),
	}))

	results, err := s.Query(ctx, "repo_a", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestUpsertReplacesByID(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureNamespace(ctx, "repo_a", 3))

	require.NoError(t, s.Upsert(ctx, "repo_a", []vectorstore.Entry{
		entry("id-1", "old.go", []float32{1, 0, 0}),
	}))
	require.NoError(t, s.Upsert(ctx, "repo_a", []vectorstore.Entry{
		entry("id-1", "new.go", []float32{0, 1, 0}),
	}))

	results, err := s.Query(ctx, "repo_a", []float32{0, 1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "id-1", results[0].ID)
	assert.Equal(t, "new.go", results[0].Payload.Path)
}

func TestNamespaceIsolation(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureNamespace(ctx, "repo_a", 3))
	require.NoError(t, s.EnsureNamespace(ctx, "repo_b", 3))

	require.NoError(t, s.Upsert(ctx, "repo_a", []vectorstore.Entry{
		entry("shared-id", "in_a.go", []float32{1, 0, 0}),
	}))
	require.NoError(t, s.Upsert(ctx, "repo_b", []vectorstore.Entry{
		entry("shared-id", "in_b.go", []float32{1, 0, 0}),
	}))

	// Deleting in one namespace leaves the other untouched.
	require.NoError(t, s.Delete(ctx, "repo_a", []string{"shared-id"}))

	resultsA, err := s.Query(ctx, "repo_a", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, resultsA)

	resultsB, err := s.Query(ctx, "repo_b", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, resultsB, 1)
	assert.Equal(t, "in_b.go", resultsB[0].Payload.Path)
}

func TestDeleteMissingIDsIsNoOp(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureNamespace(ctx, "repo_a", 3))

	assert.NoError(t, s.Delete(ctx, "repo_a", []string{"never-existed"}))
	assert.NoError(t, s.Delete(ctx, "repo_never_created", []string{"x"}))
	assert.NoError(t, s.Delete(ctx, "repo_a", nil))
}

func TestQueryMissingNamespace(t *testing.T) {
	s := openStore(t)
	_, err := s.Query(context.Background(), "repo_missing", []float32{1, 0, 0}, 5)
	assert.ErrorIs(t, err, vectorstore.ErrNamespaceNotFound)
}

func TestDropNamespace(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureNamespace(ctx, "repo_a", 3))
	require.NoError(t, s.Upsert(ctx, "repo_a", []vectorstore.Entry{
		entry("id-1", "a.go", []float32{1, 0, 0}),
	}))

	require.NoError(t, s.DropNamespace(ctx, "repo_a"))

	_, err := s.Query(ctx, "repo_a", []float32{1, 0, 0}, 5)
	assert.ErrorIs(t, err, vectorstore.ErrNamespaceNotFound)

	// Dropping again is fine.
	assert.NoError(t, s.DropNamespace(ctx, "repo_a"))
}
