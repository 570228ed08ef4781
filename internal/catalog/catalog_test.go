package catalog_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codescout/internal/catalog"
)

func openCatalog(t *testing.T) (*catalog.Catalog, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	cat, err := catalog.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })
	return cat, dbPath
}

func TestDeriveIDStable(t *testing.T) {
	root := t.TempDir()
	assert.Equal(t, catalog.DeriveID(root), catalog.DeriveID(root))
	assert.Len(t, catalog.DeriveID(root), 12)

	other := t.TempDir()
	assert.NotEqual(t, catalog.DeriveID(root), catalog.DeriveID(other))

	// Trailing separators normalize away.
	assert.Equal(t, catalog.DeriveID(root), catalog.DeriveID(root+string(filepath.Separator)))
}

func TestEnsureRepoIdempotent(t *testing.T) {
	cat, _ := openCatalog(t)
	root := t.TempDir()

	first, err := cat.EnsureRepo(root, "")
	require.NoError(t, err)
	assert.Equal(t, catalog.DeriveID(root), first.ID)
	assert.Equal(t, filepath.Base(root), first.Name)
	assert.Equal(t, "repo_"+first.ID, first.Namespace)
	assert.Empty(t, first.Model)

	// Re-registering the same root returns the existing repository, even
	// with a different requested name.
	second, err := cat.EnsureRepo(root, "other-name")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Name, second.Name)
}

func TestGetRepoTimestamps(t *testing.T) {
	cat, _ := openCatalog(t)
	repo, err := cat.EnsureRepo(t.TempDir(), "")
	require.NoError(t, err)

	// Before the first index run indexed_at is NULL and falls back to
	// the creation time.
	assert.False(t, repo.CreatedAt.IsZero())
	assert.Equal(t, repo.CreatedAt, repo.IndexedAt)

	require.NoError(t, cat.TouchRepo(repo.ID, 3, 12))

	got, err := cat.GetRepo(repo.ID)
	require.NoError(t, err)
	assert.False(t, got.IndexedAt.IsZero())
	assert.Equal(t, 3, got.FileCount)
	assert.Equal(t, 12, got.ChunkCount)

	repos, err := cat.ListRepos()
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.False(t, repos[0].IndexedAt.IsZero())
}

func TestEnsureRepoNameCollision(t *testing.T) {
	cat, _ := openCatalog(t)
	parent := t.TempDir()
	rootA := filepath.Join(parent, "a", "project")
	rootB := filepath.Join(parent, "b", "project")

	first, err := cat.EnsureRepo(rootA, "")
	require.NoError(t, err)
	assert.Equal(t, "project", first.Name)

	// A defaulted name that is taken gets the short ID appended.
	second, err := cat.EnsureRepo(rootB, "")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "project-"+second.ID[:6], second.Name)

	// An explicit name that is taken is an error, not a constraint dump.
	_, err = cat.EnsureRepo(filepath.Join(parent, "c"), "project")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in use")
}

func TestGetRepoByIDOrName(t *testing.T) {
	cat, _ := openCatalog(t)
	root := t.TempDir()

	repo, err := cat.EnsureRepo(root, "myproject")
	require.NoError(t, err)

	byID, err := cat.GetRepo(repo.ID)
	require.NoError(t, err)
	assert.Equal(t, "myproject", byID.Name)

	byName, err := cat.GetRepo("myproject")
	require.NoError(t, err)
	assert.Equal(t, repo.ID, byName.ID)

	_, err = cat.GetRepo("nope")
	assert.ErrorIs(t, err, catalog.ErrRepoNotFound)
}

func TestPinModel(t *testing.T) {
	cat, _ := openCatalog(t)
	repo, err := cat.EnsureRepo(t.TempDir(), "")
	require.NoError(t, err)

	require.NoError(t, cat.PinModel(repo.ID, "nomic-embed-text", 768))

	got, err := cat.GetRepo(repo.ID)
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", got.Model)
	assert.Equal(t, 768, got.Dimension)

	assert.ErrorIs(t, cat.PinModel("missing", "m", 1), catalog.ErrRepoNotFound)
}

func TestRemoveRepoCascades(t *testing.T) {
	cat, _ := openCatalog(t)
	repo, err := cat.EnsureRepo(t.TempDir(), "")
	require.NoError(t, err)

	require.NoError(t, cat.Commit(repo.ID, []catalog.FileRecord{
		{Path: "a.go", Fingerprint: "f1", ChunkCount: 2},
	}, nil))

	require.NoError(t, cat.RemoveRepo(repo.ID))

	_, err = cat.GetRepo(repo.ID)
	assert.ErrorIs(t, err, catalog.ErrRepoNotFound)

	snapshot, err := cat.Snapshot(repo.ID)
	require.NoError(t, err)
	assert.Empty(t, snapshot)

	assert.ErrorIs(t, cat.RemoveRepo(repo.ID), catalog.ErrRepoNotFound)
}

func TestListReposOrdered(t *testing.T) {
	cat, _ := openCatalog(t)
	_, err := cat.EnsureRepo(t.TempDir(), "zeta")
	require.NoError(t, err)
	_, err = cat.EnsureRepo(t.TempDir(), "alpha")
	require.NoError(t, err)

	repos, err := cat.ListRepos()
	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "alpha", repos[0].Name)
	assert.Equal(t, "zeta", repos[1].Name)
}

func TestCatalogPersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	root := t.TempDir()

	cat, err := catalog.Open(dbPath)
	require.NoError(t, err)
	repo, err := cat.EnsureRepo(root, "persisted")
	require.NoError(t, err)
	require.NoError(t, cat.Commit(repo.ID, []catalog.FileRecord{
		{Path: "main.go", Fingerprint: "abc", ChunkCount: 3},
	}, nil))
	require.NoError(t, cat.Close())

	reopened, err := catalog.Open(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetRepo("persisted")
	require.NoError(t, err)
	assert.Equal(t, repo.ID, got.ID)

	snapshot, err := reopened.Snapshot(repo.ID)
	require.NoError(t, err)
	require.Contains(t, snapshot, "main.go")
	assert.Equal(t, 3, snapshot["main.go"].ChunkCount)
}
