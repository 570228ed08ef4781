// Package catalog persists the repository registry and the per-repository
// change-tracking ledger in a single SQLite database.
package catalog

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// ErrRepoNotFound is returned when no repository matches the given
// identifier or name.
var ErrRepoNotFound = errors.New("repository not found")

// Catalog is the on-disk registry of repositories and their file ledgers.
type Catalog struct {
	db *sql.DB
}

// Open creates or opens the catalog database at dbPath.
func Open(dbPath string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init catalog schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

// DeriveID computes the stable repository identifier for a root path.
func DeriveID(root string) string {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	sum := sha256.Sum256([]byte(filepath.Clean(abs)))
	return hex.EncodeToString(sum[:])[:12]
}

// EnsureRepo registers the repository rooted at root if it isn't already
// known, and returns it. The display name defaults to the root's basename;
// a defaulted name that is already taken gets the short ID appended so two
// roots sharing a basename can coexist.
func (c *Catalog) EnsureRepo(root, name string) (Repo, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Repo{}, fmt.Errorf("resolve root: %w", err)
	}
	id := DeriveID(abs)

	if repo, err := c.GetRepo(id); err == nil {
		return repo, nil
	} else if !errors.Is(err, ErrRepoNotFound) {
		return Repo{}, err
	}

	defaulted := name == ""
	if defaulted {
		name = filepath.Base(abs)
	}
	taken, err := c.nameTaken(name)
	if err != nil {
		return Repo{}, err
	}
	if taken {
		if !defaulted {
			return Repo{}, fmt.Errorf("repository name %q is already in use", name)
		}
		name = fmt.Sprintf("%s-%s", name, id[:6])
	}
	namespace := "repo_" + id

	_, err = c.db.Exec(
		"INSERT INTO repos (id, name, root, namespace) VALUES (?, ?, ?, ?)",
		id, name, abs, namespace,
	)
	if err != nil {
		return Repo{}, fmt.Errorf("register repository: %w", err)
	}
	return c.GetRepo(id)
}

const repoColumns = `id, name, root, namespace, model, dimension,
       created_at, indexed_at, file_count, chunk_count`

// scanRepo reads one repos row. indexed_at is NULL until the first index
// run; it falls back to created_at so callers always get a usable time.
func scanRepo(row interface{ Scan(...any) error }) (Repo, error) {
	var r Repo
	var indexedAt sql.NullTime
	err := row.Scan(&r.ID, &r.Name, &r.Root, &r.Namespace, &r.Model, &r.Dimension,
		&r.CreatedAt, &indexedAt, &r.FileCount, &r.ChunkCount)
	if err != nil {
		return Repo{}, err
	}
	if indexedAt.Valid {
		r.IndexedAt = indexedAt.Time
	} else {
		r.IndexedAt = r.CreatedAt
	}
	return r, nil
}

// GetRepo looks a repository up by ID or, failing that, by display name.
func (c *Catalog) GetRepo(idOrName string) (Repo, error) {
	row := c.db.QueryRow(
		"SELECT "+repoColumns+" FROM repos WHERE id = ? OR name = ?",
		idOrName, idOrName)

	r, err := scanRepo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Repo{}, fmt.Errorf("%w: %s", ErrRepoNotFound, idOrName)
	}
	if err != nil {
		return Repo{}, err
	}
	return r, nil
}

// ListRepos returns all registered repositories ordered by name.
func (c *Catalog) ListRepos() ([]Repo, error) {
	rows, err := c.db.Query("SELECT " + repoColumns + " FROM repos ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repos []Repo
	for rows.Next() {
		r, err := scanRepo(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

func (c *Catalog) nameTaken(name string) (bool, error) {
	var one int
	err := c.db.QueryRow("SELECT 1 FROM repos WHERE name = ?", name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PinModel records the embedding model used for a repository's namespace.
// Vectors from different models must never mix, so this is set once on the
// first index run and checked on every subsequent run and query.
func (c *Catalog) PinModel(repoID, model string, dimension int) error {
	res, err := c.db.Exec("UPDATE repos SET model = ?, dimension = ? WHERE id = ?",
		model, dimension, repoID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRepoNotFound, repoID)
	}
	return nil
}

// TouchRepo updates the repository's index statistics and timestamp.
func (c *Catalog) TouchRepo(repoID string, fileCount, chunkCount int) error {
	_, err := c.db.Exec(
		"UPDATE repos SET indexed_at = CURRENT_TIMESTAMP, file_count = ?, chunk_count = ? WHERE id = ?",
		fileCount, chunkCount, repoID,
	)
	return err
}

// RemoveRepo deletes the repository and its ledger rows. The caller is
// responsible for dropping the vector store namespace.
func (c *Catalog) RemoveRepo(repoID string) error {
	res, err := c.db.Exec("DELETE FROM repos WHERE id = ?", repoID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRepoNotFound, repoID)
	}
	return nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}
