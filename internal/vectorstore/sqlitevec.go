package vectorstore

import (
	"context"
	"database/sql"
	"fmt"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// SQLiteVec implements Store embedded in-process with SQLite + sqlite-vec.
// Each namespace gets its own pair of tables (metadata + vec0 virtual
// table), so isolation is structural rather than a row filter.
type SQLiteVec struct {
	db *sql.DB
}

// NewSQLiteVec creates or opens the vector database at dbPath.
func NewSQLiteVec(dbPath string) (*SQLiteVec, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &SQLiteVec{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteVec) Close() error {
	return s.db.Close()
}

func metaTable(ns string) string { return "meta_" + ns }
func vecTable(ns string) string  { return "vec_" + ns }

// namespaceExists checks for the namespace's metadata table.
func (s *SQLiteVec) namespaceExists(ctx context.Context, ns string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT count(*) FROM sqlite_master WHERE type IN ('table','view') AND name = ?",
		metaTable(ns),
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// EnsureNamespace creates the namespace tables if absent.
func (s *SQLiteVec) EnsureNamespace(ctx context.Context, ns string, dimension int) error {
	if err := ValidateNamespace(ns); err != nil {
		return err
	}
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id               TEXT PRIMARY KEY,
			seq              INTEGER NOT NULL,
			repo_id          TEXT NOT NULL,
			path             TEXT NOT NULL,
			start_line       INTEGER NOT NULL,
			end_line         INTEGER NOT NULL,
			language         TEXT NOT NULL DEFAULT '',
			name             TEXT NOT NULL DEFAULT '',
			kind             TEXT NOT NULL DEFAULT '',
			text             TEXT NOT NULL,
			file_fingerprint TEXT NOT NULL DEFAULT ''
		);
		CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(
			id TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, metaTable(ns), vecTable(ns), dimension)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create namespace %s: %w", ns, err)
	}
	return nil
}

// DropNamespace removes the namespace tables and every entry in them.
func (s *SQLiteVec) DropNamespace(ctx context.Context, ns string) error {
	if err := ValidateNamespace(ns); err != nil {
		return err
	}
	ddl := fmt.Sprintf("DROP TABLE IF EXISTS %s; DROP TABLE IF EXISTS %s;",
		vecTable(ns), metaTable(ns))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("drop namespace %s: %w", ns, err)
	}
	return nil
}

// Upsert stores entries. A re-upserted ID keeps its original insertion
// sequence, so repeating an identical run leaves ordering untouched.
func (s *SQLiteVec) Upsert(ctx context.Context, ns string, entries []Entry) error {
	if err := ValidateNamespace(ns); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	exists, err := s.namespaceExists(ctx, ns)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrNamespaceNotFound, ns)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	meta, vec := metaTable(ns), vecTable(ns)
	for _, e := range entries {
		var seq int64
		err := tx.QueryRowContext(ctx,
			fmt.Sprintf("SELECT seq FROM %s WHERE id = ?", meta), e.ID,
		).Scan(&seq)
		switch err {
		case nil:
			// Replacing: keep the original sequence.
		case sql.ErrNoRows:
			if err := tx.QueryRowContext(ctx,
				fmt.Sprintf("SELECT COALESCE(MAX(seq), 0) + 1 FROM %s", meta),
			).Scan(&seq); err != nil {
				return err
			}
		default:
			return err
		}

		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (id, seq, repo_id, path, start_line, end_line, language, name, kind, text, file_fingerprint)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				repo_id = excluded.repo_id, path = excluded.path,
				start_line = excluded.start_line, end_line = excluded.end_line,
				language = excluded.language, name = excluded.name, kind = excluded.kind,
				text = excluded.text, file_fingerprint = excluded.file_fingerprint
		`, meta),
			e.ID, seq, e.Payload.RepoID, e.Payload.Path, e.Payload.StartLine, e.Payload.EndLine,
			e.Payload.Language, e.Payload.Name, e.Payload.Kind, e.Payload.Text, e.Payload.FileFingerprint,
		); err != nil {
			return fmt.Errorf("upsert metadata %s: %w", e.ID, err)
		}

		blob, err := sqlite_vec.SerializeFloat32(e.Vector)
		if err != nil {
			return fmt.Errorf("serialize vector %s: %w", e.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE id = ?", vec), e.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (id, embedding) VALUES (?, ?)", vec),
			e.ID, blob,
		); err != nil {
			return fmt.Errorf("upsert vector %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

// Delete removes entries by ID; missing IDs are ignored.
func (s *SQLiteVec) Delete(ctx context.Context, ns string, ids []string) error {
	if err := ValidateNamespace(ns); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	exists, err := s.namespaceExists(ctx, ns)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE id = ?", vecTable(ns)), id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE id = ?", metaTable(ns)), id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Query runs a KNN search. Cosine distance is converted to a similarity in
// [0,1] (1 - d/2); ties break by insertion sequence.
func (s *SQLiteVec) Query(ctx context.Context, ns string, vector []float32, topK int) ([]Scored, error) {
	if err := ValidateNamespace(ns); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}
	exists, err := s.namespaceExists(ctx, ns)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNamespaceNotFound, ns)
	}

	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return nil, fmt.Errorf("serialize query vector: %w", err)
	}

	// The KNN scan is an inner query so the tie-break ordering by seq can
	// apply to the joined rows.
	q := fmt.Sprintf(`
		SELECT v.id, v.distance, m.seq, m.repo_id, m.path, m.start_line, m.end_line,
		       m.language, m.name, m.kind, m.text, m.file_fingerprint
		FROM (SELECT id, distance FROM %s WHERE embedding MATCH ? ORDER BY distance LIMIT ?) v
		JOIN %s m ON m.id = v.id
		ORDER BY v.distance, m.seq
	`, vecTable(ns), metaTable(ns))

	rows, err := s.db.QueryContext(ctx, q, blob, topK)
	if err != nil {
		return nil, fmt.Errorf("query namespace %s: %w", ns, err)
	}
	defer rows.Close()

	var results []Scored
	for rows.Next() {
		var r Scored
		var distance float64
		var seq int64
		if err := rows.Scan(&r.ID, &distance, &seq,
			&r.Payload.RepoID, &r.Payload.Path, &r.Payload.StartLine, &r.Payload.EndLine,
			&r.Payload.Language, &r.Payload.Name, &r.Payload.Kind,
			&r.Payload.Text, &r.Payload.FileFingerprint); err != nil {
			return nil, err
		}
		r.Score = float32(1 - distance/2)
		results = append(results, r)
	}
	return results, rows.Err()
}

var (
	_ Store = (*SQLiteVec)(nil)
	_ Store = (*QdrantStore)(nil)
)
