package catalog

import (
	"fmt"
	"sort"
)

// Snapshot returns the tracked file records for a repository, keyed by path.
func (c *Catalog) Snapshot(repoID string) (map[string]FileRecord, error) {
	rows, err := c.db.Query(
		"SELECT path, fingerprint, chunk_count, indexed_at FROM files WHERE repo_id = ?",
		repoID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make(map[string]FileRecord)
	for rows.Next() {
		var r FileRecord
		if err := rows.Scan(&r.Path, &r.Fingerprint, &r.ChunkCount, &r.IndexedAt); err != nil {
			return nil, err
		}
		records[r.Path] = r
	}
	return records, rows.Err()
}

// Diff compares the tracked ledger against the current file set. A file is
// modified iff its fingerprint changed, added iff untracked, and deleted
// iff tracked but absent from current. Result slices are sorted for
// deterministic downstream processing.
func (c *Catalog) Diff(repoID string, current map[string]string) (Delta, error) {
	tracked, err := c.Snapshot(repoID)
	if err != nil {
		return Delta{}, fmt.Errorf("load ledger: %w", err)
	}

	var d Delta
	for path, fp := range current {
		rec, ok := tracked[path]
		switch {
		case !ok:
			d.Added = append(d.Added, path)
		case rec.Fingerprint != fp:
			d.Modified = append(d.Modified, path)
		}
	}
	for path := range tracked {
		if _, ok := current[path]; !ok {
			d.Deleted = append(d.Deleted, path)
		}
	}

	sort.Strings(d.Added)
	sort.Strings(d.Modified)
	sort.Strings(d.Deleted)
	return d, nil
}

// Commit atomically replaces ledger state for an index run: records are
// upserted and deleted paths removed in one transaction. It must only be
// called after the corresponding vector store writes have succeeded.
func (c *Catalog) Commit(repoID string, records []FileRecord, deleted []string) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	upsert, err := tx.Prepare(`
		INSERT INTO files (repo_id, path, fingerprint, chunk_count, indexed_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(repo_id, path) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			chunk_count = excluded.chunk_count,
			indexed_at  = excluded.indexed_at
	`)
	if err != nil {
		return err
	}
	defer upsert.Close()

	for _, r := range records {
		if _, err := upsert.Exec(repoID, r.Path, r.Fingerprint, r.ChunkCount); err != nil {
			return fmt.Errorf("commit %s: %w", r.Path, err)
		}
	}

	for _, path := range deleted {
		if _, err := tx.Exec("DELETE FROM files WHERE repo_id = ? AND path = ?", repoID, path); err != nil {
			return fmt.Errorf("remove %s from ledger: %w", path, err)
		}
	}

	return tx.Commit()
}
