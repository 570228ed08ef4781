package catalog

import "time"

// Repo is a registered repository. The ID is derived from the absolute root
// path, so re-registering the same path always yields the same repository.
type Repo struct {
	ID   string
	Name string
	Root string
	// Namespace is the vector store partition holding this repo's entries.
	Namespace string
	// Model and Dimension pin the embedding model used at index time.
	// Empty until the first successful index run.
	Model      string
	Dimension  int
	CreatedAt  time.Time
	IndexedAt  time.Time
	FileCount  int
	ChunkCount int
}

// FileRecord tracks the last-indexed state of one file within a repository.
type FileRecord struct {
	Path        string
	Fingerprint string
	// ChunkCount is how many chunks the file produced. Chunk identifiers
	// are deterministic, so the count is enough to reconstruct them.
	ChunkCount int
	IndexedAt  time.Time
}

// Delta is the outcome of comparing tracked state to the current file set.
type Delta struct {
	Added    []string
	Modified []string
	Deleted  []string
}

// Empty reports whether the delta requires no work.
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Modified) == 0 && len(d.Deleted) == 0
}
