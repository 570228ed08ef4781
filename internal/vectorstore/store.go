// Package vectorstore defines the namespace-scoped vector index interface
// and its backends.
//
// Every operation takes the namespace as an explicit argument: repository
// isolation is a property of the call shape, not a filter a caller could
// forget to apply.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Sentinel errors for vector store operations.
var (
	// ErrUnavailable indicates the backend is unreachable.
	ErrUnavailable = errors.New("vector store unavailable")

	// ErrNamespaceNotFound is returned when querying a namespace that was
	// never created.
	ErrNamespaceNotFound = errors.New("namespace not found")

	// ErrInvalidNamespace indicates a namespace name failing validation.
	ErrInvalidNamespace = errors.New("invalid namespace name")
)

// namespacePattern validates namespace names: lowercase letters, digits,
// underscores, 1-64 characters. Backends interpolate the namespace into
// collection and table names, so this is a hard requirement.
var namespacePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateNamespace rejects names that cannot safely scope a backend.
func ValidateNamespace(ns string) error {
	if !namespacePattern.MatchString(ns) {
		return fmt.Errorf("%w: must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidNamespace, ns)
	}
	return nil
}

// Payload is the metadata stored alongside each vector.
type Payload struct {
	RepoID          string
	Path            string
	StartLine       int
	EndLine         int
	Language        string
	Name            string
	Kind            string
	Text            string
	FileFingerprint string
}

// Entry is one chunk vector plus its metadata, keyed by chunk identifier.
type Entry struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Scored is a query hit: the stored entry's identity and metadata with its
// similarity score (higher = more relevant).
type Scored struct {
	ID      string
	Score   float32
	Payload Payload
}

// Store is the vector index boundary. Implementations must make
// Upsert idempotent by ID, treat deleting missing IDs as a no-op, and
// return Query results in descending score order with a deterministic
// tie-break.
type Store interface {
	// EnsureNamespace creates the namespace if absent; no-op if present.
	EnsureNamespace(ctx context.Context, ns string, dimension int) error

	// DropNamespace irreversibly removes the namespace and all entries.
	DropNamespace(ctx context.Context, ns string) error

	// Upsert stores entries; an existing ID is replaced.
	Upsert(ctx context.Context, ns string, entries []Entry) error

	// Delete removes entries by ID. Missing IDs are ignored.
	Delete(ctx context.Context, ns string, ids []string) error

	// Query returns at most topK entries ranked by descending similarity
	// to vector, restricted to ns.
	Query(ctx context.Context, ns string, vector []float32, topK int) ([]Scored, error)

	// Close releases backend resources.
	Close() error
}
