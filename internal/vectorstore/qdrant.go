package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"codescout/internal/config"
)

// QdrantStore implements Store over Qdrant's native gRPC client, with one
// collection per namespace.
type QdrantStore struct {
	client *qdrant.Client

	maxRetries   int
	retryBackoff time.Duration

	// collections caches namespace existence to avoid repeated checks.
	collections sync.Map
}

// NewQdrant connects to Qdrant and verifies the connection with a health
// check before returning.
func NewQdrant(cfg config.QdrantConfig) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s := &QdrantStore{
		client:       client,
		maxRetries:   3,
		retryBackoff: time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check failed: %v", ErrUnavailable, err)
	}
	return s, nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// isTransient reports whether a gRPC error is worth retrying.
func isTransient(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// retry runs op with exponential backoff on transient failures.
func (s *QdrantStore) retry(ctx context.Context, name string, op func() error) error {
	backoff := s.retryBackoff
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return fmt.Errorf("%s failed: %w", name, err)
		}
		if attempt == s.maxRetries {
			return fmt.Errorf("%w: %s failed after %d retries: %v", ErrUnavailable, name, s.maxRetries, err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", name, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// EnsureNamespace creates the namespace collection if absent.
func (s *QdrantStore) EnsureNamespace(ctx context.Context, ns string, dimension int) error {
	if err := ValidateNamespace(ns); err != nil {
		return err
	}
	if _, ok := s.collections.Load(ns); ok {
		return nil
	}

	var exists bool
	err := s.retry(ctx, "collection_exists", func() error {
		var err error
		exists, err = s.client.CollectionExists(ctx, ns)
		return err
	})
	if err != nil {
		return err
	}
	if !exists {
		err := s.retry(ctx, "create_collection", func() error {
			return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: ns,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     uint64(dimension),
					Distance: qdrant.Distance_Cosine,
				}),
			})
		})
		if err != nil {
			return err
		}
	}
	s.collections.Store(ns, true)
	return nil
}

// DropNamespace removes the namespace collection and all its entries.
func (s *QdrantStore) DropNamespace(ctx context.Context, ns string) error {
	if err := ValidateNamespace(ns); err != nil {
		return err
	}
	err := s.retry(ctx, "delete_collection", func() error {
		return s.client.DeleteCollection(ctx, ns)
	})
	if err != nil {
		return err
	}
	s.collections.Delete(ns)
	return nil
}

// Upsert stores entries in the namespace collection. Re-upserting an ID
// replaces the previous point.
func (s *QdrantStore) Upsert(ctx context.Context, ns string, entries []Entry) error {
	if err := ValidateNamespace(ns); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(entries))
	for i, e := range entries {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(e.ID),
			Vectors: qdrant.NewVectors(e.Vector...),
			Payload: encodePayload(e.ID, e.Payload),
		}
	}

	return s.retry(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: ns,
			Points:         points,
		})
		return err
	})
}

// Delete removes points by chunk ID. Missing IDs are a no-op.
func (s *QdrantStore) Delete(ctx context.Context, ns string, ids []string) error {
	if err := ValidateNamespace(ns); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id)
	}

	return s.retry(ctx, "delete", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: ns,
			Points:         qdrant.NewPointsSelector(pointIDs...),
		})
		return err
	})
}

// Query runs a similarity search over the namespace collection. Qdrant
// returns cosine similarity, already higher-is-better.
func (s *QdrantStore) Query(ctx context.Context, ns string, vector []float32, topK int) ([]Scored, error) {
	if err := ValidateNamespace(ns); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	exists, err := s.client.CollectionExists(ctx, ns)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNamespaceNotFound, ns)
	}

	var points []*qdrant.ScoredPoint
	err = s.retry(ctx, "query", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: ns,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(topK)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	results := make([]Scored, len(points))
	for i, p := range points {
		results[i] = Scored{
			Score:   p.Score,
			Payload: decodePayload(p.Payload),
		}
		if id, ok := p.Payload["id"]; ok {
			results[i].ID = id.GetStringValue()
		}
	}
	return results, nil
}

func encodePayload(id string, p Payload) map[string]*qdrant.Value {
	return qdrant.NewValueMap(map[string]any{
		"id":               id,
		"repo_id":          p.RepoID,
		"path":             p.Path,
		"start_line":       int64(p.StartLine),
		"end_line":         int64(p.EndLine),
		"language":         p.Language,
		"name":             p.Name,
		"kind":             p.Kind,
		"text":             p.Text,
		"file_fingerprint": p.FileFingerprint,
	})
}

func decodePayload(values map[string]*qdrant.Value) Payload {
	return Payload{
		RepoID:          values["repo_id"].GetStringValue(),
		Path:            values["path"].GetStringValue(),
		StartLine:       int(values["start_line"].GetIntegerValue()),
		EndLine:         int(values["end_line"].GetIntegerValue()),
		Language:        values["language"].GetStringValue(),
		Name:            values["name"].GetStringValue(),
		Kind:            values["kind"].GetStringValue(),
		Text:            values["text"].GetStringValue(),
		FileFingerprint: values["file_fingerprint"].GetStringValue(),
	}
}
