package storage

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// DefaultCollectionName is the single Qdrant collection holding every document's chunks.
const DefaultCollectionName = "docqa_chunks"

// pointNamespace derives deterministic point ids from user, document and position.
var pointNamespace = uuid.MustParse("6f1c52c4-3f5e-4d3b-9d52-6a0c2a1d8e11")

// QdrantStore keeps all artifacts in one Qdrant collection, one point per chunk,
// filtered by user and document on every request.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

var _ ArtifactStore = (*QdrantStore)(nil)

// NewQdrantStore connects to Qdrant and waits for it to become healthy.
// It fails fast if Qdrant stays unreachable.
func NewQdrantStore(ctx context.Context, host string, port int, collection string, dimension int) (*QdrantStore, error) {
	if collection == "" {
		collection = DefaultCollectionName
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	store := &QdrantStore{
		client:     client,
		collection: collection,
		dimension:  dimension,
	}

	if err := backoff.Retry(func() error { return store.Health(ctx) }, backoff.WithContext(newBackoff(), ctx)); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	if err := store.EnsureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return store, nil
}

// newBackoff returns the retry schedule used for Qdrant calls.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// Health performs a single health check against Qdrant.
func (s *QdrantStore) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection creates the collection with Euclidean distance and keyword
// indexes on user_id and doc_id. Idempotent.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	if slices.Contains(collections, s.collection) {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: qdrant.Distance_Euclid,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	for _, field := range []string{"user_id", "doc_id"} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}
	return nil
}

func keyFilter(key Key) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("user_id", key.UserID),
			qdrant.NewMatch("doc_id", key.DocumentID),
		},
	}
}

func pointID(key Key, position int) *qdrant.PointId {
	id := uuid.NewSHA1(pointNamespace, []byte(key.String()+"#"+strconv.Itoa(position)))
	return qdrant.NewIDUUID(id.String())
}

// Save replaces all points of key. Points are upserted in batches of 100;
// if any batch fails the points written so far are removed.
func (s *QdrantStore) Save(ctx context.Context, key Key, a *Artifact) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := a.Validate(); err != nil {
		return err
	}
	if len(a.Vectors[0]) != s.dimension {
		return fmt.Errorf("%w: artifact has %d dimensions, collection has %d",
			ErrDimensionMismatch, len(a.Vectors[0]), s.dimension)
	}

	if err := s.Delete(ctx, key); err != nil {
		return err
	}

	const batchSize = 100
	for i := 0; i < len(a.Chunks); i += batchSize {
		end := min(i+batchSize, len(a.Chunks))
		points := make([]*qdrant.PointStruct, 0, end-i)
		for pos := i; pos < end; pos++ {
			points = append(points, &qdrant.PointStruct{
				Id:      pointID(key, pos),
				Vectors: qdrant.NewVectors(a.Vectors[pos]...),
				Payload: qdrant.NewValueMap(map[string]any{
					"user_id":     key.UserID,
					"doc_id":      key.DocumentID,
					"position":    pos,
					"chunk_count": len(a.Chunks),
					"text":        a.Chunks[pos],
					"model":       a.Model,
				}),
			})
		}

		if err := s.upsertWithRetry(ctx, points); err != nil {
			if rbErr := s.Delete(context.WithoutCancel(ctx), key); rbErr != nil {
				return fmt.Errorf("failed to upsert batch %d-%d: %w (rollback error: %v)", i, end, err, rbErr)
			}
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

func (s *QdrantStore) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	operation := func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(newBackoff(), ctx))
}

// Search runs an exact (non-HNSW) search restricted to key. Qdrant reports
// Euclidean distance; it is squared to match the file index.
func (s *QdrantStore) Search(ctx context.Context, key Key, q Query) ([]Hit, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if len(q.Vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d",
			ErrModelMismatch, len(q.Vector), s.dimension)
	}

	filter := keyFilter(key)
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count points: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: %s", ErrArtifactMissing, key)
	}
	if q.K <= 0 {
		return []Hit{}, nil
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(q.Vector...),
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint64(q.K)),
		Params:         &qdrant.SearchParams{Exact: qdrant.PtrOf(true)},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		payload := r.Payload
		if want := payload["chunk_count"].GetIntegerValue(); uint64(want) != count {
			return nil, fmt.Errorf("%w: %s: %d points for %d chunks", ErrArtifactMissing, key, count, want)
		}
		if model := payload["model"].GetStringValue(); q.Model != "" && model != q.Model {
			return nil, fmt.Errorf("%w: %s has %q, want %q", ErrModelMismatch, key, model, q.Model)
		}
		hits = append(hits, Hit{
			Position: int(payload["position"].GetIntegerValue()),
			Distance: r.Score * r.Score,
			Text:     payload["text"].GetStringValue(),
		})
	}

	slices.SortStableFunc(hits, func(a, b Hit) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		default:
			return a.Position - b.Position
		}
	})
	return hits, nil
}

// Delete removes every point of key.
func (s *QdrantStore) Delete(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(keyFilter(key)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete points for %s: %w", key, err)
	}
	return nil
}

// Keys scrolls the whole collection and returns the distinct (user, document) pairs.
func (s *QdrantStore) Keys(ctx context.Context) ([]Key, error) {
	seen := make(map[Key]bool)
	var keys []Key
	var offset *qdrant.PointId
	batchSize := uint32(256)

	for {
		results, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Limit:          qdrant.PtrOf(batchSize),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayloadInclude("user_id", "doc_id"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll points: %w", err)
		}

		for _, r := range results {
			k := Key{
				UserID:     r.Payload["user_id"].GetStringValue(),
				DocumentID: r.Payload["doc_id"].GetStringValue(),
			}
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}

		if uint32(len(results)) < batchSize {
			break
		}
		offset = results[len(results)-1].Id
	}
	return keys, nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
