//go:build integration

package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestQdrant connects to a local Qdrant and uses a throwaway collection.
// Skips test if Qdrant is not running.
func setupTestQdrant(t *testing.T) *QdrantStore {
	ctx := context.Background()
	collection := "docqa_test_" + uuid.New().String()[:8]
	store, err := NewQdrantStore(ctx, "localhost", 6334, collection, 2)
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}
	t.Cleanup(func() {
		_ = store.client.DeleteCollection(context.Background(), collection)
		store.Close()
	})
	return store
}

func TestQdrantStore_SaveAndSearch(t *testing.T) {
	store := setupTestQdrant(t)
	ctx := context.Background()
	key := Key{UserID: "u1", DocumentID: uuid.New().String()}

	require.NoError(t, store.Save(ctx, key, testArtifact()))

	hits, err := store.Search(ctx, key, Query{Vector: []float32{0, 0}, K: 3, Model: "test-model"})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "alpha", hits[0].Text)
	assert.InDelta(t, 0, hits[0].Distance, 1e-4)
	assert.Equal(t, "beta", hits[1].Text)
	assert.InDelta(t, 1, hits[1].Distance, 1e-4)
	assert.Equal(t, "gamma", hits[2].Text)
	assert.InDelta(t, 4, hits[2].Distance, 1e-4)
}

func TestQdrantStore_IsolatesDocuments(t *testing.T) {
	store := setupTestQdrant(t)
	ctx := context.Background()
	a := Key{UserID: "u1", DocumentID: "a"}
	b := Key{UserID: "u2", DocumentID: "b"}

	require.NoError(t, store.Save(ctx, a, testArtifact()))
	require.NoError(t, store.Save(ctx, b, &Artifact{
		Model:   "test-model",
		Chunks:  []string{"other"},
		Vectors: [][]float32{{0, 0}},
	}))

	hits, err := store.Search(ctx, b, Query{Vector: []float32{0, 0}, K: 3})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "other", hits[0].Text)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []Key{a, b}, keys)
}

func TestQdrantStore_DeleteAndMissing(t *testing.T) {
	store := setupTestQdrant(t)
	ctx := context.Background()
	key := Key{UserID: "u1", DocumentID: "gone"}

	require.NoError(t, store.Save(ctx, key, testArtifact()))
	require.NoError(t, store.Delete(ctx, key))

	_, err := store.Search(ctx, key, Query{Vector: []float32{0, 0}, K: 3})
	assert.ErrorIs(t, err, ErrArtifactMissing)
}

func TestQdrantStore_ModelMismatch(t *testing.T) {
	store := setupTestQdrant(t)
	ctx := context.Background()
	key := Key{UserID: "u1", DocumentID: "m"}
	require.NoError(t, store.Save(ctx, key, testArtifact()))

	_, err := store.Search(ctx, key, Query{Vector: []float32{0, 0}, K: 1, Model: "another"})
	assert.ErrorIs(t, err, ErrModelMismatch)
}

func TestQdrantStore_Health(t *testing.T) {
	store := setupTestQdrant(t)
	assert.NoError(t, store.Health(context.Background()))
}
