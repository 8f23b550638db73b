package retrieval

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mike-a-ellis/docqa/internal/chunker"
	"github.com/mike-a-ellis/docqa/internal/domain"
	"github.com/mike-a-ellis/docqa/internal/embedding"
	"github.com/mike-a-ellis/docqa/internal/locks"
	"github.com/mike-a-ellis/docqa/internal/registry"
	"github.com/mike-a-ellis/docqa/internal/storage"
)

// fixedEmbedder embeds every query to the same vector.
type fixedEmbedder struct {
	vec []float32
	err error
}

func (f fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func (f fixedEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f fixedEmbedder) Dimension() int    { return len(f.vec) }
func (f fixedEmbedder) ModelName() string { return "fixed" }

type fixture struct {
	reg   *registry.Registry
	store *storage.FileStore
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	reg, err := registry.Open(filepath.Join(dir, "docqa.db"))
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })
	store, err := storage.NewFileStore(filepath.Join(dir, "vector_stores"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return &fixture{reg: reg, store: store, now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// addDoc registers a document and stores one 1-dimensional vector per value.
// Against a zero query the squared distance of value v is v*v.
func (f *fixture) addDoc(t *testing.T, user, id string, model string, values ...float32) {
	t.Helper()
	chunks := make([]string, len(values))
	vectors := make([][]float32, len(values))
	for i, v := range values {
		chunks[i] = fmt.Sprintf("%s-%d", id, i)
		vectors[i] = []float32{v}
	}
	if len(values) > 0 {
		require.NoError(t, f.store.Save(context.Background(), storage.Key{UserID: user, DocumentID: id},
			&storage.Artifact{Model: model, Chunks: chunks, Vectors: vectors}))
	}
	f.now = f.now.Add(time.Minute)
	require.NoError(t, f.reg.InsertDocument(context.Background(), &domain.Document{
		ID: id, UserID: user, Filename: id + ".txt", ContentType: domain.ContentTypeText,
		ChunkCount: len(values), UploadedAt: f.now,
	}))
}

// hookLocker calls before ahead of every shared lock.
type hookLocker struct {
	*locks.Documents
	before func(key string)
}

func (h hookLocker) RLock(key string) func() {
	h.before(key)
	return h.Documents.RLock(key)
}

// remove deletes a document the way the ingestion pipeline does.
func (f *fixture) remove(t *testing.T, lk *locks.Documents, user, id string) {
	t.Helper()
	key := storage.Key{UserID: user, DocumentID: id}
	unlock := lk.Lock(key.String())
	defer unlock()
	assert.NoError(t, f.reg.DeleteDocument(context.Background(), user, id))
	assert.NoError(t, f.store.Delete(context.Background(), key))
}

func (f *fixture) retriever(emb embedding.Embedder) *Retriever {
	return New(f.reg, f.store, emb, locks.New(), Options{})
}

func chunksOf(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Chunk
	}
	return out
}

func TestRetrieve_MergesAcrossDocuments(t *testing.T) {
	f := newFixture(t)
	f.addDoc(t, "alice", "a", "fixed", 1, 3, 5)
	f.addDoc(t, "alice", "b", "fixed", 2, 4)
	f.addDoc(t, "alice", "c", "fixed", 0.5, 6, 7, 8)

	out, err := f.retriever(fixedEmbedder{vec: []float32{0}}).Retrieve(context.Background(), "alice", "q", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"c-0", "a-0", "b-0", "a-1", "b-1"}, chunksOf(out.Results))
	assert.Equal(t, 3, out.Searched)
	assert.Empty(t, out.Skipped)

	for i := 1; i < len(out.Results); i++ {
		assert.LessOrEqual(t, out.Results[i-1].Distance, out.Results[i].Distance)
	}
	assert.Equal(t, "c.txt", out.Results[0].DocumentName)
	assert.Equal(t, "c", out.Results[0].DocumentID)
	assert.InDelta(t, 0.25, out.Results[0].Distance, 1e-6)
}

func TestRetrieve_SingleDocumentCanFillResults(t *testing.T) {
	f := newFixture(t)
	f.addDoc(t, "alice", "a", "fixed", 1, 2, 3, 4, 5, 6)
	f.addDoc(t, "alice", "b", "fixed", 10)

	r := New(f.reg, f.store, fixedEmbedder{vec: []float32{0}}, locks.New(), Options{PerDocumentK: 10})
	out, err := r.Retrieve(context.Background(), "alice", "q", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-0", "a-1", "a-2", "a-3", "a-4"}, chunksOf(out.Results))
}

func TestRetrieve_PerDocumentKClampedToChunkCount(t *testing.T) {
	f := newFixture(t)
	f.addDoc(t, "alice", "tiny", "fixed", 1, 2)

	out, err := f.retriever(fixedEmbedder{vec: []float32{0}}).Retrieve(context.Background(), "alice", "q", nil)
	require.NoError(t, err)
	assert.Len(t, out.Results, 2)
}

func TestRetrieve_TiesFollowRequestOrder(t *testing.T) {
	f := newFixture(t)
	f.addDoc(t, "alice", "a", "fixed", 1)
	f.addDoc(t, "alice", "b", "fixed", 1)

	emb := fixedEmbedder{vec: []float32{0}}
	out, err := f.retriever(emb).Retrieve(context.Background(), "alice", "q", []string{"b", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b-0", "a-0"}, chunksOf(out.Results))

	out, err = f.retriever(emb).Retrieve(context.Background(), "alice", "q", []string{"a", "b", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a-0", "b-0"}, chunksOf(out.Results))
}

func TestRetrieve_SkipsMissingArtifacts(t *testing.T) {
	f := newFixture(t)
	f.addDoc(t, "alice", "good", "fixed", 1, 2)
	f.addDoc(t, "alice", "lost", "fixed")
	f.addDoc(t, "alice", "stale", "other-model", 0)

	out, err := f.retriever(fixedEmbedder{vec: []float32{0}}).Retrieve(context.Background(), "alice", "q", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"good-0", "good-1"}, chunksOf(out.Results))
	require.Len(t, out.Skipped, 2)
	skippedIDs := []string{out.Skipped[0].DocumentID, out.Skipped[1].DocumentID}
	assert.ElementsMatch(t, []string{"lost", "stale"}, skippedIDs)
}

func TestRetrieve_AllSkippedIsNoRelevantInfo(t *testing.T) {
	f := newFixture(t)
	f.addDoc(t, "alice", "lost", "fixed")

	out, err := f.retriever(fixedEmbedder{vec: []float32{0}}).Retrieve(context.Background(), "alice", "q", nil)
	assert.ErrorIs(t, err, domain.ErrNoRelevantInfo)
	require.NotNil(t, out)
	assert.Len(t, out.Skipped, 1)
}

func TestRetrieve_NoDocuments(t *testing.T) {
	f := newFixture(t)
	f.addDoc(t, "bob", "b", "fixed", 1)
	r := f.retriever(fixedEmbedder{vec: []float32{0}})

	_, err := r.Retrieve(context.Background(), "alice", "q", nil)
	assert.ErrorIs(t, err, domain.ErrNoDocuments)

	_, err = r.Retrieve(context.Background(), "alice", "q", []string{"b"})
	assert.ErrorIs(t, err, domain.ErrNoDocuments)
}

func TestRetrieve_UnresolvedIDs(t *testing.T) {
	f := newFixture(t)
	f.addDoc(t, "alice", "a", "fixed", 1)
	f.addDoc(t, "bob", "b", "fixed", 1)
	r := f.retriever(fixedEmbedder{vec: []float32{0}})

	_, err := r.Retrieve(context.Background(), "alice", "q", []string{"b", "nope"})
	assert.ErrorIs(t, err, domain.ErrNoCandidates)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	assert.Equal(t, domain.KindNoCandidates, domain.KindOf(err))

	// Unresolvable ids next to a valid one are dropped.
	out, err := r.Retrieve(context.Background(), "alice", "q", []string{"nope", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a-0"}, chunksOf(out.Results))
}

func TestRetrieve_DeletedAfterResolve(t *testing.T) {
	f := newFixture(t)
	f.addDoc(t, "alice", "a", "fixed", 1)
	f.addDoc(t, "alice", "b", "fixed", 2)
	emb := fixedEmbedder{vec: []float32{0}}

	t.Run("explicit id", func(t *testing.T) {
		lk := locks.New()
		hook := hookLocker{Documents: lk, before: func(key string) {
			if key == "alice/a" {
				f.remove(t, lk, "alice", "a")
			}
		}}
		_, err := New(f.reg, f.store, emb, hook, Options{}).
			Retrieve(context.Background(), "alice", "q", []string{"a"})
		assert.ErrorIs(t, err, domain.ErrNoCandidates)
		assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	})

	t.Run("remaining documents still answer", func(t *testing.T) {
		f.addDoc(t, "alice", "c", "fixed", 3)
		lk := locks.New()
		hook := hookLocker{Documents: lk, before: func(key string) {
			if key == "alice/c" {
				f.remove(t, lk, "alice", "c")
			}
		}}
		out, err := New(f.reg, f.store, emb, hook, Options{}).
			Retrieve(context.Background(), "alice", "q", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"b-0"}, chunksOf(out.Results))
		assert.Equal(t, 1, out.Searched)
		assert.Empty(t, out.Skipped)
	})
}

func TestRetrieve_EmbeddingFailure(t *testing.T) {
	f := newFixture(t)
	f.addDoc(t, "alice", "a", "fixed", 1)

	_, err := f.retriever(fixedEmbedder{err: errors.New("onnx runtime missing")}).
		Retrieve(context.Background(), "alice", "q", nil)
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)
}

func TestRetrieve_RoundTripWithRealPipeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	emb := embedding.NewHashEmbedder(128)

	var text strings.Builder
	topics := []string{"volcanoes", "accounting", "astronomy", "gardening", "sailing", "chess"}
	for i, topic := range topics {
		fmt.Fprintf(&text, "Paragraph %d is about %s. ", i, topic)
		text.WriteString(strings.Repeat(topic+" facts and details ", 8))
		text.WriteString("\n\n")
	}
	chunks := chunker.New().Split(text.String())
	require.Greater(t, len(chunks), 2)

	vectors, err := emb.Embed(ctx, chunks)
	require.NoError(t, err)
	require.Len(t, vectors, len(chunks))

	key := storage.Key{UserID: "alice", DocumentID: "doc"}
	require.NoError(t, f.store.Save(ctx, key, &storage.Artifact{Model: emb.ModelName(), Chunks: chunks, Vectors: vectors}))
	require.NoError(t, f.reg.InsertDocument(ctx, &domain.Document{
		ID: "doc", UserID: "alice", Filename: "notes.txt", ContentType: domain.ContentTypeText,
		ChunkCount: len(chunks), UploadedAt: f.now,
	}))

	r := f.retriever(emb)
	for i, chunk := range chunks {
		out, err := r.Retrieve(ctx, "alice", chunk, nil)
		require.NoError(t, err)
		require.NotEmpty(t, out.Results)
		assert.Equal(t, chunk, out.Results[0].Chunk, "chunk %d should retrieve itself", i)
		assert.Equal(t, i, out.Results[0].Position)
		assert.InDelta(t, 0, out.Results[0].Distance, 1e-5)
	}
}
