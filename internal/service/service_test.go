package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mike-a-ellis/docqa/internal/chunker"
	"github.com/mike-a-ellis/docqa/internal/domain"
	"github.com/mike-a-ellis/docqa/internal/embedding"
	"github.com/mike-a-ellis/docqa/internal/extract"
	"github.com/mike-a-ellis/docqa/internal/generation"
	"github.com/mike-a-ellis/docqa/internal/indexer"
	"github.com/mike-a-ellis/docqa/internal/locks"
	"github.com/mike-a-ellis/docqa/internal/registry"
	"github.com/mike-a-ellis/docqa/internal/retrieval"
	"github.com/mike-a-ellis/docqa/internal/storage"
)

type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type testService struct {
	*Service
	reg *registry.Registry
}

func newTestService(t *testing.T, gen generation.Generator, timeout time.Duration) *testService {
	t.Helper()
	dir := t.TempDir()
	reg, err := registry.Open(filepath.Join(dir, "docqa.db"))
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })
	store, err := storage.NewFileStore(filepath.Join(dir, "vector_stores"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	emb := embedding.NewHashEmbedder(128)
	lk := locks.New()
	if gen == nil {
		gen = generation.Extractive{}
	}
	svc := New(&Config{
		Pipeline:          indexer.NewPipeline(extract.NewRegistry(), chunker.New(), emb, store, reg, lk, nil),
		Retriever:         retrieval.New(reg, store, emb, lk, retrieval.Options{}),
		Generator:         gen,
		Registry:          reg,
		GenerationTimeout: timeout,
	})
	return &testService{Service: svc, reg: reg}
}

func (s *testService) upload(t *testing.T, user, name, body string) *domain.Document {
	t.Helper()
	doc, err := s.Upload(context.Background(), user, indexer.Upload{Filename: name, Data: []byte(body)})
	require.NoError(t, err)
	return doc
}

func TestAsk_NoDocumentsUploadedYet(t *testing.T) {
	s := newTestService(t, nil, 0)

	_, err := s.Ask(context.Background(), "alice", AskRequest{Question: "What is in my files?"})
	assert.ErrorIs(t, err, domain.ErrNoDocuments)
	assert.Equal(t, "no documents uploaded yet", domain.UserMessage(err))
}

func TestAsk_BlankQuestion(t *testing.T) {
	s := newTestService(t, nil, 0)
	s.upload(t, "alice", "a.txt", "Some content.")

	_, err := s.Ask(context.Background(), "alice", AskRequest{Question: "  \n"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAsk_AnswersAndRecordsChat(t *testing.T) {
	var prompts []string
	gen := generatorFunc(func(_ context.Context, prompt string) (string, error) {
		prompts = append(prompts, prompt)
		return "Tomatoes need full sun.", nil
	})
	s := newTestService(t, gen, 0)
	ctx := context.Background()

	garden := s.upload(t, "alice", "garden.md", "# Garden\n\nTomatoes need six hours of full sun every day.")
	s.upload(t, "alice", "ledger.txt", "Quarterly invoices are reconciled against the ledger.")
	s.upload(t, "bob", "secret.txt", "Bob's private tomato notes.")

	ans, err := s.Ask(ctx, "alice", AskRequest{Question: "How much sun do tomatoes need?", DocumentIDs: []string{garden.ID}})
	require.NoError(t, err)
	assert.Equal(t, "Tomatoes need full sun.", ans.Answer)
	require.NotEmpty(t, ans.Sources)
	assert.Equal(t, "garden.md", ans.Sources[0].Document)
	assert.Equal(t, garden.ID, ans.Sources[0].DocumentID)
	assert.NotEmpty(t, ans.ChatID)

	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Tomatoes need six hours")
	assert.NotContains(t, prompts[0], "invoices")
	assert.NotContains(t, prompts[0], "Bob")
	assert.True(t, strings.HasSuffix(prompts[0], "Question: How much sun do tomatoes need?\n\nAnswer:"))

	history, err := s.History(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, ans.ChatID, history[0].ID)
	assert.Equal(t, "How much sun do tomatoes need?", history[0].Question)
	assert.Equal(t, ans.Answer, history[0].Answer)
	assert.Equal(t, ans.Sources, history[0].Sources)

	bobHistory, err := s.History(ctx, "bob", 0)
	require.NoError(t, err)
	assert.Empty(t, bobHistory)
}

func TestAsk_ExtractiveGenerator(t *testing.T) {
	s := newTestService(t, nil, 0)
	s.upload(t, "alice", "a.txt", "Only one passage here.")

	ans, err := s.Ask(context.Background(), "alice", AskRequest{Question: "What is here?"})
	require.NoError(t, err)
	assert.Contains(t, ans.Answer, "Only one passage here.")
}

func TestAsk_GenerationFailure(t *testing.T) {
	gen := generatorFunc(func(context.Context, string) (string, error) {
		return "", errors.New("upstream 500")
	})
	s := newTestService(t, gen, 0)
	s.upload(t, "alice", "a.txt", "content")

	_, err := s.Ask(context.Background(), "alice", AskRequest{Question: "q?"})
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)

	history, err := s.History(context.Background(), "alice", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestAsk_GenerationTimeout(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	s := newTestService(t, gen, 20*time.Millisecond)
	s.upload(t, "alice", "a.txt", "content")

	_, err := s.Ask(context.Background(), "alice", AskRequest{Question: "q?"})
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)
	assert.Contains(t, err.Error(), "timed out")
}

func TestAsk_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := generatorFunc(func(gctx context.Context, _ string) (string, error) {
		cancel()
		<-gctx.Done()
		return "", gctx.Err()
	})
	s := newTestService(t, gen, time.Minute)
	s.upload(t, "alice", "a.txt", "content")

	_, err := s.Ask(ctx, "alice", AskRequest{Question: "q?"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAsk_ConcurrentWithDelete(t *testing.T) {
	s := newTestService(t, nil, 0)
	ctx := context.Background()

	for round := 0; round < 5; round++ {
		doc := s.upload(t, "alice", "a.txt", strings.Repeat("Refunds take fourteen days. ", 60))

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Ask(ctx, "alice", AskRequest{Question: "How long do refunds take?", DocumentIDs: []string{doc.ID}})
				errs <- err
			}()
		}
		require.NoError(t, s.DeleteDocument(ctx, "alice", doc.ID))
		wg.Wait()
		close(errs)

		for err := range errs {
			if err == nil {
				continue
			}
			assert.True(t,
				errors.Is(err, domain.ErrDocumentNotFound) ||
					errors.Is(err, domain.ErrNoCandidates) ||
					errors.Is(err, domain.ErrNoRelevantInfo) ||
					errors.Is(err, domain.ErrNoDocuments),
				"unexpected error: %v", err)
		}

		_, err := s.Ask(ctx, "alice", AskRequest{Question: "q?", DocumentIDs: []string{doc.ID}})
		assert.Error(t, err)
	}
}

func TestDeleteDocument(t *testing.T) {
	s := newTestService(t, nil, 0)
	ctx := context.Background()
	doc := s.upload(t, "alice", "a.txt", "content")

	docs, err := s.ListDocuments(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, docs, 1)

	require.NoError(t, s.DeleteDocument(ctx, "alice", doc.ID))
	assert.ErrorIs(t, s.DeleteDocument(ctx, "alice", doc.ID), domain.ErrDocumentNotFound)

	_, err = s.Ask(ctx, "alice", AskRequest{Question: "q?"})
	assert.ErrorIs(t, err, domain.ErrNoDocuments)

	_, err = s.Ask(ctx, "alice", AskRequest{Question: "q?", DocumentIDs: []string{doc.ID}})
	assert.ErrorIs(t, err, domain.ErrNoDocuments)
}
