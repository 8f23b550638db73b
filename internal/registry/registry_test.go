package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mike-a-ellis/docqa/internal/domain"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "docqa.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func testDoc(id, user string, uploaded time.Time) *domain.Document {
	return &domain.Document{
		ID:          id,
		UserID:      user,
		Filename:    id + ".txt",
		ContentType: domain.ContentTypeText,
		Size:        1234,
		ChunkCount:  3,
		UploadedAt:  uploaded,
	}
}

func TestRegistry_DocumentRoundTrip(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)

	doc := testDoc("doc-1", "alice", now)
	require.NoError(t, r.InsertDocument(ctx, doc))

	got, err := r.GetDocument(ctx, "alice", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	_, err = r.GetDocument(ctx, "bob", "doc-1")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestRegistry_ListNewestFirst(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, r.InsertDocument(ctx, testDoc("old", "alice", base)))
	require.NoError(t, r.InsertDocument(ctx, testDoc("new", "alice", base.Add(500*time.Millisecond))))
	require.NoError(t, r.InsertDocument(ctx, testDoc("mid", "alice", base.Add(time.Millisecond))))
	require.NoError(t, r.InsertDocument(ctx, testDoc("other", "bob", base)))

	docs, err := r.ListDocuments(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "new", docs[0].ID)
	assert.Equal(t, "mid", docs[1].ID)
	assert.Equal(t, "old", docs[2].ID)

	ids, err := r.DocumentIDs(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"old", "mid", "new"}, ids)

	empty, err := r.ListDocuments(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRegistry_DeleteDocument(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.InsertDocument(ctx, testDoc("doc-1", "alice", time.Now())))

	// Another user cannot delete it.
	assert.ErrorIs(t, r.DeleteDocument(ctx, "bob", "doc-1"), domain.ErrDocumentNotFound)

	require.NoError(t, r.DeleteDocument(ctx, "alice", "doc-1"))
	assert.ErrorIs(t, r.DeleteDocument(ctx, "alice", "doc-1"), domain.ErrDocumentNotFound)

	_, err := r.GetDocument(ctx, "alice", "doc-1")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestRegistry_DuplicateID(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.InsertDocument(ctx, testDoc("doc-1", "alice", time.Now())))
	assert.Error(t, r.InsertDocument(ctx, testDoc("doc-1", "alice", time.Now())))
}

func TestRegistry_ChatHistory(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 60; i++ {
		require.NoError(t, r.AppendChat(ctx, &domain.ChatRecord{
			ID:        fmt.Sprintf("chat-%02d", i),
			UserID:    "alice",
			Question:  fmt.Sprintf("question %d", i),
			Answer:    "answer",
			Sources:   []domain.Source{{Document: "a.txt", DocumentID: "doc-1", Excerpt: "text..."}},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, r.AppendChat(ctx, &domain.ChatRecord{
		ID: "bob-chat", UserID: "bob", Question: "q", Answer: "a", CreatedAt: base,
	}))

	chats, err := r.ListChats(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, chats, DefaultChatLimit)
	assert.Equal(t, "chat-59", chats[0].ID)
	assert.Equal(t, "chat-10", chats[49].ID)
	assert.Equal(t, []domain.Source{{Document: "a.txt", DocumentID: "doc-1", Excerpt: "text..."}}, chats[0].Sources)

	bobs, err := r.ListChats(ctx, "bob", 5)
	require.NoError(t, err)
	require.Len(t, bobs, 1)
	assert.Empty(t, bobs[0].Sources)
}

func TestRegistry_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "docqa.db")
	ctx := context.Background()

	r, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, r.InsertDocument(ctx, testDoc("doc-1", "alice", time.Now())))
	require.NoError(t, r.Close())

	r, err = Open(path)
	require.NoError(t, err)
	defer r.Close()

	ids, err := r.DocumentIDs(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1"}, ids)
	assert.NoError(t, r.Ping(ctx))
}
