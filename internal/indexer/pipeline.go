// Package indexer turns uploaded files into persisted, searchable artifacts and
// keeps artifacts and registry rows consistent.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mike-a-ellis/docqa/internal/domain"
	"github.com/mike-a-ellis/docqa/internal/embedding"
	"github.com/mike-a-ellis/docqa/internal/extract"
	"github.com/mike-a-ellis/docqa/internal/storage"
)

// DefaultMaxUploadBytes is the upload size limit (10 MiB).
const DefaultMaxUploadBytes = 10 << 20

// Extractor turns raw bytes into text.
type Extractor interface {
	Supported(contentType string) bool
	Extract(ctx context.Context, data []byte, contentType string) (string, error)
}

// Splitter cuts text into passages.
type Splitter interface {
	Split(text string) []string
}

// Registry is the document bookkeeping the pipeline needs.
type Registry interface {
	InsertDocument(ctx context.Context, doc *domain.Document) error
	GetDocument(ctx context.Context, userID, id string) (*domain.Document, error)
	DeleteDocument(ctx context.Context, userID, id string) error
	DocumentIDs(ctx context.Context, userID string) ([]string, error)
}

// Locker provides exclusive per-document locks.
type Locker interface {
	Lock(key string) (unlock func())
}

// Upload is one file handed to Ingest.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMaxUploadBytes overrides DefaultMaxUploadBytes.
func WithMaxUploadBytes(n int64) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxUpload = n
		}
	}
}

// WithClock sets the source of upload timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// Pipeline orchestrates extraction, chunking, embedding and persistence.
type Pipeline struct {
	extractor Extractor
	chunker   Splitter
	embedder  embedding.Embedder
	store     storage.ArtifactStore
	registry  Registry
	locks     Locker
	logger    *slog.Logger
	maxUpload int64
	now       func() time.Time
}

// NewPipeline creates a new ingestion pipeline with the given components.
func NewPipeline(
	extractor Extractor,
	chunker Splitter,
	embedder embedding.Embedder,
	store storage.ArtifactStore,
	registry Registry,
	locks Locker,
	logger *slog.Logger,
	opts ...Option,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		registry:  registry,
		locks:     locks,
		logger:    logger,
		maxUpload: DefaultMaxUploadBytes,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxUploadBytes returns the configured upload limit.
func (p *Pipeline) MaxUploadBytes() int64 { return p.maxUpload }

// Ingest indexes one upload for userID and registers it.
// Nothing is left behind when it fails.
func (p *Pipeline) Ingest(ctx context.Context, userID string, up Upload) (*domain.Document, error) {
	filename := strings.TrimSpace(up.Filename)
	if filename == "" {
		return nil, fmt.Errorf("%w: missing filename", domain.ErrInvalidInput)
	}
	if err := storage.ValidateUserID(userID); err != nil {
		return nil, fmt.Errorf("%w: user id: %v", domain.ErrInvalidInput, err)
	}
	if int64(len(up.Data)) > p.maxUpload {
		return nil, fmt.Errorf("%w: %d bytes, limit is %d", domain.ErrFileTooLarge, len(up.Data), p.maxUpload)
	}

	contentType := extract.DetectContentType(filename, up.ContentType)
	if !p.extractor.Supported(contentType) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedType, contentType)
	}
	if len(up.Data) == 0 {
		return nil, domain.ErrEmptyDocument
	}

	text, err := p.extractor.Extract(ctx, up.Data, contentType)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", filename, err)
	}

	chunks := p.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, domain.ErrEmptyDocument
	}
	p.logger.Debug("Chunked document", "filename", filename, "chunks", len(chunks))

	vectors, err := p.embedder.Embed(ctx, chunks)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, domain.ErrModelUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: embed chunks: %v", domain.ErrModelUnavailable, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	doc := &domain.Document{
		ID:          uuid.New().String(),
		UserID:      userID,
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(up.Data)),
		ChunkCount:  len(chunks),
		UploadedAt:  p.now().UTC(),
	}
	key := storage.Key{UserID: userID, DocumentID: doc.ID}

	// Held until the row exists so Sweep never sees the artifacts as orphans.
	unlock := p.locks.Lock(key.String())
	defer unlock()

	artifact := &storage.Artifact{Model: p.embedder.ModelName(), Chunks: chunks, Vectors: vectors}
	if err := p.store.Save(ctx, key, artifact); err != nil {
		return nil, fmt.Errorf("save artifacts: %w", err)
	}

	if err := p.registry.InsertDocument(ctx, doc); err != nil {
		if delErr := p.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			p.logger.Error("Failed to remove artifacts after registry error",
				"user_id", userID, "document_id", doc.ID, "error", delErr)
		}
		return nil, fmt.Errorf("register document: %w", err)
	}

	p.logger.Info("Indexed document",
		"user_id", userID,
		"document_id", doc.ID,
		"filename", filename,
		"chunks", len(chunks))
	return doc, nil
}

// Delete removes a document. The registry row goes first so the document is
// unqueryable immediately; artifact removal failures are logged and left to Sweep.
func (p *Pipeline) Delete(ctx context.Context, userID, id string) error {
	key := storage.Key{UserID: userID, DocumentID: id}
	if err := key.Validate(); err != nil {
		return domain.ErrDocumentNotFound
	}

	unlock := p.locks.Lock(key.String())
	defer unlock()

	if err := p.registry.DeleteDocument(ctx, userID, id); err != nil {
		return err
	}
	if err := p.store.Delete(context.WithoutCancel(ctx), key); err != nil {
		p.logger.Warn("Failed to remove artifacts of deleted document",
			"user_id", userID, "document_id", id, "error", err)
		return nil
	}
	p.logger.Info("Deleted document", "user_id", userID, "document_id", id)
	return nil
}

// SweepResult reports what Sweep found.
type SweepResult struct {
	Scanned int
	Removed []storage.Key
	Failed  []storage.Key
}

// Sweep removes artifacts that have no registry row, left behind by a crash
// between persisting artifacts and registering the document.
func (p *Pipeline) Sweep(ctx context.Context) (*SweepResult, error) {
	keys, err := p.store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	result := &SweepResult{Scanned: len(keys)}
	registered := make(map[string]map[string]bool)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		ids, ok := registered[key.UserID]
		if !ok {
			list, err := p.registry.DocumentIDs(ctx, key.UserID)
			if err != nil {
				return result, fmt.Errorf("list documents of %s: %w", key.UserID, err)
			}
			ids = make(map[string]bool, len(list))
			for _, id := range list {
				ids[id] = true
			}
			registered[key.UserID] = ids
		}
		if ids[key.DocumentID] {
			continue
		}

		orphan, err := p.removeOrphan(ctx, key)
		switch {
		case err != nil:
			p.logger.Warn("Failed to remove orphaned artifacts", "key", key.String(), "error", err)
			result.Failed = append(result.Failed, key)
		case orphan:
			result.Removed = append(result.Removed, key)
		}
	}

	p.logger.Info("Sweep complete",
		"scanned", result.Scanned,
		"removed", len(result.Removed),
		"failed", len(result.Failed))
	return result, nil
}

// removeOrphan re-checks the registry under the exclusive lock, since an
// ingest may have registered the document after the snapshot was taken.
func (p *Pipeline) removeOrphan(ctx context.Context, key storage.Key) (bool, error) {
	unlock := p.locks.Lock(key.String())
	defer unlock()

	_, err := p.registry.GetDocument(ctx, key.UserID, key.DocumentID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		return false, err
	}
	if err := p.store.Delete(ctx, key); err != nil {
		return false, err
	}
	return true, nil
}
