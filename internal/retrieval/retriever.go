// Package retrieval finds the passages most relevant to a question across a
// user's documents.
//
// Every candidate document is searched independently for its PerDocumentK
// nearest chunks. The per-document results are pooled, ordered by ascending
// distance and cut to the global TopK. There is no per-document quota in the
// final ranking: one document may supply every result.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/mike-a-ellis/docqa/internal/domain"
	"github.com/mike-a-ellis/docqa/internal/embedding"
	"github.com/mike-a-ellis/docqa/internal/storage"
)

const (
	// DefaultPerDocumentK is the number of chunks taken from each document.
	DefaultPerDocumentK = 3

	// DefaultTopK is the number of results kept after merging.
	DefaultTopK = 5

	// DefaultParallelism bounds concurrent per-document searches.
	DefaultParallelism = 8
)

// Registry resolves the documents a user owns.
type Registry interface {
	GetDocument(ctx context.Context, userID, id string) (*domain.Document, error)
	ListDocuments(ctx context.Context, userID string) ([]*domain.Document, error)
}

// Locker provides shared per-document locks.
type Locker interface {
	RLock(key string) (unlock func())
}

// Result is one retrieved passage.
type Result struct {
	Chunk        string
	Distance     float32
	DocumentName string
	DocumentID   string
	Position     int
}

// Skip records a candidate whose artifacts could not be used.
type Skip struct {
	DocumentID string
	Reason     string
}

// Outcome is the result of one retrieval.
type Outcome struct {
	Results  []Result
	Searched int
	Skipped  []Skip
}

// Options tune a Retriever. Zero values select the defaults.
type Options struct {
	PerDocumentK int
	TopK         int
	Parallelism  int
	Logger       *slog.Logger
}

// Retriever runs the query side of the pipeline.
type Retriever struct {
	registry Registry
	store    storage.ArtifactStore
	embedder embedding.Embedder
	locks    Locker
	perDocK  int
	topK     int
	parallel int
	logger   *slog.Logger
}

// New creates a Retriever.
func New(registry Registry, store storage.ArtifactStore, embedder embedding.Embedder, locks Locker, opts Options) *Retriever {
	if opts.PerDocumentK <= 0 {
		opts.PerDocumentK = DefaultPerDocumentK
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Retriever{
		registry: registry,
		store:    store,
		embedder: embedder,
		locks:    locks,
		perDocK:  opts.PerDocumentK,
		topK:     opts.TopK,
		parallel: opts.Parallelism,
		logger:   opts.Logger,
	}
}

// Retrieve returns the TopK passages nearest to question.
//
// With documentIDs empty every document the user owns is searched; otherwise
// only the listed ids the user owns. Errors:
//   - domain.ErrNoDocuments: the user owns no documents.
//   - domain.ErrNoCandidates (wrapping domain.ErrDocumentNotFound): none of documentIDs resolved,
//     or every listed document was deleted before it could be searched.
//   - domain.ErrModelUnavailable: the query could not be embedded.
//   - domain.ErrNoRelevantInfo: every candidate was skipped or returned nothing.
func (r *Retriever) Retrieve(ctx context.Context, userID, question string, documentIDs []string) (*Outcome, error) {
	candidates, err := r.resolve(ctx, userID, documentIDs)
	if err != nil {
		return nil, err
	}

	query, err := r.embedder.EmbedOne(ctx, question)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, domain.ErrModelUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: embed query: %v", domain.ErrModelUnavailable, err)
	}

	perDoc := make([][]Result, len(candidates))
	skipped := make([]*Skip, len(candidates))
	gone := make([]bool, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallel)
	for i, doc := range candidates {
		g.Go(func() error {
			results, err := r.searchDocument(gctx, doc, query)
			if errors.Is(err, domain.ErrDocumentNotFound) {
				r.logger.Debug("document deleted during retrieval", "user_id", userID, "document_id", doc.ID)
				gone[i] = true
				return nil
			}
			if storage.Unusable(err) {
				r.logger.Warn("skipping document with unusable index",
					"user_id", userID, "document_id", doc.ID, "error", err)
				skipped[i] = &Skip{DocumentID: doc.ID, Reason: err.Error()}
				return nil
			}
			if err != nil {
				return fmt.Errorf("search document %s: %w", doc.ID, err)
			}
			perDoc[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Outcome{}
	var pool []Result
	for i := range candidates {
		if gone[i] {
			continue
		}
		out.Searched++
		if skipped[i] != nil {
			out.Skipped = append(out.Skipped, *skipped[i])
			continue
		}
		pool = append(pool, perDoc[i]...)
	}

	// Stable: equal distances keep candidate order, then chunk position.
	slices.SortStableFunc(pool, func(a, b Result) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		default:
			return 0
		}
	})
	if len(pool) > r.topK {
		pool = pool[:r.topK]
	}
	out.Results = pool

	if out.Searched == 0 {
		if len(documentIDs) > 0 {
			return nil, fmt.Errorf("%w: %w", domain.ErrNoCandidates, domain.ErrDocumentNotFound)
		}
		return nil, domain.ErrNoDocuments
	}

	r.logger.Debug("retrieval complete",
		"user_id", userID,
		"candidates", len(candidates),
		"skipped", len(out.Skipped),
		"results", len(out.Results))

	if len(out.Results) == 0 {
		return out, domain.ErrNoRelevantInfo
	}
	return out, nil
}

func (r *Retriever) searchDocument(ctx context.Context, doc *domain.Document, query []float32) ([]Result, error) {
	key := storage.Key{UserID: doc.UserID, DocumentID: doc.ID}
	unlock := r.locks.RLock(key.String())
	defer unlock()

	// A delete may have committed after resolve; the registry row goes first.
	if _, err := r.registry.GetDocument(ctx, doc.UserID, doc.ID); err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get document: %w", err)
	}

	hits, err := r.store.Search(ctx, key, storage.Query{
		Vector: query,
		K:      r.perDocK,
		Model:  r.embedder.ModelName(),
	})
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{
			Chunk:        h.Text,
			Distance:     h.Distance,
			DocumentName: doc.Filename,
			DocumentID:   doc.ID,
			Position:     h.Position,
		}
	}
	return results, nil
}

// resolve returns the candidate documents in search order.
func (r *Retriever) resolve(ctx context.Context, userID string, documentIDs []string) ([]*domain.Document, error) {
	if len(documentIDs) == 0 {
		docs, err := r.registry.ListDocuments(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
		if len(docs) == 0 {
			return nil, domain.ErrNoDocuments
		}
		return docs, nil
	}

	seen := make(map[string]bool, len(documentIDs))
	var docs []*domain.Document
	for _, id := range documentIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		doc, err := r.registry.GetDocument(ctx, userID, id)
		if errors.Is(err, domain.ErrDocumentNotFound) {
			r.logger.Debug("ignoring unresolved document id", "user_id", userID, "document_id", id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get document %s: %w", id, err)
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		owned, err := r.registry.ListDocuments(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
		if len(owned) == 0 {
			return nil, domain.ErrNoDocuments
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrNoCandidates, domain.ErrDocumentNotFound)
	}
	return docs, nil
}
