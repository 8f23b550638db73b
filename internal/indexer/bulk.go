package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/mike-a-ellis/docqa/internal/domain"
	"github.com/mike-a-ellis/docqa/internal/github"
)

// Source lists and fetches documents for a bulk import. *github.Fetcher
// satisfies it.
type Source interface {
	GetLatestCommitSHA(ctx context.Context) (string, error)
	ListDocs(ctx context.Context) ([]string, error)
	FetchDoc(ctx context.Context, path string) (*github.FetchedDoc, error)
}

// IndexResult contains statistics about a bulk import.
type IndexResult struct {
	TotalDocs      int
	TotalChunks    int
	SuccessfulDocs int
	Documents      []*domain.Document
	FailedDocs     []FailedDoc
	CommitSHA      string
	Duration       time.Duration
}

// FailedDoc represents a document that failed to import.
type FailedDoc struct {
	Path   string
	Reason string
}

// IngestAll imports every document src lists for userID. Failing documents
// are recorded and skipped; only listing errors abort the import.
func (p *Pipeline) IngestAll(ctx context.Context, userID string, src Source) (*IndexResult, error) {
	start := time.Now()
	result := &IndexResult{}

	commitSHA, err := src.GetLatestCommitSHA(ctx)
	if err != nil {
		return nil, fmt.Errorf("get commit SHA: %w", err)
	}
	result.CommitSHA = commitSHA
	p.logger.Info("Starting import", "user_id", userID, "commit", commitSHA)

	paths, err := src.ListDocs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list docs: %w", err)
	}
	result.TotalDocs = len(paths)
	p.logger.Info("Found documents", "count", len(paths))

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		doc, err := p.importOne(ctx, userID, src, path)
		if err != nil {
			p.logger.Warn("Failed to import document", "path", path, "error", err)
			result.FailedDocs = append(result.FailedDocs, FailedDoc{Path: path, Reason: err.Error()})
			continue
		}
		result.SuccessfulDocs++
		result.TotalChunks += doc.ChunkCount
		result.Documents = append(result.Documents, doc)
	}

	result.Duration = time.Since(start)
	p.logger.Info("Import complete",
		"successful", result.SuccessfulDocs,
		"failed", len(result.FailedDocs),
		"chunks", result.TotalChunks,
		"duration", result.Duration,
	)
	return result, nil
}

func (p *Pipeline) importOne(ctx context.Context, userID string, src Source, path string) (*domain.Document, error) {
	fetched, err := src.FetchDoc(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	p.logger.Debug("Fetched document", "path", path, "size", len(fetched.Content))
	return p.Ingest(ctx, userID, Upload{Filename: fetched.Path, Data: fetched.Content})
}
