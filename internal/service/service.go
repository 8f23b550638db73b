// Package service is the application facade used by the CLI and the MCP server.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mike-a-ellis/docqa/internal/assembler"
	"github.com/mike-a-ellis/docqa/internal/domain"
	"github.com/mike-a-ellis/docqa/internal/generation"
	"github.com/mike-a-ellis/docqa/internal/indexer"
	"github.com/mike-a-ellis/docqa/internal/retrieval"
)

// DefaultGenerationTimeout bounds a single generation call.
const DefaultGenerationTimeout = 60 * time.Second

// Registry is the read side of the document registry plus the chat log.
type Registry interface {
	ListDocuments(ctx context.Context, userID string) ([]*domain.Document, error)
	AppendChat(ctx context.Context, rec *domain.ChatRecord) error
	ListChats(ctx context.Context, userID string, limit int) ([]*domain.ChatRecord, error)
}

// Config holds service dependencies.
type Config struct {
	Pipeline          *indexer.Pipeline
	Retriever         *retrieval.Retriever
	Generator         generation.Generator
	Registry          Registry
	Logger            *slog.Logger
	GenerationTimeout time.Duration
	Now               func() time.Time
}

// Service answers questions over a user's documents.
type Service struct {
	pipeline   *indexer.Pipeline
	retriever  *retrieval.Retriever
	generator  generation.Generator
	registry   Registry
	logger     *slog.Logger
	genTimeout time.Duration
	now        func() time.Time
}

// New creates a Service.
func New(cfg *Config) *Service {
	s := &Service{
		pipeline:   cfg.Pipeline,
		retriever:  cfg.Retriever,
		generator:  cfg.Generator,
		registry:   cfg.Registry,
		logger:     cfg.Logger,
		genTimeout: cfg.GenerationTimeout,
		now:        cfg.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.genTimeout <= 0 {
		s.genTimeout = DefaultGenerationTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// AskRequest is a question, optionally restricted to some documents.
type AskRequest struct {
	Question    string
	DocumentIDs []string
}

// Answer is a generated answer with its source attributions.
type Answer struct {
	Answer  string
	Sources []domain.Source
	ChatID  string
	Skipped []retrieval.Skip
}

// Upload ingests a file for userID.
func (s *Service) Upload(ctx context.Context, userID string, up indexer.Upload) (*domain.Document, error) {
	return s.pipeline.Ingest(ctx, userID, up)
}

// ListDocuments returns the user's documents, newest first.
func (s *Service) ListDocuments(ctx context.Context, userID string) ([]*domain.Document, error) {
	return s.registry.ListDocuments(ctx, userID)
}

// DeleteDocument removes one of the user's documents.
func (s *Service) DeleteDocument(ctx context.Context, userID, id string) error {
	return s.pipeline.Delete(ctx, userID, id)
}

// History returns the most recent chats of the user, newest first.
// A non-positive limit selects the registry default.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]*domain.ChatRecord, error) {
	return s.registry.ListChats(ctx, userID, limit)
}

// Ask retrieves context for the question, generates an answer and records the
// exchange in the chat log.
func (s *Service) Ask(ctx context.Context, userID string, req AskRequest) (*Answer, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, fmt.Errorf("%w: question is required", domain.ErrInvalidInput)
	}

	out, err := s.retriever.Retrieve(ctx, userID, req.Question, req.DocumentIDs)
	if err != nil {
		return nil, err
	}
	asm := assembler.Assemble(req.Question, out.Results)

	text, err := s.generate(ctx, asm.Prompt)
	if err != nil {
		return nil, err
	}

	rec := &domain.ChatRecord{
		ID:        uuid.New().String(),
		UserID:    userID,
		Question:  req.Question,
		Answer:    text,
		Sources:   asm.Sources,
		CreatedAt: s.now().UTC(),
	}
	if err := s.registry.AppendChat(ctx, rec); err != nil {
		// The answer is still returned; only the history entry is lost.
		s.logger.Error("Failed to record chat", "user_id", userID, "error", err)
		rec.ID = ""
	}

	s.logger.Info("Answered question",
		"user_id", userID,
		"searched", out.Searched,
		"skipped", len(out.Skipped),
		"results", len(out.Results))

	return &Answer{
		Answer:  text,
		Sources: asm.Sources,
		ChatID:  rec.ID,
		Skipped: out.Skipped,
	}, nil
}

func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	gctx, cancel := context.WithTimeout(ctx, s.genTimeout)
	defer cancel()

	text, err := s.generator.Generate(gctx, prompt)
	switch {
	case err == nil:
		return text, nil
	case ctx.Err() != nil:
		return "", ctx.Err()
	case errors.Is(err, domain.ErrModelUnavailable):
		return "", err
	case errors.Is(gctx.Err(), context.DeadlineExceeded):
		return "", fmt.Errorf("%w: generation timed out after %s", domain.ErrModelUnavailable, s.genTimeout)
	default:
		return "", fmt.Errorf("%w: generate: %v", domain.ErrModelUnavailable, err)
	}
}
