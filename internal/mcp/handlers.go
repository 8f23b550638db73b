package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mike-a-ellis/docqa/internal/domain"
	"github.com/mike-a-ellis/docqa/internal/service"
)

// Service is the part of service.Service the tools call.
type Service interface {
	Ask(ctx context.Context, userID string, req service.AskRequest) (*service.Answer, error)
	ListDocuments(ctx context.Context, userID string) ([]*domain.Document, error)
	DeleteDocument(ctx context.Context, userID, id string) error
	History(ctx context.Context, userID string, limit int) ([]*domain.ChatRecord, error)
}

var _ Service = (*service.Service)(nil)

type handlers struct {
	svc    Service
	userID string
	logger *slog.Logger
}

func toSources(in []domain.Source) []SourceOutput {
	out := make([]SourceOutput, len(in))
	for i, s := range in {
		out[i] = SourceOutput{Document: s.Document, DocumentID: s.DocumentID, Excerpt: s.Excerpt}
	}
	return out
}

// ask handles ask_documents. Conditions the user can act on (no documents,
// nothing relevant, model down) come back as a message, not a tool error.
func (h *handlers) ask(ctx context.Context, req *mcp.CallToolRequest, input AskDocumentsInput) (
	*mcp.CallToolResult, AskDocumentsOutput, error,
) {
	ans, err := h.svc.Ask(ctx, h.userID, service.AskRequest{
		Question:    input.Question,
		DocumentIDs: input.DocumentIDs,
	})
	if err != nil {
		kind := domain.KindOf(err)
		if kind == domain.KindInternal {
			h.logger.Error("ask_documents failed", "user_id", h.userID, "error", err)
			return nil, AskDocumentsOutput{}, fmt.Errorf("failed to answer question: %w", err)
		}
		return nil, AskDocumentsOutput{
			Sources:   []SourceOutput{},
			Message:   domain.UserMessage(err),
			ErrorKind: kind.String(),
		}, nil
	}

	return nil, AskDocumentsOutput{
		Answer:  ans.Answer,
		Sources: toSources(ans.Sources),
	}, nil
}

func (h *handlers) list(ctx context.Context, req *mcp.CallToolRequest, input ListDocumentsInput) (
	*mcp.CallToolResult, ListDocumentsOutput, error,
) {
	docs, err := h.svc.ListDocuments(ctx, h.userID)
	if err != nil {
		return nil, ListDocumentsOutput{}, fmt.Errorf("failed to list documents: %w", err)
	}

	out := ListDocumentsOutput{Documents: make([]DocumentOutput, len(docs)), Count: len(docs)}
	for i, d := range docs {
		out.Documents[i] = DocumentOutput{
			ID:          d.ID,
			Filename:    d.Filename,
			ContentType: d.ContentType,
			Size:        d.Size,
			ChunkCount:  d.ChunkCount,
			UploadedAt:  d.UploadedAt,
		}
	}
	return nil, out, nil
}

func (h *handlers) delete(ctx context.Context, req *mcp.CallToolRequest, input DeleteDocumentInput) (
	*mcp.CallToolResult, DeleteDocumentOutput, error,
) {
	err := h.svc.DeleteDocument(ctx, h.userID, input.DocumentID)
	switch {
	case err == nil:
		return nil, DeleteDocumentOutput{Deleted: true}, nil
	case errors.Is(err, domain.ErrDocumentNotFound):
		return nil, DeleteDocumentOutput{Deleted: false, Message: domain.UserMessage(err)}, nil
	default:
		return nil, DeleteDocumentOutput{}, fmt.Errorf("failed to delete document: %w", err)
	}
}

func (h *handlers) history(ctx context.Context, req *mcp.CallToolRequest, input ChatHistoryInput) (
	*mcp.CallToolResult, ChatHistoryOutput, error,
) {
	chats, err := h.svc.History(ctx, h.userID, input.Limit)
	if err != nil {
		return nil, ChatHistoryOutput{}, fmt.Errorf("failed to load chat history: %w", err)
	}

	out := ChatHistoryOutput{Chats: make([]ChatOutput, len(chats)), Count: len(chats)}
	for i, c := range chats {
		out.Chats[i] = ChatOutput{
			ID:        c.ID,
			Question:  c.Question,
			Answer:    c.Answer,
			Sources:   toSources(c.Sources),
			CreatedAt: c.CreatedAt,
		}
	}
	return nil, out, nil
}
