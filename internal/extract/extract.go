// Package extract turns uploaded file bytes into plain text for chunking.
package extract

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/mike-a-ellis/docqa/internal/domain"
)

// Extractor converts raw document bytes of a given content type to text.
type Extractor interface {
	Extract(ctx context.Context, data []byte, contentType string) (string, error)
}

// Registry dispatches to a per-content-type extractor.
type Registry struct {
	byType map[string]Extractor
}

var _ Extractor = (*Registry)(nil)

// NewRegistry returns an extractor for plain text, PDF and Markdown.
func NewRegistry() *Registry {
	return &Registry{byType: map[string]Extractor{
		domain.ContentTypeText:     Text{},
		domain.ContentTypePDF:      PDF{},
		domain.ContentTypeMarkdown: NewMarkdown(),
	}}
}

// Supported reports whether contentType has an extractor.
func (r *Registry) Supported(contentType string) bool {
	_, ok := r.byType[contentType]
	return ok
}

// Extract selects the extractor for contentType.
func (r *Registry) Extract(ctx context.Context, data []byte, contentType string) (string, error) {
	e, ok := r.byType[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedType, contentType)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.Extract(ctx, data, contentType)
}

var extensionTypes = map[string]string{
	".pdf":      domain.ContentTypePDF,
	".txt":      domain.ContentTypeText,
	".text":     domain.ContentTypeText,
	".md":       domain.ContentTypeMarkdown,
	".markdown": domain.ContentTypeMarkdown,
}

// DetectContentType normalises a declared media type, falling back to the
// filename extension when the declaration is missing or generic.
// The result may be a type no extractor supports.
func DetectContentType(filename, declared string) string {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			switch mt {
			case "application/octet-stream", "binary/octet-stream":
			case "text/x-markdown":
				return domain.ContentTypeMarkdown
			default:
				return mt
			}
		}
	}
	if ct, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	if declared != "" {
		return strings.ToLower(strings.TrimSpace(declared))
	}
	return "application/octet-stream"
}
