package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/mike-a-ellis/docqa/internal/domain"
)

// PDF extracts the text layer of a PDF, one page after another.
type PDF struct{}

// Extract reads every page's plain text. The pdf package panics on some
// malformed inputs; those are reported as rejected documents.
func (PDF) Extract(ctx context.Context, data []byte, _ string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: malformed pdf: %v", domain.ErrDocumentRejected, r)
		}
	}()

	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDocumentRejected, err)
	}

	var b strings.Builder
	for i := 1; i <= rdr.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := rdr.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %v", domain.ErrDocumentRejected, i, err)
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String(), nil
}
