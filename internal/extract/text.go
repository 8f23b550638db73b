package extract

import (
	"bytes"
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/mike-a-ellis/docqa/internal/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Text reads UTF-8 plain text. Invalid encodings are rejected.
type Text struct{}

func (Text) Extract(_ context.Context, data []byte, _ string) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: text is not valid UTF-8", domain.ErrDocumentRejected)
	}
	return string(data), nil
}
