package generation

import (
	"context"
	"strings"
)

// Markers delimiting the context section of an assembled prompt.
const (
	contextMarker  = "Context:\n"
	questionMarker = "\n\nQuestion:"
)

// maxExtractiveChars approximates MaxAnswerTokens at four characters per token.
const maxExtractiveChars = MaxAnswerTokens * 4

// Extractive answers offline by quoting the best-ranked passage of the
// prompt's context section. It needs no model and is deterministic.
type Extractive struct{}

var _ Generator = Extractive{}

func (Extractive) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	body := prompt
	if i := strings.Index(body, contextMarker); i >= 0 {
		body = body[i+len(contextMarker):]
	}
	if i := strings.Index(body, questionMarker); i >= 0 {
		body = body[:i]
	}

	passage := strings.TrimSpace(body)
	if i := strings.Index(passage, "\n\n"); i >= 0 {
		passage = strings.TrimSpace(passage[:i])
	}
	if r := []rune(passage); len(r) > maxExtractiveChars {
		passage = string(r[:maxExtractiveChars])
	}
	return passage, nil
}
