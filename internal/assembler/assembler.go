// Package assembler builds the generation prompt and the source attributions
// from ranked retrieval results.
package assembler

import (
	"strings"

	"github.com/mike-a-ellis/docqa/internal/domain"
	"github.com/mike-a-ellis/docqa/internal/retrieval"
)

const (
	// SourceCount is the number of top results reported as sources.
	SourceCount = 3

	// ExcerptLength is the maximum number of characters of a source excerpt.
	ExcerptLength = 200

	passageSeparator = "\n\n"
	ellipsis         = "..."
)

// Assembly is everything handed to the generator and back to the caller.
type Assembly struct {
	Context string
	Prompt  string
	Sources []domain.Source
}

// Assemble joins results in rank order into the context, embeds context and
// question into the prompt template and derives sources from the top results.
// The question is inserted verbatim.
func Assemble(question string, results []retrieval.Result) Assembly {
	passages := make([]string, len(results))
	for i, r := range results {
		passages[i] = r.Chunk
	}
	context := strings.Join(passages, passageSeparator)

	sources := make([]domain.Source, 0, min(SourceCount, len(results)))
	for _, r := range results[:min(SourceCount, len(results))] {
		sources = append(sources, domain.Source{
			Document:   r.DocumentName,
			DocumentID: r.DocumentID,
			Excerpt:    Excerpt(r.Chunk),
		})
	}

	return Assembly{
		Context: context,
		Prompt:  Prompt(context, question),
		Sources: sources,
	}
}

// Prompt renders the fixed question-answering template.
func Prompt(context, question string) string {
	var b strings.Builder
	b.WriteString("Based on the following context, answer the question.\n\n")
	b.WriteString("Context:\n")
	b.WriteString(context)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}

// Excerpt returns the first ExcerptLength characters of chunk, followed by
// "..." when anything was cut off.
func Excerpt(chunk string) string {
	r := []rune(chunk)
	if len(r) <= ExcerptLength {
		return chunk
	}
	return string(r[:ExcerptLength]) + ellipsis
}
