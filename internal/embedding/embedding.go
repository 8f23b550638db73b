// Package embedding maps text to fixed-dimension dense vectors.
//
// One embedding model is used for the lifetime of a deployment. Every persisted
// per-document index records the model that produced it; switching models
// invalidates all of them and documents must be re-uploaded. Nothing here
// re-indexes automatically.
package embedding

import (
	"context"
	"fmt"
)

// Provider names accepted by New.
const (
	ProviderHugot  = "hugot"
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"
)

// Embedder is a deterministic text-to-vector function.
// Identical text must always yield the identical vector for a given ModelName.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedOne embeds a single text, typically a query.
	EmbedOne(ctx context.Context, text string) ([]float32, error)

	// Dimension is the length of every returned vector.
	Dimension() int

	// ModelName identifies the model, including anything that changes its output.
	ModelName() string
}

// embedOne adapts a batch Embed into EmbedOne.
func embedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vecs))
	}
	return vecs[0], nil
}
