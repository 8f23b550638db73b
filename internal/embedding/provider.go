package embedding

import (
	"fmt"
	"log/slog"
	"time"
)

// Config selects and configures an embedding provider.
type Config struct {
	Provider  string
	Model     string
	Dimension int
	ModelDir  string

	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIBatchSize   int
	OpenAIMinInterval time.Duration
}

// New constructs the embedder named by cfg.Provider. The local model is not
// loaded until the first Embed call.
func New(cfg Config, logger *slog.Logger) (Embedder, error) {
	switch cfg.Provider {
	case "", ProviderHugot:
		return NewHugotEmbedder(cfg.Model, cfg.ModelDir, cfg.Dimension, logger), nil
	case ProviderOpenAI:
		client, err := NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
		}
		return NewOpenAIEmbedder(client, OpenAIOptions{
			Model:       cfg.Model,
			Dimension:   cfg.Dimension,
			BatchSize:   cfg.OpenAIBatchSize,
			MinInterval: cfg.OpenAIMinInterval,
		})
	case ProviderHash:
		return NewHashEmbedder(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
