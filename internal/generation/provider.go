package generation

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/mike-a-ellis/docqa/internal/embedding"
)

// Provider names accepted by New.
const (
	ProviderOpenAI     = "openai"
	ProviderExtractive = "extractive"
)

// Config selects and configures a generator.
type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	MinInterval time.Duration
}

// New returns the configured generator. Remote backends are built lazily so
// that a missing API key surfaces as domain.ErrModelUnavailable at query time.
func New(cfg Config, logger *slog.Logger) (Generator, error) {
	switch cfg.Provider {
	case "", ProviderExtractive:
		return Extractive{}, nil
	case ProviderOpenAI:
		return NewLazy(func() (Generator, error) {
			client, err := embedding.NewClient(cfg.APIKey, cfg.BaseURL)
			if err != nil {
				return nil, err
			}
			return NewOpenAIGenerator(client.Client(), cfg.Model, cfg.MinInterval), nil
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}
