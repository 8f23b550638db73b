// Package generation produces answers from assembled prompts.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"golang.org/x/time/rate"

	"github.com/mike-a-ellis/docqa/internal/domain"
)

const (
	// MaxAnswerTokens bounds the length of a generated answer.
	MaxAnswerTokens = 200

	// DefaultModel is the chat model used when none is configured.
	DefaultModel = "gpt-4o-mini"
)

// Generator turns a prompt into an answer.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// OpenAIGenerator answers with an OpenAI chat completion.
type OpenAIGenerator struct {
	client    *openai.Client
	model     string
	maxTokens int
	limiter   *rate.Limiter
}

var _ Generator = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator creates a generator with the given OpenAI client.
// minInterval spaces consecutive requests; zero disables pacing.
func NewOpenAIGenerator(client *openai.Client, model string, minInterval time.Duration) *OpenAIGenerator {
	if model == "" {
		model = DefaultModel
	}
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &OpenAIGenerator{
		client:    client,
		model:     model,
		maxTokens: MaxAnswerTokens,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

// Generate requests a deterministic (temperature 0) completion of prompt.
// Rate limit errors are retried with exponential backoff.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var answer string

	operation := func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
			Model:               openai.ChatModel(g.model),
			MaxCompletionTokens: openai.Int(int64(g.maxTokens)),
			Temperature:         openai.Float(0),
		})
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(fmt.Errorf("chat completion failed: %w", err))
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(errors.New("chat completion returned no choices"))
		}
		answer = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return answer, nil
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// Lazy builds its backend on first use, at most once. A failed build is
// remembered and every call fails fast with domain.ErrModelUnavailable.
type Lazy struct {
	build  func() (Generator, error)
	logger *slog.Logger

	once sync.Once
	gen  Generator
	err  error
}

var _ Generator = (*Lazy)(nil)

func NewLazy(build func() (Generator, error), logger *slog.Logger) *Lazy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lazy{build: build, logger: logger}
}

func (l *Lazy) Generate(ctx context.Context, prompt string) (string, error) {
	l.once.Do(func() {
		l.gen, l.err = l.build()
		if l.err != nil {
			l.logger.Error("generation model unavailable", "error", l.err)
		}
	})
	if l.err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrModelUnavailable, l.err)
	}
	return l.gen.Generate(ctx, prompt)
}
