// Package app wires configured components into a running service.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mike-a-ellis/docqa/internal/chunker"
	"github.com/mike-a-ellis/docqa/internal/config"
	"github.com/mike-a-ellis/docqa/internal/embedding"
	"github.com/mike-a-ellis/docqa/internal/extract"
	"github.com/mike-a-ellis/docqa/internal/generation"
	"github.com/mike-a-ellis/docqa/internal/indexer"
	"github.com/mike-a-ellis/docqa/internal/locks"
	"github.com/mike-a-ellis/docqa/internal/registry"
	"github.com/mike-a-ellis/docqa/internal/retrieval"
	"github.com/mike-a-ellis/docqa/internal/service"
	"github.com/mike-a-ellis/docqa/internal/storage"
)

// App holds the long-lived components of one process.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *registry.Registry
	Store    storage.ArtifactStore
	Embedder embedding.Embedder
	Pipeline *indexer.Pipeline
	Service  *service.Service

	closers []io.Closer
}

// New builds every component named by cfg. Models are constructed but not
// loaded; the first request that needs one initialises it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	reg, err := registry.Open(cfg.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	a.Registry = reg
	a.closers = append(a.closers, reg)

	emb, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	a.Embedder = emb
	if c, ok := emb.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	store, err := openStore(ctx, cfg, emb.Dimension())
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, store)

	gen, err := generation.New(cfg.Generation, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create generator: %w", err)
	}

	docLocks := locks.New()
	a.Pipeline = indexer.NewPipeline(
		extract.NewRegistry(),
		chunker.New(chunker.WithChunkSize(cfg.ChunkSize), chunker.WithOverlap(cfg.ChunkOverlap)),
		emb,
		store,
		reg,
		docLocks,
		logger,
		indexer.WithMaxUploadBytes(cfg.MaxUploadBytes),
	)
	retriever := retrieval.New(reg, store, emb, docLocks, retrieval.Options{
		PerDocumentK: cfg.PerDocumentK,
		TopK:         cfg.TopK,
		Parallelism:  cfg.Parallelism,
		Logger:       logger,
	})
	a.Service = service.New(&service.Config{
		Pipeline:          a.Pipeline,
		Retriever:         retriever,
		Generator:         gen,
		Registry:          reg,
		Logger:            logger,
		GenerationTimeout: cfg.GenerationTimeout,
	})

	logger.Info("Service ready",
		"store", cfg.Store,
		"embedding_model", emb.ModelName(),
		"generation", cfg.Generation.Provider,
		"registry", cfg.RegistryPath)
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config, dimension int) (storage.ArtifactStore, error) {
	switch cfg.Store {
	case config.StoreQdrant:
		s, err := storage.NewQdrantStore(ctx, cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantCollection, dimension)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
		}
		return s, nil
	case config.StorePGVector:
		s, err := storage.NewPGVectorStore(ctx, cfg.PostgresDSN, dimension)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		return s, nil
	default:
		s, err := storage.NewFileStore(cfg.VectorStoreDir, cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("open vector store directory: %w", err)
		}
		return s, nil
	}
}

// Health checks the registry and the artifact store.
func (a *App) Health(ctx context.Context) error {
	var errs []error
	if err := a.Registry.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("registry: %w", err))
	}
	if err := a.Store.Health(ctx); err != nil {
		errs = append(errs, fmt.Errorf("vector store: %w", err))
	}
	return errors.Join(errs...)
}

// Close releases every component in reverse construction order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
