package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"

	"github.com/mike-a-ellis/docqa/internal/domain"
)

const (
	// DefaultLocalModel is the sentence transformer used by the local embedder.
	DefaultLocalModel = "sentence-transformers/all-MiniLM-L6-v2"

	// DefaultLocalDimension is the output size of DefaultLocalModel.
	DefaultLocalDimension = 384
)

// HugotEmbedder runs a sentence transformer in-process with the hugot Go backend.
// The model is downloaded and loaded on first use, at most once per process.
type HugotEmbedder struct {
	model     string
	modelDir  string
	dimension int
	logger    *slog.Logger

	once    sync.Once
	initErr error
	destroy func() error

	// mu serialises pipeline runs; the session is shared by all callers.
	mu  sync.Mutex
	run func([]string) ([][]float32, error)
}

var _ Embedder = (*HugotEmbedder)(nil)

// NewHugotEmbedder creates a lazily initialised local embedder.
// Empty model and non-positive dimension select DefaultLocalModel and DefaultLocalDimension.
func NewHugotEmbedder(model, modelDir string, dimension int, logger *slog.Logger) *HugotEmbedder {
	if model == "" {
		model = DefaultLocalModel
	}
	if dimension <= 0 {
		dimension = DefaultLocalDimension
	}
	if modelDir == "" {
		modelDir = "./models"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HugotEmbedder{
		model:     model,
		modelDir:  modelDir,
		dimension: dimension,
		logger:    logger,
	}
}

// Dimension returns the configured output size.
func (h *HugotEmbedder) Dimension() int { return h.dimension }

// ModelName returns the transformer model name.
func (h *HugotEmbedder) ModelName() string { return h.model }

// EmbedOne embeds a single text.
func (h *HugotEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, h, text)
}

// Embed returns one embedding per text. Initialisation failures are cached
// and reported as domain.ErrModelUnavailable on every call.
func (h *HugotEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := h.init(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	vecs, err := h.run(texts)
	h.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vecs))
	}
	for i, v := range vecs {
		if len(v) != h.dimension {
			return nil, fmt.Errorf("embedding %d has dimension %d, want %d", i, len(v), h.dimension)
		}
	}
	return vecs, nil
}

// Close releases the hugot session if it was created.
func (h *HugotEmbedder) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroy == nil {
		return nil
	}
	err := h.destroy()
	h.destroy = nil
	return err
}

func (h *HugotEmbedder) init() error {
	h.once.Do(func() {
		h.initErr = h.load()
		if h.initErr != nil {
			h.logger.Error("embedding model unavailable", "model", h.model, "error", h.initErr)
			h.initErr = fmt.Errorf("%w: %v", domain.ErrModelUnavailable, h.initErr)
		}
	})
	return h.initErr
}

func (h *HugotEmbedder) load() error {
	modelPath, err := prepareModel(h.model, h.modelDir)
	if err != nil {
		return err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "docqa-embedder",
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return fmt.Errorf("failed to create embedding pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return fmt.Errorf("failed to create embedding pipeline: %w", err)
	}

	h.run = func(texts []string) ([][]float32, error) {
		result, err := pipeline.RunPipeline(texts)
		if err != nil {
			return nil, err
		}
		return result.Embeddings, nil
	}
	h.destroy = session.Destroy
	h.logger.Info("embedding model loaded", "model", h.model, "path", modelPath)
	return nil
}

// prepareModel downloads the model into modelDir unless it is already there.
func prepareModel(model, modelDir string) (string, error) {
	modelPath := filepath.Join(modelDir, strings.ReplaceAll(model, "/", "_"))
	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to stat model directory: %w", err)
	}

	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}
	opts := hugot.NewDownloadOptions()
	opts.OnnxFilePath = "onnx/model.onnx"
	downloaded, err := hugot.DownloadModel(model, modelDir, opts)
	if err != nil {
		return "", fmt.Errorf("failed to download model: %w", err)
	}
	return downloaded, nil
}
