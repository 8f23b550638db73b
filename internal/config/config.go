// Package config loads runtime settings from defaults, an optional TOML file
// and the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/mike-a-ellis/docqa/internal/embedding"
	"github.com/mike-a-ellis/docqa/internal/generation"
	"github.com/mike-a-ellis/docqa/internal/indexer"
	"github.com/mike-a-ellis/docqa/internal/retrieval"
	"github.com/mike-a-ellis/docqa/internal/service"
	"github.com/mike-a-ellis/docqa/internal/storage"
)

// Store backends.
const (
	StoreFile     = "file"
	StoreQdrant   = "qdrant"
	StorePGVector = "pgvector"
)

// DefaultConfigFile is read when DOCQA_CONFIG is unset and the file exists.
const DefaultConfigFile = "docqa.toml"

// Config is the complete runtime configuration.
type Config struct {
	DataDir      string
	RegistryPath string

	Store            string
	VectorStoreDir   string
	CacheSize        int
	QdrantHost       string
	QdrantPort       int
	QdrantCollection string
	PostgresDSN      string

	ChunkSize    int
	ChunkOverlap int

	PerDocumentK int
	TopK         int
	Parallelism  int

	MaxUploadBytes    int64
	GenerationTimeout time.Duration

	Embedding  embedding.Config
	Generation generation.Config

	LogLevel  string
	LogFormat string

	UserID      string
	Port        string
	ServerMode  bool
	GitHubToken string
}

// fileConfig mirrors the TOML layout. Durations are strings such as "250ms".
type fileConfig struct {
	DataDir string `toml:"data_dir"`

	Store struct {
		Backend          string `toml:"backend"`
		Dir              string `toml:"dir"`
		CacheSize        int    `toml:"cache_size"`
		QdrantHost       string `toml:"qdrant_host"`
		QdrantPort       int    `toml:"qdrant_port"`
		QdrantCollection string `toml:"qdrant_collection"`
		PostgresDSN      string `toml:"postgres_dsn"`
	} `toml:"store"`

	Registry struct {
		Path string `toml:"path"`
	} `toml:"registry"`

	Chunking struct {
		Size    int `toml:"size"`
		Overlap int `toml:"overlap"`
	} `toml:"chunking"`

	Retrieval struct {
		PerDocumentK int `toml:"per_document_k"`
		TopK         int `toml:"top_k"`
		Parallelism  int `toml:"parallelism"`
	} `toml:"retrieval"`

	Upload struct {
		MaxBytes int64 `toml:"max_bytes"`
	} `toml:"upload"`

	Embedding struct {
		Provider    string `toml:"provider"`
		Model       string `toml:"model"`
		Dimension   int    `toml:"dimension"`
		ModelDir    string `toml:"model_dir"`
		BatchSize   int    `toml:"batch_size"`
		MinInterval string `toml:"min_interval"`
	} `toml:"embedding"`

	Generation struct {
		Provider    string `toml:"provider"`
		Model       string `toml:"model"`
		Timeout     string `toml:"timeout"`
		MinInterval string `toml:"min_interval"`
	} `toml:"generation"`

	OpenAI struct {
		BaseURL string `toml:"base_url"`
	} `toml:"openai"`

	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`

	Server struct {
		Port   string `toml:"port"`
		Mode   bool   `toml:"server_mode"`
		UserID string `toml:"user_id"`
	} `toml:"server"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:           "./data",
		Store:             StoreFile,
		CacheSize:         storage.DefaultCacheSize,
		QdrantHost:        "localhost",
		QdrantPort:        6334,
		QdrantCollection:  storage.DefaultCollectionName,
		ChunkSize:         500,
		ChunkOverlap:      50,
		PerDocumentK:      retrieval.DefaultPerDocumentK,
		TopK:              retrieval.DefaultTopK,
		Parallelism:       retrieval.DefaultParallelism,
		MaxUploadBytes:    indexer.DefaultMaxUploadBytes,
		GenerationTimeout: service.DefaultGenerationTimeout,
		Embedding: embedding.Config{
			Provider: embedding.ProviderHugot,
		},
		Generation: generation.Config{
			Provider: generation.ProviderExtractive,
			Model:    generation.DefaultModel,
		},
		LogLevel:  "info",
		LogFormat: "pretty",
		UserID:    "default",
		Port:      "8080",
	}
}

// Load reads .env (if present), then the TOML file named by DOCQA_CONFIG
// (or DefaultConfigFile when it exists), then environment overrides.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	path := os.Getenv("DOCQA_CONFIG")
	required := path != ""
	if path == "" {
		path = DefaultConfigFile
	}
	if err := cfg.loadFile(path); err != nil {
		if required || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.fillDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&c.DataDir, fc.DataDir)
	setString(&c.RegistryPath, fc.Registry.Path)
	setString(&c.Store, fc.Store.Backend)
	setString(&c.VectorStoreDir, fc.Store.Dir)
	setInt(&c.CacheSize, fc.Store.CacheSize)
	setString(&c.QdrantHost, fc.Store.QdrantHost)
	setInt(&c.QdrantPort, fc.Store.QdrantPort)
	setString(&c.QdrantCollection, fc.Store.QdrantCollection)
	setString(&c.PostgresDSN, fc.Store.PostgresDSN)
	setInt(&c.ChunkSize, fc.Chunking.Size)
	setInt(&c.ChunkOverlap, fc.Chunking.Overlap)
	setInt(&c.PerDocumentK, fc.Retrieval.PerDocumentK)
	setInt(&c.TopK, fc.Retrieval.TopK)
	setInt(&c.Parallelism, fc.Retrieval.Parallelism)
	if fc.Upload.MaxBytes > 0 {
		c.MaxUploadBytes = fc.Upload.MaxBytes
	}

	setString(&c.Embedding.Provider, fc.Embedding.Provider)
	setString(&c.Embedding.Model, fc.Embedding.Model)
	setInt(&c.Embedding.Dimension, fc.Embedding.Dimension)
	setString(&c.Embedding.ModelDir, fc.Embedding.ModelDir)
	setInt(&c.Embedding.OpenAIBatchSize, fc.Embedding.BatchSize)
	if err := setDuration(&c.Embedding.OpenAIMinInterval, fc.Embedding.MinInterval); err != nil {
		return fmt.Errorf("embedding.min_interval: %w", err)
	}

	setString(&c.Generation.Provider, fc.Generation.Provider)
	setString(&c.Generation.Model, fc.Generation.Model)
	if err := setDuration(&c.GenerationTimeout, fc.Generation.Timeout); err != nil {
		return fmt.Errorf("generation.timeout: %w", err)
	}
	if err := setDuration(&c.Generation.MinInterval, fc.Generation.MinInterval); err != nil {
		return fmt.Errorf("generation.min_interval: %w", err)
	}

	setString(&c.Embedding.OpenAIBaseURL, fc.OpenAI.BaseURL)
	setString(&c.Generation.BaseURL, fc.OpenAI.BaseURL)

	setString(&c.LogLevel, fc.Log.Level)
	setString(&c.LogFormat, fc.Log.Format)
	setString(&c.Port, fc.Server.Port)
	setString(&c.UserID, fc.Server.UserID)
	c.ServerMode = c.ServerMode || fc.Server.Mode
	return nil
}

func (c *Config) applyEnv() error {
	c.DataDir = getEnv("DOCQA_DATA_DIR", c.DataDir)
	c.RegistryPath = getEnv("DOCQA_REGISTRY_PATH", c.RegistryPath)
	c.Store = getEnv("DOCQA_STORE", c.Store)
	c.VectorStoreDir = getEnv("DOCQA_VECTOR_STORE_DIR", c.VectorStoreDir)
	c.CacheSize = getEnvInt("DOCQA_CACHE_SIZE", c.CacheSize)
	c.QdrantHost = getEnv("QDRANT_HOST", c.QdrantHost)
	c.QdrantPort = getEnvInt("QDRANT_PORT", c.QdrantPort)
	c.QdrantCollection = getEnv("QDRANT_COLLECTION", c.QdrantCollection)
	c.PostgresDSN = getEnv("DATABASE_URL", c.PostgresDSN)

	c.ChunkSize = getEnvInt("DOCQA_CHUNK_SIZE", c.ChunkSize)
	c.ChunkOverlap = getEnvInt("DOCQA_CHUNK_OVERLAP", c.ChunkOverlap)
	c.PerDocumentK = getEnvInt("DOCQA_PER_DOCUMENT_K", c.PerDocumentK)
	c.TopK = getEnvInt("DOCQA_TOP_K", c.TopK)
	c.Parallelism = getEnvInt("DOCQA_PARALLELISM", c.Parallelism)
	c.MaxUploadBytes = int64(getEnvInt("DOCQA_MAX_UPLOAD_BYTES", int(c.MaxUploadBytes)))

	c.Embedding.Provider = getEnv("DOCQA_EMBEDDING_PROVIDER", c.Embedding.Provider)
	c.Embedding.Model = getEnv("DOCQA_EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.Dimension = getEnvInt("DOCQA_EMBEDDING_DIMENSION", c.Embedding.Dimension)
	c.Embedding.ModelDir = getEnv("DOCQA_MODEL_DIR", c.Embedding.ModelDir)
	c.Embedding.OpenAIBatchSize = getEnvInt("DOCQA_EMBEDDING_BATCH_SIZE", c.Embedding.OpenAIBatchSize)

	c.Generation.Provider = getEnv("DOCQA_GENERATION_PROVIDER", c.Generation.Provider)
	c.Generation.Model = getEnv("DOCQA_GENERATION_MODEL", c.Generation.Model)
	if v := os.Getenv("DOCQA_GENERATION_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DOCQA_GENERATION_TIMEOUT: %w", err)
		}
		c.GenerationTimeout = d
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	c.Embedding.OpenAIAPIKey = apiKey
	c.Generation.APIKey = apiKey
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.Embedding.OpenAIBaseURL = v
		c.Generation.BaseURL = v
	}

	c.LogLevel = getEnv("DOCQA_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("DOCQA_LOG_FORMAT", c.LogFormat)
	c.UserID = getEnv("DOCQA_USER_ID", c.UserID)
	c.Port = getEnv("PORT", c.Port)
	if v := os.Getenv("SERVER_MODE"); v != "" {
		c.ServerMode = v == "true"
	}
	c.GitHubToken = os.Getenv("GITHUB_TOKEN")
	return nil
}

func (c *Config) fillDerived() {
	if c.RegistryPath == "" {
		c.RegistryPath = filepath.Join(c.DataDir, "docqa.db")
	}
	if c.VectorStoreDir == "" {
		c.VectorStoreDir = filepath.Join(c.DataDir, "vector_stores")
	}
	if c.Embedding.ModelDir == "" {
		c.Embedding.ModelDir = filepath.Join(c.DataDir, "models")
	}
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store {
	case StoreFile, StoreQdrant:
	case StorePGVector:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("pgvector store requires DATABASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 {
		errs = append(errs, fmt.Errorf("chunk overlap must not be negative, got %d", c.ChunkOverlap))
	}
	if c.GenerationTimeout <= 0 {
		errs = append(errs, fmt.Errorf("generation timeout must be positive, got %s", c.GenerationTimeout))
	}
	if strings.TrimSpace(c.UserID) == "" {
		errs = append(errs, errors.New("user id must not be empty"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
