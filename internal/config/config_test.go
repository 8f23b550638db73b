package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mike-a-ellis/docqa/internal/embedding"
	"github.com/mike-a-ellis/docqa/internal/generation"
)

// isolate runs the test in an empty directory with no config file configured.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("DOCQA_CONFIG", "")
	for _, k := range []string{"DOCQA_DATA_DIR", "DOCQA_STORE", "DOCQA_TOP_K", "DOCQA_USER_ID", "OPENAI_API_KEY", "SERVER_MODE", "DOCQA_GENERATION_TIMEOUT"} {
		t.Setenv(k, "")
	}
	return dir
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreFile, cfg.Store)
	assert.Equal(t, filepath.Join("data", "docqa.db"), filepath.Clean(cfg.RegistryPath))
	assert.Equal(t, filepath.Join("data", "vector_stores"), filepath.Clean(cfg.VectorStoreDir))
	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
	assert.Equal(t, 3, cfg.PerDocumentK)
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	assert.Equal(t, embedding.ProviderHugot, cfg.Embedding.Provider)
	assert.Equal(t, generation.ProviderExtractive, cfg.Generation.Provider)
	assert.Equal(t, "default", cfg.UserID)
	assert.False(t, cfg.ServerMode)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, `
data_dir = "/srv/docqa"

[store]
backend = "qdrant"
qdrant_host = "qdrant.internal"

[retrieval]
top_k = 8

[embedding]
provider = "openai"
model = "text-embedding-3-small"
min_interval = "250ms"

[generation]
provider = "openai"
timeout = "15s"

[server]
user_id = "from-file"
`)
	t.Setenv("DOCQA_CONFIG", path)
	t.Setenv("DOCQA_TOP_K", "4")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreQdrant, cfg.Store)
	assert.Equal(t, "qdrant.internal", cfg.QdrantHost)
	assert.Equal(t, 6334, cfg.QdrantPort)
	assert.Equal(t, 4, cfg.TopK)
	assert.Equal(t, filepath.Join("/srv/docqa", "docqa.db"), cfg.RegistryPath)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, 250*time.Millisecond, cfg.Embedding.OpenAIMinInterval)
	assert.Equal(t, "sk-test", cfg.Embedding.OpenAIAPIKey)
	assert.Equal(t, "sk-test", cfg.Generation.APIKey)
	assert.Equal(t, 15*time.Second, cfg.GenerationTimeout)
	assert.Equal(t, "from-file", cfg.UserID)

	t.Setenv("DOCQA_USER_ID", "from-env")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.UserID)
}

func TestLoad_DefaultFileIsOptional(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("[chunking]\nsize = 300\n"), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.ChunkSize)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("explicit file missing", func(t *testing.T) {
		dir := isolate(t)
		t.Setenv("DOCQA_CONFIG", filepath.Join(dir, "nope.toml"))
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("malformed toml", func(t *testing.T) {
		dir := isolate(t)
		t.Setenv("DOCQA_CONFIG", writeConfig(t, dir, "[store\nbackend = "))
		_, err := Load()
		assert.ErrorContains(t, err, "parse config")
	})

	t.Run("bad duration", func(t *testing.T) {
		dir := isolate(t)
		t.Setenv("DOCQA_CONFIG", writeConfig(t, dir, "[generation]\ntimeout = \"soon\"\n"))
		_, err := Load()
		assert.ErrorContains(t, err, "generation.timeout")
	})

	t.Run("unknown store", func(t *testing.T) {
		isolate(t)
		t.Setenv("DOCQA_STORE", "s3")
		_, err := Load()
		assert.ErrorContains(t, err, "unknown store backend")
	})

	t.Run("pgvector without dsn", func(t *testing.T) {
		isolate(t)
		t.Setenv("DOCQA_STORE", StorePGVector)
		t.Setenv("DATABASE_URL", "")
		_, err := Load()
		assert.ErrorContains(t, err, "DATABASE_URL")
	})
}
