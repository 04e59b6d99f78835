package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("QDRANT_ADDR", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "hashing", cfg.Embedder.Type)
	assert.Equal(t, 1000, cfg.Chunker.ChunkSize)
	assert.Equal(t, 100, cfg.Chunker.ChunkOverlap)
	assert.Equal(t, "localhost:6334", cfg.VectorStore.Qdrant.Addr)
	assert.Equal(t, "general", cfg.Retrieval.Prompt)
	assert.Equal(t, 4, cfg.Retrieval.K)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raglab.yaml")
	yml := `
embedder:
  type: openai
  openai:
    model: nomic-embed-text
vector_store:
  backend: pgvector
  pgvector:
    dsn: postgres://file
retrieval:
  k: 2
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	t.Setenv("PGVECTOR_DSN", "postgres://env")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env", cfg.VectorStore.Pgvector.DSN)
	assert.Equal(t, "pgvector", cfg.VectorStore.Backend)
	assert.Equal(t, 2, cfg.Retrieval.K)
	require.NotNil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, "nomic-embed-text", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, 32, cfg.Embedder.OpenAI.BatchSize)
	assert.Equal(t, "sk-test", cfg.Embedder.OpenAI.APIKey)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Retrieval.Collection = "handbook"
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "handbook", got.Retrieval.Collection)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestNewLogger_JSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	log.Info("hidden")
	log.Warn("shown", "collection", "docs")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"collection":"docs"`)
}
