package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raglab/internal/config"
	"raglab/internal/domain"
)

func testConfig(t *testing.T) (string, *config.AppConfig) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "raglab.yaml")
	cfg, err := config.Load(path)
	require.NoError(t, err)
	cfg.VectorStore.Backend = "memory"
	cfg.Retrieval.Collection = "docs"
	cfg.PromptDirectory = filepath.Join(dir, "prompts")
	cfg.DocDirectory = filepath.Join(dir, "docs")
	require.NoError(t, config.Save(path, cfg))
	return path, cfg
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func TestQueryFlags_Request(t *testing.T) {
	_, cfg := testConfig(t)

	var f queryFlags
	req, err := f.request(cfg)
	require.NoError(t, err)
	assert.Equal(t, domain.BackendMemory, req.Backend)
	assert.Equal(t, "docs", req.Collection)
	assert.Equal(t, domain.ChainStuff, req.Chain)
	assert.Equal(t, domain.SearchSimilarity, req.Search)
	assert.Equal(t, 4, req.K)
	assert.Equal(t, "gpt-4o-mini", req.Model)

	f = queryFlags{search: "mmr", searchKeys: "fetch_k=10 source=a.pdf", k: 2, chain: "refine"}
	req, err = f.request(cfg)
	require.NoError(t, err)
	assert.Equal(t, domain.SearchMMR, req.Search)
	assert.Equal(t, domain.ChainRefine, req.Chain)
	assert.Equal(t, 10, req.Extra.FetchK)
	assert.Equal(t, map[string]any{"source": "a.pdf"}, req.Extra.Filter)

	f = queryFlags{backend: "weaviate"}
	_, err = f.request(cfg)
	assert.ErrorIs(t, err, domain.ErrInvalidBackend)
}

func TestPromptsCommands(t *testing.T) {
	path, _ := testConfig(t)
	out, err := run(t, "--config", path, "prompts", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "general\n")
	assert.Contains(t, out, "swot\n")

	out, err = run(t, "--config", path, "prompts", "show", "general")
	require.NoError(t, err)
	assert.Contains(t, out, "{context}")

	_, err = run(t, "--config", path, "prompts", "show", "missing.yaml")
	assert.ErrorIs(t, err, domain.ErrUnknownPrompt)
}

func TestIngestAndListCollections(t *testing.T) {
	path, cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.DocDirectory, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DocDirectory, "notes.txt"), []byte("Stored in the doc directory."), 0o644))

	out, err := run(t, "--config", path, "ingest", "notes.txt")
	require.NoError(t, err)
	assert.Contains(t, out, `Ingested 1 chunks from 1 file(s) into "docs".`)

	out, err = run(t, "--config", path, "collections", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")

	_, err = run(t, "--config", path, "ingest", "slides.pptx")
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

func TestSchemaNeedsPgvector(t *testing.T) {
	path, _ := testConfig(t)
	_, err := run(t, "--config", path, "schema", "get")
	assert.ErrorIs(t, err, domain.ErrInvalidBackend)
}
