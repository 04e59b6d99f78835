package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LLMConfig configures the OpenAI-compatible chat endpoint.
type LLMConfig struct {
	BaseURL      string   `yaml:"base_url"`
	APIKey       string   `yaml:"api_key,omitempty"`
	Models       []string `yaml:"models"`
	TimeoutSecs  int      `yaml:"timeout_secs"`
	CacheEntries int      `yaml:"cache_entries"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key,omitempty"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string                `yaml:"type"`
	Dimension int                   `yaml:"dimension"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// VectorStoreConfig selects the default backend and configures each one.
type VectorStoreConfig struct {
	Backend  string          `yaml:"backend"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
	Pgvector *PgvectorConfig `yaml:"pgvector,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	Addr     string `yaml:"addr"`
	APIKey   string `yaml:"api_key,omitempty"`
	Distance string `yaml:"distance"`
}

// PgvectorConfig contains connection details for the Postgres backend.
type PgvectorConfig struct {
	DSN string `yaml:"dsn"`
}

// RetrievalConfig holds the query defaults.
type RetrievalConfig struct {
	Collection string `yaml:"collection"`
	TextKey    string `yaml:"text_key"`
	Prompt     string `yaml:"prompt"`
	Chain      string `yaml:"chain"`
	Search     string `yaml:"search"`
	K          int    `yaml:"k"`
}

// SummarizerConfig configures the ingest summary.
type SummarizerConfig struct {
	MaxSentences int `yaml:"max_sentences"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Log               LogConfig         `yaml:"log"`
	LLM               LLMConfig         `yaml:"llm"`
	Embedder          EmbedderConfig    `yaml:"embedder"`
	Chunker           ChunkerConfig     `yaml:"chunker"`
	VectorStore       VectorStoreConfig `yaml:"vector_store"`
	Retrieval         RetrievalConfig   `yaml:"retrieval"`
	Summarizer        SummarizerConfig  `yaml:"summarizer"`
	DocDirectory      string            `yaml:"doc_directory"`
	PromptDirectory   string            `yaml:"prompt_directory"`
	TemplateDirectory string            `yaml:"template_directory"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	applyEnv(&cfg)
	return &cfg, nil
}

// LoadDefault loads .env if present, then tries ./raglab.yaml, then
// ~/.config/raglab/config.yaml. If neither exists, it writes defaults to
// the user path and returns them.
func LoadDefault() (*AppConfig, string, error) {
	_ = godotenv.Load()
	cwdPath := "raglab.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnv(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "raglab", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if len(cfg.LLM.Models) == 0 {
		cfg.LLM.Models = []string{"gpt-4o-mini", "gpt-4o", "gpt-3.5-turbo"}
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 120
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = cfg.LLM.BaseURL
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 1000
	}
	if cfg.Chunker.ChunkOverlap == 0 {
		cfg.Chunker.ChunkOverlap = 100
	}
	if cfg.VectorStore.Backend == "" {
		cfg.VectorStore.Backend = "qdrant"
	}
	if cfg.VectorStore.Qdrant == nil {
		cfg.VectorStore.Qdrant = &QdrantConfig{}
	}
	if cfg.VectorStore.Qdrant.Addr == "" {
		cfg.VectorStore.Qdrant.Addr = "localhost:6334"
	}
	if cfg.VectorStore.Qdrant.Distance == "" {
		cfg.VectorStore.Qdrant.Distance = "cosine"
	}
	if cfg.VectorStore.Pgvector == nil {
		cfg.VectorStore.Pgvector = &PgvectorConfig{}
	}
	if cfg.Retrieval.Prompt == "" {
		cfg.Retrieval.Prompt = "general"
	}
	if cfg.Retrieval.Chain == "" {
		cfg.Retrieval.Chain = "stuff"
	}
	if cfg.Retrieval.Search == "" {
		cfg.Retrieval.Search = "similarity"
	}
	if cfg.Retrieval.K == 0 {
		cfg.Retrieval.K = 4
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 5
	}
	if cfg.DocDirectory == "" {
		cfg.DocDirectory = "docs"
	}
	if cfg.PromptDirectory == "" {
		cfg.PromptDirectory = "prompts"
	}
	if cfg.TemplateDirectory == "" {
		cfg.TemplateDirectory = "schema_templates"
	}
}

// applyEnv overlays secrets and endpoints from the environment.
func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
		if cfg.Embedder.OpenAI != nil {
			cfg.Embedder.OpenAI.APIKey = v
		}
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
		if cfg.Embedder.OpenAI != nil {
			cfg.Embedder.OpenAI.BaseURL = v
		}
	}
	if v := os.Getenv("QDRANT_ADDR"); v != "" {
		cfg.VectorStore.Qdrant.Addr = v
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		cfg.VectorStore.Qdrant.APIKey = v
	}
	if v := os.Getenv("PGVECTOR_DSN"); v != "" {
		cfg.VectorStore.Pgvector.DSN = v
	}
	if v := os.Getenv("RAGLAB_DOC_DIRECTORY"); v != "" {
		cfg.DocDirectory = v
	}
	if v := os.Getenv("RAGLAB_PROMPT_DIRECTORY"); v != "" {
		cfg.PromptDirectory = v
	}
}
