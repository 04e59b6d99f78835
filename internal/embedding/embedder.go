package embedding

import (
	"time"

	"raglab/internal/config"
	"raglab/internal/domain"
	"raglab/internal/embedding/hashing"
	"raglab/internal/embedding/openai"
)

// New builds the embedder selected by cfg.Type.
func New(cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "", "hashing":
		return hashing.NewEmbedder(cfg.Dimension), nil
	case "openai":
		oc := config.OpenAIEmbedderConfig{}
		if cfg.OpenAI != nil {
			oc = *cfg.OpenAI
		}
		return openai.NewClient(openai.Config{
			BaseURL:   oc.BaseURL,
			APIKey:    oc.APIKey,
			Model:     oc.Model,
			BatchSize: oc.BatchSize,
			Timeout:   time.Duration(oc.TimeoutSecs) * time.Second,
		})
	default:
		return nil, domain.Errorf(domain.KindInvalidArgument, cfg.Type, "unknown embedder type")
	}
}
