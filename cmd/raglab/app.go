package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"raglab/internal/config"
	"raglab/internal/conversation"
	"raglab/internal/domain"
	"raglab/internal/embedding"
	"raglab/internal/llm"
	"raglab/internal/loader"
	"raglab/internal/prompt"
	"raglab/internal/service"
	"raglab/internal/summarizer"
	"raglab/internal/vectorstore/memory"
	"raglab/internal/vectorstore/pgvector"
	"raglab/internal/vectorstore/qdrant"
)

// app holds everything a command needs, assembled from the config.
type app struct {
	cfg     *config.AppConfig
	log     *slog.Logger
	svc     *service.RAGService
	pg      *pgvector.Storage
	closers []io.Closer
}

type opener func(cmd *cobra.Command) (*app, error)

func newApp(ctx context.Context, cfgPath string, logOut io.Writer) (*app, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, err
	}
	log := config.NewLogger(cfg.Log, logOut)
	a := &app{cfg: cfg, log: log}

	emb, err := embedding.New(cfg.Embedder)
	if err != nil {
		return nil, err
	}

	stores := map[domain.Backend]domain.VectorStore{
		domain.BackendMemory: memory.NewStorage(emb, log),
	}
	if q := cfg.VectorStore.Qdrant; q != nil && q.Addr != "" {
		distance, err := domain.ParseDistance(q.Distance)
		if err != nil {
			return nil, err
		}
		st, err := qdrant.NewStorage(qdrant.Config{Addr: q.Addr, APIKey: q.APIKey, Distance: distance}, emb, log)
		if err != nil {
			return nil, err
		}
		stores[domain.BackendQdrant] = st
		a.closers = append(a.closers, st)
	}
	if p := cfg.VectorStore.Pgvector; p != nil && p.DSN != "" {
		st, err := pgvector.Open(ctx, p.DSN, emb, log)
		if err != nil {
			log.WarnContext(ctx, "pgvector backend unavailable", "error", err)
		} else {
			stores[domain.BackendPgvector] = st
			a.pg = st
			a.closers = append(a.closers, st)
		}
	}

	var model domain.ChatModel = llm.NewClient(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Timeout: time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
	})
	if cfg.LLM.CacheEntries > 0 {
		if model, err = llm.NewCached(model, cfg.LLM.CacheEntries); err != nil {
			return nil, err
		}
	}

	a.svc = service.NewRAGService(service.Options{
		Stores:              stores,
		Prompts:             prompt.NewRegistry(cfg.PromptDirectory, log),
		Model:               model,
		Loader:              loader.New(log),
		Summarizer:          summarizer.NewFrequency(),
		Memory:              conversation.NewBuffer(),
		SummaryMaxSentences: cfg.Summarizer.MaxSentences,
		Logger:              log,
	})
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// pgvector returns the Postgres backend for schema administration.
func (a *app) pgvector() (*pgvector.Storage, error) {
	if a.pg == nil {
		return nil, domain.Errorf(domain.KindInvalidBackend, domain.BackendPgvector.String(),
			"pgvector backend is not configured or unreachable; set vector_store.pgvector.dsn or PGVECTOR_DSN")
	}
	return a.pg, nil
}

// resolveDoc finds a document given on the command line, falling back to
// the configured document directory for relative names.
func (a *app) resolveDoc(name string) string {
	if filepath.IsAbs(name) || a.cfg.DocDirectory == "" {
		return name
	}
	if matches, _ := filepath.Glob(name); len(matches) > 0 {
		return name
	}
	return filepath.Join(a.cfg.DocDirectory, name)
}
