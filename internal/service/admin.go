package service

import (
	"context"

	"raglab/internal/domain"
	"raglab/internal/prompt"
)

// Collections lists the collections of a backend with their approximate sizes.
func (s *RAGService) Collections(ctx context.Context, backend domain.Backend) ([]domain.CollectionInfo, error) {
	store, err := s.store(backend, "", false)
	if err != nil {
		return nil, err
	}
	var out []domain.CollectionInfo
	for info, err := range store.ListCollections(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// CreateCollection creates an empty collection. textKey is only used by
// backends with a typed schema and may be empty.
func (s *RAGService) CreateCollection(ctx context.Context, backend domain.Backend, textKey, name string, distance domain.Distance) error {
	store, err := s.store(backend, textKey, false)
	if err != nil {
		return err
	}
	if err := store.CreateCollection(ctx, name, distance); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "created collection", "backend", backend.String(), "collection", name, "distance", string(distance))
	return nil
}

func (s *RAGService) DeleteCollection(ctx context.Context, backend domain.Backend, name string) error {
	store, err := s.store(backend, "", false)
	if err != nil {
		return err
	}
	if err := store.DeleteCollection(ctx, name); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "deleted collection", "backend", backend.String(), "collection", name)
	return nil
}

// Memory returns the recorded conversation turns.
func (s *RAGService) Memory() []domain.Turn { return s.memory.Snapshot() }

func (s *RAGService) ClearMemory() { s.memory.Clear() }

// Prompts lists built-in and custom prompt names.
func (s *RAGService) Prompts() ([]string, error) {
	if s.prompts == nil {
		return nil, nil
	}
	return s.prompts.Names()
}

// Prompt resolves one prompt by name.
func (s *RAGService) Prompt(name string) (prompt.Template, error) {
	return s.resolvePrompt(name)
}

// Backends reports which backends this service can reach.
func (s *RAGService) Backends() []domain.Backend {
	var out []domain.Backend
	for _, b := range []domain.Backend{domain.BackendQdrant, domain.BackendPgvector, domain.BackendMemory} {
		if _, ok := s.stores[b]; ok {
			out = append(out, b)
		}
	}
	return out
}

// SupportedExtensions lists the document formats IngestFile accepts.
func (s *RAGService) SupportedExtensions() []string { return s.loader.SupportedExtensions() }
