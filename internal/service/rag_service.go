package service

import (
	"context"
	"log/slog"
	"time"

	"raglab/internal/chain"
	"raglab/internal/conversation"
	"raglab/internal/domain"
	"raglab/internal/loader"
	"raglab/internal/prompt"
	"raglab/internal/summarizer"
	"raglab/internal/vectorstore"
)

// Options wires a Service. Stores holds every backend that is available;
// requests naming any other backend fail with InvalidBackend.
type Options struct {
	Stores              map[domain.Backend]domain.VectorStore
	Prompts             *prompt.Registry
	Model               domain.ChatModel
	Loader              *loader.Loader
	Summarizer          domain.Summarizer
	Memory              *conversation.Buffer
	SummaryMaxSentences int
	Logger              *slog.Logger
}

// RAGService answers questions over stored document chunks and feeds the
// stores with new documents.
type RAGService struct {
	stores              map[domain.Backend]domain.VectorStore
	prompts             *prompt.Registry
	chains              *chain.Runner
	loader              *loader.Loader
	summarizer          domain.Summarizer
	memory              *conversation.Buffer
	summaryMaxSentences int
	log                 *slog.Logger
}

func NewRAGService(opts Options) *RAGService {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.Memory == nil {
		opts.Memory = conversation.NewBuffer()
	}
	if opts.Loader == nil {
		opts.Loader = loader.New(log)
	}
	if opts.Summarizer == nil {
		opts.Summarizer = summarizer.NewFrequency()
	}
	return &RAGService{
		stores:              opts.Stores,
		prompts:             opts.Prompts,
		chains:              chain.NewRunner(opts.Model, log),
		loader:              opts.Loader,
		summarizer:          opts.Summarizer,
		memory:              opts.Memory,
		summaryMaxSentences: opts.SummaryMaxSentences,
		log:                 log,
	}
}

// Request is one question against one collection.
type Request struct {
	Model      string
	Query      string
	Backend    domain.Backend
	Collection string
	// TextKey names the property holding chunk text on backends that need it.
	TextKey string
	Prompt  string
	Chain   domain.ChainStrategy
	Search  domain.SearchStrategy
	K       int
	Extra   domain.ExtraParams
	// Memory overrides the service's conversation buffer for this request.
	Memory  *conversation.Buffer
	OnToken func(token string)
}

// Answer retrieves chunks for req.Query and composes an answer from them.
// Only stuff-composed answers are recorded in memory.
func (s *RAGService) Answer(ctx context.Context, req Request) (domain.AnswerResult, error) {
	start := time.Now()
	log := s.log.With("backend", req.Backend.String(), "collection", req.Collection,
		"chain", req.Chain.String(), "search", req.Search.String())

	if !req.Chain.Valid() {
		return domain.AnswerResult{}, domain.Errorf(domain.KindInvalidArgument, req.Chain.String(), "unknown chain strategy")
	}
	search := domain.SearchRequest{Query: req.Query, K: req.K, Strategy: req.Search, Extra: req.Extra}
	if err := search.Validate(); err != nil {
		return domain.AnswerResult{}, err
	}
	store, err := s.store(req.Backend, req.TextKey, true)
	if err != nil {
		return domain.AnswerResult{}, err
	}

	chainStrategy := req.Chain
	if req.Search == domain.SearchSimilarityWithScore {
		chainStrategy = domain.ChainStuff
	}
	var tmpl prompt.Template
	if chainStrategy == domain.ChainStuff {
		if tmpl, err = s.resolvePrompt(req.Prompt); err != nil {
			return domain.AnswerResult{}, err
		}
	}

	memory := req.Memory
	if memory == nil {
		memory = s.memory
	}

	retrieved, err := store.Search(ctx, req.Collection, search)
	if err != nil {
		log.ErrorContext(ctx, "retrieval failed", "error", err)
		return domain.AnswerResult{}, err
	}

	in := chain.Input{
		Model:    req.Model,
		Question: req.Query,
		Chunks:   retrieved.Chunks,
		Prompt:   tmpl,
		OnToken:  req.OnToken,
	}
	if chainStrategy == domain.ChainStuff {
		in.History = memory.History()
	}
	answer, err := s.chains.Run(ctx, chainStrategy, in)
	if err != nil {
		log.ErrorContext(ctx, "answer composition failed", "error", err)
		return domain.AnswerResult{}, err
	}
	if chainStrategy == domain.ChainStuff {
		memory.Record(req.Query, answer)
	}

	log.InfoContext(ctx, "answered query",
		"sources", len(retrieved.Chunks),
		"scored", retrieved.Scores != nil,
		"took", time.Since(start))
	return domain.AnswerResult{Answer: answer, Sources: retrieved.Chunks, Scores: retrieved.Scores}, nil
}

func (s *RAGService) resolvePrompt(name string) (prompt.Template, error) {
	if s.prompts == nil {
		return prompt.Template{}, domain.Errorf(domain.KindInvalidPromptReference, name, "no prompt registry configured")
	}
	t, err := s.prompts.Resolve(name)
	if err != nil {
		return prompt.Template{}, domain.NewError(domain.KindInvalidPromptReference, name, "cannot resolve prompt", err)
	}
	return t, nil
}

// store selects the backend. With needKey set, backends that read chunk
// text through a named property must be given one.
func (s *RAGService) store(b domain.Backend, textKey string, needKey bool) (domain.VectorStore, error) {
	st, ok := s.stores[b]
	if !ok || st == nil {
		return nil, domain.Errorf(domain.KindInvalidBackend, b.String(), "vector store backend is not available")
	}
	tk, ok := st.(vectorstore.TextKeyed)
	if !ok || !tk.RequiresTextKey() {
		return st, nil
	}
	if textKey == "" {
		if needKey {
			return nil, domain.Errorf(domain.KindMissingTextKey, "text_key", "backend %s needs the property holding chunk text", b)
		}
		return st, nil
	}
	return tk.WithTextKey(textKey), nil
}
