package main

import (
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"raglab/internal/config"
	"raglab/internal/domain"
	"raglab/internal/service"
	"raglab/internal/tui"
)

// queryFlags are the retrieval settings shared by ask and tui. Empty values
// fall back to the retrieval section of the config.
type queryFlags struct {
	model      string
	backend    string
	collection string
	textKey    string
	prompt     string
	chain      string
	search     string
	searchKeys string
	k          int
}

func (f *queryFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.model, "model", "m", "", "chat model (default: first configured model)")
	fs.StringVarP(&f.backend, "backend", "b", "", "vector store backend: qdrant, pgvector or memory")
	fs.StringVarP(&f.collection, "collection", "c", "", "collection to search")
	fs.StringVar(&f.textKey, "text-key", "", "property holding chunk text (pgvector)")
	fs.StringVarP(&f.prompt, "prompt", "p", "", "built-in prompt name or custom prompt file")
	fs.StringVar(&f.chain, "chain", "", "chain strategy: stuff, map_reduce, refine or map_rerank")
	fs.StringVarP(&f.search, "search", "s", "", "search strategy: similarity, mmr, similarity_score, similarity_score_threshold or filter")
	fs.StringVar(&f.searchKeys, "search-keys", "", `extra search parameters, e.g. "fetch_k=10 lambda_mult=0.3 source=a.pdf"`)
	fs.IntVarP(&f.k, "k", "k", 0, "number of chunks to retrieve")
}

func (f *queryFlags) request(cfg *config.AppConfig) (service.Request, error) {
	r := cfg.Retrieval
	pick := func(flag, def string) string {
		if flag != "" {
			return flag
		}
		return def
	}

	backend, err := domain.ParseBackend(pick(f.backend, cfg.VectorStore.Backend))
	if err != nil {
		return service.Request{}, err
	}
	chain, err := domain.ParseChainStrategy(pick(f.chain, r.Chain))
	if err != nil {
		return service.Request{}, err
	}
	search, err := domain.ParseSearchStrategy(pick(f.search, r.Search))
	if err != nil {
		return service.Request{}, err
	}
	extra, err := domain.ParseExtraParams(f.searchKeys)
	if err != nil {
		return service.Request{}, err
	}
	model := f.model
	if model == "" && len(cfg.LLM.Models) > 0 {
		model = cfg.LLM.Models[0]
	}
	k := f.k
	if k == 0 {
		k = r.K
	}
	return service.Request{
		Model:      model,
		Backend:    backend,
		Collection: pick(f.collection, r.Collection),
		TextKey:    pick(f.textKey, r.TextKey),
		Prompt:     pick(f.prompt, r.Prompt),
		Chain:      chain,
		Search:     search,
		K:          k,
		Extra:      extra,
	}, nil
}

func newAskCmd(open opener) *cobra.Command {
	var (
		flags  queryFlags
		stream bool
	)
	cmd := &cobra.Command{
		Use:   "ask QUESTION...",
		Short: "Answer one question from a collection",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			req, err := flags.request(a.cfg)
			if err != nil {
				return err
			}
			req.Query = strings.Join(args, " ")
			out := cmd.OutOrStdout()
			if stream {
				req.OnToken = func(tok string) { fmt.Fprint(out, tok) }
			}

			res, err := a.svc.Answer(cmd.Context(), req)
			if err != nil {
				return err
			}
			if stream {
				fmt.Fprintln(out)
			} else {
				fmt.Fprintln(out, res.Answer)
			}
			printSources(out, res)
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVar(&stream, "stream", false, "print tokens as they arrive")
	return cmd
}

func printSources(w io.Writer, res domain.AnswerResult) {
	if len(res.Sources) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for i, c := range res.Sources {
		line := fmt.Sprintf("  [%d] %v", i+1, c.Metadata["source"])
		if page, ok := c.Metadata["page"]; ok {
			line += fmt.Sprintf(" p.%v", page)
		}
		if row, ok := c.Metadata["row"]; ok {
			line += fmt.Sprintf(" row %v", row)
		}
		if i < len(res.Scores) {
			line += fmt.Sprintf(" (score %.4f)", res.Scores[i])
		}
		fmt.Fprintln(w, line)
	}
}

func newTUICmd(open opener) *cobra.Command {
	var (
		flags  queryFlags
		ingest []string
	)
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Interactive question answering in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			req, err := flags.request(a.cfg)
			if err != nil {
				return err
			}
			summary := fmt.Sprintf("Collection %q on %s.", req.Collection, req.Backend)
			for _, p := range ingest {
				rep, err := a.svc.IngestFile(cmd.Context(), service.IngestRequest{
					Backend: req.Backend, Collection: req.Collection, TextKey: req.TextKey,
					Path: a.resolveDoc(p), ChunkSize: a.cfg.Chunker.ChunkSize, ChunkOverlap: a.cfg.Chunker.ChunkOverlap,
				})
				if err != nil {
					return err
				}
				summary = rep.Summary
			}

			m := tui.New(cmd.Context(), a.svc, req, summary)
			_, err = tea.NewProgram(m, tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringSliceVar(&ingest, "ingest", nil, "documents to ingest before starting")
	return cmd
}
