package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"raglab/internal/domain"
	"raglab/internal/service"
)

func newIngestCmd(open opener) *cobra.Command {
	var (
		backend, collection, textKey string
		chunkSize, chunkOverlap      int
		watch                        string
		replace                      bool
	)
	cmd := &cobra.Command{
		Use:   "ingest PATH...",
		Short: "Load documents into a collection",
		Long: `Load documents into a collection. PATH may be a glob pattern; relative
names that do not exist are looked up in the configured document directory.
With --watch the command keeps running and ingests documents created or
modified in the given directory, replacing the chunks stored for them
earlier and dropping the chunks of deleted files.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && watch == "" {
				return errors.New("nothing to ingest: give a PATH or --watch DIR")
			}
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			b, err := domain.ParseBackend(firstNonEmpty(backend, a.cfg.VectorStore.Backend))
			if err != nil {
				return err
			}
			req := service.IngestRequest{
				Backend:      b,
				Collection:   firstNonEmpty(collection, a.cfg.Retrieval.Collection),
				TextKey:      firstNonEmpty(textKey, a.cfg.Retrieval.TextKey),
				ChunkSize:    chunkSize,
				ChunkOverlap: chunkOverlap,
				Replace:      replace,
			}
			if req.ChunkSize == 0 {
				req.ChunkSize = a.cfg.Chunker.ChunkSize
			}
			if req.ChunkOverlap == 0 {
				req.ChunkOverlap = a.cfg.Chunker.ChunkOverlap
			}

			out := cmd.OutOrStdout()
			for _, p := range args {
				r := req
				r.Path = a.resolveDoc(p)
				rep, err := a.svc.IngestFile(cmd.Context(), r)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Ingested %d chunks from %d file(s) into %q.\n", rep.Chunks, len(rep.Files), req.Collection)
				if rep.Summary != "" {
					fmt.Fprintf(out, "Summary: %s\n", rep.Summary)
				}
			}

			if watch == "" {
				return nil
			}
			fmt.Fprintf(out, "Watching %s (ctrl+c to stop)\n", watch)
			err = a.svc.Watch(cmd.Context(), watch, req, func(path string, rep service.IngestReport, err error) {
				if err != nil {
					fmt.Fprintf(out, "%s: %v\n", path, err)
					return
				}
				if len(rep.Files) == 0 {
					fmt.Fprintf(out, "%s: removed\n", path)
					return
				}
				fmt.Fprintf(out, "%s: %d chunks\n", path, rep.Chunks)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&backend, "backend", "b", "", "vector store backend: qdrant, pgvector or memory")
	fs.StringVarP(&collection, "collection", "c", "", "target collection")
	fs.StringVar(&textKey, "text-key", "", "property holding chunk text (pgvector)")
	fs.IntVar(&chunkSize, "chunk-size", 0, "maximum chunk length in characters")
	fs.IntVar(&chunkOverlap, "chunk-overlap", 0, "characters shared by neighbouring chunks")
	fs.BoolVar(&replace, "replace", false, "delete chunks stored earlier from the same files first")
	fs.StringVar(&watch, "watch", "", "directory to watch for new or changed documents")
	return cmd
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
