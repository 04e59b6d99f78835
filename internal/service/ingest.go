package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"raglab/internal/domain"
	"raglab/internal/loader"
	"raglab/internal/vectorstore"
)

// IngestRequest names the documents to load and where to store them.
// Path may be a glob pattern. With Replace set, chunks stored earlier from
// the same files are deleted before the new ones are written.
type IngestRequest struct {
	Backend      domain.Backend
	Collection   string
	TextKey      string
	Path         string
	ChunkSize    int
	ChunkOverlap int
	Replace      bool
}

// IngestReport describes one completed ingest.
type IngestReport struct {
	Files   []string
	Chunks  int
	Summary string
}

// IngestFile loads every file matching req.Path, writes the chunks to the
// collection and summarizes what was loaded. Nothing is written when any
// file fails to load.
func (s *RAGService) IngestFile(ctx context.Context, req IngestRequest) (IngestReport, error) {
	store, err := s.store(req.Backend, req.TextKey, true)
	if err != nil {
		return IngestReport{}, err
	}
	if req.Collection == "" {
		return IngestReport{}, domain.Errorf(domain.KindInvalidArgument, "collection", "collection name is required")
	}

	paths, err := filepath.Glob(req.Path)
	if err != nil {
		return IngestReport{}, domain.NewError(domain.KindInvalidArgument, req.Path, "malformed path pattern", err)
	}
	if len(paths) == 0 {
		paths = []string{req.Path}
	}

	var (
		report IngestReport
		all    []domain.Chunk
	)
	for _, p := range paths {
		chunks, err := s.loader.Ingest(ctx, p, req.ChunkSize, req.ChunkOverlap)
		if err != nil {
			return IngestReport{}, err
		}
		report.Files = append(report.Files, p)
		all = append(all, chunks...)
	}
	if req.Replace {
		for _, p := range report.Files {
			if err := s.deleteSource(ctx, store, req.Collection, p); err != nil {
				return IngestReport{}, err
			}
		}
	}
	if len(all) > 0 {
		if err := store.Upsert(ctx, req.Collection, all); err != nil {
			return IngestReport{}, err
		}
	}
	report.Chunks = len(all)

	texts := make([]string, len(all))
	for i, c := range all {
		texts[i] = c.Text
	}
	report.Summary, err = s.summarizer.Summarize(strings.Join(texts, "\n"), s.summaryMaxSentences)
	if err != nil {
		return IngestReport{}, err
	}

	s.log.InfoContext(ctx, "ingested documents",
		"backend", req.Backend.String(), "collection", req.Collection,
		"files", len(report.Files), "chunks", report.Chunks)
	return report, nil
}

// deleteSource drops the chunks loaded from path. A collection that does not
// exist yet holds nothing to drop.
func (s *RAGService) deleteSource(ctx context.Context, store domain.VectorStore, collection, path string) error {
	d, ok := store.(vectorstore.SourceDeleter)
	if !ok {
		s.log.WarnContext(ctx, "backend cannot delete chunks by source; earlier chunks are kept", "path", path)
		return nil
	}
	n, err := d.DeleteSource(ctx, collection, path)
	if err != nil && !errors.Is(err, domain.ErrCollectionNotFound) {
		return err
	}
	if n > 0 {
		s.log.InfoContext(ctx, "deleted stale chunks", "collection", collection, "path", path, "chunks", n)
	}
	return nil
}

// Watch ingests documents created or modified in dir until ctx is done.
// req.Path is ignored; each changed file replaces its earlier chunks and the
// outcome is reported to onIngest when it is not nil. Chunks of removed
// files are deleted.
func (s *RAGService) Watch(ctx context.Context, dir string, req IngestRequest, onIngest func(path string, rep IngestReport, err error)) error {
	w, err := loader.NewWatcher(s.loader, s.log)
	if err != nil {
		return domain.NewError(domain.KindInvalidArgument, dir, "cannot watch directory", err)
	}
	defer w.Close()

	events, err := w.Watch(ctx, dir)
	if err != nil {
		return domain.NewError(domain.KindInvalidArgument, dir, "cannot watch directory", err)
	}
	s.log.InfoContext(ctx, "watching for documents", "dir", dir, "collection", req.Collection)
	for ev := range events {
		if ev.Op == loader.Removed {
			err := s.forget(ctx, req, ev.Path)
			if err != nil {
				s.log.WarnContext(ctx, "cannot delete chunks of removed document", "path", ev.Path, "error", err)
			}
			if onIngest != nil {
				onIngest(ev.Path, IngestReport{}, err)
			}
			continue
		}
		r := req
		r.Path = ev.Path
		r.Replace = true
		rep, err := s.IngestFile(ctx, r)
		if err != nil {
			s.log.WarnContext(ctx, "ingest failed", "path", ev.Path, "op", ev.Op.String(), "error", err)
		}
		if onIngest != nil {
			onIngest(ev.Path, rep, err)
		}
	}
	return ctx.Err()
}

func (s *RAGService) forget(ctx context.Context, req IngestRequest, path string) error {
	store, err := s.store(req.Backend, req.TextKey, true)
	if err != nil {
		return err
	}
	return s.deleteSource(ctx, store, req.Collection, path)
}
