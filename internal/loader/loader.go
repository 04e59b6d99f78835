// Package loader turns source documents into chunks ready for embedding.
package loader

import (
	"context"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"raglab/internal/chunker"
	"raglab/internal/domain"
)

// extractor reads raw documents from path. Each returned chunk is one
// logical unit of the source (a page, a file, a row) before splitting.
type extractor func(ctx context.Context, path string) ([]domain.Chunk, error)

type format struct {
	extract extractor
	// split is false for sources whose units are already retrieval sized.
	split bool
}

// Loader dispatches documents to a format extractor by file extension.
type Loader struct {
	formats map[string]format
	log     *slog.Logger
}

func New(log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	return &Loader{
		formats: map[string]format{
			".pdf":    {extract: extractPDF, split: true},
			".docx":   {extract: extractDocx, split: true},
			".txt":    {extract: extractText, split: true},
			".md":     {extract: extractText, split: true},
			".csv":    {extract: extractCSV},
			".html":   {extract: extractHTML, split: true},
			".htm":    {extract: extractHTML, split: true},
			".rtdocs": {extract: extractHTML, split: true},
		},
		log: log,
	}
}

// SupportedExtensions returns the handled extensions in sorted order.
func (l *Loader) SupportedExtensions() []string {
	return slices.Sorted(maps.Keys(l.formats))
}

// Supports reports whether path has a handled extension.
func (l *Loader) Supports(path string) bool {
	_, ok := l.formats[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Ingest loads path and splits it into chunks of at most chunkSize runes
// overlapping by chunkOverlap. Every chunk carries the "source" metadata key.
func (l *Loader) Ingest(ctx context.Context, path string, chunkSize, chunkOverlap int) ([]domain.Chunk, error) {
	ext := strings.ToLower(filepath.Ext(path))
	f, ok := l.formats[ext]
	if !ok {
		return nil, domain.Errorf(domain.KindUnsupportedFormat, filepath.Base(path),
			"no loader for extension %q", ext)
	}
	splitter, err := chunker.NewRecursiveSplitter(chunkSize, chunkOverlap)
	if err != nil {
		return nil, err
	}

	docs, err := f.extract(ctx, path)
	if err != nil {
		return nil, err
	}
	if !f.split {
		l.log.DebugContext(ctx, "loaded document", "path", path, "chunks", len(docs))
		return docs, nil
	}

	var chunks []domain.Chunk
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunks = append(chunks, splitter.SplitChunk(d)...)
	}
	l.log.DebugContext(ctx, "loaded document", "path", path, "units", len(docs), "chunks", len(chunks))
	return chunks, nil
}

func document(source, text string) domain.Chunk {
	return domain.Chunk{Text: text, Metadata: map[string]any{"source": source}}
}
