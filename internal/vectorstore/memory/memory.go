package memory

import (
	"cmp"
	"context"
	"iter"
	"log/slog"
	"maps"
	"math"
	"slices"
	"sync"

	"raglab/internal/domain"
	"raglab/internal/vectorstore"
)

type collection struct {
	distance domain.Distance
	dim      int
	chunks   []domain.Chunk
	vectors  [][]float32
}

// Storage is an in-process vector store using brute-force search.
// Upsert creates missing collections, as the Qdrant backend does.
type Storage struct {
	mu          sync.RWMutex
	embedder    domain.Embedder
	collections map[string]*collection
	log         *slog.Logger
}

func NewStorage(embedder domain.Embedder, log *slog.Logger) *Storage {
	if log == nil {
		log = slog.Default()
	}
	return &Storage{
		embedder:    embedder,
		collections: map[string]*collection{},
		log:         log.With("backend", domain.BackendMemory.String()),
	}
}

func (s *Storage) CreateCollection(_ context.Context, name string, distance domain.Distance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; ok {
		return domain.Errorf(domain.KindDuplicateCollection, name, "collection already exists")
	}
	s.collections[name] = &collection{distance: distance}
	return nil
}

func (s *Storage) DeleteCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		return domain.Errorf(domain.KindCollectionNotFound, name, "collection does not exist")
	}
	delete(s.collections, name)
	return nil
}

func (s *Storage) ListCollections(_ context.Context) iter.Seq2[domain.CollectionInfo, error] {
	s.mu.RLock()
	infos := make([]domain.CollectionInfo, 0, len(s.collections))
	for _, name := range slices.Sorted(maps.Keys(s.collections)) {
		infos = append(infos, domain.CollectionInfo{Name: name, Count: uint64(len(s.collections[name].chunks))})
	}
	s.mu.RUnlock()
	return func(yield func(domain.CollectionInfo, error) bool) {
		for _, info := range infos {
			if !yield(info, nil) {
				return
			}
		}
	}
}

func (s *Storage) Upsert(ctx context.Context, name string, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return domain.ModelServiceError(s.embedder.Name(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[name]
	dim := len(vectors[0])
	if ok && col.dim != 0 {
		dim = col.dim
	}
	for _, v := range vectors {
		if len(v) != dim {
			return domain.Errorf(domain.KindInvalidArgument, name,
				"vector dimension %d does not match collection dimension %d", len(v), dim)
		}
	}
	if !ok {
		col = &collection{distance: domain.DistanceCosine}
		s.collections[name] = col
		s.log.InfoContext(ctx, "created collection on first upsert", "collection", name, "dimension", dim)
	}
	col.dim = dim
	col.chunks = append(col.chunks, chunks...)
	col.vectors = append(col.vectors, vectors...)
	return nil
}

// DeleteSource drops every chunk whose "source" metadata equals source.
func (s *Storage) DeleteSource(_ context.Context, name, source string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[name]
	if !ok {
		return 0, domain.Errorf(domain.KindCollectionNotFound, name, "collection does not exist")
	}
	kept := 0
	for i, c := range col.chunks {
		if c.Metadata["source"] == source {
			continue
		}
		col.chunks[kept] = c
		col.vectors[kept] = col.vectors[i]
		kept++
	}
	removed := len(col.chunks) - kept
	clear(col.chunks[kept:])
	clear(col.vectors[kept:])
	col.chunks = col.chunks[:kept]
	col.vectors = col.vectors[:kept]
	return removed, nil
}

func (s *Storage) Search(ctx context.Context, name string, req domain.SearchRequest) (domain.Retrieval, error) {
	return vectorstore.Dispatch(ctx, s, s.embedder, name, req, s.log)
}

// Nearest ranks every stored vector by the collection's distance. Score is
// that distance (lower is closer); Relevance is the cosine similarity.
func (s *Storage) Nearest(_ context.Context, name string, q vectorstore.NearestQuery) ([]vectorstore.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[name]
	if !ok {
		return nil, domain.Errorf(domain.KindCollectionNotFound, name, "collection does not exist")
	}
	hits := make([]vectorstore.Hit, 0, len(col.chunks))
	for i, c := range col.chunks {
		if !vectorstore.MatchFilter(c.Metadata, q.Filter) {
			continue
		}
		h := vectorstore.Hit{
			Chunk:     c,
			Score:     distance(col.distance, q.Vector, col.vectors[i]),
			Relevance: max(0, vectorstore.Cosine(q.Vector, col.vectors[i])),
		}
		if q.WithVectors {
			h.Vector = col.vectors[i]
		}
		hits = append(hits, h)
	}
	slices.SortStableFunc(hits, func(a, b vectorstore.Hit) int { return cmp.Compare(a.Score, b.Score) })
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}

func distance(d domain.Distance, a, b []float32) float64 {
	switch d {
	case domain.DistanceL2:
		sum := 0.0
		for i := range min(len(a), len(b)) {
			diff := float64(a[i]) - float64(b[i])
			sum += diff * diff
		}
		return math.Sqrt(sum)
	case domain.DistanceIP:
		dot := 0.0
		for i := range min(len(a), len(b)) {
			dot += float64(a[i]) * float64(b[i])
		}
		return -dot
	default:
		return 1 - vectorstore.Cosine(a, b)
	}
}
