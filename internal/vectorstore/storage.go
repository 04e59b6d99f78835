package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"raglab/internal/domain"
)

// DefaultFetchK is the candidate pool size for maximal marginal relevance.
const DefaultFetchK = 20

// DefaultLambdaMult balances relevance against diversity in MMR.
const DefaultLambdaMult = 0.5

// NearestQuery is the single primitive every backend implements.
type NearestQuery struct {
	Vector      []float32
	Limit       int
	Filter      map[string]any
	WithVectors bool
}

// Hit is one nearest-neighbour result. Score is backend-native;
// Relevance is normalized to [0,1] with higher meaning closer.
type Hit struct {
	Chunk     domain.Chunk
	Vector    []float32
	Score     float64
	Relevance float64
}

// Nearest returns up to q.Limit hits, best first.
type Nearest interface {
	Nearest(ctx context.Context, collection string, q NearestQuery) ([]Hit, error)
}

// TextKeyed is implemented by stores that need to know which property of a
// collection holds the chunk text before they can read or write it.
type TextKeyed interface {
	RequiresTextKey() bool
	WithTextKey(key string) domain.VectorStore
}

// SourceDeleter is implemented by stores that can drop the chunks loaded
// from one document, so it can be re-ingested without duplicates.
type SourceDeleter interface {
	DeleteSource(ctx context.Context, collection, source string) (int, error)
}

// Dispatch maps a search request onto the backend's nearest primitive.
func Dispatch(ctx context.Context, n Nearest, emb domain.Embedder, collection string, req domain.SearchRequest, log *slog.Logger) (domain.Retrieval, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := req.Validate(); err != nil {
		return domain.Retrieval{}, err
	}
	vec, err := emb.Embed(ctx, req.Query)
	if err != nil {
		return domain.Retrieval{}, domain.ModelServiceError(emb.Name(), err)
	}
	q := NearestQuery{Vector: vec, Limit: req.K, Filter: req.Extra.Filter}

	switch req.Strategy {
	case domain.SearchSimilarity, domain.SearchFilter:
		hits, err := n.Nearest(ctx, collection, q)
		if err != nil {
			return domain.Retrieval{}, err
		}
		return domain.Retrieval{Chunks: chunksOf(hits)}, nil

	case domain.SearchMMR:
		fetchK := req.Extra.FetchK
		if fetchK == 0 {
			fetchK = DefaultFetchK
		}
		lambda := DefaultLambdaMult
		if req.Extra.LambdaMult != nil {
			lambda = *req.Extra.LambdaMult
		}
		q.Limit = max(fetchK, req.K)
		q.WithVectors = true
		hits, err := n.Nearest(ctx, collection, q)
		if err != nil {
			return domain.Retrieval{}, err
		}
		candidates := make([][]float32, len(hits))
		for i, h := range hits {
			candidates[i] = h.Vector
		}
		picked := MaxMarginalRelevance(vec, candidates, req.K, lambda)
		out := make([]domain.Chunk, len(picked))
		for i, idx := range picked {
			out[i] = hits[idx].Chunk
		}
		return domain.Retrieval{Chunks: out}, nil

	case domain.SearchSimilarityWithScore:
		hits, err := n.Nearest(ctx, collection, q)
		if err != nil {
			return domain.Retrieval{}, err
		}
		scores := make([]float64, len(hits))
		for i, h := range hits {
			scores[i] = h.Score
		}
		return domain.Retrieval{Chunks: chunksOf(hits), Scores: scores}, nil

	case domain.SearchSimilarityWithThreshold:
		threshold := *req.Extra.ScoreThreshold
		if threshold < 0 || threshold > 1 {
			log.WarnContext(ctx, "relevance threshold outside [0,1], no result can match",
				"collection", collection, "score_threshold", threshold)
			return domain.Retrieval{Chunks: []domain.Chunk{}}, nil
		}
		hits, err := n.Nearest(ctx, collection, q)
		if err != nil {
			return domain.Retrieval{}, err
		}
		kept := make([]domain.Chunk, 0, len(hits))
		for _, h := range hits {
			if h.Relevance >= threshold {
				kept = append(kept, h.Chunk)
			}
		}
		if len(kept) == 0 {
			log.WarnContext(ctx, "no chunks met the relevance threshold",
				"collection", collection, "score_threshold", threshold)
		}
		return domain.Retrieval{Chunks: kept}, nil
	}
	return domain.Retrieval{}, domain.Errorf(domain.KindInvalidArgument, req.Strategy.String(), "unknown search strategy")
}

func chunksOf(hits []Hit) []domain.Chunk {
	out := make([]domain.Chunk, len(hits))
	for i, h := range hits {
		out[i] = h.Chunk
	}
	return out
}

// MaxMarginalRelevance picks k candidate indices, trading similarity to
// query (weight lambda) against similarity to already picked candidates.
func MaxMarginalRelevance(query []float32, candidates [][]float32, k int, lambda float64) []int {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	k = min(k, len(candidates))
	relevance := make([]float64, len(candidates))
	for i, c := range candidates {
		relevance[i] = Cosine(query, c)
	}
	picked := make([]int, 0, k)
	used := make([]bool, len(candidates))
	for len(picked) < k {
		best, bestScore := -1, math.Inf(-1)
		for i := range candidates {
			if used[i] {
				continue
			}
			redundancy := 0.0
			for _, j := range picked {
				redundancy = max(redundancy, Cosine(candidates[i], candidates[j]))
			}
			score := lambda*relevance[i] - (1-lambda)*redundancy
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		used[best] = true
		picked = append(picked, best)
	}
	return picked
}

// Cosine returns the cosine similarity of a and b, 0 when either is zero.
func Cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// MatchFilter reports whether meta holds every key of filter with an equal value.
// Values compare by their printed form so int and int64 literals agree.
func MatchFilter(meta, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := meta[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
