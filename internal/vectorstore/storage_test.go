package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raglab/internal/domain"
)

type fixedEmbedder struct{ vec []float32 }

func (f fixedEmbedder) Name() string { return "fixed" }
func (f fixedEmbedder) Embed(context.Context, string) ([]float32, error) {
	return f.vec, nil
}
func (f fixedEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

type recordingNearest struct {
	hits    []Hit
	queries []NearestQuery
	err     error
}

func (r *recordingNearest) Nearest(_ context.Context, _ string, q NearestQuery) ([]Hit, error) {
	r.queries = append(r.queries, q)
	if r.err != nil {
		return nil, r.err
	}
	return r.hits[:min(q.Limit, len(r.hits))], nil
}

func hit(text string, rel float64, vec ...float32) Hit {
	return Hit{Chunk: domain.Chunk{Text: text}, Vector: vec, Score: 1 - rel, Relevance: rel}
}

func ptr(v float64) *float64 { return &v }

func TestDispatch_SimilarityLimitsToK(t *testing.T) {
	n := &recordingNearest{hits: []Hit{hit("a", 0.9), hit("b", 0.8), hit("c", 0.7)}}
	res, err := Dispatch(t.Context(), n, fixedEmbedder{[]float32{1, 0}}, "docs",
		domain.SearchRequest{Query: "q", K: 2, Strategy: domain.SearchSimilarity}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Chunks, 2)
	assert.Nil(t, res.Scores)
	assert.Equal(t, 2, n.queries[0].Limit)
	assert.False(t, n.queries[0].WithVectors)
}

func TestDispatch_ScoresAlignWithChunks(t *testing.T) {
	n := &recordingNearest{hits: []Hit{hit("a", 0.9), hit("b", 0.6)}}
	res, err := Dispatch(t.Context(), n, fixedEmbedder{[]float32{1}}, "docs",
		domain.SearchRequest{Query: "q", K: 5, Strategy: domain.SearchSimilarityWithScore}, nil)
	require.NoError(t, err)
	require.Len(t, res.Scores, len(res.Chunks))
	assert.InDelta(t, 0.1, res.Scores[0], 1e-9)
	assert.InDelta(t, 0.4, res.Scores[1], 1e-9)
}

func TestDispatch_Threshold(t *testing.T) {
	n := &recordingNearest{hits: []Hit{hit("a", 0.95), hit("b", 0.5), hit("c", 0.2)}}
	emb := fixedEmbedder{[]float32{1}}

	res, err := Dispatch(t.Context(), n, emb, "docs", domain.SearchRequest{
		Query: "q", K: 3, Strategy: domain.SearchSimilarityWithThreshold,
		Extra: domain.ExtraParams{ScoreThreshold: ptr(0.5)},
	}, nil)
	require.NoError(t, err)
	require.Len(t, res.Chunks, 2)
	assert.Equal(t, "b", res.Chunks[1].Text)

	for _, thr := range []float64{-1, 1.5} {
		calls := len(n.queries)
		res, err = Dispatch(t.Context(), n, emb, "docs", domain.SearchRequest{
			Query: "q", K: 3, Strategy: domain.SearchSimilarityWithThreshold,
			Extra: domain.ExtraParams{ScoreThreshold: ptr(thr)},
		}, nil)
		require.NoError(t, err)
		assert.Empty(t, res.Chunks)
		assert.Len(t, n.queries, calls)
	}
}

func TestDispatch_FilterPassesThrough(t *testing.T) {
	n := &recordingNearest{hits: []Hit{hit("a", 0.9)}}
	filter := map[string]any{"source": "a.pdf"}
	_, err := Dispatch(t.Context(), n, fixedEmbedder{[]float32{1}}, "docs", domain.SearchRequest{
		Query: "q", K: 4, Strategy: domain.SearchFilter, Extra: domain.ExtraParams{Filter: filter},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, filter, n.queries[0].Filter)
}

func TestDispatch_MMRFetchesCandidatesWithVectors(t *testing.T) {
	n := &recordingNearest{hits: []Hit{
		hit("a", 1, 1, 0),
		hit("a-dup", 0.99, 0.99, 0.01),
		hit("b", 0.7, 0.7, 0.7),
	}}
	res, err := Dispatch(t.Context(), n, fixedEmbedder{[]float32{1, 0}}, "docs", domain.SearchRequest{
		Query: "q", K: 2, Strategy: domain.SearchMMR,
		Extra: domain.ExtraParams{LambdaMult: ptr(0.3)},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultFetchK, n.queries[0].Limit)
	assert.True(t, n.queries[0].WithVectors)
	require.Len(t, res.Chunks, 2)
	assert.Equal(t, "a", res.Chunks[0].Text)
	assert.Equal(t, "b", res.Chunks[1].Text)
}

func TestDispatch_ValidatesAndPropagates(t *testing.T) {
	n := &recordingNearest{}
	_, err := Dispatch(t.Context(), n, fixedEmbedder{[]float32{1}}, "docs",
		domain.SearchRequest{Query: "q", K: 0, Strategy: domain.SearchSimilarity}, nil)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
	assert.Empty(t, n.queries)

	n.err = domain.Errorf(domain.KindCollectionNotFound, "docs", "collection does not exist")
	_, err = Dispatch(t.Context(), n, fixedEmbedder{[]float32{1}}, "docs",
		domain.SearchRequest{Query: "q", K: 1, Strategy: domain.SearchSimilarity}, nil)
	assert.True(t, errors.Is(err, domain.ErrCollectionNotFound))
}

func TestMaxMarginalRelevance_LambdaOneIsPureRelevance(t *testing.T) {
	cands := [][]float32{{0.6, 0.8}, {1, 0}, {0.99, 0.01}}
	assert.Equal(t, []int{1, 2}, MaxMarginalRelevance([]float32{1, 0}, cands, 2, 1))
	assert.Equal(t, []int{1, 0}, MaxMarginalRelevance([]float32{1, 0}, cands, 2, 0.2))
	assert.Len(t, MaxMarginalRelevance([]float32{1, 0}, cands, 10, 0.5), 3)
	assert.Nil(t, MaxMarginalRelevance([]float32{1, 0}, nil, 2, 0.5))
}

func TestMatchFilter(t *testing.T) {
	meta := map[string]any{"source": "a.pdf", "page": 3}
	assert.True(t, MatchFilter(meta, map[string]any{"page": int64(3)}))
	assert.True(t, MatchFilter(meta, nil))
	assert.False(t, MatchFilter(meta, map[string]any{"source": "b.pdf"}))
	assert.False(t, MatchFilter(meta, map[string]any{"row": 1}))
}
