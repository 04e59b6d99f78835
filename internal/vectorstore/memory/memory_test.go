package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raglab/internal/domain"
	"raglab/internal/embedding/hashing"
)

func newStore() *Storage { return NewStorage(hashing.NewEmbedder(128), nil) }

func names(t *testing.T, s *Storage) []string {
	t.Helper()
	var out []string
	for info, err := range s.ListCollections(t.Context()) {
		require.NoError(t, err)
		out = append(out, info.Name)
	}
	return out
}

func seed(t *testing.T, s *Storage, coll string) {
	t.Helper()
	require.NoError(t, s.Upsert(t.Context(), coll, []domain.Chunk{
		{Text: "Qdrant stores vectors with payloads", Metadata: map[string]any{"source": "qdrant.md", "page": 1}},
		{Text: "Postgres tables hold typed properties", Metadata: map[string]any{"source": "pg.md", "page": 1}},
		{Text: "Bubble tea renders terminal interfaces", Metadata: map[string]any{"source": "tui.md", "page": 2}},
	}))
}

func TestCollectionLifecycle(t *testing.T) {
	ctx := t.Context()
	s := newStore()
	assert.Empty(t, names(t, s))

	require.NoError(t, s.CreateCollection(ctx, "x", domain.DistanceCosine))
	assert.Equal(t, []string{"x"}, names(t, s))

	err := s.CreateCollection(ctx, "x", domain.DistanceCosine)
	assert.True(t, errors.Is(err, domain.ErrDuplicateCollection))

	require.NoError(t, s.DeleteCollection(ctx, "x"))
	assert.NotContains(t, names(t, s), "x")

	err = s.DeleteCollection(ctx, "x")
	assert.True(t, errors.Is(err, domain.ErrCollectionNotFound))
}

func TestUpsertCreatesCollection(t *testing.T) {
	s := newStore()
	seed(t, s, "docs")
	var infos []domain.CollectionInfo
	for info, err := range s.ListCollections(t.Context()) {
		require.NoError(t, err)
		infos = append(infos, info)
	}
	assert.Equal(t, []domain.CollectionInfo{{Name: "docs", Count: 3}}, infos)
}

func TestSearch_SimilarityRanksClosestFirst(t *testing.T) {
	s := newStore()
	seed(t, s, "docs")
	res, err := s.Search(t.Context(), "docs", domain.SearchRequest{
		Query: "typed Postgres properties", K: 2, Strategy: domain.SearchSimilarity,
	})
	require.NoError(t, err)
	require.Len(t, res.Chunks, 2)
	assert.Equal(t, "pg.md", res.Chunks[0].Metadata["source"])
}

func TestSearch_ScoresAreDistances(t *testing.T) {
	s := newStore()
	seed(t, s, "docs")
	res, err := s.Search(t.Context(), "docs", domain.SearchRequest{
		Query: "Qdrant stores vectors with payloads", K: 3, Strategy: domain.SearchSimilarityWithScore,
	})
	require.NoError(t, err)
	require.Len(t, res.Scores, 3)
	assert.InDelta(t, 0, res.Scores[0], 1e-5)
	assert.LessOrEqual(t, res.Scores[0], res.Scores[1])
	assert.LessOrEqual(t, res.Scores[1], res.Scores[2])
}

func TestSearch_Threshold(t *testing.T) {
	s := newStore()
	seed(t, s, "docs")
	thr := func(v float64) domain.SearchRequest {
		return domain.SearchRequest{
			Query: "Bubble tea renders terminal interfaces", K: 3,
			Strategy: domain.SearchSimilarityWithThreshold,
			Extra:    domain.ExtraParams{ScoreThreshold: &v},
		}
	}
	res, err := s.Search(t.Context(), "docs", thr(0.99))
	require.NoError(t, err)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "tui.md", res.Chunks[0].Metadata["source"])

	res, err = s.Search(t.Context(), "docs", thr(-1))
	require.NoError(t, err)
	assert.Empty(t, res.Chunks)
}

func TestSearch_FilterAndMMR(t *testing.T) {
	s := newStore()
	seed(t, s, "docs")
	res, err := s.Search(t.Context(), "docs", domain.SearchRequest{
		Query: "anything", K: 5, Strategy: domain.SearchFilter,
		Extra: domain.ExtraParams{Filter: map[string]any{"page": int64(2)}},
	})
	require.NoError(t, err)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "tui.md", res.Chunks[0].Metadata["source"])

	res, err = s.Search(t.Context(), "docs", domain.SearchRequest{
		Query: "vectors", K: 2, Strategy: domain.SearchMMR,
	})
	require.NoError(t, err)
	assert.Len(t, res.Chunks, 2)
}

func TestSearch_MissingCollection(t *testing.T) {
	_, err := newStore().Search(t.Context(), "nope", domain.SearchRequest{Query: "q", K: 1, Strategy: domain.SearchSimilarity})
	assert.True(t, errors.Is(err, domain.ErrCollectionNotFound))
}

func TestConcurrentUpsertAndSearch(t *testing.T) {
	s := newStore()
	seed(t, s, "docs")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.Upsert(context.Background(), "docs", []domain.Chunk{{Text: "more text"}})
		}()
		go func() {
			defer wg.Done()
			_, _ = s.Search(context.Background(), "docs", domain.SearchRequest{Query: "text", K: 2, Strategy: domain.SearchSimilarity})
		}()
	}
	wg.Wait()
	for info := range s.ListCollections(t.Context()) {
		assert.EqualValues(t, 11, info.Count)
	}
}

// raggedEmbedder returns a vector whose length is the text length.
type raggedEmbedder struct{}

func (raggedEmbedder) Name() string { return "ragged" }

func (raggedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, len(text))
	for i := range v {
		v[i] = 1
	}
	return v, nil
}

func (e raggedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

func TestUpsert_DimensionMismatchLeavesNoCollection(t *testing.T) {
	s := NewStorage(raggedEmbedder{}, nil)
	err := s.Upsert(t.Context(), "fresh", []domain.Chunk{{Text: "abcd"}, {Text: "abcdefgh"}})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Empty(t, names(t, s))

	require.NoError(t, s.Upsert(t.Context(), "fresh", []domain.Chunk{{Text: "abcdefgh"}}))
	err = s.Upsert(t.Context(), "fresh", []domain.Chunk{{Text: "abcd"}})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	for info := range s.ListCollections(t.Context()) {
		assert.EqualValues(t, 1, info.Count)
	}
}

func TestDeleteSource(t *testing.T) {
	s := newStore()
	seed(t, s, "docs")
	n, err := s.DeleteSource(t.Context(), "docs", "pg.md")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res, err := s.Search(t.Context(), "docs", domain.SearchRequest{
		Query: "typed Postgres properties", K: 3, Strategy: domain.SearchSimilarity,
	})
	require.NoError(t, err)
	require.Len(t, res.Chunks, 2)
	for _, c := range res.Chunks {
		assert.NotEqual(t, "pg.md", c.Metadata["source"])
	}

	n, err = s.DeleteSource(t.Context(), "docs", "pg.md")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.DeleteSource(t.Context(), "nope", "pg.md")
	assert.ErrorIs(t, err, domain.ErrCollectionNotFound)
}
