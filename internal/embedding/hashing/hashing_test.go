package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestEmbed_DeterministicAndNormalized(t *testing.T) {
	ctx := context.Background()
	e := NewEmbedder(64)
	a, err := e.Embed(ctx, "Vector stores index chunk embeddings.")
	require.NoError(t, err)
	b, err := NewEmbedder(64).Embed(ctx, "Vector stores index chunk embeddings.")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.InDelta(t, 1.0, cosine(a, a), 1e-6)
}

func TestEmbed_RelatedTextScoresHigher(t *testing.T) {
	ctx := context.Background()
	e := NewEmbedder(0)
	assert.Equal(t, DefaultDimension, e.Dimension())

	q, _ := e.Embed(ctx, "git branch merge")
	near, _ := e.Embed(ctx, "How to merge a git branch")
	far, _ := e.Embed(ctx, "Japanese particles wa and ga")
	assert.Greater(t, cosine(q, near), cosine(q, far))
}

func TestEmbed_StopwordsOnlyIsZeroVector(t *testing.T) {
	v, err := NewEmbedder(16).Embed(context.Background(), "the and of")
	require.NoError(t, err)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestEmbedBatch_PreservesOrder(t *testing.T) {
	ctx := context.Background()
	e := NewEmbedder(32)
	texts := []string{"alpha", "beta", "gamma"}
	batch, err := e.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	for i, txt := range texts {
		single, _ := e.Embed(ctx, txt)
		assert.Equal(t, single, batch[i])
	}
}
