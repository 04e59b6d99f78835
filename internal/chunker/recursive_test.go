package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raglab/internal/domain"
)

func sampleText() string {
	var b strings.Builder
	for p := 0; p < 6; p++ {
		for s := 0; s < 9; s++ {
			b.WriteString("Retrieval systems ground answers in stored passages and cite them. ")
		}
		b.WriteString("\n\n")
	}
	b.WriteString("Trailing line without a paragraph break é ü ñ.")
	return b.String()
}

// rebuild concatenates chunks, dropping the prefix each chunk shares with the previous one.
func rebuild(text string, spans []Span) string {
	runes := []rune(text)
	var b strings.Builder
	end := 0
	for _, sp := range spans {
		b.WriteString(string(runes[max(sp.Start, end):sp.End]))
		end = sp.End
	}
	return b.String()
}

func TestRecursiveSplitter_RoundTrip(t *testing.T) {
	text := sampleText()
	params := []struct{ size, overlap int }{
		{1000, 100}, {500, 50}, {200, 0}, {64, 16}, {10, 9}, {3, 1},
	}
	for _, p := range params {
		s, err := NewRecursiveSplitter(p.size, p.overlap)
		require.NoError(t, err)
		spans := s.Spans(text)
		require.NotEmpty(t, spans)
		assert.Equal(t, text, rebuild(text, spans), "size=%d overlap=%d", p.size, p.overlap)

		assert.Equal(t, 0, spans[0].Start)
		assert.Equal(t, utf8.RuneCountInString(text), spans[len(spans)-1].End)
		for i, sp := range spans {
			assert.LessOrEqual(t, sp.len(), p.size)
			if i > 0 {
				prev := spans[i-1]
				overlap := prev.End - sp.Start
				assert.GreaterOrEqual(t, overlap, 0)
				assert.LessOrEqual(t, overlap, p.overlap)
				assert.Greater(t, sp.End, prev.End)
			}
		}
	}
}

func TestRecursiveSplitter_PrefersParagraphBoundaries(t *testing.T) {
	text := strings.Repeat("a", 40) + "\n\n" + strings.Repeat("b", 40)
	s, err := NewRecursiveSplitter(50, 0)
	require.NoError(t, err)
	chunks := s.Split(text)
	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("a", 40)+"\n\n", chunks[0])
	assert.Equal(t, strings.Repeat("b", 40), chunks[1])
}

func TestRecursiveSplitter_ShortTextIsOneChunk(t *testing.T) {
	s, err := NewRecursiveSplitter(1000, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello world"}, s.Split("hello world"))
	assert.Empty(t, s.Split(""))
}

func TestNewRecursiveSplitter_RejectsOverlapNotBelowSize(t *testing.T) {
	_, err := NewRecursiveSplitter(100, 100)
	assert.Equal(t, domain.KindInvalidArgument, domain.KindOf(err))

	s, err := NewRecursiveSplitter(0, -5)
	require.NoError(t, err)
	assert.Equal(t, DefaultChunkSize, s.chunkSize)
	assert.Equal(t, 0, s.chunkOverlap)
}

func TestSplitChunk_CopiesMetadata(t *testing.T) {
	s, err := NewRecursiveSplitter(20, 5)
	require.NoError(t, err)
	in := domain.Chunk{Text: strings.Repeat("word ", 20), Metadata: map[string]any{"source": "a.txt", "page": 2}}
	out := s.SplitChunk(in)
	require.Greater(t, len(out), 1)
	out[0].Metadata["source"] = "changed"
	for _, c := range out[1:] {
		assert.Equal(t, "a.txt", c.Metadata["source"])
		assert.Equal(t, 2, c.Metadata["page"])
	}
	assert.Equal(t, "a.txt", in.Metadata["source"])
}
