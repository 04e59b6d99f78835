package chunker

import (
	"fmt"
	"maps"

	"raglab/internal/domain"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
)

// Span is a half-open rune range [Start, End) of the source text.
type Span struct {
	Start int
	End   int
}

func (s Span) len() int { return s.End - s.Start }

// RecursiveSplitter splits text on paragraph, line, word and finally rune
// boundaries until every piece fits chunkSize, then merges pieces back into
// chunks that share at most chunkOverlap runes with their predecessor.
// Separators stay attached to the piece they end, so chunks tile the source.
type RecursiveSplitter struct {
	chunkSize    int
	chunkOverlap int
	separators   [][]rune
}

// NewRecursiveSplitter creates a splitter. A non-positive size falls back to
// DefaultChunkSize; overlap must stay below size.
func NewRecursiveSplitter(chunkSize, chunkOverlap int) (*RecursiveSplitter, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		return nil, domain.Errorf(domain.KindInvalidArgument, fmt.Sprint(chunkOverlap),
			"chunk overlap must be smaller than chunk size %d", chunkSize)
	}
	return &RecursiveSplitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   [][]rune{[]rune("\n\n"), []rune("\n"), []rune(" ")},
	}, nil
}

// Split returns the chunk texts for text.
func (s *RecursiveSplitter) Split(text string) []string {
	runes := []rune(text)
	spans := s.spans(runes)
	out := make([]string, len(spans))
	for i, sp := range spans {
		out[i] = string(runes[sp.Start:sp.End])
	}
	return out
}

// Spans returns the rune ranges of each chunk of text.
func (s *RecursiveSplitter) Spans(text string) []Span {
	return s.spans([]rune(text))
}

// SplitChunk splits a chunk's text, copying its metadata onto every piece.
func (s *RecursiveSplitter) SplitChunk(c domain.Chunk) []domain.Chunk {
	var out []domain.Chunk
	for _, t := range s.Split(c.Text) {
		out = append(out, domain.Chunk{Text: t, Metadata: maps.Clone(c.Metadata)})
	}
	return out
}

func (s *RecursiveSplitter) spans(runes []rune) []Span {
	if len(runes) == 0 {
		return nil
	}
	atoms := s.atomize(runes, Span{0, len(runes)}, s.separators)

	var out []Span
	var window []Span
	total := 0
	for _, a := range atoms {
		if total+a.len() > s.chunkSize && len(window) > 0 {
			out = append(out, Span{window[0].Start, window[len(window)-1].End})
			for total > s.chunkOverlap || (total+a.len() > s.chunkSize && total > 0) {
				total -= window[0].len()
				window = window[1:]
			}
		}
		window = append(window, a)
		total += a.len()
	}
	if len(window) > 0 {
		out = append(out, Span{window[0].Start, window[len(window)-1].End})
	}
	return out
}

// atomize breaks sp into contiguous pieces no longer than chunkSize.
func (s *RecursiveSplitter) atomize(runes []rune, sp Span, seps [][]rune) []Span {
	if sp.len() <= s.chunkSize {
		return []Span{sp}
	}
	if len(seps) == 0 {
		out := make([]Span, 0, sp.len())
		for i := sp.Start; i < sp.End; i++ {
			out = append(out, Span{i, i + 1})
		}
		return out
	}
	pieces := cut(runes, sp, seps[0])
	if len(pieces) == 1 {
		return s.atomize(runes, sp, seps[1:])
	}
	var out []Span
	for _, p := range pieces {
		out = append(out, s.atomize(runes, p, seps[1:])...)
	}
	return out
}

// cut splits sp after every occurrence of sep.
func cut(runes []rune, sp Span, sep []rune) []Span {
	var out []Span
	start := sp.Start
	for i := sp.Start; i+len(sep) <= sp.End; {
		if hasPrefix(runes[i:], sep) {
			i += len(sep)
			out = append(out, Span{start, i})
			start = i
			continue
		}
		i++
	}
	if start < sp.End {
		out = append(out, Span{start, sp.End})
	}
	return out
}

func hasPrefix(r, prefix []rune) bool {
	if len(r) < len(prefix) {
		return false
	}
	for i := range prefix {
		if r[i] != prefix[i] {
			return false
		}
	}
	return true
}
