// Package summarizer builds short extractive summaries of ingested documents.
package summarizer

import (
	"cmp"
	"math"
	"regexp"
	"slices"
	"strings"
)

// DefaultMaxSentences is used when a caller asks for a non-positive length.
const DefaultMaxSentences = 5

var (
	sentencePattern = regexp.MustCompile(`[^.!?\n]+(?:[.!?]+|\n|$)`)
	tokenPattern    = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
)

// Frequency picks the sentences whose words occur most often across the
// text, stopwords excluded, and returns them in source order.
type Frequency struct {
	stopwords map[string]struct{}
}

func NewFrequency() *Frequency {
	return &Frequency{stopwords: defaultStopwords()}
}

type rankedSentence struct {
	idx   int
	text  string
	score float64
}

// Summarize returns at most maxSentences sentences of text.
func (f *Frequency) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = DefaultMaxSentences
	}
	var sentences []rankedSentence
	for _, s := range sentencePattern.FindAllString(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, rankedSentence{idx: len(sentences), text: s})
		}
	}
	if len(sentences) <= maxSentences {
		return join(sentences), nil
	}

	freq := map[string]float64{}
	peak := 0.0
	for _, s := range sentences {
		for _, tok := range f.tokens(s.text) {
			freq[tok]++
			peak = max(peak, freq[tok])
		}
	}

	for i := range sentences {
		toks := f.tokens(sentences[i].text)
		if len(toks) == 0 {
			continue
		}
		sum := 0.0
		for _, tok := range toks {
			sum += freq[tok] / peak
		}
		// Long sentences would win on volume alone.
		sentences[i].score = sum / math.Sqrt(float64(len(toks)))
	}

	slices.SortStableFunc(sentences, func(a, b rankedSentence) int {
		return cmp.Compare(b.score, a.score)
	})
	top := sentences[:maxSentences]
	slices.SortFunc(top, func(a, b rankedSentence) int { return cmp.Compare(a.idx, b.idx) })
	return join(top), nil
}

func join(sentences []rankedSentence) string {
	out := make([]string, len(sentences))
	for i, s := range sentences {
		out[i] = s.text
	}
	return strings.Join(out, " ")
}

// tokens returns the lower-cased non-stopword words of text.
func (f *Frequency) tokens(text string) []string {
	var out []string
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if _, stop := f.stopwords[tok]; !stop {
			out = append(out, tok)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
