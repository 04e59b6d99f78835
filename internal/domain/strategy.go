package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Backend selects a vector store implementation.
type Backend int

const (
	BackendQdrant Backend = iota + 1
	BackendPgvector
	BackendMemory
)

var backendNames = map[Backend]string{
	BackendQdrant:   "qdrant",
	BackendPgvector: "pgvector",
	BackendMemory:   "memory",
}

func (b Backend) String() string {
	if n, ok := backendNames[b]; ok {
		return n
	}
	return fmt.Sprintf("backend(%d)", int(b))
}

// ParseBackend maps a backend name to its value.
func ParseBackend(s string) (Backend, error) {
	for b, n := range backendNames {
		if strings.EqualFold(n, strings.TrimSpace(s)) {
			return b, nil
		}
	}
	return 0, Errorf(KindInvalidBackend, s, "unknown vector store backend")
}

// Distance is the metric a collection is indexed with.
type Distance string

const (
	DistanceCosine Distance = "cosine"
	DistanceL2     Distance = "l2"
	DistanceIP     Distance = "ip"
)

// ParseDistance accepts cosine, l2 or ip; empty means cosine.
func ParseDistance(s string) (Distance, error) {
	switch Distance(strings.ToLower(strings.TrimSpace(s))) {
	case "", DistanceCosine:
		return DistanceCosine, nil
	case DistanceL2:
		return DistanceL2, nil
	case DistanceIP:
		return DistanceIP, nil
	}
	return "", Errorf(KindInvalidArgument, s, "unknown distance metric")
}

// SearchStrategy is the retrieval mode applied at query time.
type SearchStrategy int

const (
	SearchSimilarity SearchStrategy = iota + 1
	SearchMMR
	SearchSimilarityWithScore
	SearchSimilarityWithThreshold
	SearchFilter
)

var searchNames = map[SearchStrategy]string{
	SearchSimilarity:              "similarity",
	SearchMMR:                     "mmr",
	SearchSimilarityWithScore:     "similarity_score",
	SearchSimilarityWithThreshold: "similarity_score_threshold",
	SearchFilter:                  "filter",
}

func (s SearchStrategy) String() string {
	if n, ok := searchNames[s]; ok {
		return n
	}
	return fmt.Sprintf("search(%d)", int(s))
}

// SearchStrategies lists every strategy in declaration order.
func SearchStrategies() []SearchStrategy {
	return []SearchStrategy{SearchSimilarity, SearchMMR, SearchSimilarityWithScore, SearchSimilarityWithThreshold, SearchFilter}
}

// ParseSearchStrategy maps a strategy name to its value.
func ParseSearchStrategy(s string) (SearchStrategy, error) {
	for st, n := range searchNames {
		if strings.EqualFold(n, strings.TrimSpace(s)) {
			return st, nil
		}
	}
	return 0, Errorf(KindInvalidArgument, s, "unknown search strategy")
}

// ChainStrategy is the method of combining retrieved chunks into model calls.
type ChainStrategy int

const (
	ChainStuff ChainStrategy = iota + 1
	ChainMapReduce
	ChainRefine
	ChainMapRerank
)

var chainNames = map[ChainStrategy]string{
	ChainStuff:     "stuff",
	ChainMapReduce: "map_reduce",
	ChainRefine:    "refine",
	ChainMapRerank: "map_rerank",
}

func (c ChainStrategy) String() string {
	if n, ok := chainNames[c]; ok {
		return n
	}
	return fmt.Sprintf("chain(%d)", int(c))
}

// Valid reports whether c is one of the declared strategies.
func (c ChainStrategy) Valid() bool {
	_, ok := chainNames[c]
	return ok
}

// ChainStrategies lists every chain strategy in declaration order.
func ChainStrategies() []ChainStrategy {
	return []ChainStrategy{ChainStuff, ChainMapReduce, ChainRefine, ChainMapRerank}
}

// ParseChainStrategy maps a chain name to its value.
func ParseChainStrategy(s string) (ChainStrategy, error) {
	for c, n := range chainNames {
		if strings.EqualFold(n, strings.TrimSpace(s)) {
			return c, nil
		}
	}
	return 0, Errorf(KindInvalidArgument, s, "unknown chain strategy")
}

// ExtraParams holds the strategy-specific search knobs. Filter also collects
// keys that are not otherwise known; they reach the backend untouched.
type ExtraParams struct {
	FetchK         int
	LambdaMult     *float64
	ScoreThreshold *float64
	Filter         map[string]any
}

// ParseExtraParams parses "key=value" pairs separated by spaces or commas.
// Values holding separators are quoted, as in source="my file.pdf" or
// source='a,b.pdf'; quoted values are always strings. "None" and the empty
// string yield zero params.
func ParseExtraParams(s string) (ExtraParams, error) {
	var p ExtraParams
	s = strings.TrimSpace(s)
	if s == "" || s == "None" {
		return p, nil
	}
	fields, err := splitFields(s)
	if err != nil {
		return p, err
	}
	for _, f := range fields {
		key, val, ok := strings.Cut(f, "=")
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)
		if !ok || key == "" {
			return p, Errorf(KindInvalidArgument, f, "search key must be key=value")
		}
		val, quoted, err := unquote(val)
		if err != nil {
			return p, NewError(KindInvalidArgument, f, "malformed quoted value", err)
		}
		switch key {
		case "fetch_k":
			n, err := strconv.Atoi(val)
			if err != nil {
				return p, NewError(KindInvalidArgument, f, "fetch_k must be an integer", err)
			}
			p.FetchK = n
		case "lambda_mult":
			v, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return p, NewError(KindInvalidArgument, f, "lambda_mult must be a number", err)
			}
			p.LambdaMult = &v
		case "score_threshold":
			v, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return p, NewError(KindInvalidArgument, f, "score_threshold must be a number", err)
			}
			p.ScoreThreshold = &v
		default:
			if p.Filter == nil {
				p.Filter = map[string]any{}
			}
			if quoted {
				p.Filter[key] = val
			} else {
				p.Filter[key] = scalar(val)
			}
		}
	}
	return p, nil
}

// splitFields splits on spaces, tabs and commas outside quotes. A backslash
// escapes the next rune inside double quotes.
func splitFields(s string) ([]string, error) {
	var (
		fields []string
		cur    strings.Builder
		quote  rune
		escape bool
	)
	for _, r := range s {
		switch {
		case escape:
			escape = false
		case quote == '"' && r == '\\':
			escape = true
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == ' ' || r == ',' || r == '\t':
			if cur.Len() > 0 {
				fields = append(fields, cur.String())
				cur.Reset()
			}
			continue
		}
		cur.WriteRune(r)
	}
	if quote != 0 {
		return nil, Errorf(KindInvalidArgument, s, "unterminated quote in search keys")
	}
	if cur.Len() > 0 {
		fields = append(fields, cur.String())
	}
	return fields, nil
}

// unquote strips a surrounding pair of quotes from v. Unquoted values are
// returned as is.
func unquote(v string) (string, bool, error) {
	if len(v) < 2 || (v[0] != '"' && v[0] != '\'') {
		return v, false, nil
	}
	if v[0] == '\'' {
		if v[len(v)-1] != '\'' {
			return "", false, fmt.Errorf("value %s is not closed by a quote", v)
		}
		return v[1 : len(v)-1], true, nil
	}
	u, err := strconv.Unquote(v)
	if err != nil {
		return "", false, err
	}
	return u, true, nil
}

func scalar(v string) any {
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	if v == "true" || v == "false" {
		return v == "true"
	}
	return v
}

// needsQuote reports whether a string filter value would not parse back
// unchanged without quotes.
func needsQuote(v string) bool {
	if v == "" || strings.ContainsAny(v, " ,\t\"'") {
		return true
	}
	_, isString := scalar(v).(string)
	return !isString
}

// String renders params back into the key=value form, keys sorted.
func (p ExtraParams) String() string {
	var parts []string
	if p.FetchK > 0 {
		parts = append(parts, "fetch_k="+strconv.Itoa(p.FetchK))
	}
	if p.LambdaMult != nil {
		parts = append(parts, "lambda_mult="+strconv.FormatFloat(*p.LambdaMult, 'g', -1, 64))
	}
	if p.ScoreThreshold != nil {
		parts = append(parts, "score_threshold="+strconv.FormatFloat(*p.ScoreThreshold, 'g', -1, 64))
	}
	keys := make([]string, 0, len(p.Filter))
	for k := range p.Filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := fmt.Sprint(p.Filter[k])
		if str, ok := p.Filter[k].(string); ok && needsQuote(str) {
			v = strconv.Quote(str)
		}
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, " ")
}

// SearchRequest parameterizes one retrieval.
type SearchRequest struct {
	Query    string
	K        int
	Strategy SearchStrategy
	Extra    ExtraParams
}

// Validate checks the invariants that hold for every backend.
func (r SearchRequest) Validate() error {
	if r.K < 1 {
		return Errorf(KindInvalidArgument, strconv.Itoa(r.K), "k must be at least 1")
	}
	if r.Extra.LambdaMult != nil && (*r.Extra.LambdaMult < 0 || *r.Extra.LambdaMult > 1) {
		return Errorf(KindInvalidArgument, "lambda_mult", "lambda_mult must be within [0,1]")
	}
	if r.Extra.FetchK < 0 {
		return Errorf(KindInvalidArgument, "fetch_k", "fetch_k must not be negative")
	}
	switch r.Strategy {
	case SearchSimilarity, SearchSimilarityWithScore:
	case SearchMMR:
		if r.Extra.FetchK > 0 && r.Extra.FetchK < r.K {
			return Errorf(KindInvalidArgument, "fetch_k", "fetch_k must be at least k")
		}
	case SearchSimilarityWithThreshold:
		if r.Extra.ScoreThreshold == nil {
			return Errorf(KindInvalidArgument, "score_threshold", "threshold search needs score_threshold")
		}
	case SearchFilter:
		if len(r.Extra.Filter) == 0 {
			return Errorf(KindInvalidArgument, "filter", "filter search needs at least one field=value")
		}
	default:
		return Errorf(KindInvalidArgument, r.Strategy.String(), "unknown search strategy")
	}
	return nil
}
