package domain

import (
	"context"
	"iter"
)

// Chunk is a bounded span of source-document text stored as the unit of retrieval.
// Metadata carries at least "source" and, for paginated sources, "page".
type Chunk struct {
	Text     string
	Metadata map[string]any
}

// CollectionInfo describes a collection as reported by its backend.
type CollectionInfo struct {
	Name  string
	Count uint64
}

// Retrieval is the result of a vector store search. Scores is set only
// for the scored strategy and holds backend-native values.
type Retrieval struct {
	Chunks []Chunk
	Scores []float64
}

// Turn is one question/answer exchange.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// AnswerResult is what the orchestrator hands back to callers.
type AnswerResult struct {
	Answer  string
	Sources []Chunk
	Scores  []float64
}

// Role of a chat message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat message.
type Message struct {
	Role    Role
	Content string
}

// ChatRequest is one blocking request to a language model. When OnToken is
// set the model streams and OnToken receives each token as it arrives.
type ChatRequest struct {
	Model       string
	Temperature float32
	Messages    []Message
	OnToken     func(token string)
}

// ChatModel answers chat requests.
type ChatModel interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// Embedder converts free text into a numeric vector representation.
// The same embedder must be used for writes and reads of a collection.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore persists chunks with embeddings and supports parameterized search.
type VectorStore interface {
	CreateCollection(ctx context.Context, name string, distance Distance) error
	DeleteCollection(ctx context.Context, name string) error
	ListCollections(ctx context.Context) iter.Seq2[CollectionInfo, error]
	Upsert(ctx context.Context, collection string, chunks []Chunk) error
	Search(ctx context.Context, collection string, req SearchRequest) (Retrieval, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
