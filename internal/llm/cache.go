package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"raglab/internal/domain"
)

// Cached remembers answers to identical requests. Streaming requests
// bypass the cache so tokens still reach the caller.
type Cached struct {
	next    domain.ChatModel
	answers *lru.Cache[string, string]
}

// NewCached wraps next with an LRU of the given size.
func NewCached(next domain.ChatModel, size int) (*Cached, error) {
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, domain.NewError(domain.KindInvalidArgument, fmt.Sprint(size), "invalid cache size", err)
	}
	return &Cached{next: next, answers: c}, nil
}

func (c *Cached) Chat(ctx context.Context, req domain.ChatRequest) (string, error) {
	if req.OnToken != nil {
		return c.next.Chat(ctx, req)
	}
	key := cacheKey(req)
	if answer, ok := c.answers.Get(key); ok {
		return answer, nil
	}
	answer, err := c.next.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	c.answers.Add(key, answer)
	return answer, nil
}

// Len reports the number of cached answers.
func (c *Cached) Len() int { return c.answers.Len() }

func cacheKey(req domain.ChatRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%g\x00", req.Model, req.Temperature)
	for _, m := range req.Messages {
		fmt.Fprintf(h, "%s\x00%s\x00", m.Role, m.Content)
	}
	return hex.EncodeToString(h.Sum(nil))
}
