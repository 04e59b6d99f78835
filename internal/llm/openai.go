package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"raglab/internal/domain"
)

// Config configures the OpenAI-compatible chat client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client implements domain.ChatModel over an OpenAI-compatible API.
type Client struct {
	api *openai.Client
}

func NewClient(cfg Config) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{api: openai.NewClientWithConfig(clientConfig)}
}

// Chat sends one chat completion. With req.OnToken set the response is
// streamed and each delta is forwarded as it arrives; Chat still returns
// the full answer.
func (c *Client) Chat(ctx context.Context, req domain.ChatRequest) (string, error) {
	if req.Model == "" {
		return "", domain.Errorf(domain.KindInvalidArgument, "model", "chat model is not configured")
	}
	creq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		Messages:    toMessages(req.Messages),
	}
	if req.OnToken != nil {
		return c.stream(ctx, creq, req.OnToken)
	}
	resp, err := c.api.CreateChatCompletion(ctx, creq)
	if err != nil {
		return "", domain.ModelServiceError(req.Model, err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.ModelServiceError(req.Model, errors.New("no response choices returned from API"))
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) stream(ctx context.Context, creq openai.ChatCompletionRequest, onToken func(string)) (string, error) {
	creq.Stream = true
	stream, err := c.api.CreateChatCompletionStream(ctx, creq)
	if err != nil {
		return "", domain.ModelServiceError(creq.Model, err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return "", domain.ModelServiceError(creq.Model, err)
		}
		for _, ch := range resp.Choices {
			if ch.Delta.Content == "" {
				continue
			}
			sb.WriteString(ch.Delta.Content)
			onToken(ch.Delta.Content)
		}
	}
}

func toMessages(msgs []domain.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case domain.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case domain.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out[i] = openai.ChatCompletionMessage{Role: role, Content: m.Content}
	}
	return out
}
