package chain

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"raglab/internal/domain"
	"raglab/internal/prompt"
)

// Input is everything a chain needs to compose one answer. Prompt and
// History are used by the stuff strategy only.
type Input struct {
	Model    string
	Question string
	Chunks   []domain.Chunk
	Prompt   prompt.Template
	History  string
	OnToken  func(string)
}

// Runner composes answers from retrieved chunks with a chat model.
type Runner struct {
	model domain.ChatModel
	log   *slog.Logger
}

func NewRunner(model domain.ChatModel, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{model: model, log: log}
}

// Run composes an answer with the given strategy.
func (r *Runner) Run(ctx context.Context, strategy domain.ChainStrategy, in Input) (string, error) {
	r.log.DebugContext(ctx, "running chain", "chain", strategy.String(), "chunks", len(in.Chunks))
	switch strategy {
	case domain.ChainStuff:
		return r.stuff(ctx, in)
	case domain.ChainMapReduce:
		return r.mapReduce(ctx, in)
	case domain.ChainRefine:
		return r.refine(ctx, in)
	case domain.ChainMapRerank:
		return r.mapRerank(ctx, in)
	}
	return "", domain.Errorf(domain.KindInvalidArgument, strategy.String(), "unknown chain strategy")
}

func (r *Runner) call(ctx context.Context, in Input, onToken func(string), msgs ...domain.Message) (string, error) {
	return r.model.Chat(ctx, domain.ChatRequest{
		Model:       in.Model,
		Temperature: 0,
		Messages:    msgs,
		OnToken:     onToken,
	})
}

func system(s string) domain.Message { return domain.Message{Role: domain.RoleSystem, Content: s} }
func user(s string) domain.Message   { return domain.Message{Role: domain.RoleUser, Content: s} }
func ai(s string) domain.Message     { return domain.Message{Role: domain.RoleAssistant, Content: s} }

// JoinChunks concatenates chunk texts as one context block.
func JoinChunks(chunks []domain.Chunk) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return strings.Join(texts, "\n\n")
}

func (r *Runner) stuff(ctx context.Context, in Input) (string, error) {
	slots := map[string]string{
		"context":  JoinChunks(in.Chunks),
		"history":  in.History,
		"question": in.Question,
	}
	return r.call(ctx, in, in.OnToken,
		system(in.Prompt.RenderSystem(slots)),
		user(in.Prompt.RenderHuman(slots)))
}

func (r *Runner) mapReduce(ctx context.Context, in Input) (string, error) {
	extracts := make([]string, 0, len(in.Chunks))
	for _, c := range in.Chunks {
		slots := map[string]string{"context": c.Text, "question": in.Question}
		out, err := r.call(ctx, in, nil, system(mapTemplate.RenderSystem(slots)), user(mapTemplate.RenderHuman(slots)))
		if err != nil {
			return "", err
		}
		extracts = append(extracts, out)
	}
	slots := map[string]string{"summaries": strings.Join(extracts, "\n\n"), "question": in.Question}
	return r.call(ctx, in, in.OnToken, system(combineTemplate.RenderSystem(slots)), user(combineTemplate.RenderHuman(slots)))
}

func (r *Runner) refine(ctx context.Context, in Input) (string, error) {
	chunks := in.Chunks
	if len(chunks) == 0 {
		chunks = []domain.Chunk{{}}
	}
	last := len(chunks) - 1
	tokens := func(i int) func(string) {
		if i == last {
			return in.OnToken
		}
		return nil
	}

	slots := map[string]string{"context": chunks[0].Text, "question": in.Question}
	answer, err := r.call(ctx, in, tokens(0), system(initialTemplate.RenderSystem(slots)), user(initialTemplate.RenderHuman(slots)))
	if err != nil {
		return "", err
	}
	for i, c := range chunks[1:] {
		slots := map[string]string{"context": c.Text}
		answer, err = r.call(ctx, in, tokens(i+1),
			user(in.Question),
			ai(answer),
			user(refineTemplate.RenderHuman(slots)))
		if err != nil {
			return "", err
		}
	}
	return answer, nil
}

var scorePattern = regexp.MustCompile(`(?s)^(.*?)\s*Score:\s*(\d+)`)

// parseScored splits "answer\nScore: N" output. Output without a score
// ranks below every scored answer.
func parseScored(s string) (string, int) {
	m := scorePattern.FindStringSubmatch(s)
	if m == nil {
		return strings.TrimSpace(s), -1
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return strings.TrimSpace(m[1]), -1
	}
	return strings.TrimSpace(m[1]), n
}

func (r *Runner) mapRerank(ctx context.Context, in Input) (string, error) {
	chunks := in.Chunks
	if len(chunks) == 0 {
		chunks = []domain.Chunk{{}}
	}
	best, bestScore := "", -2
	for _, c := range chunks {
		slots := map[string]string{"context": c.Text, "question": in.Question}
		out, err := r.call(ctx, in, nil, user(rerankTemplate.RenderHuman(slots)))
		if err != nil {
			return "", err
		}
		answer, score := parseScored(out)
		if score > bestScore {
			best, bestScore = answer, score
		}
	}
	if in.OnToken != nil {
		in.OnToken(best)
	}
	return best, nil
}
