package conversation

import (
	"slices"
	"strings"
	"sync"

	"raglab/internal/domain"
)

// Buffer is an append-only record of question/answer turns. It grows
// without bound until Clear is called.
type Buffer struct {
	mu    sync.RWMutex
	turns []domain.Turn
}

func NewBuffer() *Buffer { return &Buffer{} }

// Record appends one turn.
func (b *Buffer) Record(question, answer string) {
	b.mu.Lock()
	b.turns = append(b.turns, domain.Turn{Question: question, Answer: answer})
	b.mu.Unlock()
}

// Snapshot returns a copy of the turns in recording order.
func (b *Buffer) Snapshot() []domain.Turn {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.turns)
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.turns)
}

// Clear drops every turn.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.turns = nil
	b.mu.Unlock()
}

// History renders the turns the way chat prompts expect them.
func (b *Buffer) History() string {
	return Format(b.Snapshot())
}

// Format renders turns as alternating "Human:" and "AI:" lines.
func Format(turns []domain.Turn) string {
	var sb strings.Builder
	for i, t := range turns {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("Human: ")
		sb.WriteString(t.Question)
		sb.WriteString("\nAI: ")
		sb.WriteString(t.Answer)
	}
	return sb.String()
}

// Sessions hands out one Buffer per session id.
type Sessions struct {
	mu      sync.Mutex
	buffers map[string]*Buffer
}

func NewSessions() *Sessions { return &Sessions{buffers: map[string]*Buffer{}} }

// Get returns the buffer for id, creating it on first use.
func (s *Sessions) Get(id string) *Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buffers[id]
	if !ok {
		b = NewBuffer()
		s.buffers[id] = b
	}
	return b
}

// Drop forgets the session's buffer.
func (s *Sessions) Drop(id string) {
	s.mu.Lock()
	delete(s.buffers, id)
	s.mu.Unlock()
}
