package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"raglab/internal/conversation"
	"raglab/internal/domain"
	"raglab/internal/service"
)

// RAGPort is the TUI-facing subset of the RAG service.
type RAGPort interface {
	Answer(ctx context.Context, req service.Request) (domain.AnswerResult, error)
	Memory() []domain.Turn
	ClearMemory()
}

type pane int

const (
	paneAnswer pane = iota
	paneSources
	paneMemory
)

type answerMsg struct {
	query  string
	result domain.AnswerResult
	err    error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	ctx       context.Context
	service   RAGPort
	base      service.Request
	input     textinput.Model
	viewport  viewport.Model
	result    domain.AnswerResult
	pane      pane
	summary   string
	status    string
	cursor    int
	busy      bool
	ready     bool
	lastQuery string
}

// New creates a TUI that sends every query with the settings of base.
func New(ctx context.Context, svc RAGPort, base service.Request, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		ctx:      ctx,
		service:  svc,
		base:     base,
		input:    ti,
		viewport: vp,
		summary:  summary,
		status:   fmt.Sprintf("%s/%s · %s · %s. tab: sources, ctrl+h: memory, ctrl+r: reset", base.Backend, base.Collection, base.Search, base.Chain),
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) ask(q string) tea.Cmd {
	req := m.base
	req.Query = q
	return func() tea.Msg {
		res, err := m.service.Answer(m.ctx, req)
		return answerMsg{query: q, result: res, err: err}
	}
}

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header and summary, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.refresh()
		return m, nil

	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.result = domain.AnswerResult{}
		} else {
			m.status = fmt.Sprintf("Answered %q from %d sources", msg.query, len(msg.result.Sources))
			m.result = msg.result
			m.lastQuery = msg.query
		}
		m.cursor = 0
		m.pane = paneAnswer
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.input.SetValue("")
			m.status = fmt.Sprintf("Asking %q ...", q)
			return m, m.ask(q)
		case "tab":
			if m.pane == paneSources {
				m.pane = paneAnswer
			} else {
				m.pane = paneSources
			}
			m.refresh()
			return m, nil
		case "ctrl+h":
			if m.pane == paneMemory {
				m.pane = paneAnswer
			} else {
				m.pane = paneMemory
			}
			m.refresh()
			return m, nil
		case "ctrl+r":
			m.service.ClearMemory()
			m.result = domain.AnswerResult{}
			m.cursor = 0
			m.status = "Conversation memory cleared."
			m.refresh()
			return m, nil
		case "down":
			if n := len(m.result.Sources); n > 0 {
				m.pane = paneSources
				m.cursor = (m.cursor + 1) % n
				m.refresh()
				return m, nil
			}
		case "up":
			if n := len(m.result.Sources); n > 0 {
				m.pane = paneSources
				m.cursor = (m.cursor - 1 + n) % n
				m.refresh()
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.render())
	m.viewport.GotoTop()
}

// View renders the TUI layout and the current pane.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("raglab")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) render() string {
	switch m.pane {
	case paneMemory:
		turns := m.service.Memory()
		if len(turns) == 0 {
			return "Conversation memory is empty."
		}
		return titleStyle.Render(fmt.Sprintf("Memory (%d turns)", len(turns))) + "\n\n" + conversation.Format(turns)
	case paneSources:
		return m.renderSource()
	}
	if m.result.Answer == "" {
		return "No answer yet."
	}
	return titleStyle.Render("Answer") + "\n\n" + m.result.Answer
}

func (m Model) renderSource() string {
	if len(m.result.Sources) == 0 {
		return "No sources yet."
	}
	c := m.result.Sources[m.cursor]
	title := fmt.Sprintf("Source %d/%d", m.cursor+1, len(m.result.Sources))
	if m.cursor < len(m.result.Scores) {
		title += fmt.Sprintf("  score=%.3f", m.result.Scores[m.cursor])
	}
	if src, ok := c.Metadata["source"]; ok {
		title += fmt.Sprintf("  %v", src)
	}
	if page, ok := c.Metadata["page"]; ok {
		title += fmt.Sprintf(" p.%v", page)
	}
	return titleStyle.Render(title) + "\n\n" + highlightBestSentence(c.Text, m.lastQuery)
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	titleStyle     = lipgloss.NewStyle().Bold(true)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`[^.!?]+[.!?]*`)
)

// highlightBestSentence marks the sentence of text sharing the most words
// with query.
func highlightBestSentence(text, query string) string {
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		return text
	}
	qTokens := toTokenSet(query)
	best, bestScore := -1, 0
	for i, s := range sentences {
		if score := overlap(qTokens, s); score > bestScore {
			best, bestScore = i, score
		}
	}
	out := make([]string, 0, len(sentences))
	for i, s := range sentences {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if i == best {
			s = highlightStyle.Render(s)
		}
		out = append(out, s)
	}
	return strings.Join(out, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// overlap counts distinct words of sentence that occur in queryTokens.
func overlap(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := map[string]struct{}{}
	for _, t := range unicodeWordRe.FindAllString(strings.ToLower(sentence), -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
