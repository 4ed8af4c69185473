package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ecommate/internal/config"
	"ecommate/internal/domain"
	"ecommate/internal/pipeline"
)

// Runner is the TUI-facing subset of the pipeline.
type Runner interface {
	Run(ctx context.Context, in pipeline.Input) (*pipeline.State, error)
}

const (
	fieldImage = iota
	fieldLength
	fieldNote
	fieldCount
)

// revealStep is how many runes the typewriter adds per tick.
const revealStep = 3

var revealInterval = 15 * time.Millisecond

type resultMsg struct {
	state *pipeline.State
	err   error
}

type tickMsg struct{}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	ctx      context.Context
	runner   Runner
	styles   []config.StylePreset
	styleIdx int

	inputs   [fieldCount]textinput.Model
	focus    int
	viewport viewport.Model

	state    *pipeline.State
	text     []rune
	revealed int
	running  bool
	status   string
	ready    bool
}

// New creates a new TUI model instance.
func New(ctx context.Context, runner Runner, styles []config.StylePreset) Model {
	var inputs [fieldCount]textinput.Model
	for i := range inputs {
		ti := textinput.New()
		ti.Prompt = "> "
		ti.CharLimit = 0
		inputs[i] = ti
	}
	inputs[fieldImage].Placeholder = "Path to product image"
	inputs[fieldLength].Placeholder = "Length, e.g. about 100 words (optional)"
	inputs[fieldNote].Placeholder = "Extra requirements (optional)"
	inputs[fieldImage].Focus()

	return Model{
		ctx:      ctx,
		runner:   runner,
		styles:   styles,
		inputs:   inputs,
		viewport: viewport.New(0, 0),
		status:   "Tab switches fields, Ctrl+S changes style, Enter generates.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + fieldCount*(qh+1) // header + style, status, input boxes
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderResult())
		return m, nil

	case resultMsg:
		m.running = false
		m.state = msg.state
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error() + " (press Enter to retry)"
			m.text = nil
			m.revealed = 0
			m.viewport.SetContent(m.renderResult())
			return m, nil
		}
		m.text = []rune(*msg.state.FinalText)
		m.revealed = 0
		m.status = "Done."
		if msg.state.Degraded() {
			m.status = "Done with placeholder data, see debug info."
		}
		return m, tick()

	case tickMsg:
		if m.revealed >= len(m.text) {
			return m, nil
		}
		m.revealed = min(len(m.text), m.revealed+revealStep)
		m.viewport.SetContent(m.renderResult())
		m.viewport.GotoBottom()
		if m.revealed < len(m.text) {
			return m, tick()
		}
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "tab", "shift+tab":
			step := 1
			if msg.String() == "shift+tab" {
				step = fieldCount - 1
			}
			m.inputs[m.focus].Blur()
			m.focus = (m.focus + step) % fieldCount
			return m, m.inputs[m.focus].Focus()
		case "ctrl+s":
			if len(m.styles) > 0 {
				m.styleIdx = (m.styleIdx + 1) % len(m.styles)
			}
			return m, nil
		case "enter":
			if m.running {
				return m, nil
			}
			path := strings.TrimSpace(m.inputs[fieldImage].Value())
			if path == "" {
				m.status = "Enter an image path first."
				return m, nil
			}
			m.running = true
			m.state = nil
			m.text = nil
			m.status = fmt.Sprintf("Generating %q copy...", m.currentStyle().Name)
			m.viewport.SetContent(m.renderResult())
			return m, m.run(pipeline.Input{
				Image:      pipeline.ImageRef{Path: path},
				Style:      m.currentStyle().Name,
				LengthHint: strings.TrimSpace(m.inputs[fieldLength].Value()),
				Note:       strings.TrimSpace(m.inputs[fieldNote].Value()),
			})
		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m Model) run(in pipeline.Input) tea.Cmd {
	return func() tea.Msg {
		st, err := m.runner.Run(m.ctx, in)
		return resultMsg{state: st, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(revealInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m Model) currentStyle() config.StylePreset {
	if len(m.styles) == 0 {
		return config.StylePreset{Name: "default"}
	}
	return m.styles[m.styleIdx]
}

// View renders the TUI layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("ecommate copywriter")
	st := m.currentStyle()
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render("Style: " + st.Name + "  " + st.Tip)
	results := resultBoxStyle.Render(m.viewport.View())
	var inputs []string
	for _, in := range m.inputs {
		inputs = append(inputs, queryBoxStyle.Render(in.View()))
	}
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return header + "\n" + style + "\n" + results + "\n" + strings.Join(inputs, "\n") + "\n" + status
}

func (m Model) renderResult() string {
	if m.running {
		return "Working: vision, retrieval, generation..."
	}
	if m.state == nil {
		return "No copy yet."
	}
	var b strings.Builder
	if len(m.text) > 0 {
		shown := string(m.text[:m.revealed])
		if m.revealed == len(m.text) && m.state.Attributes != nil {
			shown = highlightBestSentence(shown, keywords(*m.state.Attributes))
		}
		b.WriteString(shown)
		b.WriteString("\n\n")
	}
	b.WriteString(debugStyle.Render(renderDebug(m.state)))
	return b.String()
}

func renderDebug(st *pipeline.State) string {
	var b strings.Builder
	b.WriteString("Debug\n")
	if a := st.Attributes; a != nil {
		fmt.Fprintf(&b, "  vision (%s): %s | style %s | colors %s | material %s | audience %s\n",
			st.VisionOutcome, a.Description, a.Style, strings.Join(a.ColorPalette, ", "), a.Material, a.TargetAudience)
	}
	if st.References != nil {
		fmt.Fprintf(&b, "  references (%s):\n", st.RetrievalOutcome)
		for _, r := range st.References {
			fmt.Fprintf(&b, "    - %s\n", r)
		}
	}
	return b.String()
}

func keywords(a domain.VisualAttributes) string {
	return strings.Join(append([]string{a.Description, a.Material}, a.ColorPalette...), " ")
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	debugStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	unicodeWordRe  = regexp.MustCompile(`\p{Han}|\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?。！？]+[.!?。！？])`)
)

// highlightBestSentence emphasizes, in place, the sentence sharing the most
// words with query. Text outside that sentence is left untouched.
func highlightBestSentence(text, query string) string {
	qTokens := toTokenSet(query)
	locs := sentenceRe.FindAllStringIndex(text, -1)
	if len(qTokens) == 0 || len(locs) == 0 {
		return text
	}
	bestIdx := 0
	bestScore := -1
	for i, loc := range locs {
		score := tokenOverlapScore(qTokens, text[loc[0]:loc[1]])
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	start, end := locs[bestIdx][0], locs[bestIdx][1]
	sent := text[start:end]
	lead := len(sent) - len(strings.TrimLeft(sent, " \t\r\n"))
	start += lead
	return text[:start] + highlightStyle.Render(text[start:end]) + text[end:]
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
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
