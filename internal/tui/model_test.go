package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecommate/internal/config"
	"ecommate/internal/domain"
	"ecommate/internal/pipeline"
)

type fakeRunner struct {
	got  pipeline.Input
	text string
	err  error
}

func (f *fakeRunner) Run(_ context.Context, in pipeline.Input) (*pipeline.State, error) {
	f.got = in
	st := &pipeline.State{
		Input:            in,
		Attributes:       &domain.VisualAttributes{Description: "linen shirt", Material: "linen"},
		References:       []string{"ref one"},
		VisionOutcome:    domain.OutcomeOK,
		RetrievalOutcome: domain.OutcomeOK,
	}
	if f.err != nil {
		return st, f.err
	}
	st.FinalText = &f.text
	return st, nil
}

var styles = []config.StylePreset{{Name: "bold", Tip: "loud"}, {Name: "calm", Tip: "soft"}}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func typeText(t *testing.T, m Model, s string) Model {
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return m
}

func ready(t *testing.T, r Runner) Model {
	m := New(context.Background(), r, styles)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	return m
}

func TestEnter_RunsPipelineAndRevealsText(t *testing.T) {
	runner := &fakeRunner{text: "Soft linen shirt. Made for summer."}
	m := ready(t, runner)

	m = typeText(t, m, "shirt.jpg")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = typeText(t, m, "short")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.True(t, m.running)

	msg := cmd()
	require.IsType(t, resultMsg{}, msg)
	assert.Equal(t, pipeline.Input{Image: pipeline.ImageRef{Path: "shirt.jpg"}, Style: "calm", LengthHint: "short"}, runner.got)

	m, cmd = update(t, m, msg)
	require.NotNil(t, cmd)
	assert.Equal(t, 0, m.revealed)

	for i := 0; i < 100 && m.revealed < len(m.text); i++ {
		m, _ = update(t, m, tickMsg{})
	}
	assert.Equal(t, len(m.text), m.revealed)
	content := m.renderResult()
	assert.Contains(t, content, "Made for summer.")
	assert.Contains(t, content, "ref one")
	assert.Contains(t, m.View(), "calm")
}

func TestEnter_RequiresImagePath(t *testing.T) {
	m := ready(t, &fakeRunner{})
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.False(t, m.running)
	assert.Contains(t, m.status, "image path")
}

func TestResult_ErrorShowsStatusAndDebug(t *testing.T) {
	runner := &fakeRunner{err: errors.New("generation failed: quota")}
	m := ready(t, runner)
	m = typeText(t, m, "a.jpg")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	m, next := update(t, m, cmd())
	assert.Nil(t, next)
	assert.False(t, m.running)
	assert.Contains(t, m.status, "quota")
	assert.Contains(t, m.renderResult(), "linen shirt")
}

func TestHighlightBestSentence_KeepsAllText(t *testing.T) {
	text := "Bright days ahead.\nThis linen shirt breathes. And a trailing bit"
	out := highlightBestSentence(text, "linen shirt")
	assert.Contains(t, out, "Bright days ahead.\n")
	assert.Contains(t, out, "This linen shirt breathes.")
	assert.True(t, strings.HasSuffix(out, " And a trailing bit"))
}

func TestHighlightBestSentence_NoQuery(t *testing.T) {
	assert.Equal(t, "Hello.", highlightBestSentence("Hello.", ""))
}
