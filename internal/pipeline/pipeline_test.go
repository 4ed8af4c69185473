package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecommate/internal/domain"
)

// mockStep returns a fixed result and records when it ran.
type mockStep struct {
	name   string
	result *StepResult
	err    error
	order  *[]string
}

func (m *mockStep) Name() string { return m.name }

func (m *mockStep) Run(context.Context, *State) (*StepResult, error) {
	if m.order != nil {
		*m.order = append(*m.order, m.name)
	}
	return m.result, m.err
}

func strPtr(s string) *string { return &s }

func okSteps(order *[]string) []Step {
	return []Step{
		&mockStep{name: "vision", order: order, result: &StepResult{
			Status:     StepOK,
			Attributes: &domain.VisualAttributes{Description: "shirt"},
			Outcome:    domain.OutcomeOK,
		}},
		&mockStep{name: "retrieval", order: order, result: &StepResult{
			Status:     StepOK,
			References: []string{"a"},
			Outcome:    domain.OutcomeOK,
		}},
		&mockStep{name: "generation", order: order, result: &StepResult{
			Status:    StepOK,
			FinalText: strPtr("copy"),
		}},
	}
}

func TestPipeline_Run_Success(t *testing.T) {
	var order []string
	reg := prometheus.NewRegistry()
	p := New(nil, NewMetrics(reg), okSteps(&order)...)

	st, err := p.Run(context.Background(), Input{Style: "minimalist"})
	require.NoError(t, err)

	assert.Equal(t, []string{"vision", "retrieval", "generation"}, order)
	assert.Equal(t, PhaseGenerationDone, st.Phase)
	assert.NotEmpty(t, st.RunID)
	require.NotNil(t, st.FinalText)
	assert.Equal(t, "copy", *st.FinalText)
	assert.Equal(t, "shirt", st.Attributes.Description)
	assert.Equal(t, []string{"a"}, st.References)
	assert.False(t, st.Degraded())
	require.Len(t, st.History, 3)
	for _, rec := range st.History {
		assert.Equal(t, StepOK, rec.Status)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.runsTotal.WithLabelValues("ok")))
}

func TestPipeline_Run_GenerationFailureKeepsPartialState(t *testing.T) {
	steps := okSteps(nil)
	steps[2] = &mockStep{name: "generation", result: &StepResult{Status: StepFailed}, err: errors.New("service down")}
	p := New(nil, NewMetrics(prometheus.NewRegistry()), steps...)

	st, err := p.Run(context.Background(), Input{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service down")

	assert.Equal(t, PhaseFailed, st.Phase)
	assert.NotNil(t, st.Attributes)
	assert.Equal(t, []string{"a"}, st.References)
	assert.Nil(t, st.FinalText)
	require.Len(t, st.History, 3)
	assert.Equal(t, StepFailed, st.History[2].Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.runsTotal.WithLabelValues("failed")))
}

func TestPipeline_Run_RefusesOverwrite(t *testing.T) {
	steps := okSteps(nil)
	steps[1] = &mockStep{name: "rogue", result: &StepResult{
		Status:     StepOK,
		Attributes: &domain.VisualAttributes{Description: "other"},
	}}
	st, err := New(nil, nil, steps...).Run(context.Background(), Input{})

	assert.ErrorIs(t, err, ErrFieldOwned)
	assert.Equal(t, PhaseFailed, st.Phase)
	assert.Equal(t, "shirt", st.Attributes.Description)
}

func TestPipeline_Run_NilResultFails(t *testing.T) {
	st, err := New(nil, nil, &mockStep{name: "vision"}).Run(context.Background(), Input{})
	assert.Error(t, err)
	assert.Equal(t, PhaseFailed, st.Phase)
}

func TestPipeline_Run_TooManyStepsFails(t *testing.T) {
	steps := append(okSteps(nil), &mockStep{name: "extra", result: &StepResult{Status: StepOK}})
	st, err := New(nil, nil, steps...).Run(context.Background(), Input{})
	assert.Error(t, err)
	assert.Equal(t, PhaseFailed, st.Phase)
	assert.NotNil(t, st.FinalText)
}

func TestPipeline_Run_DegradedOutcomesCounted(t *testing.T) {
	steps := okSteps(nil)
	steps[0].(*mockStep).result.Outcome = domain.OutcomeDegraded
	steps[0].(*mockStep).result.Cause = errors.New("not json")
	p := New(nil, NewMetrics(prometheus.NewRegistry()), steps...)

	st, err := p.Run(context.Background(), Input{})
	require.NoError(t, err)
	assert.True(t, st.Degraded())
	assert.Equal(t, domain.OutcomeDegraded, st.VisionOutcome)
	assert.Equal(t, "not json", st.History[0].Error)
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.fallbacks.WithLabelValues("vision")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.runsTotal.WithLabelValues("degraded")))
}

func TestPipeline_Run_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var order []string
	st, err := New(nil, nil, okSteps(&order)...).Run(ctx, Input{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, order)
	assert.Equal(t, PhaseFailed, st.Phase)
}
