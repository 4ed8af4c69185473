package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ecommate/internal/domain"
	"ecommate/internal/logger"
)

const module = "pipeline"

// ErrFieldOwned is returned when a step tries to write a field that is already set.
var ErrFieldOwned = errors.New("pipeline: state field already set")

// Step is one stage of the run. It reads the state and returns its output;
// it must not modify the state itself.
type Step interface {
	Name() string
	Run(ctx context.Context, st *State) (*StepResult, error)
}

// StepResult carries the single output a step contributes.
type StepResult struct {
	Status StepStatus

	Attributes *domain.VisualAttributes
	References []string
	FinalText  *string

	// Outcome tags vision and retrieval output. Cause holds the swallowed
	// failure behind a degraded outcome.
	Outcome domain.Outcome
	Cause   error
}

// Pipeline runs its steps strictly in order, once each, without retries.
type Pipeline struct {
	steps   []Step
	log     logger.Logger
	metrics *Metrics
}

func New(log logger.Logger, metrics *Metrics, steps ...Step) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{steps: steps, log: log, metrics: metrics}
}

// Run executes every step against a fresh state. On failure the returned state
// keeps whatever earlier steps produced and its phase is PhaseFailed.
func (p *Pipeline) Run(ctx context.Context, in Input) (*State, error) {
	st := &State{RunID: uuid.NewString(), Input: in, Phase: PhaseStart}
	p.log.Info(module, "run started", map[string]any{"run_id": st.RunID, "style": in.Style})

	for _, step := range p.steps {
		if err := p.runStep(ctx, step, st); err != nil {
			st.Phase = PhaseFailed
			p.metrics.observeRun("failed")
			p.log.Error(module, "run failed", map[string]any{"run_id": st.RunID, "step": step.Name(), "error": err})
			return st, err
		}
	}

	result := "ok"
	if st.Degraded() {
		result = "degraded"
	}
	p.metrics.observeRun(result)
	p.log.Info(module, "run finished", map[string]any{"run_id": st.RunID, "result": result})
	return st, nil
}

func (p *Pipeline) runStep(ctx context.Context, step Step, st *State) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("step %s: %w", step.Name(), err)
	}
	next, ok := transitions[st.Phase]
	if !ok {
		return fmt.Errorf("step %s: no transition from phase %s", step.Name(), st.Phase)
	}

	start := time.Now()
	result, err := step.Run(ctx, st)
	elapsed := time.Since(start)
	p.metrics.observeStage(step.Name(), elapsed)

	if err == nil && result != nil && result.Status == StepOK {
		err = apply(st, result)
	}
	if err == nil && (result == nil || result.Status != StepOK) {
		err = fmt.Errorf("returned status %v", statusOf(result))
	}

	rec := StepRecord{StepName: step.Name(), Time: start, Duration: elapsed}
	if err != nil {
		rec.Status = StepFailed
		rec.Error = err.Error()
		st.History = append(st.History, rec)
		return fmt.Errorf("step %s: %w", step.Name(), err)
	}

	rec.Status = StepOK
	rec.Outcome = result.Outcome
	if result.Cause != nil {
		rec.Error = result.Cause.Error()
	}
	if result.Outcome == domain.OutcomeDegraded {
		p.metrics.observeFallback(step.Name())
	}
	st.History = append(st.History, rec)
	st.Phase = next
	p.log.Debug(module, "step done", map[string]any{"run_id": st.RunID, "step": step.Name(), "phase": string(next), "elapsed_ms": elapsed.Milliseconds()})
	return nil
}

// apply merges a step's output into the state, refusing to overwrite.
func apply(st *State, r *StepResult) error {
	if r.Attributes != nil {
		if st.Attributes != nil {
			return fmt.Errorf("%w: attributes", ErrFieldOwned)
		}
		attrs := *r.Attributes
		st.Attributes = &attrs
		st.VisionOutcome = outcomeOr(r.Outcome)
	}
	if r.References != nil {
		if st.References != nil {
			return fmt.Errorf("%w: references", ErrFieldOwned)
		}
		st.References = r.References
		st.RetrievalOutcome = outcomeOr(r.Outcome)
	}
	if r.FinalText != nil {
		if st.FinalText != nil {
			return fmt.Errorf("%w: final text", ErrFieldOwned)
		}
		text := *r.FinalText
		st.FinalText = &text
	}
	return nil
}

func outcomeOr(o domain.Outcome) domain.Outcome {
	if o == "" {
		return domain.OutcomeOK
	}
	return o
}

func statusOf(r *StepResult) StepStatus {
	if r == nil {
		return "<nil>"
	}
	return r.Status
}
