package pipeline

import (
	"time"

	"ecommate/internal/domain"
)

// Phase is the position of a run in the vision -> retrieval -> generation chain.
type Phase string

const (
	PhaseStart          Phase = "start"
	PhaseVisionDone     Phase = "vision-done"
	PhaseRetrievalDone  Phase = "retrieval-done"
	PhaseGenerationDone Phase = "generation-done"
	PhaseFailed         Phase = "failed"
)

// transitions lists the only legal forward moves.
var transitions = map[Phase]Phase{
	PhaseStart:         PhaseVisionDone,
	PhaseVisionDone:    PhaseRetrievalDone,
	PhaseRetrievalDone: PhaseGenerationDone,
}

// ImageRef points at the product image: a file path, raw bytes, or both.
// Data wins when both are set.
type ImageRef struct {
	Path string
	Data []byte
}

// Input is what the caller supplies for one run.
type Input struct {
	Image      ImageRef
	Style      string
	LengthHint string
	Note       string
}

// State is the single record threaded through one run. Each output field is
// owned by exactly one step and written once, through apply.
type State struct {
	RunID string
	Input

	Attributes *domain.VisualAttributes
	References []string
	FinalText  *string

	Phase            Phase
	VisionOutcome    domain.Outcome
	RetrievalOutcome domain.Outcome

	History []StepRecord
}

// Degraded reports whether any stage substituted placeholder data.
func (s *State) Degraded() bool {
	return s.VisionOutcome == domain.OutcomeDegraded || s.RetrievalOutcome == domain.OutcomeDegraded
}

// StepRecord is an immutable log entry for one step execution.
type StepRecord struct {
	StepName string
	Status   StepStatus
	Outcome  domain.Outcome
	Error    string
	Time     time.Time
	Duration time.Duration
}

// StepStatus is the outcome of a step run.
type StepStatus string

const (
	StepOK     StepStatus = "ok"
	StepFailed StepStatus = "failed"
)
