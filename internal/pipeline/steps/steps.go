package steps

import (
	"context"
	"errors"

	"ecommate/internal/generation"
	"ecommate/internal/pipeline"
	"ecommate/internal/retrieval"
	"ecommate/internal/vision"
)

type ImageAnalyzer interface {
	Analyze(ctx context.Context, path string) vision.Result
	AnalyzeBytes(ctx context.Context, image []byte) vision.Result
}

type ReferenceRetriever interface {
	Retrieve(ctx context.Context, style string, k int) retrieval.Result
}

type CopyWriter interface {
	Write(ctx context.Context, in generation.Input) (string, error)
}

// VisionStep extracts visual attributes from the run's image. It never fails;
// analysis errors surface as a degraded outcome.
type VisionStep struct {
	Analyzer ImageAnalyzer
}

// Name implements pipeline.Step.
func (s *VisionStep) Name() string { return "vision" }

// Run implements pipeline.Step.
func (s *VisionStep) Run(ctx context.Context, st *pipeline.State) (*pipeline.StepResult, error) {
	var res vision.Result
	if len(st.Image.Data) > 0 {
		res = s.Analyzer.AnalyzeBytes(ctx, st.Image.Data)
	} else {
		res = s.Analyzer.Analyze(ctx, st.Image.Path)
	}
	attrs := res.Attributes
	return &pipeline.StepResult{
		Status:     pipeline.StepOK,
		Attributes: &attrs,
		Outcome:    res.Outcome,
		Cause:      res.Err,
	}, nil
}

// RetrieveStep looks up reference texts for the requested style.
type RetrieveStep struct {
	Retriever ReferenceRetriever
	TopK      int
}

// Name implements pipeline.Step.
func (s *RetrieveStep) Name() string { return "retrieval" }

// Run implements pipeline.Step.
func (s *RetrieveStep) Run(ctx context.Context, st *pipeline.State) (*pipeline.StepResult, error) {
	res := s.Retriever.Retrieve(ctx, st.Style, s.TopK)
	return &pipeline.StepResult{
		Status:     pipeline.StepOK,
		References: res.References,
		Outcome:    res.Outcome,
		Cause:      res.Err,
	}, nil
}

// GenerateStep writes the final copy. Its failure fails the run.
type GenerateStep struct {
	Writer CopyWriter
}

// Name implements pipeline.Step.
func (s *GenerateStep) Name() string { return "generation" }

// Run implements pipeline.Step.
func (s *GenerateStep) Run(ctx context.Context, st *pipeline.State) (*pipeline.StepResult, error) {
	if st.Attributes == nil || st.References == nil {
		return &pipeline.StepResult{Status: pipeline.StepFailed}, errors.New("attributes or references missing")
	}
	text, err := s.Writer.Write(ctx, generation.Input{
		Attributes: *st.Attributes,
		Style:      st.Style,
		LengthHint: st.LengthHint,
		Note:       st.Note,
		References: st.References,
	})
	if err != nil {
		return &pipeline.StepResult{Status: pipeline.StepFailed}, err
	}
	return &pipeline.StepResult{Status: pipeline.StepOK, FinalText: &text}, nil
}

// Default returns the fixed vision -> retrieval -> generation chain.
func Default(a ImageAnalyzer, r ReferenceRetriever, w CopyWriter, topK int) []pipeline.Step {
	return []pipeline.Step{
		&VisionStep{Analyzer: a},
		&RetrieveStep{Retriever: r, TopK: topK},
		&GenerateStep{Writer: w},
	}
}
