package domain

import "context"

// MaxColors caps the dominant colors kept in a VisualAttributes record.
const MaxColors = 3

// VisualAttributes is the structured description of a product image.
type VisualAttributes struct {
	Description    string   `json:"description"`
	Style          string   `json:"style"`
	ColorPalette   []string `json:"color_palette"`
	Material       string   `json:"material"`
	TargetAudience string   `json:"target_audience"`
}

// SourceRow is a single example text from the source table, tagged by style.
type SourceRow struct {
	Content string
	Style   string
}

// Reference is an indexed example text.
type Reference struct {
	ID      string
	Content string
	Style   string
}

// SearchResult represents a matching reference with a relevance score.
type SearchResult struct {
	Reference Reference
	Score     float64
}

// Outcome tags a stage result as real or as placeholder data substituted after a failure.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeDegraded Outcome = "degraded"
)

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// VectorStore persists vectors and supports similarity search.
type VectorStore interface {
	Init(dimension int) error
	Upsert(refs []Reference, vectors [][]float64) error
	Search(ctx context.Context, vector []float64, topK int) ([]SearchResult, error)
	Count(ctx context.Context) (int, error)
	Clear() error
}

// Completer is the text-completion service boundary.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ImageCompleter is the vision-capable completion service boundary.
type ImageCompleter interface {
	CompleteWithImage(ctx context.Context, instruction string, image []byte, mimeType string) (string, error)
}

// ReferenceIndex answers nearest-neighbor queries over the reference texts.
type ReferenceIndex interface {
	Query(ctx context.Context, text string, k int) ([]SearchResult, error)
}
