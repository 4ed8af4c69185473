package retrieval

import (
	"context"
	"errors"

	"ecommate/internal/domain"
	"ecommate/internal/logger"
)

const (
	module = "retrieval"

	// DefaultTopK is used when the caller passes a negative k.
	DefaultTopK = 3

	// Placeholder is the single reference returned when the index is unusable.
	Placeholder = "no reference examples available"
)

// ErrNoReferences is the cause recorded when the index answers with nothing.
var ErrNoReferences = errors.New("retrieval: index returned no references")

// Result is the tagged outcome of one retrieval. References is never nil.
type Result struct {
	References []string
	Outcome    domain.Outcome
	Err        error
}

type Retriever struct {
	index domain.ReferenceIndex
	log   logger.Logger
}

func NewRetriever(index domain.ReferenceIndex, log logger.Logger) *Retriever {
	if log == nil {
		log = logger.Nop()
	}
	return &Retriever{index: index, log: log}
}

// Retrieve returns up to k reference texts ordered by similarity to style.
// An index failure or an empty answer degrades to the single placeholder entry.
func (r *Retriever) Retrieve(ctx context.Context, style string, k int) Result {
	if k < 0 {
		k = DefaultTopK
	}
	if k == 0 {
		return Result{References: []string{}, Outcome: domain.OutcomeOK}
	}

	hits, err := r.index.Query(ctx, style, k)
	if err != nil {
		r.log.Warn(module, "falling back to placeholder reference", map[string]any{"error": err, "style": style})
		return Result{References: Fallback(), Outcome: domain.OutcomeDegraded, Err: err}
	}

	if len(hits) == 0 {
		r.log.Warn(module, "no references found, falling back to placeholder", map[string]any{"style": style})
		return Result{References: Fallback(), Outcome: domain.OutcomeDegraded, Err: ErrNoReferences}
	}

	refs := make([]string, 0, len(hits))
	for _, h := range hits {
		refs = append(refs, h.Reference.Content)
	}
	r.log.Debug(module, "references retrieved", map[string]any{"style": style, "count": len(refs)})
	return Result{References: refs, Outcome: domain.OutcomeOK}
}

func Fallback() []string {
	return []string{Placeholder}
}
