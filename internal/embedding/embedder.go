package embedding

import "ecommate/internal/domain"

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder = domain.Embedder

// Stateful is implemented by embedders whose vectors depend on state learned in
// Prepare. A persisted index stores that state so queries after a reload embed
// into the same space the index was built in.
type Stateful interface {
	MarshalState() ([]byte, error)
	UnmarshalState(data []byte) error
}
