package vectorstore

import (
	"context"

	"ecommate/internal/domain"
)

// Storage persists vectors and supports similarity search.
type Storage interface {
	domain.VectorStore
	// Built reports whether the backing location already holds an index.
	// It is the only signal used to skip construction; contents are not validated.
	Built(ctx context.Context) (bool, error)
	// Load brings a previously built index into a queryable state.
	Load(ctx context.Context) error
	// Flush persists everything upserted since Init.
	Flush(ctx context.Context) error
}

// MetaStore is implemented by stores that can keep opaque side data next to
// the index, such as the state of the embedder that produced the vectors.
type MetaStore interface {
	PutMeta(key string, data []byte) error
	GetMeta(key string) ([]byte, error)
}
