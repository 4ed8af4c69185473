package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"ecommate/internal/domain"
)

// ErrDimensionMismatch is returned when a vector does not match the store dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// ErrMetaNotFound is returned by GetMeta for a key that was never stored.
var ErrMetaNotFound = errors.New("meta not found")

// Storage is a simple in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float64
	refs      []domain.Reference
	meta      map[string][]byte
}

func NewStorage() *Storage { return &Storage{meta: make(map[string][]byte)} }

func (s *Storage) Init(dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.vectors = nil
	s.refs = nil
	return nil
}

func (s *Storage) Upsert(refs []domain.Reference, vectors [][]float64) error {
	if len(refs) != len(vectors) {
		return errors.New("references and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if len(v) != s.dimension {
			return ErrDimensionMismatch
		}
	}
	s.refs = append(s.refs, refs...)
	s.vectors = append(s.vectors, vectors...)
	return nil
}

// Search returns the topK references ranked by cosine similarity.
// Ties keep insertion order so repeated builds rank identically.
func (s *Storage) Search(_ context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		return []domain.SearchResult{}, nil
	}
	if len(s.vectors) > 0 && len(vector) != s.dimension {
		return nil, ErrDimensionMismatch
	}
	qn := norm(vector)
	scores := make([]float64, len(s.vectors))
	for i := range s.vectors {
		scores[i] = cosine(s.vectors[i], vector, qn)
	}
	idxs := make([]int, len(scores))
	for i := range idxs {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return scores[idxs[a]] > scores[idxs[b]] })
	if topK > len(idxs) {
		topK = len(idxs)
	}
	results := make([]domain.SearchResult, 0, topK)
	for _, j := range idxs[:topK] {
		results = append(results, domain.SearchResult{Reference: s.refs[j], Score: scores[j]})
	}
	return results, nil
}

func (s *Storage) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.refs), nil
}

func (s *Storage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = nil
	s.refs = nil
	s.meta = make(map[string][]byte)
	return nil
}

// Built reports whether anything has been upserted.
func (s *Storage) Built(ctx context.Context) (bool, error) {
	n, err := s.Count(ctx)
	return n > 0, err
}

// Load is a no-op: an in-memory index is either present or not.
func (s *Storage) Load(context.Context) error { return nil }

// Flush is a no-op for the in-memory store.
func (s *Storage) Flush(context.Context) error { return nil }

func (s *Storage) PutMeta(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[key] = append([]byte(nil), data...)
	return nil
}

func (s *Storage) GetMeta(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.meta[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMetaNotFound, key)
	}
	return data, nil
}

// Snapshot copies out the full contents for persistence.
func (s *Storage) Snapshot() (dimension int, refs []domain.Reference, vectors [][]float64, meta map[string][]byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta = make(map[string][]byte, len(s.meta))
	for k, v := range s.meta {
		meta[k] = v
	}
	return s.dimension, append([]domain.Reference(nil), s.refs...), append([][]float64(nil), s.vectors...), meta
}

// Restore replaces the contents with a previously taken snapshot.
func (s *Storage) Restore(dimension int, refs []domain.Reference, vectors [][]float64, meta map[string][]byte) error {
	if len(refs) != len(vectors) {
		return errors.New("references and vectors length mismatch")
	}
	for _, v := range vectors {
		if len(v) != dimension {
			return ErrDimensionMismatch
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.refs = refs
	s.vectors = vectors
	s.meta = make(map[string][]byte, len(meta))
	for k, v := range meta {
		s.meta[k] = v
	}
	return nil
}

func cosine(a, b []float64, bn float64) float64 {
	an := norm(a)
	if an == 0 || bn == 0 {
		return 0
	}
	return dot(a, b) / (an * bn)
}

func norm(v []float64) float64 {
	return math.Sqrt(dot(v, v))
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
