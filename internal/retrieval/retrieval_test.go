package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"ecommate/internal/domain"
)

type fakeIndex struct {
	hits  []domain.SearchResult
	err   error
	gotK  int
	calls int
}

func (f *fakeIndex) Query(_ context.Context, _ string, k int) ([]domain.SearchResult, error) {
	f.calls++
	f.gotK = k
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.hits) {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

func hits(texts ...string) []domain.SearchResult {
	out := make([]domain.SearchResult, len(texts))
	for i, t := range texts {
		out[i] = domain.SearchResult{Reference: domain.Reference{Content: t}, Score: 1 - float64(i)/10}
	}
	return out
}

func TestRetrieve_KeepsOrder(t *testing.T) {
	idx := &fakeIndex{hits: hits("a", "b", "c", "d")}
	res := NewRetriever(idx, nil).Retrieve(context.Background(), "minimalist", 2)

	assert.Equal(t, domain.OutcomeOK, res.Outcome)
	assert.NoError(t, res.Err)
	assert.Equal(t, []string{"a", "b"}, res.References)
}

func TestRetrieve_ZeroK(t *testing.T) {
	idx := &fakeIndex{hits: hits("a")}
	res := NewRetriever(idx, nil).Retrieve(context.Background(), "x", 0)

	assert.NotNil(t, res.References)
	assert.Empty(t, res.References)
	assert.Zero(t, idx.calls)
}

func TestRetrieve_NegativeKUsesDefault(t *testing.T) {
	idx := &fakeIndex{hits: hits("a", "b", "c", "d")}
	res := NewRetriever(idx, nil).Retrieve(context.Background(), "x", -1)

	assert.Equal(t, DefaultTopK, idx.gotK)
	assert.Len(t, res.References, DefaultTopK)
}

func TestRetrieve_IndexErrorDegrades(t *testing.T) {
	idx := &fakeIndex{err: errors.New("dataset missing")}
	res := NewRetriever(idx, nil).Retrieve(context.Background(), "x", 3)

	assert.Equal(t, domain.OutcomeDegraded, res.Outcome)
	assert.Equal(t, []string{Placeholder}, res.References)
	assert.EqualError(t, res.Err, "dataset missing")
}

func TestRetrieve_NoHitsDegrades(t *testing.T) {
	res := NewRetriever(&fakeIndex{}, nil).Retrieve(context.Background(), "x", 3)
	assert.Equal(t, domain.OutcomeDegraded, res.Outcome)
	assert.Equal(t, []string{Placeholder}, res.References)
	assert.ErrorIs(t, res.Err, ErrNoReferences)
}
