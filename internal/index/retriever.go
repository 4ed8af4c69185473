package index

import (
	"context"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
)

// DefaultTopK is used when a retriever call carries no TopK option.
const DefaultTopK = 3

var _ retriever.Retriever = (*Manager)(nil)

// Retrieve exposes the index as an eino retriever. Each document carries the
// reference style in its metadata and the similarity as its score.
func (m *Manager) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	topK := DefaultTopK
	options := retriever.GetCommonOptions(&retriever.Options{TopK: &topK}, opts...)
	if options.TopK != nil {
		topK = *options.TopK
	}

	results, err := m.Query(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	docs := make([]*schema.Document, 0, len(results))
	for _, r := range results {
		if options.ScoreThreshold != nil && r.Score < *options.ScoreThreshold {
			continue
		}
		doc := &schema.Document{
			ID:       r.Reference.ID,
			Content:  r.Reference.Content,
			MetaData: map[string]any{"style": r.Reference.Style},
		}
		docs = append(docs, doc.WithScore(r.Score))
	}
	return docs, nil
}
