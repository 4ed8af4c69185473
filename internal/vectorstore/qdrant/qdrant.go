package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"ecommate/internal/domain"
)

// pointNamespace derives stable point UUIDs from reference IDs; Qdrant only
// accepts unsigned integers or UUIDs as point IDs.
var pointNamespace = uuid.MustParse("6f1c2a4e-2d0b-4c53-9d1e-8e0f5a7b3c21")

// Storage is a minimal REST client to Qdrant.
// It assumes cosine distance and creates the collection if missing.
// A collection holding at least one point counts as an already built index.
type Storage struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *Storage) Init(dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.dimension = dimension
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	// Qdrant returns 200 OK if collection exists with same schema; if error, propagate
	_, err := s.do(context.Background(), http.MethodPut, s.collectionURL(""), body, nil)
	return err
}

func (s *Storage) Upsert(refs []domain.Reference, vectors [][]float64) error {
	if len(refs) != len(vectors) {
		return errors.New("references and vectors length mismatch")
	}
	points := make([]map[string]any, len(refs))
	for i := range refs {
		points[i] = map[string]any{
			"id":     PointID(refs[i].ID),
			"vector": vectors[i],
			"payload": map[string]any{
				"ref_id":  refs[i].ID,
				"content": refs[i].Content,
				"style":   refs[i].Style,
			},
		}
	}
	body := map[string]any{"points": points}
	_, err := s.do(context.Background(), http.MethodPut, s.collectionURL("/points?wait=true"), body, nil)
	return err
}

func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		return []domain.SearchResult{}, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		ref := domain.Reference{}
		if v, ok := r.Payload["ref_id"].(string); ok {
			ref.ID = v
		}
		if v, ok := r.Payload["content"].(string); ok {
			ref.Content = v
		}
		if v, ok := r.Payload["style"].(string); ok {
			ref.Style = v
		}
		results = append(results, domain.SearchResult{Reference: ref, Score: r.Score})
	}
	return results, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Built reports whether the collection exists and holds points.
func (s *Storage) Built(ctx context.Context) (bool, error) {
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, nil)
	if status == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	n, err := s.Count(ctx)
	return n > 0, err
}

// Load is a no-op: the collection is queried in place.
func (s *Storage) Load(context.Context) error { return nil }

// Flush is a no-op: upserts are written with wait=true.
func (s *Storage) Flush(context.Context) error { return nil }

func (s *Storage) Clear() error {
	// Best-effort: drop collection
	_, _ = s.do(context.Background(), http.MethodDelete, s.collectionURL(""), nil, nil)
	return nil
}

// PointID maps a reference ID onto a deterministic UUID.
func PointID(refID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(refID)).String()
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

func (s *Storage) do(ctx context.Context, method, url string, body any, out any) (int, error) {
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return resp.StatusCode, json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, nil
}
