package pgvector

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"ecommate/internal/domain"
)

// Querier is the subset of *pgxpool.Pool the store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Storage keeps references in a PostgreSQL table with a pgvector column.
// A table holding at least one row counts as an already built index.
type Storage struct {
	db        Querier
	table     string
	dimension int
}

// Connect opens a pool for dsn.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	return pool, nil
}

func NewStorage(db Querier, table string) *Storage {
	if table == "" {
		table = "style_examples"
	}
	return &Storage{db: db, table: pgx.Identifier{table}.Sanitize()}
}

func (s *Storage) Init(dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.dimension = dimension
	ctx := context.Background()
	if _, err := s.db.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create extension: %w", err)
	}
	_, err := s.db.Exec(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, content TEXT NOT NULL, style TEXT NOT NULL, embedding vector(%d) NOT NULL)",
		s.table, dimension))
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

func (s *Storage) Upsert(refs []domain.Reference, vectors [][]float64) error {
	if len(refs) != len(vectors) {
		return errors.New("references and vectors length mismatch")
	}
	ctx := context.Background()
	for i, r := range refs {
		_, err := s.db.Exec(ctx, fmt.Sprintf(
			"INSERT INTO %s (id, content, style, embedding) VALUES ($1, $2, $3, $4) "+
				"ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, style = EXCLUDED.style, embedding = EXCLUDED.embedding",
			s.table), r.ID, r.Content, r.Style, pgvector.NewVector(toFloat32(vectors[i])))
		if err != nil {
			return fmt.Errorf("insert %s: %w", r.ID, err)
		}
	}
	return nil
}

// Search orders rows by cosine distance; the score is 1 - distance.
func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		return []domain.SearchResult{}, nil
	}
	rows, err := s.db.Query(ctx, fmt.Sprintf(
		"SELECT id, content, style, 1 - (embedding <=> $1) AS score FROM %s ORDER BY embedding <=> $1, id LIMIT $2",
		s.table), pgvector.NewVector(toFloat32(vector)), topK)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	results := make([]domain.SearchResult, 0, topK)
	for rows.Next() {
		var r domain.SearchResult
		if err := rows.Scan(&r.Reference.ID, &r.Reference.Content, &r.Reference.Style, &r.Score); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s", s.table)).Scan(&n)
	return n, err
}

// Built reports whether the table exists and has rows.
func (s *Storage) Built(ctx context.Context) (bool, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", s.table).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	n, err := s.Count(ctx)
	return n > 0, err
}

// Load is a no-op: the table is queried in place.
func (s *Storage) Load(context.Context) error { return nil }

// Flush is a no-op: rows are written as they are upserted.
func (s *Storage) Flush(context.Context) error { return nil }

func (s *Storage) Clear() error {
	_, err := s.db.Exec(context.Background(), fmt.Sprintf("DROP TABLE IF EXISTS %s", s.table))
	return err
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
