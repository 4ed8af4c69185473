package disk

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"ecommate/internal/domain"
	"ecommate/internal/vectorstore/memory"
)

const (
	indexFile  = "index.json"
	metaSuffix = ".meta"
)

// Storage is an in-memory store whose contents are persisted to a directory.
// A non-empty directory is treated as an already built index.
type Storage struct {
	*memory.Storage
	dir string
}

type record struct {
	ID      string    `json:"id"`
	Content string    `json:"content"`
	Style   string    `json:"style"`
	Vector  []float64 `json:"vector"`
}

type file struct {
	Dimension int      `json:"dimension"`
	Records   []record `json:"records"`
}

func NewStorage(dir string) *Storage {
	return &Storage{Storage: memory.NewStorage(), dir: dir}
}

// Dir returns the directory backing this store.
func (s *Storage) Dir() string { return s.dir }

// Exists reports whether dir exists and holds at least one entry.
func Exists(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return len(entries) > 0, nil
}

func (s *Storage) Built(context.Context) (bool, error) {
	return Exists(s.dir)
}

// Load reads the persisted index as-is.
func (s *Storage) Load(context.Context) error {
	data, err := os.ReadFile(filepath.Join(s.dir, indexFile))
	if err != nil {
		return errors.Wrapf(err, "read index in %s", s.dir)
	}
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return errors.Wrapf(err, "decode index in %s", s.dir)
	}
	refs := make([]domain.Reference, len(f.Records))
	vectors := make([][]float64, len(f.Records))
	for i, r := range f.Records {
		refs[i] = domain.Reference{ID: r.ID, Content: r.Content, Style: r.Style}
		vectors[i] = r.Vector
	}
	meta := make(map[string][]byte)
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return errors.Wrapf(err, "list %s", s.dir)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != metaSuffix {
			continue
		}
		b, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return errors.Wrapf(err, "read %s", name)
		}
		meta[name[:len(name)-len(metaSuffix)]] = b
	}
	return s.Restore(f.Dimension, refs, vectors, meta)
}

// Flush writes the index into a staging directory and renames it into place,
// so a crash never leaves a half-written but non-empty index directory behind.
func (s *Storage) Flush(context.Context) error {
	dimension, refs, vectors, meta := s.Snapshot()
	f := file{Dimension: dimension, Records: make([]record, len(refs))}
	for i, r := range refs {
		f.Records[i] = record{ID: r.ID, Content: r.Content, Style: r.Style, Vector: vectors[i]}
	}
	data, err := json.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "encode index")
	}

	parent := filepath.Dir(filepath.Clean(s.dir))
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", parent)
	}
	staging, err := os.MkdirTemp(parent, ".index-*")
	if err != nil {
		return errors.Wrap(err, "create staging dir")
	}
	defer os.RemoveAll(staging)

	for key, b := range meta {
		if err := os.WriteFile(filepath.Join(staging, key+metaSuffix), b, 0o644); err != nil {
			return errors.Wrapf(err, "write meta %s", key)
		}
	}
	if err := os.WriteFile(filepath.Join(staging, indexFile), data, 0o644); err != nil {
		return errors.Wrap(err, "write index")
	}
	// An empty directory at the target is allowed and replaced.
	if err := os.Remove(s.dir); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "replace %s", s.dir)
	}
	return errors.Wrapf(os.Rename(staging, s.dir), "move index into %s", s.dir)
}

// Clear drops the in-memory contents and the persisted directory.
func (s *Storage) Clear() error {
	if err := s.Storage.Clear(); err != nil {
		return err
	}
	return errors.Wrapf(os.RemoveAll(s.dir), "remove %s", s.dir)
}
