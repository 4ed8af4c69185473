package index

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"ecommate/internal/dataset"
	"ecommate/internal/domain"
	"ecommate/internal/embedding"
	"ecommate/internal/logger"
	"ecommate/internal/vectorstore"
)

const (
	module = "index"

	// embedderMetaKey names the side data holding a stateful embedder's state.
	embedderMetaKey = "embedder"
)

var (
	// ErrEmptyDataset is returned when the source table has no usable rows.
	ErrEmptyDataset = errors.New("index: source table has no rows")
	// ErrEmbedderState is returned when a persisted index lacks the state its embedder needs.
	ErrEmbedderState = errors.New("index: embedder state unavailable")
)

// Source yields the rows an index is built from.
type Source func() ([]domain.SourceRow, error)

// CSVSource reads rows from a CSV file on every call.
func CSVSource(path, contentCol, styleCol string) Source {
	return func() ([]domain.SourceRow, error) {
		return dataset.LoadCSV(path, contentCol, styleCol)
	}
}

// snapshotter is implemented by stores that can hand back their references,
// which enables the lexical fallback after a reload.
type snapshotter interface {
	Snapshot() (int, []domain.Reference, [][]float64, map[string][]byte)
}

// Manager owns the similarity index lifecycle: uninitialized until the first
// Ensure either loads an existing index or builds one from the source.
type Manager struct {
	embedder domain.Embedder
	store    vectorstore.Storage
	source   Source
	log      logger.Logger

	group singleflight.Group
	// buildMu serializes load and build so a Rebuild never overlaps an Ensure.
	buildMu sync.Mutex

	mu    sync.RWMutex
	ready bool
	refs  []domain.Reference
}

func NewManager(embedder domain.Embedder, store vectorstore.Storage, source Source, log logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{embedder: embedder, store: store, source: source, log: log}
}

// Ready reports whether the index is queryable.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

// Ensure makes the index ready. Concurrent callers share a single load or
// build. A failure leaves the manager uninitialized so a later call retries.
func (m *Manager) Ensure(ctx context.Context) error {
	if m.Ready() {
		return nil
	}
	_, err, _ := m.group.Do("ensure", func() (any, error) {
		m.buildMu.Lock()
		defer m.buildMu.Unlock()
		if m.Ready() {
			return nil, nil
		}
		built, err := m.store.Built(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "check existing index")
		}
		if built {
			m.log.Info(module, "loading existing index", nil)
			err = m.load(ctx)
		} else {
			m.log.Info(module, "building index from source", nil)
			err = m.build(ctx)
		}
		if err != nil {
			m.log.Error(module, "index not ready", map[string]any{"error": err})
			return nil, err
		}
		m.mu.Lock()
		m.ready = true
		m.mu.Unlock()
		return nil, nil
	})
	return err
}

// Rebuild discards whatever the store holds and builds from the source again.
func (m *Manager) Rebuild(ctx context.Context) error {
	_, err, _ := m.group.Do("rebuild", func() (any, error) {
		m.buildMu.Lock()
		defer m.buildMu.Unlock()
		m.mu.Lock()
		m.ready = false
		m.mu.Unlock()
		if err := m.build(ctx); err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.ready = true
		m.mu.Unlock()
		return nil, nil
	})
	return err
}

func (m *Manager) load(ctx context.Context) error {
	if err := m.store.Load(ctx); err != nil {
		return errors.Wrap(err, "load index")
	}
	if st, ok := m.embedder.(embedding.Stateful); ok {
		ms, ok := m.store.(vectorstore.MetaStore)
		if !ok {
			return errors.Wrapf(ErrEmbedderState, "store cannot hold %s state", m.embedder.Name())
		}
		data, err := ms.GetMeta(embedderMetaKey)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrEmbedderState, err)
		}
		if err := st.UnmarshalState(data); err != nil {
			return errors.Wrap(err, "restore embedder state")
		}
	}
	if snap, ok := m.store.(snapshotter); ok {
		_, refs, _, _ := snap.Snapshot()
		m.setRefs(refs)
	}
	n, _ := m.store.Count(ctx)
	m.log.Info(module, "index loaded", map[string]any{"entries": n, "embedder": m.embedder.Name()})
	return nil
}

func (m *Manager) build(ctx context.Context) error {
	rows, err := m.source()
	if err != nil {
		return errors.Wrap(err, "read source table")
	}
	if len(rows) == 0 {
		return ErrEmptyDataset
	}

	refs := make([]domain.Reference, len(rows))
	texts := make([]string, len(rows))
	for i, r := range rows {
		refs[i] = domain.Reference{ID: referenceID(i, r.Content), Content: r.Content, Style: r.Style}
		texts[i] = indexText(refs[i])
	}
	if err := m.embedder.Prepare(texts); err != nil {
		return errors.Wrap(err, "prepare embedder")
	}
	vectors := make([][]float64, len(refs))
	for i := range refs {
		if err := ctx.Err(); err != nil {
			return err
		}
		vec, err := m.embedder.Embed(ctx, texts[i])
		if err != nil {
			return errors.Wrapf(err, "embed row %d", i)
		}
		vectors[i] = vec
	}

	if err := m.store.Clear(); err != nil {
		return errors.Wrap(err, "clear store")
	}
	if err := m.store.Init(len(vectors[0])); err != nil {
		return errors.Wrap(err, "init store")
	}
	if err := m.store.Upsert(refs, vectors); err != nil {
		return errors.Wrap(err, "upsert references")
	}
	if st, ok := m.embedder.(embedding.Stateful); ok {
		ms, ok := m.store.(vectorstore.MetaStore)
		if !ok {
			return errors.Wrapf(ErrEmbedderState, "store cannot hold %s state", m.embedder.Name())
		}
		data, err := st.MarshalState()
		if err != nil {
			return errors.Wrap(err, "encode embedder state")
		}
		if err := ms.PutMeta(embedderMetaKey, data); err != nil {
			return errors.Wrap(err, "store embedder state")
		}
	}
	if err := m.store.Flush(ctx); err != nil {
		return errors.Wrap(err, "persist index")
	}
	m.setRefs(refs)
	m.log.Info(module, "index built", map[string]any{"entries": len(refs), "dimension": len(vectors[0]), "embedder": m.embedder.Name()})
	return nil
}

// indexText is what gets embedded for a reference. The style tag goes in
// alongside the copy so a query naming a style lands on rows carrying it.
func indexText(r domain.Reference) string {
	if r.Style == "" {
		return r.Content
	}
	return r.Style + " " + r.Content
}

func (m *Manager) setRefs(refs []domain.Reference) {
	m.mu.Lock()
	m.refs = refs
	m.mu.Unlock()
}

// Query returns up to k references ordered by similarity to text.
// It makes the index ready first and never modifies it.
func (m *Manager) Query(ctx context.Context, text string, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		return []domain.SearchResult{}, nil
	}
	if err := m.Ensure(ctx); err != nil {
		return nil, err
	}
	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "embed query")
	}
	// Text with no known tokens embeds to zero; rank by word overlap instead.
	if isZero(vec) {
		if refs := m.cachedRefs(); len(refs) > 0 {
			return lexicalSearch(refs, text, k), nil
		}
	}
	res, err := m.store.Search(ctx, vec, k)
	if err != nil {
		return nil, errors.Wrap(err, "search index")
	}
	return res, nil
}

func (m *Manager) cachedRefs() []domain.Reference {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refs
}

func isZero(vec []float64) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

// referenceID is stable for a given row position and content, so rebuilding
// from the same table yields the same IDs.
func referenceID(row int, content string) string {
	h := sha1.Sum([]byte(content))
	return strconv.Itoa(row) + "-" + hex.EncodeToString(h[:8])
}
