package memory

import (
	"context"
	"sync"
	"time"

	"github.com/wolfeidau/disciplinary/internal/store"
)

var _ store.Store = (*DocumentStore)(nil)

type docKey struct {
	path string
	id   string
}

// DocumentStore implements store.Store using in-memory storage.
// This implementation is for testing and local tooling - data is lost on restart.
type DocumentStore struct {
	mu sync.RWMutex

	collections map[string]map[string]*store.Document // path -> id -> document
	now         func() time.Time
}

// Option configures a DocumentStore.
type Option func(*DocumentStore)

// WithClock sets the clock used for create and update timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *DocumentStore) { s.now = now }
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore(opts ...Option) *DocumentStore {
	s := &DocumentStore{
		collections: make(map[string]map[string]*store.Document),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get retrieves a document by path and ID.
func (s *DocumentStore) Get(ctx context.Context, path, id string) (*store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[path][id]
	if !ok {
		return nil, store.NotFoundf("%s/%s", path, id)
	}

	// Clone to avoid external modifications
	return doc.Clone(), nil
}

// Query evaluates q against a single collection.
func (s *DocumentStore) Query(ctx context.Context, path string, q store.Query) ([]*store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	candidates := make([]*store.Document, 0, len(s.collections[path]))
	for _, doc := range s.collections[path] {
		candidates = append(candidates, doc)
	}
	result := cloneAll(store.Apply(candidates, q))
	s.mu.RUnlock()

	return result, nil
}

// QueryGroup evaluates q across every collection with the given final path segment.
func (s *DocumentStore) QueryGroup(ctx context.Context, collectionID string, q store.Query) ([]*store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var candidates []*store.Document
	for path, docs := range s.collections {
		if store.CollectionID(path) != collectionID {
			continue
		}
		for _, doc := range docs {
			candidates = append(candidates, doc)
		}
	}
	result := cloneAll(store.Apply(candidates, q))
	s.mu.RUnlock()

	return result, nil
}

// Commit applies writes atomically. Every write is validated against a staged
// view of the collection before anything is applied.
func (s *DocumentStore) Commit(ctx context.Context, writes []store.Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.ValidateWrites(writes); err != nil {
		return err
	}

	normalized := make([]store.Write, len(writes))
	for i, w := range writes {
		fields, err := store.Normalize(w.Fields)
		if err != nil {
			return err
		}
		w.Fields = fields
		normalized[i] = w
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC().Truncate(store.TimePrecision)
	staged := make(map[docKey]*store.Document)
	lookup := func(k docKey) *store.Document {
		if doc, ok := staged[k]; ok {
			return doc
		}
		return s.collections[k.path][k.id]
	}

	for _, w := range normalized {
		k := docKey{path: w.Path, id: w.ID}
		next, err := store.ApplyWrite(lookup(k), w, now)
		if err != nil {
			return err
		}
		staged[k] = next
	}

	for k, doc := range staged {
		if doc == nil {
			delete(s.collections[k.path], k.id)
			if len(s.collections[k.path]) == 0 {
				delete(s.collections, k.path)
			}
			continue
		}
		docs, ok := s.collections[k.path]
		if !ok {
			docs = make(map[string]*store.Document)
			s.collections[k.path] = docs
		}
		docs[k.id] = doc
	}

	return nil
}

// Close is a no-op for the in-memory store.
func (s *DocumentStore) Close() error {
	return nil
}

// Len returns the number of documents in a collection.
func (s *DocumentStore) Len(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[path])
}

func cloneAll(docs []*store.Document) []*store.Document {
	out := make([]*store.Document, len(docs))
	for i, d := range docs {
		out[i] = d.Clone()
	}
	return out
}
