// Package memstore is an in-memory docstore.Store used by tests and local development.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/go-integrations-server/docstore"
)

type record struct {
	data    map[string]any
	updated time.Time
}

// Store is a thread-safe in-memory document store.
type Store struct {
	mu   sync.RWMutex
	docs map[string]record
	now  func() time.Time
}

var _ docstore.Store = (*Store)(nil)

type Option func(*Store)

// WithNowTime overrides the clock used for update times.
func WithNowTime(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		docs: make(map[string]record),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Get(_ context.Context, path string) (*docstore.Document, error) {
	if err := docstore.ValidateDocumentPath(path); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.docs[path]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return toDocument(path, rec)
}

func (s *Store) Set(ctx context.Context, path string, data map[string]any) error {
	return s.Commit(ctx, []docstore.Write{docstore.SetWrite(path, data)})
}

func (s *Store) Merge(ctx context.Context, path string, data map[string]any) error {
	return s.Commit(ctx, []docstore.Write{docstore.MergeWrite(path, data)})
}

func (s *Store) Delete(ctx context.Context, path string) error {
	return s.Commit(ctx, []docstore.Write{docstore.DeleteWrite(path)})
}

func (s *Store) List(_ context.Context, collection string) ([]*docstore.Document, error) {
	if err := docstore.ValidateCollectionPath(collection); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []*docstore.Document
	for path, rec := range s.docs {
		if docstore.Parent(path) != collection {
			continue
		}
		doc, err := toDocument(path, rec)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

// Commit stages every write before touching the map so a failing write leaves no trace.
func (s *Store) Commit(_ context.Context, writes []docstore.Write) error {
	if err := docstore.ValidateBatch(writes); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	staged := make(map[string]*record)
	for _, w := range writes {
		current, seen := staged[w.Path]
		if !seen {
			if rec, ok := s.docs[w.Path]; ok {
				current = &rec
			}
		}
		var existing map[string]any
		if current != nil {
			existing = current.data
		}
		next, err := docstore.Apply(existing, w)
		if err != nil {
			return err
		}
		if next == nil {
			staged[w.Path] = nil
			continue
		}
		staged[w.Path] = &record{data: next, updated: now}
	}

	for path, rec := range staged {
		if rec == nil {
			delete(s.docs, path)
			continue
		}
		s.docs[path] = *rec
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}

// Data values are normalized JSON, so a deep copy through Normalize keeps callers from
// mutating stored state.
func toDocument(path string, rec record) (*docstore.Document, error) {
	data, err := docstore.Normalize(rec.data)
	if err != nil {
		return nil, err
	}
	return &docstore.Document{Path: path, Data: data, UpdateTime: rec.updated}, nil
}
