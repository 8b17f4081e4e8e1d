// Package memory provides an in-memory Store for tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/BD4L/breachwatch/internal/pipeline"
)

// Store keeps persisted records in a map keyed by storage key.
type Store struct {
	mu     sync.RWMutex
	byKey  map[string]*pipeline.PersistedRecord
	byID   map[int64]*pipeline.PersistedRecord
	nextID int64
}

// New builds an empty Store.
func New() *Store {
	return &Store{
		byKey: make(map[string]*pipeline.PersistedRecord),
		byID:  make(map[int64]*pipeline.PersistedRecord),
	}
}

// FindByKey implements pipeline.Store.
func (s *Store) FindByKey(_ context.Context, key string) (*pipeline.PersistedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byKey[key]
	if !ok {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

// Insert implements pipeline.Store.
func (s *Store) Insert(_ context.Context, rec pipeline.PersistedRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = s.nextID
	stored := rec
	s.byKey[rec.Key] = &stored
	s.byID[rec.ID] = &stored
	return rec.ID, nil
}

// Update implements pipeline.Store.
func (s *Store) Update(_ context.Context, id int64, rec pipeline.PersistedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = id
	stored := rec
	s.byID[id] = &stored
	s.byKey[rec.Key] = &stored
	return nil
}

// Len reports how many records are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey)
}

// All returns a copy of every stored record, for test assertions.
func (s *Store) All() []pipeline.PersistedRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]pipeline.PersistedRecord, 0, len(s.byKey))
	for _, rec := range s.byKey {
		out = append(out, *rec)
	}
	return out
}
