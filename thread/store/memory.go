// Package store provides thread.Store backends.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/sweetpotato0/travel-router/errors"
	"github.com/sweetpotato0/travel-router/thread"
)

// MemoryStore keeps threads in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*thread.Thread
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{threads: make(map[string]*thread.Thread)}
}

// Save stores a copy of t.
func (s *MemoryStore) Save(_ context.Context, t *thread.Thread) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("%w: thread cannot be nil", errors.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[t.ID] = t.Clone()
	return nil
}

// Load returns a copy of the stored thread.
func (s *MemoryStore) Load(_ context.Context, id string) (*thread.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[id]
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", id, errors.ErrNotFound)
	}
	return t.Clone(), nil
}

// Delete removes a thread.
func (s *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[id]; !ok {
		return false, nil
	}
	delete(s.threads, id)
	return true, nil
}

// List returns all thread ids.
func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.threads))
	for id := range s.threads {
		ids = append(ids, id)
	}
	return ids, nil
}
