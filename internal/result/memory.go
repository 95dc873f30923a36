package result

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the default in-process result store
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string]Result
}

// NewMemoryStore creates an in-memory result store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		results: make(map[string]Result),
	}
}

func (s *MemoryStore) Create(_ context.Context, id string) error {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results[id] = Result{
		ID:         id,
		Status:     StatusQueued,
		EnqueuedAt: now,
		UpdatedAt:  now,
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.results, id)
	return nil
}

func (s *MemoryStore) MarkProcessing(_ context.Context, id string) error {
	return s.update(id, func(r *Result) {
		r.Status = StatusProcessing
	})
}

func (s *MemoryStore) MarkDone(_ context.Context, id string, value []byte, attempts int) error {
	return s.update(id, func(r *Result) {
		r.Status = StatusDone
		r.Value = append([]byte(nil), value...)
		r.Attempts = attempts
	})
}

func (s *MemoryStore) MarkFailed(_ context.Context, id string, errMsg string, attempts int) error {
	return s.update(id, func(r *Result) {
		r.Status = StatusFailed
		r.Error = errMsg
		r.Attempts = attempts
	})
}

func (s *MemoryStore) Get(_ context.Context, id string) (Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[id]
	if !ok {
		return Result{}, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of tracked results, used by tests and health checks
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.results)
}

func (s *MemoryStore) update(id string, mutate func(*Result)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.results[id]
	if !ok {
		return ErrNotFound
	}
	mutate(&r)
	r.UpdatedAt = time.Now().UTC()
	s.results[id] = r
	return nil
}
