package storage

import (
	"context"
	"sync"
)

// MemoryScope is the per-run scope: values live for the lifetime of the
// process, like tab-scoped session storage. Safe for concurrent use.
type MemoryScope struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewMemoryScope() *MemoryScope {
	return &MemoryScope{m: make(map[string]string)}
}

func (s *MemoryScope) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m[key], nil
}

func (s *MemoryScope) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *MemoryScope) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func (s *MemoryScope) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = make(map[string]string)
	return nil
}
