// Package credential holds the bearer token used by the request pipeline.
package credential

import (
	"errors"
	"sync"
)

// ErrNoToken is returned by callers that require a stored token.
var ErrNoToken = errors.New("no credential token stored")

// Store is a single-slot token store. Implementations must be safe for
// concurrent use, and a Set or Clear must be visible to every later Get.
type Store interface {
	Get() (string, bool)
	Set(token string) error
	Clear() error
}

// MemoryStore keeps the token in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryStore returns a store seeded with token, which may be empty.
func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

// Get ...
func (s *MemoryStore) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// Set ...
func (s *MemoryStore) Set(token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// Clear ...
func (s *MemoryStore) Clear() error {
	return s.Set("")
}
