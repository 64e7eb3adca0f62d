package memory

import (
	"context"
	"sync"

	"saldo/internal/storage"
)

// Store keeps values in process memory. Contents are lost on restart.
type Store struct {
	mu    sync.Mutex
	items map[string][]byte
}

var _ storage.KeyValueStore = (*Store)(nil)

func New() *Store {
	return &Store{items: make(map[string][]byte)}
}

// Get returns a copy of the stored value.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set overwrites the value under key.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = append([]byte(nil), value...)
	return nil
}
