package store

import (
	"context"
	"sync"
)

func init() {
	Register("memory", func(string) (Store, error) {
		return NewMemoryStore(), nil
	})
}

// MemoryStore is a minimal in-memory Store intended for tests, examples, and
// ephemeral cells. It satisfies the full port contract but persists nothing
// across process restarts.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]string{}}
}

func (s *MemoryStore) Init(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Read(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, WrapPersist("read", key, err)
	}
	s.mu.RLock()
	raw, ok := s.records[key]
	s.mu.RUnlock()
	return raw, ok, nil
}

func (s *MemoryStore) Write(ctx context.Context, key, raw string) error {
	if err := ctx.Err(); err != nil {
		return WrapPersist("write", key, err)
	}
	s.mu.Lock()
	s.records[key] = raw
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return WrapPersist("delete", key, err)
	}
	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return WrapPersist("delete_all", "", err)
	}
	s.mu.Lock()
	s.records = map[string]string{}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Len reports the number of stored records. Exposed for tests and metrics.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
