package cache

import (
	"context"
	"sync"
	"time"

	"github.com/femi-ajayi/transfer-extractor/internal/common"
)

// Store is the persistent key-value contract behind the extraction cache.
// Implementations hold opaque JSON blobs; expiry bookkeeping lives in the
// cache layer, with the ttl passed through so stores that support native
// expiry (Redis, SQL) can use it as a backstop.
type Store interface {
	// Get returns the blob for key, or common.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores the blob under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns every stored key with its blob.
	List(ctx context.Context) (map[string][]byte, error)
	Close() error
}

// MemoryStore is the default in-process store: a mutex-guarded map.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte, _ time.Duration) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	s.mu.Lock()
	s.data[key] = cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(_ context.Context) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte, len(s.data))
	for k, v := range s.data {
		cp := make([]byte, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
