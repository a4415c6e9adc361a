package session

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps sessions in process. Used for development and tests.
type MemoryStore struct {
	items    *cache.Cache
	counters *cache.Cache
	mu       sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:    cache.New(cache.NoExpiration, 10*time.Minute),
		counters: cache.New(cache.NoExpiration, 10*time.Minute),
	}
}

func (s *MemoryStore) Load(_ context.Context, id string) (Data, error) {
	v, ok := s.items.Get(id)
	if !ok {
		return Data{}, ErrNotFound
	}
	return v.(Data), nil
}

func (s *MemoryStore) Save(_ context.Context, id string, data Data, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		s.items.Delete(id)
		return nil
	}
	s.items.Set(id, data, ttl)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.items.Delete(id)
	return nil
}

// DeleteExpired drops expired items. now is ignored; go-cache tracks expiry
// against the wall clock.
func (s *MemoryStore) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	before := s.items.ItemCount()
	s.items.DeleteExpired()
	s.counters.DeleteExpired()
	return int64(before - s.items.ItemCount()), nil
}

func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.counters.Get(key); !ok {
		s.counters.Set(key, 0, ttl)
	}
	return s.counters.IncrementInt(key, 1)
}
