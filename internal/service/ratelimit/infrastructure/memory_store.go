package infrastructure

import (
	"context"
	"sync"
	"time"

	"storefront/internal/service/ratelimit/domain"
)

// MemoryCounterStore 是单进程的计数器实现
type MemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]*domain.Counter
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{counters: make(map[string]*domain.Counter)}
}

func (s *MemoryCounterStore) Consume(_ context.Context, key string, now time.Time, cost int, p domain.Policy) (domain.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.counters[key]
	if !exists {
		c = &domain.Counter{Key: key}
	}
	d, write := domain.Apply(c, exists, now, cost, p)
	if write {
		s.counters[key] = c
	}
	return d, nil
}

func (s *MemoryCounterStore) Purge(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, c := range s.counters {
		if c.CreatedAt.Before(before) {
			delete(s.counters, k)
			n++
		}
	}
	return n, nil
}
