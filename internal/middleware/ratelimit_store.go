package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/lombeo/sep490-backend-sub003/internal/cache"
)

// RateStore coordinates rate limiting counters for a specific key.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

// MemoryRateStore provides process-local rate limiting. Expired counters are
// dropped lazily whenever the store grows past its last sweep size.
type MemoryRateStore struct {
	mu        sync.Mutex
	data      map[string]memoryCounter
	sweepSize int
	clock     func() time.Time
}

type memoryCounter struct {
	count     int
	windowEnd time.Time
}

// NewMemoryRateStore constructs an in-memory rate store. A nil clock uses time.Now.
func NewMemoryRateStore(clock func() time.Time) *MemoryRateStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryRateStore{
		data:      make(map[string]memoryCounter),
		sweepSize: 1024,
		clock:     clock,
	}
}

func (s *MemoryRateStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}

	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.data) >= s.sweepSize {
		for k, counter := range s.data {
			if !now.Before(counter.windowEnd) {
				delete(s.data, k)
			}
		}
		s.sweepSize = max(1024, 2*len(s.data))
	}

	counter, ok := s.data[key]
	if !ok || !now.Before(counter.windowEnd) {
		counter = memoryCounter{windowEnd: now.Add(window)}
	}
	counter.count++
	s.data[key] = counter

	return counter.count, counter.windowEnd.Sub(now), nil
}

// storeRateStore shares counters across instances through a cache.Store.
type storeRateStore struct {
	store cache.Store
}

// NewCacheRateStore builds a RateStore on top of the Redis or database cache.
func NewCacheRateStore(store cache.Store) RateStore {
	if store == nil {
		return nil
	}
	return &storeRateStore{store: store}
}

func (s *storeRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	count, ttl, err := s.store.IncrementWithTTL(ctx, key, window)
	return int(count), ttl, err
}
