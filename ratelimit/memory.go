package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps counters in a mutex-guarded map. Suitable for a
// single-instance deployment; use RedisStore when running replicas.
type MemoryStore struct {
	mu     sync.Mutex
	counts map[string]map[int64]int64 // key -> bucket start -> count
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[string]map[int64]int64)}
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration, now time.Time) (int64, int64, error) {
	bucket := bucketStart(now, window)
	prevBucket := prevBucketStart(bucket, window)

	s.mu.Lock()
	defer s.mu.Unlock()

	buckets, ok := s.counts[key]
	if !ok {
		buckets = make(map[int64]int64)
		s.counts[key] = buckets
	}
	buckets[bucket]++

	// drop anything older than the previous bucket for this key
	for b := range buckets {
		if b < prevBucket {
			delete(buckets, b)
		}
	}

	return buckets[bucket], buckets[prevBucket], nil
}

// Prune drops keys whose counters are all outside the window. Called by
// the periodic cleanup worker so idle clients don't accumulate forever.
func (s *MemoryStore) Prune(window time.Duration, now time.Time) {
	prevBucket := prevBucketStart(bucketStart(now, window), window)

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, buckets := range s.counts {
		for b := range buckets {
			if b < prevBucket {
				delete(buckets, b)
			}
		}
		if len(buckets) == 0 {
			delete(s.counts, key)
		}
	}
}
