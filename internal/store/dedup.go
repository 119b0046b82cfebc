// Package store provides the seen-id set used to de-duplicate recommendation candidates.
package store

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// SeenSet is a bounded, thread-safe set of video ids.
// The bloom filter short-circuits misses; membership is confirmed against the exact map,
// so Has never reports false positives. When the capacity is exceeded the least recently
// added id is forgotten.
type SeenSet struct {
	ids   map[string]struct{}
	bloom *bloom.BloomFilter
	order *lru.Cache[string, struct{}]
	mutex sync.RWMutex
}

// NewSeenSet creates a set holding up to capacity ids.
func NewSeenSet(capacity int, falsePositiveRate float64) *SeenSet {
	if capacity <= 0 {
		capacity = 1
	}
	s := &SeenSet{
		ids:   make(map[string]struct{}),
		bloom: bloom.NewWithEstimates(uint(capacity), falsePositiveRate),
	}
	// The eviction callback runs inside order.Add, with s.mutex already held.
	s.order, _ = lru.NewWithEvict[string, struct{}](capacity, func(id string, _ struct{}) {
		delete(s.ids, id)
	})
	return s
}

// Has reports whether id was added and not yet evicted.
func (s *SeenSet) Has(id string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.bloom.TestString(id) {
		return false
	}

	_, exists := s.ids[id]
	return exists
}

// Add inserts id and reports whether it was new.
func (s *SeenSet) Add(id string) bool {
	if id == "" {
		return false
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.ids[id]; exists {
		return false
	}

	s.ids[id] = struct{}{}
	s.bloom.AddString(id)
	s.order.Add(id, struct{}{})
	return true
}

// AddAll inserts every non-empty id.
func (s *SeenSet) AddAll(ids []string) {
	for _, id := range ids {
		s.Add(id)
	}
}

// Size returns the number of ids currently held.
func (s *SeenSet) Size() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.ids)
}
