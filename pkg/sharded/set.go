// Package sharded provides a string set that many goroutines can update
// without contending on a single mutex.
package sharded

import (
	"hash/fnv"
	"sync"
)

// DefaultShards is used by NewSet when a non-positive count is given.
const DefaultShards = 32

type shard struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

// Set is a concurrent set of strings, split across a power-of-two number of shards.
type Set struct {
	shards []*shard
	mask   uint32
}

// NewSet returns an empty set. n is rounded up to the next power of two.
func NewSet(n int) *Set {
	if n <= 0 {
		n = DefaultShards
	}
	size := 1
	for size < n {
		size <<= 1
	}
	s := &Set{shards: make([]*shard, size), mask: uint32(size - 1)}
	for i := range s.shards {
		s.shards[i] = &shard{items: make(map[string]struct{})}
	}
	return s
}

func (s *Set) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()&s.mask]
}

// Has reports whether key is in the set.
func (s *Set) Has(key string) bool {
	sh := s.shardFor(key)
	sh.mu.RLock()
	_, ok := sh.items[key]
	sh.mu.RUnlock()
	return ok
}

// Store adds key.
func (s *Set) Store(key string) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	sh.items[key] = struct{}{}
	sh.mu.Unlock()
}

// LoadOrStore adds key and reports whether it was already present.
func (s *Set) LoadOrStore(key string) (loaded bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	_, loaded = sh.items[key]
	if !loaded {
		sh.items[key] = struct{}{}
	}
	sh.mu.Unlock()
	return loaded
}

// Len returns the number of keys. Concurrent writers may make it stale immediately.
func (s *Set) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.items)
		sh.mu.RUnlock()
	}
	return n
}

// Reset removes every key.
func (s *Set) Reset() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		clear(sh.items)
		sh.mu.Unlock()
	}
}
