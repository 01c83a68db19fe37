package sharded

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSet_RoundsShards(t *testing.T) {
	testCases := []struct {
		in   int
		want int
	}{
		{0, DefaultShards},
		{-4, DefaultShards},
		{1, 1},
		{3, 4},
		{16, 16},
		{17, 32},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprint(tc.in), func(t *testing.T) {
			assert.Len(t, NewSet(tc.in).shards, tc.want)
		})
	}
}

func TestSet_Operations(t *testing.T) {
	s := NewSet(4)
	assert.False(t, s.Has("a/b"))

	assert.False(t, s.LoadOrStore("a/b"))
	assert.True(t, s.LoadOrStore("a/b"))
	assert.True(t, s.Has("a/b"))

	s.Store("c")
	assert.Equal(t, 2, s.Len())

	s.Reset()
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Has("c"))
}

func TestSet_ConcurrentLoadOrStore(t *testing.T) {
	s := NewSet(8)
	const goroutines = 16
	const keys = 200

	var mu sync.Mutex
	firstStores := 0

	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range keys {
				if !s.LoadOrStore(fmt.Sprintf("dir/%d", i)) {
					mu.Lock()
					firstStores++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, keys, firstStores, "each key must be newly stored exactly once")
	assert.Equal(t, keys, s.Len())
}
