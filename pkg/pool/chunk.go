// Package pool provides reusable I/O buffers.
//
// sync.Pool caches allocated but unused objects for later reuse, relieving
// pressure on the garbage collector. Items may be dropped at any GC, which
// is fine for short-lived chunk buffers.
package pool

import (
	"fmt"
	"sync"
)

// ChunkSize is the read granularity used for hashing and copying file content.
const ChunkSize = 64 * 1024

// ChunkPool hands out byte slices of one fixed size.
type ChunkPool struct {
	size int
	pool sync.Pool
}

// NewChunkPool creates a pool of size-byte buffers. It panics on a non-positive size.
func NewChunkPool(size int) *ChunkPool {
	if size <= 0 {
		panic(fmt.Sprintf("chunk size %d must be positive", size))
	}
	cp := &ChunkPool{size: size}
	cp.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return cp
}

// Default is the process-wide pool of ChunkSize buffers.
var Default = NewChunkPool(ChunkSize)

// Size returns the length of every buffer handed out by the pool.
func (cp *ChunkPool) Size() int { return cp.size }

// Get returns a full-length buffer.
func (cp *ChunkPool) Get() *[]byte {
	return cp.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool. Buffers of a foreign capacity are dropped.
func (cp *ChunkPool) Put(b *[]byte) {
	if b == nil || cap(*b) != cp.size {
		return
	}
	*b = (*b)[:cp.size]
	cp.pool.Put(b)
}
