package pool

import (
	"testing"
)

func TestChunkPool(t *testing.T) {
	cp := NewChunkPool(1024)

	t.Run("Get returns full length", func(t *testing.T) {
		b := cp.Get()
		if len(*b) != 1024 {
			t.Errorf("expected len 1024, got %d", len(*b))
		}
		cp.Put(b)
	})

	t.Run("Put restores length of a resliced buffer", func(t *testing.T) {
		b := cp.Get()
		*b = (*b)[:10]
		cp.Put(b)
		if len(*b) != 1024 {
			t.Errorf("expected buffer to be restored to 1024, got %d", len(*b))
		}
	})

	t.Run("Put ignores foreign buffers", func(t *testing.T) {
		foreign := make([]byte, 10)
		cp.Put(&foreign) // must not panic or poison the pool
		cp.Put(nil)
		b := cp.Get()
		if len(*b) != 1024 {
			t.Errorf("expected len 1024 after foreign put, got %d", len(*b))
		}
	})

	t.Run("Default pool uses ChunkSize", func(t *testing.T) {
		if Default.Size() != ChunkSize {
			t.Errorf("expected default size %d, got %d", ChunkSize, Default.Size())
		}
	})
}

func TestNewChunkPool_PanicsOnInvalidSize(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for zero chunk size")
		}
	}()
	NewChunkPool(0)
}
