package cache

import (
	"testing"

	"voxelstream.ai/internal/sim/world/terrain/block"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

func chunk(cx, cz int) *store.Chunk {
	return store.NewChunk(store.ChunkKey{CX: cx, CZ: cz}, block.Forest, nil)
}

func TestEvictsOldestLastAccessed(t *testing.T) {
	c := New(3, nil)
	for i := 0; i < 3; i++ {
		if _, ok := c.Put(chunk(i, 0), uint64(10+i)); !ok {
			t.Fatalf("put %d failed", i)
		}
	}
	evicted, ok := c.Put(chunk(9, 9), 20)
	if !ok || len(evicted) != 1 || evicted[0].Key != (store.ChunkKey{CX: 0}) {
		t.Fatalf("expected eviction of oldest chunk, got %+v ok=%v", evicted, ok)
	}
	if c.Len() != 3 {
		t.Fatalf("len=%d want 3", c.Len())
	}
	if e, _ := c.Oldest(); e.LastAccessed != 11 {
		t.Fatalf("oldest lastAccessed=%d want 11", e.LastAccessed)
	}
}

func TestBoundHoldsUnderChurn(t *testing.T) {
	c := New(5, nil)
	for i := 0; i < 100; i++ {
		c.Put(chunk(i, -i), uint64(i))
		if i%7 == 0 {
			c.Take(store.ChunkKey{CX: i - 1, CZ: -(i - 1)})
		}
		if c.Len() > c.Capacity() {
			t.Fatalf("len %d exceeds capacity %d", c.Len(), c.Capacity())
		}
	}
}

func TestTakeRemoves(t *testing.T) {
	c := New(2, nil)
	ch := chunk(1, 1)
	c.Put(ch, 1)
	got, ok := c.Take(ch.Key)
	if !ok || got != ch {
		t.Fatalf("take returned %v,%v", got, ok)
	}
	if c.Has(ch.Key) || c.Len() != 0 {
		t.Fatalf("chunk still cached after take")
	}
	if _, ok := c.Take(ch.Key); ok {
		t.Fatalf("second take succeeded")
	}
}

func TestRejectsDuplicateAndZeroCapacity(t *testing.T) {
	c := New(2, nil)
	c.Put(chunk(0, 0), 1)
	if _, ok := c.Put(chunk(0, 0), 2); ok {
		t.Fatalf("duplicate hibernate accepted")
	}
	z := New(0, nil)
	if _, ok := z.Put(chunk(0, 0), 1); ok || z.Len() != 0 {
		t.Fatalf("zero-capacity cache accepted a chunk")
	}
}

func TestSetCapacityShrinksOldestFirst(t *testing.T) {
	c := New(4, nil)
	for i := 0; i < 4; i++ {
		c.Put(chunk(i, 0), uint64(i))
	}
	evicted := c.SetCapacity(2)
	if len(evicted) != 2 || evicted[0].Key.CX != 0 || evicted[1].Key.CX != 1 {
		t.Fatalf("unexpected evictions %+v", evicted)
	}
	if c.Len() != 2 || c.Capacity() != 2 {
		t.Fatalf("len=%d cap=%d", c.Len(), c.Capacity())
	}
	if ev := c.SetCapacity(0); len(ev) != 2 || c.Len() != 0 {
		t.Fatalf("capacity 0 left %d entries", c.Len())
	}
	c.SetCapacity(3)
	if _, ok := c.Put(chunk(7, 7), 9); !ok {
		t.Fatalf("put after growing failed")
	}
}

func TestClear(t *testing.T) {
	c := New(3, nil)
	c.Put(chunk(0, 0), 1)
	c.Put(chunk(1, 0), 2)
	if out := c.Clear(); len(out) != 2 || c.Len() != 0 {
		t.Fatalf("clear returned %d, len=%d", len(out), c.Len())
	}
}
