package cache

import (
	"log"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"voxelstream.ai/internal/sim/world/terrain/store"
)

// Entry is a hibernated chunk plus the clock value it was last wanted at.
type Entry struct {
	Chunk        *store.Chunk
	LastAccessed uint64
}

// ChunkCache is the bounded hibernation store. Entries are kept in
// LastAccessed order; eviction always drops the oldest. A capacity of 0
// disables hibernation.
type ChunkCache struct {
	lru      *simplelru.LRU[store.ChunkKey, Entry]
	capacity int
	logger   *log.Logger
}

func New(capacity int, logger *log.Logger) *ChunkCache {
	if capacity < 0 {
		capacity = 0
	}
	l, err := simplelru.NewLRU[store.ChunkKey, Entry](sizeFor(capacity), nil)
	if err != nil {
		// sizeFor never returns a non-positive size.
		panic(err)
	}
	return &ChunkCache{lru: l, capacity: capacity, logger: logger}
}

func sizeFor(capacity int) int {
	if capacity < 1 {
		return 1
	}
	return capacity
}

func (c *ChunkCache) Capacity() int { return c.capacity }

func (c *ChunkCache) Len() int { return c.lru.Len() }

func (c *ChunkCache) Has(k store.ChunkKey) bool { return c.lru.Contains(k) }

// Put hibernates ch, stamping it with now. The oldest entries are evicted
// first when the cache is full and returned so the caller can release them.
// ok is false when the key is already cached or capacity is 0.
func (c *ChunkCache) Put(ch *store.Chunk, now uint64) (evicted []*store.Chunk, ok bool) {
	if ch == nil || c.capacity == 0 {
		return nil, false
	}
	if c.lru.Contains(ch.Key) {
		if c.logger != nil {
			c.logger.Printf("cache: reject hibernate of cached chunk %d,%d", ch.Key.CX, ch.Key.CZ)
		}
		return nil, false
	}
	for c.lru.Len() >= c.capacity {
		_, e, ok := c.lru.RemoveOldest()
		if !ok {
			break
		}
		evicted = append(evicted, e.Chunk)
	}
	ch.LastAccessed = now
	c.lru.Add(ch.Key, Entry{Chunk: ch, LastAccessed: now})
	return evicted, true
}

// Take removes and returns the cached chunk for k.
func (c *ChunkCache) Take(k store.ChunkKey) (*store.Chunk, bool) {
	e, ok := c.lru.Peek(k)
	if !ok {
		return nil, false
	}
	c.lru.Remove(k)
	return e.Chunk, true
}

// Peek returns the entry for k without touching its position.
func (c *ChunkCache) Peek(k store.ChunkKey) (Entry, bool) { return c.lru.Peek(k) }

// Oldest returns the next eviction candidate without removing it.
func (c *ChunkCache) Oldest() (Entry, bool) {
	_, e, ok := c.lru.GetOldest()
	return e, ok
}

// Keys lists cached keys oldest first.
func (c *ChunkCache) Keys() []store.ChunkKey { return c.lru.Keys() }

// SetCapacity resizes the cache at runtime and returns chunks evicted to fit.
func (c *ChunkCache) SetCapacity(n int) []*store.Chunk {
	if n < 0 {
		n = 0
	}
	var evicted []*store.Chunk
	for c.lru.Len() > n {
		_, e, ok := c.lru.RemoveOldest()
		if !ok {
			break
		}
		evicted = append(evicted, e.Chunk)
	}
	c.capacity = n
	c.lru.Resize(sizeFor(n))
	return evicted
}

// Clear empties the cache and returns every chunk it held, oldest first.
func (c *ChunkCache) Clear() []*store.Chunk {
	keys := c.lru.Keys()
	out := make([]*store.Chunk, 0, len(keys))
	for _, k := range keys {
		if e, ok := c.lru.Peek(k); ok {
			out = append(out, e.Chunk)
		}
	}
	c.lru.Purge()
	return out
}
