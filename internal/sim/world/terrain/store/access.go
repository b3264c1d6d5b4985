package store

import (
	"log"

	"voxelstream.ai/internal/sim/world/logic/mathx"
	"voxelstream.ai/internal/sim/world/terrain/block"
)

// ChunkStore owns the resident chunks. It is not safe for concurrent use;
// the streaming context mutates it from one goroutine.
type ChunkStore struct {
	chunks map[ChunkKey]*Chunk
	logger *log.Logger
}

func NewChunkStore(logger *log.Logger) *ChunkStore {
	return &ChunkStore{chunks: map[ChunkKey]*Chunk{}, logger: logger}
}

func (s *ChunkStore) Get(k ChunkKey) (*Chunk, bool) {
	ch, ok := s.chunks[k]
	return ch, ok
}

func (s *ChunkStore) Has(k ChunkKey) bool {
	_, ok := s.chunks[k]
	return ok
}

// Put registers a chunk. A key that is already resident is left untouched
// and the call reports false.
func (s *ChunkStore) Put(ch *Chunk) bool {
	if ch == nil {
		return false
	}
	if _, ok := s.chunks[ch.Key]; ok {
		if s.logger != nil {
			s.logger.Printf("store: reject put of resident chunk %d,%d", ch.Key.CX, ch.Key.CZ)
		}
		return false
	}
	s.chunks[ch.Key] = ch
	return true
}

func (s *ChunkStore) Remove(k ChunkKey) (*Chunk, bool) {
	ch, ok := s.chunks[k]
	if ok {
		delete(s.chunks, k)
	}
	return ch, ok
}

func (s *ChunkStore) Len() int { return len(s.chunks) }

// Keys returns resident keys sorted by CX then CZ.
func (s *ChunkStore) Keys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(s.chunks))
	for k := range s.chunks {
		keys = append(keys, k)
	}
	SortKeys(keys)
	return keys
}

// Clear drops every chunk and returns them in key order.
func (s *ChunkStore) Clear() []*Chunk {
	out := make([]*Chunk, 0, len(s.chunks))
	for _, k := range s.Keys() {
		out = append(out, s.chunks[k])
	}
	s.chunks = map[ChunkKey]*Chunk{}
	return out
}

// BlockAt looks up the owning chunk and then its sparse block map.
func (s *ChunkStore) BlockAt(p block.Pos) (block.Type, bool) {
	ch, ok := s.chunks[KeyOf(p)]
	if !ok {
		return block.Air, false
	}
	return ch.Get(p)
}

// IsSolid answers collision queries for a continuous position.
// Horizontal coordinates round to the nearest column, y floors.
func (s *ChunkStore) IsSolid(x, y, z float64) bool {
	p := block.Pos{X: mathx.RoundCoord(x), Y: mathx.FloorCoord(y), Z: mathx.RoundCoord(z)}
	t, ok := s.BlockAt(p)
	return ok && t.Solid()
}
