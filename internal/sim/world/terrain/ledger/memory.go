package ledger

import (
	"sync"

	"voxelstream.ai/internal/sim/world/terrain/block"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

type chunkRecords struct {
	byPos  map[block.Pos]Record
	latest uint64
}

// Memory is an in-process Backend guarded by a RWMutex.
type Memory struct {
	mu     sync.RWMutex
	chunks map[store.ChunkKey]*chunkRecords
	n      int
}

func NewMemory() *Memory {
	return &Memory{chunks: map[store.ChunkKey]*chunkRecords{}}
}

func (m *Memory) Put(key store.ChunkKey, r Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cr := m.chunks[key]
	if cr == nil {
		cr = &chunkRecords{byPos: map[block.Pos]Record{}}
		m.chunks[key] = cr
	}
	if _, ok := cr.byPos[r.Pos]; !ok {
		m.n++
	}
	cr.byPos[r.Pos] = r
	if r.Seq > cr.latest {
		cr.latest = r.Seq
	}
}

func (m *Memory) Records(key store.ChunkKey) map[block.Pos]Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cr := m.chunks[key]
	if cr == nil {
		return nil
	}
	out := make(map[block.Pos]Record, len(cr.byPos))
	for p, r := range cr.byPos {
		out[p] = r
	}
	return out
}

func (m *Memory) LatestSeq(key store.ChunkKey) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if cr := m.chunks[key]; cr != nil {
		return cr.latest
	}
	return 0
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.n
}

func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = map[store.ChunkKey]*chunkRecords{}
	m.n = 0
}
