package store

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"voxelstream.ai/internal/sim/world/feature/streaming/fade"
	"voxelstream.ai/internal/sim/world/logic/mathx"
	"voxelstream.ai/internal/sim/world/terrain/block"
)

type ChunkKey struct {
	CX int `json:"cx"`
	CZ int `json:"cz"`
}

func KeyOf(p block.Pos) ChunkKey {
	return ChunkKey{CX: mathx.FloorDiv(p.X, block.ChunkSize), CZ: mathx.FloorDiv(p.Z, block.ChunkSize)}
}

func (k ChunkKey) Less(o ChunkKey) bool {
	if k.CX != o.CX {
		return k.CX < o.CX
	}
	return k.CZ < o.CZ
}

// Contains reports whether world position p lies in the chunk's footprint.
func (k ChunkKey) Contains(p block.Pos) bool { return KeyOf(p) == k }

func SortKeys(keys []ChunkKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}

// Chunk is the pure data entity for one column of the world. It never holds
// presentation handles.
type Chunk struct {
	Key    ChunkKey
	Biome  block.Biome
	Blocks map[block.Pos]block.Type

	Fade fade.Fade
	// LastAccessed is the logical clock of the last tick that wanted this chunk.
	LastAccessed uint64
	// Dirty marks a chunk whose blocks must be regenerated from the ledger.
	Dirty bool
	// LedgerSeq is the ledger sequence the blocks reflect.
	LedgerSeq uint64
	// Revision increments on every block change so exporters can diff.
	Revision uint64

	hashRev uint64
	hashOK  bool
	hash    [32]byte
}

func NewChunk(key ChunkKey, biome block.Biome, blocks map[block.Pos]block.Type) *Chunk {
	if blocks == nil {
		blocks = map[block.Pos]block.Type{}
	}
	return &Chunk{Key: key, Biome: biome, Blocks: blocks, Revision: 1}
}

func (c *Chunk) Get(p block.Pos) (block.Type, bool) {
	t, ok := c.Blocks[p]
	return t, ok
}

// Set writes a block; air deletes. It reports whether anything changed.
func (c *Chunk) Set(p block.Pos, t block.Type) bool {
	old, had := c.Blocks[p]
	if t == block.Air {
		if !had {
			return false
		}
		delete(c.Blocks, p)
		c.Revision++
		return true
	}
	if had && old == t {
		return false
	}
	c.Blocks[p] = t
	c.Revision++
	return true
}

// Replace swaps the whole block map, as a regeneration does.
func (c *Chunk) Replace(blocks map[block.Pos]block.Type, ledgerSeq uint64) {
	c.Blocks = blocks
	c.LedgerSeq = ledgerSeq
	c.Revision++
}

// Batches groups block positions by type, each list sorted by (Y, X, Z).
func (c *Chunk) Batches() map[block.Type][]block.Pos {
	out := map[block.Type][]block.Pos{}
	for p, t := range c.Blocks {
		out[t] = append(out[t], p)
	}
	for _, ps := range out {
		sort.Slice(ps, func(i, j int) bool { return ps[i].Less(ps[j]) })
	}
	return out
}

func (c *Chunk) Digest() [32]byte {
	if !c.hashOK || c.hashRev != c.Revision {
		ps := make([]block.Pos, 0, len(c.Blocks))
		for p := range c.Blocks {
			ps = append(ps, p)
		}
		sort.Slice(ps, func(i, j int) bool { return ps[i].Less(ps[j]) })
		h := sha256.New()
		var tmp [13]byte
		for _, p := range ps {
			binary.LittleEndian.PutUint32(tmp[0:], uint32(int32(p.X)))
			binary.LittleEndian.PutUint32(tmp[4:], uint32(int32(p.Y)))
			binary.LittleEndian.PutUint32(tmp[8:], uint32(int32(p.Z)))
			tmp[12] = byte(c.Blocks[p])
			h.Write(tmp[:])
		}
		copy(c.hash[:], h.Sum(nil))
		c.hashRev = c.Revision
		c.hashOK = true
	}
	return c.hash
}
