package worker

import (
	"errors"
	"fmt"

	"voxelstream.ai/internal/sim/world/terrain/block"
	"voxelstream.ai/internal/sim/world/terrain/gen"
	"voxelstream.ai/internal/sim/world/terrain/ledger"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

// CoordLimit bounds chunk coordinates so world positions stay inside int32
// for hashing.
const CoordLimit = 1 << 20

var (
	ErrInvalidCoordinate = errors.New("worker: invalid chunk coordinate")
	ErrInvalidBiome      = errors.New("worker: invalid biome")
	ErrClosed            = errors.New("worker: closed")
)

// Request is everything a generation needs. It shares no memory with the
// caller: Modifications is a private copy.
type Request struct {
	ID            uint64
	Key           store.ChunkKey
	Biome         block.Biome
	Seed          int64
	Depth         int
	Modifications map[block.Pos]ledger.Record
	LedgerSeq     uint64
}

type Response struct {
	ID        uint64
	Key       store.ChunkKey
	Biome     block.Biome
	Blocks    map[block.Pos]block.Type
	LedgerSeq uint64
	Err       error
}

// Func is a generation function. Generate is the production one.
type Func func(Request) Response

// Generate is the pure generation function: sampler output, then the
// modification overlay.
func Generate(req Request) Response {
	resp := Response{ID: req.ID, Key: req.Key, Biome: req.Biome, LedgerSeq: req.LedgerSeq}
	if req.Key.CX <= -CoordLimit || req.Key.CX >= CoordLimit || req.Key.CZ <= -CoordLimit || req.Key.CZ >= CoordLimit {
		resp.Err = fmt.Errorf("%w: %d,%d", ErrInvalidCoordinate, req.Key.CX, req.Key.CZ)
		return resp
	}
	if !req.Biome.Valid() {
		resp.Err = fmt.Errorf("%w: %v", ErrInvalidBiome, req.Biome)
		return resp
	}
	blocks := gen.Sampler{Seed: req.Seed}.ChunkBlocks(req.Key.CX, req.Key.CZ, req.Biome, req.Depth)
	for p, r := range req.Modifications {
		if !req.Key.Contains(p) {
			resp.Err = fmt.Errorf("worker: modification %+v outside chunk %d,%d", p, req.Key.CX, req.Key.CZ)
			return resp
		}
		if r.Action == ledger.Add && !r.Block.Valid() {
			resp.Err = fmt.Errorf("worker: modification %+v has no block type", p)
			return resp
		}
	}
	ledger.Overlay(blocks, req.Modifications)
	resp.Blocks = blocks
	return resp
}

// Executor runs generation requests. Submit must not block; results arrive
// on Results in completion order.
type Executor interface {
	Submit(Request) error
	Results() <-chan Response
	Close()
}
