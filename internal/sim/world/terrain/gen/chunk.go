package gen

import (
	"voxelstream.ai/internal/sim/world/logic/mathx"
	"voxelstream.ai/internal/sim/world/terrain/block"
)

// ChunkBlocks generates the natural blocks of chunk (cx, cz). Features
// rooted in neighbouring columns within FeatureReach are included where
// they cross into this chunk, so every block belongs to exactly one chunk.
func (s Sampler) ChunkBlocks(cx, cz int, world block.Biome, depth int) map[block.Pos]block.Type {
	x0 := cx * block.ChunkSize
	z0 := cz * block.ChunkSize
	out := make(map[block.Pos]block.Type, block.ChunkSize*block.ChunkSize*depth)
	inside := func(p block.Pos) bool {
		return mathx.FloorDiv(p.X, block.ChunkSize) == cx && mathx.FloorDiv(p.Z, block.ChunkSize) == cz && p.InBounds()
	}
	put := func(p block.Pos, t block.Type) {
		if inside(p) {
			out[p] = t
		}
	}

	for x := x0; x < x0+block.ChunkSize; x++ {
		for z := z0; z < z0+block.ChunkSize; z++ {
			s.Column(x, z, world, depth, put)
		}
	}
	for x := x0 - FeatureReach; x < x0+block.ChunkSize+FeatureReach; x++ {
		for z := z0 - FeatureReach; z < z0+block.ChunkSize+FeatureReach; z++ {
			s.Features(x, z, s.SurfaceY(x, z, world), world, put)
		}
	}
	return out
}
