package gen

import (
	"voxelstream.ai/internal/sim/world/logic/mathx"
	"voxelstream.ai/internal/sim/world/terrain/block"
)

// FeatureReach is how far a feature rooted in one column can extend
// horizontally. Chunk generation scans this margin around its footprint.
const FeatureReach = 2

// Features emits the biome features rooted at column (x, z), whose surface is surfaceY.
func (s Sampler) Features(x, z, surfaceY int, world block.Biome, emit Emit) {
	r := s.chance(saltFeature, x, z)
	switch s.BiomeAt(world, x, z) {
	case block.Forest:
		if r < 0.03 && surfaceY > 5 {
			tree(x, z, surfaceY, emit)
		}
	case block.Desert:
		if r < 0.02 && surfaceY > 8 {
			h := 1 + int(s.chance(saltCactus, x, z)*3)
			for i := 1; i <= h; i++ {
				emit(block.Pos{X: x, Y: surfaceY + i, Z: z}, block.Cactus)
			}
		}
	case block.Plains:
		if r < 0.001 && surfaceY > 10 && s.RiverChannel(x, z) >= 0.12 {
			tree(x, z, surfaceY, emit)
		}
	}
}

func tree(x, z, surfaceY int, emit Emit) {
	trunk := 4 + mathx.AbsInt(x*z)%3
	for i := 1; i <= trunk; i++ {
		emit(block.Pos{X: x, Y: surfaceY + i, Z: z}, block.Wood)
	}
	const leafLevels = 3
	for ly := 0; ly <= leafLevels; ly++ {
		radius := FeatureReach
		if ly == 0 || ly == leafLevels {
			radius = 1
		}
		y := surfaceY + trunk + ly
		for lx := -radius; lx <= radius; lx++ {
			for lz := -radius; lz <= radius; lz++ {
				if mathx.AbsInt(lx) == FeatureReach && mathx.AbsInt(lz) == FeatureReach {
					continue
				}
				if lx == 0 && lz == 0 && ly == 0 {
					continue
				}
				emit(block.Pos{X: x + lx, Y: y, Z: z + lz}, block.Leaves)
			}
		}
	}
}
