package gen

import (
	"voxelstream.ai/internal/sim/world/terrain/block"
)

// Emit receives one generated block. Later emits for the same position win.
type Emit func(p block.Pos, t block.Type)

const (
	saltDirtPatch uint64 = 0x9fb21c651e98df25
	saltFeature   uint64 = 0x3c6ef372fe94f82b
	saltCactus    uint64 = 0xa54ff53a5f1d36f1
)

// Column emits the surface block of (x, z) and depth-1 blocks below it.
func (s Sampler) Column(x, z int, world block.Biome, depth int, emit Emit) int {
	biome := s.BiomeAt(world, x, z)
	sy := s.SurfaceY(x, z, world)
	if depth < 1 {
		depth = 1
	}
	for y := sy; y > sy-depth && y >= 0; y-- {
		var t block.Type
		switch {
		case y == sy:
			t = s.surface(x, z, sy, biome)
		case y > sy-4:
			t = subsurface(y, biome)
		default:
			t = block.Stone
		}
		emit(block.Pos{X: x, Y: y, Z: z}, t)
	}
	return sy
}

func (s Sampler) surface(x, z, y int, biome block.Biome) block.Type {
	fx, fz := float64(x), float64(z)
	switch biome {
	case block.Desert:
		if y > 9 && s.n(FieldDune, fx, fz, 0.03) > 0.7 {
			return block.SandLight
		}
		sand := s.n(FieldSand, fx, fz, 0.05)
		switch {
		case sand > 0.6:
			return block.SandLight
		case sand < -0.6:
			return block.SandDark
		default:
			return block.Sand
		}
	case block.Mountains:
		switch {
		case y > 55:
			return block.Snow
		case y > 35:
			return block.Stone
		case y > 25:
			return block.Dirt
		default:
			return block.Grass
		}
	case block.Plains:
		rc := s.RiverChannel(x, z)
		switch {
		case rc < 0.05 && y <= 8:
			return block.Water
		case rc < 0.12 && y < 11:
			return block.Dirt
		default:
			return block.Grass
		}
	default:
		if s.chance(saltDirtPatch, x, z) < 0.05 {
			return block.Dirt
		}
		return block.Grass
	}
}

func subsurface(y int, biome block.Biome) block.Type {
	switch biome {
	case block.Desert:
		return block.Sand
	case block.Mountains:
		if y > 35 {
			return block.Stone
		}
		return block.Dirt
	default:
		return block.Dirt
	}
}
