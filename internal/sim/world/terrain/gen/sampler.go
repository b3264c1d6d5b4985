package gen

import (
	"math"

	"voxelstream.ai/internal/sim/world/logic/mathx"
	"voxelstream.ai/internal/sim/world/terrain/block"
)

// Sampler is the seeded terrain function set. The zero value is a valid
// sampler for seed 0; it holds no mutable state.
type Sampler struct {
	Seed int64
}

func (s Sampler) n(f Field, x, z, scale float64) float64 {
	return Noise(s.Seed, f, x*scale, z*scale)
}

// RiverChannel is |river noise|; values under 0.05 are river bed and
// under 0.12 bank.
func (s Sampler) RiverChannel(x, z int) float64 {
	return math.Abs(s.n(FieldRiver, float64(x), float64(z), 0.02))
}

// BiomeAt resolves the column biome for a world biome. Concrete world
// biomes map to themselves; Mixed is picked from low-frequency noise.
func (s Sampler) BiomeAt(world block.Biome, x, z int) block.Biome {
	if world != block.Mixed {
		return world
	}
	b := s.n(FieldBiome, float64(x), float64(z), 0.005)
	switch {
	case b > 0.6:
		return block.Mountains
	case b > 0.2:
		return block.Forest
	case b < -0.5:
		return block.Desert
	default:
		return block.Plains
	}
}

// Height returns the surface height of column (x, z) under the given world biome.
func (s Sampler) Height(x, z int, world block.Biome) float64 {
	fx, fz := float64(x), float64(z)
	switch s.BiomeAt(world, x, z) {
	case block.Desert:
		base := s.n(FieldBase, fx, fz, 0.01)
		detail := s.n(FieldDetail, fx, fz, 0.05)
		dune := math.Pow(math.Abs(s.n(FieldDune, fx, fz, 0.002)), 0.7)
		return 7 + math.Floor(8*(0.8*base+0.2*detail*dune))
	case block.Mountains:
		ridge := math.Pow(math.Abs(s.n(FieldRidge, fx, fz, 0.005)), 0.8)
		peak := math.Pow(math.Abs(s.n(FieldPeak, fx, fz, 0.001)), 0.3)
		detail := 0.6*s.n(FieldDetail, fx, fz, 0.03) + 0.4*s.n(FieldShape, fx, fz, 0.08)
		return 20 + math.Floor(60*ridge*peak*(0.8+0.4*detail))
	case block.Plains:
		rc := s.RiverChannel(x, z)
		if rc < 0.05 {
			return 8
		}
		if rc < 0.12 {
			return 9 + math.Floor(rc*20)
		}
		return 11 + math.Floor(3*(0.8*s.n(FieldBase, fx, fz, 0.01)+0.2*s.n(FieldDetail, fx, fz, 0.04)))
	default:
		return 12 + math.Floor(8*(0.6*s.n(FieldBase, fx, fz, 0.01)+0.4*s.n(FieldDetail, fx, fz, 0.05)))
	}
}

func (s Sampler) SurfaceY(x, z int, world block.Biome) int {
	y := int(math.Floor(s.Height(x, z, world)))
	if y < 0 {
		return 0
	}
	if y >= block.MaxHeight {
		return block.MaxHeight - 1
	}
	return y
}

// chance is the per-coordinate feature random for (x, z) and a salt.
// It does not depend on call order.
func (s Sampler) chance(salt uint64, x, z int) float64 {
	return mathx.Unit(mathx.Hash2(s.Seed^int64(salt), x, z))
}
