package gen

import (
	"testing"

	"voxelstream.ai/internal/sim/world/terrain/block"
)

func TestNoiseDeterministicAndBounded(t *testing.T) {
	for i := 0; i < 500; i++ {
		x := float64(i)*0.37 - 40
		z := float64(i)*1.13 + 7
		a := Noise(42, FieldBase, x, z)
		if a != Noise(42, FieldBase, x, z) {
			t.Fatalf("noise not deterministic at (%v,%v)", x, z)
		}
		if a < -1 || a > 1 {
			t.Fatalf("noise out of range: %v", a)
		}
	}
}

func TestFieldsAreIndependent(t *testing.T) {
	same := 0
	for i := 0; i < 100; i++ {
		x := float64(i) * 0.731
		if Noise(1, FieldBase, x, 0.5) == Noise(1, FieldDetail, x, 0.5) {
			same++
		}
	}
	if same > 10 {
		t.Fatalf("fields look correlated: %d identical samples", same)
	}
}

func TestHeightRanges(t *testing.T) {
	s := Sampler{Seed: 1337}
	for x := -64; x < 64; x += 3 {
		for z := -64; z < 64; z += 5 {
			if h := s.Height(x, z, block.Forest); h < 4 || h > 20 {
				t.Fatalf("forest height %v out of range", h)
			}
			if h := s.Height(x, z, block.Desert); h < -1 || h > 15 {
				t.Fatalf("desert height %v out of range", h)
			}
			if h := s.Height(x, z, block.Plains); h < 8 || h > 14 {
				t.Fatalf("plains height %v out of range", h)
			}
			if h := s.Height(x, z, block.Mountains); h < 20 || h > 92 {
				t.Fatalf("mountains height %v out of range", h)
			}
		}
	}
}

func TestChunkBlocksDeterministic(t *testing.T) {
	s := Sampler{Seed: 99}
	a := s.ChunkBlocks(3, -2, block.Forest, 4)
	b := s.ChunkBlocks(3, -2, block.Forest, 4)
	if len(a) == 0 {
		t.Fatalf("empty chunk")
	}
	if len(a) != len(b) {
		t.Fatalf("len mismatch: %d vs %d", len(a), len(b))
	}
	for p, ty := range a {
		if b[p] != ty {
			t.Fatalf("mismatch at %+v: %v vs %v", p, ty, b[p])
		}
	}
}

func TestChunkBlocksStayInsideFootprint(t *testing.T) {
	s := Sampler{Seed: 5}
	for p := range s.ChunkBlocks(-1, 0, block.Forest, 4) {
		if p.X < -16 || p.X >= 0 || p.Z < 0 || p.Z >= 16 {
			t.Fatalf("block %+v outside chunk (-1,0)", p)
		}
	}
}

func TestColumnDepth(t *testing.T) {
	s := Sampler{Seed: 5}
	n := 0
	sy := s.Column(10, 10, block.Forest, 4, func(p block.Pos, ty block.Type) {
		n++
		if p.Y > 10+20 {
			t.Fatalf("unexpected y %d", p.Y)
		}
	})
	if n != 4 || sy < 3 {
		t.Fatalf("column emitted %d blocks from %d", n, sy)
	}
}

func TestDesertNeverEmitsForestBlocks(t *testing.T) {
	s := Sampler{Seed: 7}
	for cx := -2; cx <= 2; cx++ {
		for cz := -2; cz <= 2; cz++ {
			for p, ty := range s.ChunkBlocks(cx, cz, block.Desert, 4) {
				switch ty {
				case block.Grass, block.Dirt, block.Wood, block.Leaves:
					t.Fatalf("desert chunk emitted %v at %+v", ty, p)
				}
			}
		}
	}
}

func TestMixedBiomeCoversConcreteBiomes(t *testing.T) {
	s := Sampler{Seed: 3}
	seen := map[block.Biome]bool{}
	for x := -4000; x < 4000; x += 37 {
		for z := -4000; z < 4000; z += 41 {
			seen[s.BiomeAt(block.Mixed, x, z)] = true
		}
	}
	if seen[block.Mixed] {
		t.Fatalf("mixed must resolve to a concrete biome")
	}
	if len(seen) < 3 {
		t.Fatalf("expected several biomes, saw %v", seen)
	}
}
