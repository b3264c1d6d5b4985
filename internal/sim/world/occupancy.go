package world

import (
	"voxelstream.ai/internal/sim/world/logic/mathx"
	"voxelstream.ai/internal/sim/world/terrain/block"
)

// groundScanTop is where GroundLevel starts scanning down.
const groundScanTop = 150

// groundFallback is returned when the column is not resident or has no solid block.
const groundFallback = 20

// IsSolid answers collision queries from resident chunks only. It never
// waits on generation.
func (w *StreamingContext) IsSolid(p Vec3) bool {
	return w.store.IsSolid(p.X, p.Y, p.Z)
}

// BlockAt returns the resident block at p, if any.
func (w *StreamingContext) BlockAt(p block.Pos) (block.Type, bool) {
	return w.store.BlockAt(p)
}

// GroundLevel is the y just above the highest solid resident block in the
// column at (x, z).
func (w *StreamingContext) GroundLevel(x, z float64) float64 {
	bx := mathx.RoundCoord(x)
	bz := mathx.RoundCoord(z)
	for y := groundScanTop; y >= 0; y-- {
		if t, ok := w.store.BlockAt(block.Pos{X: bx, Y: y, Z: bz}); ok && t.Solid() {
			return float64(y + 1)
		}
	}
	return groundFallback
}
