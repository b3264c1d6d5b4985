package gen

import (
	"math"

	"voxelstream.ai/internal/sim/world/logic/mathx"
)

// Field names one independent noise layer. Each layer mixes the world seed
// with its own salt so layers are uncorrelated.
type Field uint8

const (
	FieldBase Field = iota
	FieldDetail
	FieldRidge
	FieldPeak
	FieldDune
	FieldRiver
	FieldSand
	FieldBiome
	FieldShape

	numFields
)

var fieldSalts = [numFields]uint64{
	FieldBase:   0x5851f42d4c957f2d,
	FieldDetail: 0x14057b7ef767814f,
	FieldRidge:  0x2545f4914f6cdd1d,
	FieldPeak:   0x9e3779b97f4a7c15,
	FieldDune:   0xd1b54a32d192ed03,
	FieldRiver:  0xaef17502108ef2d9,
	FieldSand:   0x632be59bd9b4e019,
	FieldBiome:  0x8cb92ba72f3d8dd7,
	FieldShape:  0xc2b2ae3d27d4eb4f,
}

// Noise samples 2D gradient noise in [-1, 1]. Lattice gradients come from
// mathx.Hash2, so the value depends only on (seed, field, x, z).
func Noise(seed int64, f Field, x, z float64) float64 {
	fs := seed ^ int64(fieldSalts[f%numFields])

	x0 := math.Floor(x)
	z0 := math.Floor(z)
	fx := x - x0
	fz := z - z0
	ix := int(x0)
	iz := int(z0)

	n00 := grad(fs, ix, iz, fx, fz)
	n10 := grad(fs, ix+1, iz, fx-1, fz)
	n01 := grad(fs, ix, iz+1, fx, fz-1)
	n11 := grad(fs, ix+1, iz+1, fx-1, fz-1)

	u := smooth(fx)
	v := smooth(fz)
	n := lerp(lerp(n00, n10, u), lerp(n01, n11, u), v) * math.Sqrt2
	if n > 1 {
		return 1
	}
	if n < -1 {
		return -1
	}
	return n
}

func grad(seed int64, ix, iz int, dx, dz float64) float64 {
	a := mathx.Unit(mathx.Hash2(seed, ix, iz)) * 2 * math.Pi
	return math.Cos(a)*dx + math.Sin(a)*dz
}

func smooth(t float64) float64 { return t * t * t * (t*(t*6-15) + 10) }

func lerp(a, b, t float64) float64 { return a + (b-a)*t }
