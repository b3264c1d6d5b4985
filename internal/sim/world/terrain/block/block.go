package block

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// ChunkSize is the edge length of a chunk in block columns.
const ChunkSize = 16

// MaxHeight bounds the world vertically; blocks live in [0, MaxHeight).
const MaxHeight = 256

var ErrUnknownType = errors.New("unknown block type")

// Type is a closed set of materials. Air is the zero value and is never stored.
type Type uint8

const (
	Air Type = iota
	Grass
	Dirt
	Stone
	Sand
	SandLight
	SandDark
	SandGold
	SandRed
	Wood
	Snow
	Water
	Cactus
	Leaves
	CraftingTable

	numTypes
)

// Props are the material properties a presentation layer needs.
type Props struct {
	Name        string
	Color       uint32
	Solid       bool
	Translucent bool
	Opacity     float64
	Placeable   bool
}

var props = [numTypes]Props{
	Air:           {Name: "air", Opacity: 0},
	Grass:         {Name: "grass", Color: 0x3a9d23, Solid: true, Opacity: 1, Placeable: true},
	Dirt:          {Name: "dirt", Color: 0x8b4513, Solid: true, Opacity: 1, Placeable: true},
	Stone:         {Name: "stone", Color: 0x808080, Solid: true, Opacity: 1, Placeable: true},
	Sand:          {Name: "sand", Color: 0xe6c88c, Solid: true, Opacity: 1, Placeable: true},
	SandLight:     {Name: "sand_light", Color: 0xf0dca0, Solid: true, Opacity: 1, Placeable: true},
	SandDark:      {Name: "sand_dark", Color: 0xc8aa6e, Solid: true, Opacity: 1, Placeable: true},
	SandGold:      {Name: "sand_gold", Color: 0xdcb450, Solid: true, Opacity: 1, Placeable: true},
	SandRed:       {Name: "sand_red", Color: 0xc88c64, Solid: true, Opacity: 1, Placeable: true},
	Wood:          {Name: "wood", Color: 0x8b5a2b, Solid: true, Opacity: 1, Placeable: true},
	Snow:          {Name: "snow", Color: 0xfffafa, Solid: true, Opacity: 1, Placeable: true},
	Water:         {Name: "water", Color: 0x1e90ff, Solid: false, Translucent: true, Opacity: 0.8},
	Cactus:        {Name: "cactus", Color: 0x2e8b57, Solid: true, Opacity: 1, Placeable: true},
	Leaves:        {Name: "leaves", Color: 0x228b22, Solid: true, Translucent: true, Opacity: 0.7, Placeable: true},
	CraftingTable: {Name: "crafting_table", Color: 0xa0522d, Solid: true, Opacity: 1, Placeable: true},
}

var byName = func() map[string]Type {
	m := make(map[string]Type, numTypes)
	for i := Type(1); i < numTypes; i++ {
		m[props[i].Name] = i
	}
	return m
}()

func (t Type) Valid() bool { return t > Air && t < numTypes }

func (t Type) Props() Props {
	if t >= numTypes {
		return props[Air]
	}
	return props[t]
}

func (t Type) String() string {
	if t >= numTypes {
		return fmt.Sprintf("block(%d)", uint8(t))
	}
	return props[t].Name
}

func (t Type) Solid() bool { return t.Props().Solid }

// Parse maps a wire name onto a Type. Unknown names are an error, never a default.
func Parse(name string) (Type, error) {
	t, ok := byName[name]
	if !ok {
		return Air, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return t, nil
}

// All returns every non-air type in enum order.
func All() []Type {
	out := make([]Type, 0, numTypes-1)
	for i := Type(1); i < numTypes; i++ {
		out = append(out, i)
	}
	return out
}

// PaletteDigest hashes the ordered palette so clients can detect a mismatch.
func PaletteDigest() string {
	h := sha256.New()
	for _, t := range All() {
		p := t.Props()
		fmt.Fprintf(h, "%d:%s:%06x:%t:%t:%.2f\n", t, p.Name, p.Color, p.Solid, p.Translucent, p.Opacity)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Pos is an integer world block coordinate.
type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (p Pos) Less(o Pos) bool {
	if p.Y != o.Y {
		return p.Y < o.Y
	}
	if p.X != o.X {
		return p.X < o.X
	}
	return p.Z < o.Z
}

func (p Pos) InBounds() bool { return p.Y >= 0 && p.Y < MaxHeight }
