package block

import "fmt"

// Biome selects the terrain rules a chunk is generated with.
type Biome uint8

const (
	Forest Biome = iota
	Desert
	Mountains
	Plains
	// Mixed picks one of the concrete biomes per column from noise.
	Mixed
)

var biomeNames = [...]string{
	Forest:    "forest",
	Desert:    "desert",
	Mountains: "mountains",
	Plains:    "plains",
	Mixed:     "mixed",
}

func (b Biome) String() string {
	if int(b) < len(biomeNames) {
		return biomeNames[b]
	}
	return fmt.Sprintf("biome(%d)", uint8(b))
}

func (b Biome) Valid() bool { return int(b) < len(biomeNames) }

func ParseBiome(name string) (Biome, error) {
	for i, n := range biomeNames {
		if n == name {
			return Biome(i), nil
		}
	}
	return Forest, fmt.Errorf("unknown biome %q", name)
}
