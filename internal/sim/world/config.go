package world

import (
	"errors"
	"fmt"

	"voxelstream.ai/internal/sim/world/feature/streaming/fade"
	"voxelstream.ai/internal/sim/world/feature/streaming/schedule"
	"voxelstream.ai/internal/sim/world/terrain/block"
)

// PerformanceTier is a named set of view distances and cache bound that can
// be switched at runtime.
type PerformanceTier struct {
	MinRadius     int `yaml:"min_radius"`
	IdealRadius   int `yaml:"ideal_radius"`
	MaxRadius     int `yaml:"max_radius"`
	PreloadRadius int `yaml:"preload_radius"`
	CacheCapacity int `yaml:"cache_capacity"`
}

type Config struct {
	Seed  int64
	Biome block.Biome
	// ColumnDepth is how many blocks each column emits from the surface down.
	ColumnDepth   int
	CacheCapacity int
	// MaxRetries is how often a failed generation is retried before the
	// chunk is abandoned.
	MaxRetries int
	TickRateHz int
	// MaxChunksPerFrame caps full chunk payloads sent to a subscriber per tick.
	MaxChunksPerFrame int

	Schedule schedule.Config
	Fade     fade.Config
	Tiers    map[string]PerformanceTier
}

func DefaultConfig() Config {
	return Config{
		Seed:              1337,
		Biome:             block.Forest,
		ColumnDepth:       4,
		CacheCapacity:     500,
		MaxRetries:        1,
		TickRateHz:        30,
		MaxChunksPerFrame: 4,
		Schedule:          schedule.DefaultConfig(),
		Fade:              fade.DefaultConfig(),
		Tiers: map[string]PerformanceTier{
			"normal":           {MinRadius: 1, IdealRadius: 2, MaxRadius: 3, PreloadRadius: 4, CacheCapacity: 500},
			"high_performance": {MinRadius: 1, IdealRadius: 1, MaxRadius: 2, PreloadRadius: 2, CacheCapacity: 100},
		},
	}
}

func (c Config) Validate() error {
	if !c.Biome.Valid() {
		return fmt.Errorf("world: invalid biome %v", c.Biome)
	}
	if c.ColumnDepth < 1 || c.ColumnDepth > block.MaxHeight {
		return fmt.Errorf("world: column_depth %d out of range", c.ColumnDepth)
	}
	if c.CacheCapacity < 0 {
		return errors.New("world: cache_capacity must be >= 0")
	}
	if c.MaxRetries < 0 {
		return errors.New("world: max_retries must be >= 0")
	}
	if c.TickRateHz <= 0 {
		return errors.New("world: tick_rate_hz must be > 0")
	}
	if err := c.Schedule.Validate(); err != nil {
		return err
	}
	if err := c.Fade.Validate(); err != nil {
		return err
	}
	for name, t := range c.Tiers {
		if err := t.apply(c.Schedule).Validate(); err != nil {
			return fmt.Errorf("world: tier %q: %w", name, err)
		}
		if t.CacheCapacity < 0 {
			return fmt.Errorf("world: tier %q: cache_capacity must be >= 0", name)
		}
	}
	return nil
}

func (t PerformanceTier) apply(s schedule.Config) schedule.Config {
	s.MinRadius = t.MinRadius
	s.IdealRadius = t.IdealRadius
	s.MaxRadius = t.MaxRadius
	s.PreloadRadius = t.PreloadRadius
	if s.BorderRadius < s.MaxRadius {
		s.BorderRadius = s.MaxRadius
	}
	return s
}
