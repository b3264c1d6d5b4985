package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"voxelstream.ai/internal/sim/world"
	"voxelstream.ai/internal/sim/world/feature/streaming/fade"
	"voxelstream.ai/internal/sim/world/feature/streaming/schedule"
	"voxelstream.ai/internal/sim/world/terrain/block"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	Seed              int64  `yaml:"seed"`
	Biome             string `yaml:"biome"`
	ColumnDepth       int    `yaml:"column_depth"`
	CacheCapacity     int    `yaml:"cache_capacity"`
	MaxRetries        int    `yaml:"max_retries"`
	TickRateHz        int    `yaml:"tick_rate_hz"`
	MaxChunksPerFrame int    `yaml:"max_chunks_per_frame"`
	// Tier, when set, is applied on top of the streaming radii at startup.
	Tier string `yaml:"tier"`

	Streaming schedule.Config                  `yaml:"streaming"`
	Fade      fade.Config                      `yaml:"fade"`
	Tiers     map[string]world.PerformanceTier `yaml:"tiers"`

	RateLimits RateLimits `yaml:"rate_limits"`
}

// RateLimits bound client commands per session. Zero disables a limit.
type RateLimits struct {
	EditWindowMS int `yaml:"edit_window_ms"`
	EditMax      int `yaml:"edit_max"`
}

func Defaults() Tuning {
	d := world.DefaultConfig()
	return Tuning{
		ProtocolVersion:   "1.0",
		Seed:              d.Seed,
		Biome:             d.Biome.String(),
		ColumnDepth:       d.ColumnDepth,
		CacheCapacity:     d.CacheCapacity,
		MaxRetries:        d.MaxRetries,
		TickRateHz:        d.TickRateHz,
		MaxChunksPerFrame: d.MaxChunksPerFrame,
		Tier:              "normal",
		Streaming:         d.Schedule,
		Fade:              d.Fade,
		Tiers:             d.Tiers,
		RateLimits:        RateLimits{EditWindowMS: 1000, EditMax: 20},
	}
}

// Load reads path over the defaults, so a file only needs the keys it changes.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	cfg, err := t.World()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if t.RateLimits.EditWindowMS < 0 || t.RateLimits.EditMax < 0 {
		return fmt.Errorf("rate_limits must be >= 0")
	}
	if t.Tier != "" {
		if _, ok := t.Tiers[t.Tier]; !ok {
			return fmt.Errorf("tier %q not defined", t.Tier)
		}
	}
	return nil
}

// World converts the file layout to the engine config.
func (t Tuning) World() (world.Config, error) {
	b, err := block.ParseBiome(t.Biome)
	if err != nil {
		return world.Config{}, err
	}
	return world.Config{
		Seed:              t.Seed,
		Biome:             b,
		ColumnDepth:       t.ColumnDepth,
		CacheCapacity:     t.CacheCapacity,
		MaxRetries:        t.MaxRetries,
		TickRateHz:        t.TickRateHz,
		MaxChunksPerFrame: t.MaxChunksPerFrame,
		Schedule:          t.Streaming,
		Fade:              t.Fade,
		Tiers:             t.Tiers,
	}, nil
}
