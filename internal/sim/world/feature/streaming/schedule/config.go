package schedule

import "fmt"

// Config holds the ring radii (in chunks) and the look-ahead and border
// heuristics. All values are tunable.
type Config struct {
	MinRadius     int `yaml:"min_radius"`
	IdealRadius   int `yaml:"ideal_radius"`
	MaxRadius     int `yaml:"max_radius"`
	PreloadRadius int `yaml:"preload_radius"`
	BorderRadius  int `yaml:"border_radius"`

	LookAheadSpread    int     `yaml:"look_ahead_spread"`
	LookAheadScale     float64 `yaml:"look_ahead_scale"`
	LookAheadThreshold float64 `yaml:"look_ahead_threshold"`

	BorderProbeSpread    int `yaml:"border_probe_spread"`
	BorderCorridorSpread int `yaml:"border_corridor_spread"`
}

func DefaultConfig() Config {
	return Config{
		MinRadius:            1,
		IdealRadius:          2,
		MaxRadius:            3,
		PreloadRadius:        4,
		BorderRadius:         6,
		LookAheadSpread:      1,
		LookAheadScale:       2,
		LookAheadThreshold:   0.1,
		BorderProbeSpread:    2,
		BorderCorridorSpread: 1,
	}
}

func (c Config) Validate() error {
	if c.MinRadius < 0 {
		return fmt.Errorf("schedule: min_radius %d < 0", c.MinRadius)
	}
	if c.IdealRadius < c.MinRadius || c.MaxRadius < c.IdealRadius {
		return fmt.Errorf("schedule: radii must satisfy min <= ideal <= max (%d, %d, %d)", c.MinRadius, c.IdealRadius, c.MaxRadius)
	}
	if c.PreloadRadius < c.MaxRadius {
		return fmt.Errorf("schedule: preload_radius %d < max_radius %d", c.PreloadRadius, c.MaxRadius)
	}
	if c.BorderRadius < c.MaxRadius {
		return fmt.Errorf("schedule: border_radius %d < max_radius %d", c.BorderRadius, c.MaxRadius)
	}
	if c.LookAheadSpread < 0 || c.BorderProbeSpread < 0 || c.BorderCorridorSpread < 0 {
		return fmt.Errorf("schedule: spreads must be >= 0")
	}
	return nil
}
