package fade

import "errors"

type Config struct {
	// FadeInRate is opacity per second for freshly generated chunks.
	FadeInRate float64 `yaml:"fade_in_rate"`
	// CachedFadeInRate applies to chunks retrieved from hibernation.
	CachedFadeInRate float64 `yaml:"cached_fade_in_rate"`
	// OutFactor scales the fade-in rate for fade-out; must exceed 1.
	OutFactor float64 `yaml:"out_factor"`
}

func DefaultConfig() Config {
	return Config{FadeInRate: 2, CachedFadeInRate: 1, OutFactor: 2}
}

func (c Config) Validate() error {
	if c.FadeInRate <= 0 || c.CachedFadeInRate <= 0 {
		return errors.New("fade: rates must be positive")
	}
	if c.OutFactor <= 1 {
		return errors.New("fade: out factor must exceed 1")
	}
	return nil
}

// Outcome is what a Step did to a fade.
type Outcome uint8

const (
	None Outcome = iota
	// Shown means a fade-in reached full opacity.
	Shown
	// Completed means a fade-out reached zero; the owner must hibernate or destroy.
	Completed
)

type Controller struct {
	cfg Config
}

func NewController(cfg Config) *Controller {
	if cfg.Validate() != nil {
		cfg = DefaultConfig()
	}
	return &Controller{cfg: cfg}
}

func (c *Controller) Config() Config { return c.cfg }

// StartNew moves a generated chunk on screen. Immediate chunks skip the fade.
func (c *Controller) StartNew(f *Fade, immediate bool) {
	f.begin(immediate, c.cfg.FadeInRate)
}

// StartCached moves a retrieved chunk on screen at the slower cached rate.
func (c *Controller) StartCached(f *Fade, immediate bool) {
	f.begin(immediate, c.cfg.CachedFadeInRate)
}

// Step integrates opacity by delta seconds. Once a fade-in completes the
// chunk stops blending; translucent materials still blend per batch.
func (c *Controller) Step(f *Fade, delta float64) Outcome {
	if delta <= 0 {
		return None
	}
	rate := f.Rate
	if rate <= 0 {
		rate = c.cfg.FadeInRate
	}
	switch f.State {
	case FadingIn:
		f.Opacity += rate * delta
		if f.Opacity >= 1 {
			f.Opacity = 1
			f.State = Visible
			f.FullyLoaded = true
			f.Transparent = false
			return Shown
		}
	case FadingOut:
		f.Opacity -= rate * c.cfg.OutFactor * delta
		if f.Opacity <= 0 {
			f.Opacity = 0
			return Completed
		}
	}
	return None
}
