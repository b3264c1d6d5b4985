package world

import "voxelstream.ai/internal/sim/world/feature/streaming/fade"

// Metrics is a thread-safe read-only view of the streaming engine.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type Metrics struct {
	Tick  uint64 `json:"tick"`
	Biome string `json:"biome"`
	Tier  string `json:"tier,omitempty"`

	Resident      int  `json:"resident"`
	Visible       int  `json:"visible"`
	FadingIn      int  `json:"fading_in"`
	FadingOut     int  `json:"fading_out"`
	Dirty         int  `json:"dirty"`
	Cached        int  `json:"cached"`
	CacheCapacity int  `json:"cache_capacity"`
	Queued        int  `json:"queued"`
	InFlight      bool `json:"in_flight"`
	Abandoned     int  `json:"abandoned"`
	LedgerRecords int  `json:"ledger_records"`
	Subscribers   int  `json:"subscribers"`

	Totals Totals `json:"totals"`

	StepMS float64 `json:"step_ms"`
}

// Totals are monotonically increasing counters.
type Totals struct {
	Generated  uint64 `json:"generated"`
	Retrieved  uint64 `json:"retrieved"`
	Hibernated uint64 `json:"hibernated"`
	Destroyed  uint64 `json:"destroyed"`
	Evicted    uint64 `json:"evicted"`
	Stale      uint64 `json:"stale"`
	Failures   uint64 `json:"failures"`
	Abandoned  uint64 `json:"abandoned"`
	Rebuilds   uint64 `json:"rebuilds"`
	Edits      uint64 `json:"edits"`
	Borders    uint64 `json:"borders"`
}

func (w *StreamingContext) Metrics() Metrics {
	if w == nil {
		return Metrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return Metrics{}
	}
	m, ok := v.(Metrics)
	if !ok {
		return Metrics{}
	}
	return m
}

func (w *StreamingContext) publishMetrics(stepMS float64) {
	m := Metrics{
		Tick:          w.clock,
		Biome:         w.cfg.Biome.String(),
		Tier:          w.tier,
		Resident:      w.store.Len(),
		Cached:        w.cache.Len(),
		CacheCapacity: w.cache.Capacity(),
		Queued:        w.sched.Queue().Len(),
		InFlight:      w.inflight != nil,
		Abandoned:     len(w.abandoned),
		LedgerRecords: w.ledger.Len(),
		Subscribers:   len(w.subs),
		Totals:        w.totals,
		StepMS:        stepMS,
	}
	for _, k := range w.store.Keys() {
		ch, _ := w.store.Get(k)
		switch ch.Fade.State {
		case fade.Visible:
			m.Visible++
		case fade.FadingIn:
			m.FadingIn++
		case fade.FadingOut:
			m.FadingOut++
		}
		if ch.Dirty {
			m.Dirty++
		}
	}
	w.metrics.Store(m)
}
