package world

import (
	"errors"
	"fmt"

	"voxelstream.ai/internal/sim/world/feature/streaming/schedule"
	"voxelstream.ai/internal/sim/world/terrain/block"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

var ErrUnknownTier = errors.New("world: unknown tier")

var spawnAnchors = map[block.Biome]int{
	block.Desert:    16,
	block.Mountains: 24,
	block.Plains:    8,
	block.Forest:    12,
}

// SafeSpawn picks a spawn point a few blocks above the surface near the
// biome's anchor. In mountains it takes the lowest column of a small grid.
func (w *StreamingContext) SafeSpawn() Vec3 {
	biome := w.cfg.Biome
	anchor, ok := spawnAnchors[biome]
	if !ok {
		anchor = spawnAnchors[block.Forest]
	}
	x, z := anchor, anchor
	if biome == block.Mountains {
		best := 1e9
		for ox := -8; ox <= 8; ox += 2 {
			for oz := -8; oz <= 8; oz += 2 {
				h := w.sampler.Height(anchor+ox, anchor+oz, biome)
				if h < best {
					best = h
					x, z = anchor+ox, anchor+oz
				}
			}
		}
	}
	h := w.sampler.Height(x, z, biome)
	return Vec3{X: float64(x), Y: h + 5, Z: float64(z)}
}

// SetBiome switches the world biome. Every hibernated and resident chunk is
// destroyed, the ledger is cleared and the scheduler restarts from the new
// spawn on the next tick.
func (w *StreamingContext) SetBiome(b block.Biome) (Vec3, error) {
	if !b.Valid() {
		return Vec3{}, fmt.Errorf("world: invalid biome %v", b)
	}
	w.cfg.Biome = b
	for _, ch := range w.cache.Clear() {
		w.destroy(ch, "biome_reset")
	}
	for _, ch := range w.store.Clear() {
		w.destroy(ch, "biome_reset")
	}
	w.ledger.Clear()
	w.sched.Reset()
	if w.inflight != nil {
		w.inflight.superseded = true
	}
	w.failures = map[store.ChunkKey]int{}
	w.abandoned = map[store.ChunkKey]struct{}{}
	w.target = map[store.ChunkKey]schedule.Tier{}
	w.dirty = nil
	for _, s := range w.subs {
		s.reset()
	}

	w.spawn = w.SafeSpawn()
	w.observer = Observer{Pos: w.spawn}
	w.center = ChunkOf(w.spawn)
	if w.logger != nil {
		w.logger.Printf("biome reset to %s, spawn %.1f,%.1f,%.1f", b, w.spawn.X, w.spawn.Y, w.spawn.Z)
	}
	w.emit(Event{Kind: EventBiomeReset, CX: w.center.CX, CZ: w.center.CZ, Detail: b.String()})
	w.publishMetrics(0)
	return w.spawn, nil
}

// SetCacheCapacity resizes the hibernation cache at runtime. Entries that no
// longer fit are destroyed oldest first.
func (w *StreamingContext) SetCacheCapacity(n int) error {
	if n < 0 {
		return fmt.Errorf("world: cache capacity %d < 0", n)
	}
	for _, ch := range w.cache.SetCapacity(n) {
		w.totals.Evicted++
		w.emit(Event{Kind: EventEvicted, CX: ch.Key.CX, CZ: ch.Key.CZ})
		w.destroy(ch, "capacity")
	}
	w.cfg.CacheCapacity = n
	return nil
}

// ApplyTier switches view distances and cache bound to a named tier.
func (w *StreamingContext) ApplyTier(name string) error {
	t, ok := w.cfg.Tiers[name]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownTier, name)
	}
	sc := t.apply(w.cfg.Schedule)
	if err := sc.Validate(); err != nil {
		return err
	}
	w.cfg.Schedule = sc
	w.sched.SetConfig(sc)
	if err := w.SetCacheCapacity(t.CacheCapacity); err != nil {
		return err
	}
	w.tier = name
	if w.logger != nil {
		w.logger.Printf("tier %s: radii %d/%d/%d/%d cache %d", name, sc.MinRadius, sc.IdealRadius, sc.MaxRadius, sc.PreloadRadius, t.CacheCapacity)
	}
	return nil
}
