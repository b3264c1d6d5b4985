package world

import (
	"time"

	"voxelstream.ai/internal/sim/world/feature/streaming/fade"
	"voxelstream.ai/internal/sim/world/feature/streaming/schedule"
	"voxelstream.ai/internal/sim/world/feature/streaming/worker"
	"voxelstream.ai/internal/sim/world/logic/mathx"
	"voxelstream.ai/internal/sim/world/terrain/block"
	"voxelstream.ai/internal/sim/world/terrain/ledger"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

// TickResult summarizes what one Tick did.
type TickResult struct {
	Center      store.ChunkKey
	Immediate   int
	Enqueued    int
	Retrieved   int
	Generated   int
	Hibernated  int
	Destroyed   int
	Stale       int
	Rebuilt     bool
	Borders     int
	QueueLength int
}

// ChunkOf maps a continuous world position to its chunk.
func ChunkOf(p Vec3) store.ChunkKey {
	return store.ChunkKey{
		CX: mathx.FloorDiv(mathx.FloorCoord(p.X), block.ChunkSize),
		CZ: mathx.FloorDiv(mathx.FloorCoord(p.Z), block.ChunkSize),
	}
}

// Tick advances streaming by delta seconds for the given observer.
func (w *StreamingContext) Tick(obs Observer, delta float64) TickResult {
	start := time.Now()
	w.clock++
	w.observer = obs
	w.center = ChunkOf(obs.Pos)

	var res TickResult
	res.Center = w.center

	plan := w.sched.Plan(w.center, obs.Dir, residency{w})
	w.target = plan.Target
	res.Immediate = len(plan.Immediate)
	res.Enqueued = len(plan.Enqueued)
	res.Borders = plan.Borders
	if plan.Borders > 0 {
		w.totals.Borders += uint64(plan.Borders)
		w.emit(Event{Kind: EventBorder, CX: w.center.CX, CZ: w.center.CZ, Blocks: plan.Borders})
	}

	// Abandoned chunks get another chance once a later pass asks again.
	for k := range w.abandoned {
		if _, ok := plan.Target[k]; !ok {
			delete(w.abandoned, k)
			delete(w.failures, k)
		}
	}

	for _, k := range plan.Immediate {
		switch {
		case w.touch(k):
		case w.cache.Has(k):
			ch, _ := w.cache.Take(k)
			w.restore(ch, true)
			res.Retrieved++
		default:
			if _, bad := w.abandoned[k]; bad {
				continue
			}
			if w.generateNow(k) {
				res.Generated++
			}
		}
	}

	for _, k := range sortedTarget(plan.Target) {
		if plan.Target[k] == schedule.TierImmediate {
			continue
		}
		if w.touch(k) {
			continue
		}
		if ch, ok := w.cache.Take(k); ok {
			w.restore(ch, false)
			res.Retrieved++
		}
	}

	targetCache := w.cache.Capacity() > 0
	for _, k := range w.store.Keys() {
		if _, ok := plan.Target[k]; ok {
			continue
		}
		ch, _ := w.store.Get(k)
		ch.Fade.Out(targetCache)
	}

	for _, k := range w.store.Keys() {
		ch, _ := w.store.Get(k)
		if w.fades.Step(&ch.Fade, delta) != fade.Completed {
			continue
		}
		w.store.Remove(k)
		if w.retire(ch) {
			res.Hibernated++
		} else {
			res.Destroyed++
		}
	}

	g, stale := w.pump()
	res.Generated += g
	res.Stale += stale
	res.Rebuilt = w.rebuildDirty()
	res.QueueLength = w.sched.Queue().Len()

	w.publishFrames()
	w.publishMetrics(float64(time.Since(start).Microseconds()) / 1000)
	return res
}

func sortedTarget(t map[store.ChunkKey]schedule.Tier) []store.ChunkKey {
	keys := make([]store.ChunkKey, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	store.SortKeys(keys)
	return keys
}

// touch refreshes a resident chunk that is wanted again. A chunk that had
// started fading out turns around.
func (w *StreamingContext) touch(k store.ChunkKey) bool {
	ch, ok := w.store.Get(k)
	if !ok {
		return false
	}
	ch.LastAccessed = w.clock
	ch.Fade.Resume()
	return true
}

// restore moves a hibernated chunk back into the store. The overlay is
// re-run only when the ledger moved past the chunk's materialization.
func (w *StreamingContext) restore(ch *store.Chunk, immediate bool) {
	if latest := w.ledger.LatestSeq(ch.Key); latest > ch.LedgerSeq {
		ledger.Overlay(ch.Blocks, w.ledger.RecordsFor(ch.Key))
		ch.LedgerSeq = latest
		ch.Revision++
	}
	w.fades.StartCached(&ch.Fade, immediate)
	ch.LastAccessed = w.clock
	if !w.store.Put(ch) {
		return
	}
	if ch.Dirty {
		w.dirty = append(w.dirty, ch.Key)
	}
	w.totals.Retrieved++
	w.emit(Event{Kind: EventRetrieved, CX: ch.Key.CX, CZ: ch.Key.CZ, Blocks: len(ch.Blocks)})
}

// retire hibernates a chunk whose fade-out completed, or destroys it when
// hibernation is off or the cache refuses it. It reports whether the chunk
// was hibernated.
func (w *StreamingContext) retire(ch *store.Chunk) bool {
	if ch.Fade.TargetCache && w.cache.Capacity() > 0 && !w.store.Has(ch.Key) {
		ch.Fade.Hibernate()
		evicted, ok := w.cache.Put(ch, w.clock)
		if ok {
			w.totals.Hibernated++
			w.emit(Event{Kind: EventHibernated, CX: ch.Key.CX, CZ: ch.Key.CZ, Blocks: len(ch.Blocks)})
			for _, e := range evicted {
				w.totals.Evicted++
				w.emit(Event{Kind: EventEvicted, CX: e.Key.CX, CZ: e.Key.CZ})
				w.destroy(e, "evicted")
			}
			return true
		}
	}
	w.destroy(ch, "fade_out")
	return false
}

func (w *StreamingContext) destroy(ch *store.Chunk, reason string) {
	ch.Fade.Destroy()
	ch.Blocks = nil
	w.totals.Destroyed++
	w.emit(Event{Kind: EventDestroyed, CX: ch.Key.CX, CZ: ch.Key.CZ, Detail: reason})
}

// pump consumes a finished result, then admits at most one queued request.
func (w *StreamingContext) pump() (generated, stale int) {
	consume := func() {
		if w.inflight == nil {
			return
		}
		select {
		case resp := <-w.exec.Results():
			ok, wasStale := w.commit(resp)
			if ok {
				generated++
			}
			if wasStale {
				stale++
			}
		default:
		}
	}

	consume()
	if w.inflight != nil {
		return
	}
	it, _, ok := w.sched.Queue().PopNext(func(k store.ChunkKey) bool {
		if w.store.Has(k) || w.cache.Has(k) {
			return true
		}
		_, bad := w.abandoned[k]
		return bad
	})
	if !ok {
		return
	}
	req := w.request(it.Key)
	if err := w.exec.Submit(req); err != nil {
		if w.logger != nil {
			w.logger.Printf("submit %d,%d: %v", it.Key.CX, it.Key.CZ, err)
		}
		w.sched.Queue().Push(it.Key, it.Tier, it.Dist)
		return
	}
	w.inflight = &inflight{id: req.ID, key: it.Key, tier: it.Tier}
	consume()
	return
}

// commit registers a generation result if it is still wanted. It reports
// whether a chunk was registered and whether the result was stale.
func (w *StreamingContext) commit(resp worker.Response) (ok, stale bool) {
	inf := w.inflight
	if inf == nil || inf.id != resp.ID {
		if w.logger != nil {
			w.logger.Printf("uncorrelated generation result id=%d", resp.ID)
		}
		w.markStale(resp.Key, "uncorrelated")
		return false, true
	}
	w.inflight = nil
	k := resp.Key
	_, wanted := w.target[k]
	switch {
	case inf.superseded:
		w.markStale(k, "superseded")
		return false, true
	case resp.Biome != w.cfg.Biome:
		w.markStale(k, "biome")
		return false, true
	case w.store.Has(k) || w.cache.Has(k):
		w.markStale(k, "owned")
		return false, true
	case !wanted:
		w.markStale(k, "unwanted")
		return false, true
	}
	if resp.Err != nil {
		w.fail(k, inf.tier, resp.Err)
		return false, false
	}
	w.register(k, resp, false)
	return true, false
}

func (w *StreamingContext) markStale(k store.ChunkKey, why string) {
	w.totals.Stale++
	w.emit(Event{Kind: EventStale, CX: k.CX, CZ: k.CZ, Detail: why})
}

func (w *StreamingContext) register(k store.ChunkKey, resp worker.Response, immediate bool) {
	ch := store.NewChunk(k, resp.Biome, resp.Blocks)
	ch.LedgerSeq = resp.LedgerSeq
	if w.ledger.LatestSeq(k) > resp.LedgerSeq {
		w.markDirty(ch)
	}
	w.fades.StartNew(&ch.Fade, immediate)
	ch.LastAccessed = w.clock
	if !w.store.Put(ch) {
		return
	}
	delete(w.failures, k)
	w.totals.Generated++
	w.emit(Event{Kind: EventGenerated, CX: k.CX, CZ: k.CZ, Blocks: len(ch.Blocks)})
}

// fail retries a queued generation once, then abandons the chunk.
func (w *StreamingContext) fail(k store.ChunkKey, tier schedule.Tier, err error) {
	w.totals.Failures++
	w.failures[k]++
	if w.logger != nil {
		w.logger.Printf("generate %d,%d (attempt %d): %v", k.CX, k.CZ, w.failures[k], err)
	}
	w.emit(Event{Kind: EventGenFailed, CX: k.CX, CZ: k.CZ, Detail: err.Error()})
	if w.failures[k] > w.cfg.MaxRetries {
		w.abandon(k)
		return
	}
	w.sched.Queue().Push(k, tier, mathx.Chebyshev(k.CX, k.CZ, w.center.CX, w.center.CZ))
}

func (w *StreamingContext) abandon(k store.ChunkKey) {
	w.abandoned[k] = struct{}{}
	w.sched.Queue().Remove(k)
	w.totals.Abandoned++
	w.emit(Event{Kind: EventAbandoned, CX: k.CX, CZ: k.CZ})
}

// generateNow materializes an immediate-ring chunk on this goroutine,
// without fade. An in-flight request for the same key loses ownership.
func (w *StreamingContext) generateNow(k store.ChunkKey) bool {
	if w.inflight != nil && w.inflight.key == k {
		w.inflight.superseded = true
	}
	w.sched.Queue().Remove(k)
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		resp := worker.Run(w.generate, w.request(k))
		if resp.Err == nil {
			w.register(k, resp, true)
			return true
		}
		w.totals.Failures++
		w.failures[k]++
		if w.logger != nil {
			w.logger.Printf("generate %d,%d (attempt %d): %v", k.CX, k.CZ, w.failures[k], resp.Err)
		}
		w.emit(Event{Kind: EventGenFailed, CX: k.CX, CZ: k.CZ, Detail: resp.Err.Error()})
	}
	w.abandon(k)
	return false
}

func (w *StreamingContext) markDirty(ch *store.Chunk) {
	if ch.Dirty {
		return
	}
	ch.Dirty = true
	w.dirty = append(w.dirty, ch.Key)
}

// rebuildDirty regenerates at most one dirty resident chunk. On failure the
// old blocks stay and the chunk goes to the back of the line.
func (w *StreamingContext) rebuildDirty() bool {
	for len(w.dirty) > 0 {
		k := w.dirty[0]
		w.dirty = w.dirty[1:]
		// Chunks hibernated while dirty rejoin the line on retrieval.
		ch, ok := w.store.Get(k)
		if !ok || !ch.Dirty {
			continue
		}
		resp := worker.Run(w.generate, w.request(k))
		if resp.Err != nil {
			w.dirty = append(w.dirty, k)
			if w.logger != nil {
				w.logger.Printf("rebuild %d,%d: %v (keeping previous blocks)", k.CX, k.CZ, resp.Err)
			}
			w.emit(Event{Kind: EventRebuildFailed, CX: k.CX, CZ: k.CZ, Detail: resp.Err.Error()})
			return false
		}
		ch.Replace(resp.Blocks, resp.LedgerSeq)
		ch.Dirty = false
		w.totals.Rebuilds++
		w.emit(Event{Kind: EventRebuilt, CX: k.CX, CZ: k.CZ, Blocks: len(ch.Blocks)})
		return true
	}
	return false
}
