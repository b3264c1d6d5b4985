package world

import (
	"errors"
	"testing"

	"voxelstream.ai/internal/sim/world/feature/streaming/fade"
	"voxelstream.ai/internal/sim/world/feature/streaming/schedule"
	"voxelstream.ai/internal/sim/world/feature/streaming/worker"
	"voxelstream.ai/internal/sim/world/terrain/block"
	"voxelstream.ai/internal/sim/world/terrain/ledger"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

func newTestWorld(t *testing.T, mutate func(*Config, *Options)) *StreamingContext {
	t.Helper()
	cfg := DefaultConfig()
	opts := Options{}
	if mutate != nil {
		mutate(&cfg, &opts)
	}
	w, err := New(cfg, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(w.Close)
	return w
}

// at returns an observer standing in the middle of chunk (cx, cz).
func at(cx, cz int) Observer {
	return Observer{Pos: Vec3{X: float64(cx*block.ChunkSize + 8), Y: 40, Z: float64(cz*block.ChunkSize + 8)}}
}

func checkOwnership(t *testing.T, w *StreamingContext) {
	t.Helper()
	for _, k := range w.Cache().Keys() {
		if w.Store().Has(k) {
			t.Fatalf("chunk %v both resident and cached", k)
		}
	}
	if w.Cache().Len() > w.Cache().Capacity() {
		t.Fatalf("cache len %d > capacity %d", w.Cache().Len(), w.Cache().Capacity())
	}
	if k, ok := w.InFlightKey(); ok && (w.Store().Has(k) || w.Cache().Has(k)) {
		t.Fatalf("in-flight chunk %v already owned", k)
	}
}

func TestTick_ImmediateRingVisibleWithoutFade(t *testing.T) {
	w := newTestWorld(t, nil)
	res := w.Tick(at(0, 0), 0.016)
	if res.Immediate != 9 {
		t.Fatalf("immediate: got %d want 9", res.Immediate)
	}
	for dx := -1; dx <= 1; dx++ {
		for dz := -1; dz <= 1; dz++ {
			k := store.ChunkKey{CX: dx, CZ: dz}
			ch, ok := w.Store().Get(k)
			if !ok {
				t.Fatalf("chunk %v not resident", k)
			}
			if ch.Fade.State != fade.Visible || ch.Fade.Opacity != 1 {
				t.Fatalf("chunk %v: state=%v opacity=%v, want visible at 1", k, ch.Fade.State, ch.Fade.Opacity)
			}
			if len(ch.Blocks) == 0 {
				t.Fatalf("chunk %v has no blocks", k)
			}
		}
	}
}

func TestTick_IdealRingQueuedAtPriorityTwo(t *testing.T) {
	w := newTestWorld(t, nil)
	w.Tick(at(0, 0), 0.016)

	queued := map[store.ChunkKey]schedule.Item{}
	for _, it := range w.Queue().Items() {
		queued[it.Key] = it
	}
	n := 0
	for dx := -2; dx <= 2; dx++ {
		for dz := -2; dz <= 2; dz++ {
			if dx > -2 && dx < 2 && dz > -2 && dz < 2 {
				continue
			}
			k := store.ChunkKey{CX: dx, CZ: dz}
			n++
			if w.Store().Has(k) {
				// Admitted this tick by the synchronous executor.
				ch, _ := w.Store().Get(k)
				if ch.Fade.State != fade.FadingIn {
					t.Fatalf("chunk %v: state %v want fading_in", k, ch.Fade.State)
				}
				continue
			}
			it, ok := queued[k]
			if !ok {
				t.Fatalf("chunk %v neither resident nor queued", k)
			}
			if it.Priority != 2 || it.Dist != 2 {
				t.Fatalf("chunk %v: priority=%d dist=%d want 2/2", k, it.Priority, it.Dist)
			}
		}
	}
	if n != 16 {
		t.Fatalf("ring size: got %d want 16", n)
	}
	if tier, _ := w.Target(store.ChunkKey{CX: 3, CZ: 0}); tier != schedule.TierMax {
		t.Fatalf("distance 3 tier: got %v want max", tier)
	}
}

func TestRemoveSurvivesCacheRoundTrip(t *testing.T) {
	w := newTestWorld(t, nil)
	w.Tick(at(0, 0), 0.016)

	sy := w.Sampler().SurfaceY(5, 5, block.Forest)
	surface := block.Pos{X: 5, Y: sy, Z: 5}
	if _, ok := w.BlockAt(surface); !ok {
		t.Fatalf("expected surface block at %v", surface)
	}
	for _, p := range []block.Pos{{X: 5, Y: 10, Z: 5}, surface} {
		if _, err := w.ApplyEdit(Edit{Pos: p, Action: ledger.Remove}); err != nil {
			t.Fatalf("remove %v: %v", p, err)
		}
	}
	if _, ok := w.BlockAt(surface); ok {
		t.Fatalf("surface block still present after remove")
	}

	origin := store.ChunkKey{}
	for i := 0; i < 5 && !w.Cache().Has(origin); i++ {
		w.Tick(at(20, 0), 1)
	}
	if !w.Cache().Has(origin) {
		t.Fatalf("origin chunk never hibernated")
	}

	w.Tick(at(0, 0), 1)
	if !w.Store().Has(origin) || w.Cache().Has(origin) {
		t.Fatalf("origin chunk not restored from cache")
	}
	if w.Metrics().Totals.Retrieved == 0 {
		t.Fatalf("expected a retrieval")
	}
	for _, p := range []block.Pos{{X: 5, Y: 10, Z: 5}, surface} {
		if _, ok := w.BlockAt(p); ok {
			t.Fatalf("removed block %v came back", p)
		}
	}
}

func TestRemoveAppliedWhileHibernated(t *testing.T) {
	w := newTestWorld(t, nil)
	w.Tick(at(0, 0), 0.016)
	origin := store.ChunkKey{}
	for i := 0; i < 5 && !w.Cache().Has(origin); i++ {
		w.Tick(at(20, 0), 1)
	}
	sy := w.Sampler().SurfaceY(5, 5, block.Forest)
	p := block.Pos{X: 5, Y: sy, Z: 5}
	res, err := w.ApplyEdit(Edit{Pos: p, Action: ledger.Remove})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if res.Patched || res.Dirty {
		t.Fatalf("edit on hibernated chunk touched live state: %+v", res)
	}
	w.Tick(at(0, 0), 1)
	if _, ok := w.BlockAt(p); ok {
		t.Fatalf("ledger overlay not applied on retrieval")
	}
}

func TestSetBiome_ClearsEverything(t *testing.T) {
	w := newTestWorld(t, nil)
	w.Tick(at(0, 0), 0.016)
	sy := w.Sampler().SurfaceY(5, 5, block.Forest)
	if _, err := w.ApplyEdit(Edit{Pos: block.Pos{X: 5, Y: sy, Z: 5}, Action: ledger.Remove}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	for i := 0; i < 3; i++ {
		w.Tick(at(20, 0), 1)
	}
	if w.Cache().Len() == 0 {
		t.Fatalf("setup: expected hibernated chunks")
	}

	spawn, err := w.SetBiome(block.Desert)
	if err != nil {
		t.Fatalf("SetBiome: %v", err)
	}
	if w.Cache().Len() != 0 || w.Store().Len() != 0 || w.Ledger().Len() != 0 || w.Queue().Len() != 0 {
		t.Fatalf("after reset: cache=%d store=%d ledger=%d queue=%d", w.Cache().Len(), w.Store().Len(), w.Ledger().Len(), w.Queue().Len())
	}
	if got := ChunkOf(spawn); got != w.Center() {
		t.Fatalf("center %v not at spawn chunk %v", w.Center(), got)
	}

	for i := 0; i < 10; i++ {
		w.Tick(Observer{Pos: spawn}, 0.1)
	}
	if w.Store().Len() < 9 {
		t.Fatalf("resident after reset: got %d want >= 9", w.Store().Len())
	}
	for _, k := range w.Store().Keys() {
		ch, _ := w.Store().Get(k)
		if ch.Biome != block.Desert {
			t.Fatalf("chunk %v biome %v", k, ch.Biome)
		}
		for p, bt := range ch.Blocks {
			switch bt {
			case block.Grass, block.Dirt, block.Wood, block.Leaves:
				t.Fatalf("forest block %v at %v after desert reset", bt, p)
			}
		}
	}
}

func TestSetBiome_RejectsInvalid(t *testing.T) {
	w := newTestWorld(t, nil)
	if _, err := w.SetBiome(block.Biome(99)); err == nil {
		t.Fatalf("expected error")
	}
}

func TestOwnershipAndCacheBoundWhileWalking(t *testing.T) {
	w := newTestWorld(t, func(c *Config, o *Options) {
		c.CacheCapacity = 6
		o.Executor = worker.NewDispatcher(2, 8)
	})
	for step := 0; step < 60; step++ {
		obs := at(step/3, 0)
		obs.Dir = schedule.Dir{X: 1}
		w.Tick(obs, 0.25)
		checkOwnership(t, w)
	}
	if w.Metrics().Totals.Evicted == 0 {
		t.Fatalf("expected evictions with a small cache")
	}
}

func TestCacheDisabledDestroys(t *testing.T) {
	w := newTestWorld(t, func(c *Config, _ *Options) { c.CacheCapacity = 0 })
	w.Tick(at(0, 0), 0.016)
	for i := 0; i < 3; i++ {
		w.Tick(at(20, 0), 1)
	}
	if w.Cache().Len() != 0 {
		t.Fatalf("cache len %d with capacity 0", w.Cache().Len())
	}
	if w.Metrics().Totals.Destroyed == 0 {
		t.Fatalf("expected destroyed chunks")
	}
}

// manualExec holds submitted requests until the test delivers them.
type manualExec struct {
	pending []worker.Request
	out     chan worker.Response
}

func newManualExec() *manualExec { return &manualExec{out: make(chan worker.Response, 4)} }

func (m *manualExec) Submit(req worker.Request) error {
	m.pending = append(m.pending, req)
	return nil
}
func (m *manualExec) Results() <-chan worker.Response { return m.out }
func (m *manualExec) Close()                          {}

func (m *manualExec) deliver() worker.Request {
	req := m.pending[0]
	m.pending = m.pending[1:]
	m.out <- worker.Generate(req)
	return req
}

func TestStaleResultDiscarded(t *testing.T) {
	exec := newManualExec()
	w := newTestWorld(t, func(_ *Config, o *Options) { o.Executor = exec })
	w.Tick(at(0, 0), 0.016)
	k, ok := w.InFlightKey()
	if !ok || len(exec.pending) != 1 {
		t.Fatalf("expected one in-flight request, got %d", len(exec.pending))
	}

	exec.deliver()
	w.Tick(at(40, 40), 0.016)
	if w.Store().Has(k) {
		t.Fatalf("stale result for %v registered", k)
	}
	if w.Metrics().Totals.Stale != 1 {
		t.Fatalf("stale: got %d want 1", w.Metrics().Totals.Stale)
	}
	checkOwnership(t, w)
}

func TestSupersededBySynchronousGeneration(t *testing.T) {
	exec := newManualExec()
	w := newTestWorld(t, func(_ *Config, o *Options) { o.Executor = exec })
	w.Tick(at(0, 0), 0.016)
	k, ok := w.InFlightKey()
	if !ok {
		t.Fatalf("expected in-flight request")
	}
	// Step onto the in-flight chunk so it joins the immediate ring.
	w.Tick(at(k.CX, k.CZ), 0.016)
	if !w.Store().Has(k) {
		t.Fatalf("immediate chunk %v not generated", k)
	}
	exec.deliver()
	w.Tick(at(k.CX, k.CZ), 0.016)
	if w.Metrics().Totals.Stale == 0 {
		t.Fatalf("superseded result was not discarded")
	}
	checkOwnership(t, w)
}

func TestFailedGenerationRetriedThenAbandoned(t *testing.T) {
	bad := store.ChunkKey{CX: 2, CZ: 0}
	failing := func(req worker.Request) worker.Response {
		if req.Key == bad {
			return worker.Response{ID: req.ID, Key: req.Key, Biome: req.Biome, Err: errors.New("boom")}
		}
		return worker.Generate(req)
	}
	w := newTestWorld(t, func(_ *Config, o *Options) { o.Executor = worker.NewSync(failing) })
	for i := 0; i < 40; i++ {
		w.Tick(at(0, 0), 0.1)
	}
	m := w.Metrics()
	if m.Totals.Failures != 2 {
		t.Fatalf("failures: got %d want 2", m.Totals.Failures)
	}
	if m.Totals.Abandoned != 1 || m.Abandoned != 1 {
		t.Fatalf("abandoned: totals=%d current=%d want 1", m.Totals.Abandoned, m.Abandoned)
	}
	if w.Store().Has(bad) || w.Queue().Contains(bad) {
		t.Fatalf("abandoned chunk still owned or queued")
	}

	// Leaving and returning gives it another chance.
	w.Tick(at(40, 0), 0.1)
	if w.Metrics().Abandoned != 0 {
		t.Fatalf("abandoned set not forgotten after leaving")
	}
}

func TestApplyEdit_AddMarksDirtyAndRebuilds(t *testing.T) {
	w := newTestWorld(t, nil)
	w.Tick(at(0, 0), 0.016)
	p := block.Pos{X: 3, Y: 200, Z: 3}
	res, err := w.ApplyEdit(Edit{Pos: p, Action: ledger.Add, Block: block.Stone})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !res.Patched || !res.Dirty {
		t.Fatalf("add: got %+v want patched and dirty", res)
	}
	if !w.IsSolid(Vec3{X: 3, Y: 200, Z: 3}) {
		t.Fatalf("added block not solid before rebuild")
	}
	r := w.Tick(at(0, 0), 0.016)
	if !r.Rebuilt {
		t.Fatalf("expected a rebuild")
	}
	ch, _ := w.Store().Get(store.ChunkKey{})
	if ch.Dirty {
		t.Fatalf("chunk still dirty after rebuild")
	}
	if got, ok := ch.Get(p); !ok || got != block.Stone {
		t.Fatalf("rebuilt chunk lost the edit: %v %v", got, ok)
	}
}

func TestApplyEdit_Errors(t *testing.T) {
	w := newTestWorld(t, nil)
	w.Tick(at(0, 0), 0.016)
	sy := w.Sampler().SurfaceY(5, 5, block.Forest)
	_, err := w.ApplyEdit(Edit{Pos: block.Pos{X: 5, Y: sy, Z: 5}, Action: ledger.Add, Block: block.Stone})
	if !errors.Is(err, ErrOccupied) {
		t.Fatalf("got %v want ErrOccupied", err)
	}
	_, err = w.ApplyEdit(Edit{Pos: block.Pos{X: 5, Y: 200, Z: 5}, Action: ledger.Add, Block: block.Water})
	if !errors.Is(err, ledger.ErrNotPlaceable) {
		t.Fatalf("got %v want ErrNotPlaceable", err)
	}
	_, err = w.ApplyEdit(Edit{Pos: block.Pos{X: 5, Y: block.MaxHeight, Z: 5}, Action: ledger.Add, Block: block.Stone})
	if !errors.Is(err, ledger.ErrOutOfBounds) {
		t.Fatalf("got %v want ErrOutOfBounds", err)
	}
	if w.Ledger().Len() != 0 {
		t.Fatalf("rejected edits reached the ledger")
	}
}

func TestDirtyRebuildFailureKeepsBlocks(t *testing.T) {
	fail := false
	gen := func(req worker.Request) worker.Response {
		if fail {
			return worker.Response{ID: req.ID, Key: req.Key, Biome: req.Biome, Err: errors.New("boom")}
		}
		return worker.Generate(req)
	}
	w := newTestWorld(t, func(_ *Config, o *Options) {
		o.Generate = gen
		o.Executor = newManualExec()
	})
	w.Tick(at(0, 0), 0.016)
	p := block.Pos{X: 3, Y: 200, Z: 3}
	if _, err := w.ApplyEdit(Edit{Pos: p, Action: ledger.Add, Block: block.Wood}); err != nil {
		t.Fatalf("add: %v", err)
	}
	ch, _ := w.Store().Get(store.ChunkKey{})
	before := len(ch.Blocks)

	fail = true
	if r := w.Tick(at(0, 0), 0.016); r.Rebuilt {
		t.Fatalf("rebuild reported success")
	}
	if !ch.Dirty || len(ch.Blocks) != before {
		t.Fatalf("failed rebuild changed the chunk: dirty=%v blocks=%d want %d", ch.Dirty, len(ch.Blocks), before)
	}

	fail = false
	if r := w.Tick(at(0, 0), 0.016); !r.Rebuilt {
		t.Fatalf("retry did not rebuild")
	}
	if got, _ := ch.Get(p); got != block.Wood {
		t.Fatalf("edit lost on rebuild: got %v", got)
	}
}

func TestOccupancyQueries(t *testing.T) {
	w := newTestWorld(t, nil)
	w.Tick(at(0, 0), 0.016)
	sy := w.Sampler().SurfaceY(5, 5, block.Forest)
	if !w.IsSolid(Vec3{X: 5, Y: float64(sy), Z: 5}) {
		t.Fatalf("surface at y=%d not solid", sy)
	}
	if w.IsSolid(Vec3{X: 5, Y: 250, Z: 5}) {
		t.Fatalf("air reported solid")
	}
	if g := w.GroundLevel(5, 5); g < float64(sy+1) {
		t.Fatalf("ground level %v below surface %d", g, sy)
	}
	if w.IsSolid(Vec3{X: 5000, Y: float64(sy), Z: 5000}) {
		t.Fatalf("non-resident position reported solid")
	}
	if g := w.GroundLevel(5000, 5000); g != groundFallback {
		t.Fatalf("fallback ground: got %v want %v", g, groundFallback)
	}
}

func TestTiersAndCapacity(t *testing.T) {
	w := newTestWorld(t, nil)
	if err := w.ApplyTier("high_performance"); err != nil {
		t.Fatalf("ApplyTier: %v", err)
	}
	if w.Cache().Capacity() != 100 {
		t.Fatalf("capacity: got %d want 100", w.Cache().Capacity())
	}
	w.Tick(at(0, 0), 0.016)
	if _, ok := w.Target(store.ChunkKey{CX: 2, CZ: 2}); !ok {
		t.Fatalf("max ring missing at radius 2")
	}
	if tier, _ := w.Target(store.ChunkKey{CX: 2, CZ: 0}); tier != schedule.TierMax {
		t.Fatalf("radius 2 tier: got %v want max", tier)
	}
	if tier, ok := w.Target(store.ChunkKey{CX: 3, CZ: 0}); ok && tier != schedule.TierBorder {
		t.Fatalf("radius 3 tier under high_performance: got %v", tier)
	}
	if err := w.ApplyTier("nope"); err == nil {
		t.Fatalf("expected unknown tier error")
	}
	if err := w.SetCacheCapacity(-1); err == nil {
		t.Fatalf("expected negative capacity error")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.TickRateHz = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for tick rate 0")
	}
}
