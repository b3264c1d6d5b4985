package schedule

import (
	"testing"

	"voxelstream.ai/internal/sim/world/logic/mathx"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

type fakeResidency struct {
	resident map[store.ChunkKey]bool
	cached   map[store.ChunkKey]bool
	inflight map[store.ChunkKey]bool
	failed   map[store.ChunkKey]bool
}

func newFake() *fakeResidency {
	return &fakeResidency{
		resident: map[store.ChunkKey]bool{},
		cached:   map[store.ChunkKey]bool{},
		inflight: map[store.ChunkKey]bool{},
		failed:   map[store.ChunkKey]bool{},
	}
}

func (f *fakeResidency) Resident(k store.ChunkKey) bool { return f.resident[k] }
func (f *fakeResidency) Cached(k store.ChunkKey) bool   { return f.cached[k] }
func (f *fakeResidency) InFlight(k store.ChunkKey) bool { return f.inflight[k] }
func (f *fakeResidency) Abandoned(k store.ChunkKey) bool { return f.failed[k] }

func TestQueueIdempotent(t *testing.T) {
	q := NewQueue()
	k := store.ChunkKey{CX: 2, CZ: -1}
	if !q.Push(k, TierIdeal, 2) {
		t.Fatalf("first push rejected")
	}
	if q.Push(k, TierMax, 3) {
		t.Fatalf("duplicate push accepted")
	}
	if q.Len() != 1 {
		t.Fatalf("len=%d want 1", q.Len())
	}
	it, ok := q.Pop()
	if !ok || it.Key != k || it.Priority != 2 {
		t.Fatalf("pop=%+v ok=%v", it, ok)
	}
	if q.Contains(k) || q.Len() != 0 {
		t.Fatalf("queue not empty after pop")
	}
	if !q.Push(k, TierMax, 3) {
		t.Fatalf("push after drain rejected")
	}
}

func TestQueueOrder(t *testing.T) {
	q := NewQueue()
	q.Push(store.ChunkKey{CX: 5}, TierPreload, 5)
	q.Push(store.ChunkKey{CX: 3}, TierMax, 3)
	q.Push(store.ChunkKey{CX: -2}, TierIdeal, 2)
	q.Push(store.ChunkKey{CX: 2, CZ: 2}, TierIdeal, 2)
	q.Push(store.ChunkKey{CX: 3, CZ: 1}, TierMax, 3)
	want := []store.ChunkKey{{CX: -2}, {CX: 2, CZ: 2}, {CX: 3}, {CX: 3, CZ: 1}, {CX: 5}}
	for i, w := range want {
		it, ok := q.Pop()
		if !ok || it.Key != w {
			t.Fatalf("pop %d = %+v want %+v", i, it.Key, w)
		}
	}
}

func TestQueueResortsBeforeEachPop(t *testing.T) {
	q := NewQueue()
	q.Push(store.ChunkKey{CX: 5}, TierPreload, 5)
	q.Push(store.ChunkKey{CX: 4}, TierPreload, 4)
	if it, _ := q.Pop(); it.Key.CX != 4 {
		t.Fatalf("expected nearest preload first")
	}
	q.Push(store.ChunkKey{CX: 2}, TierIdeal, 2)
	if it, _ := q.Pop(); it.Key.CX != 2 {
		t.Fatalf("new higher-priority item did not jump the backlog")
	}
}

func TestPopNextSkips(t *testing.T) {
	q := NewQueue()
	q.Push(store.ChunkKey{CX: 1}, TierIdeal, 1)
	q.Push(store.ChunkKey{CX: 2}, TierIdeal, 2)
	it, skipped, ok := q.PopNext(func(k store.ChunkKey) bool { return k.CX == 1 })
	if !ok || it.Key.CX != 2 || skipped != 1 {
		t.Fatalf("PopNext=%+v skipped=%d ok=%v", it, skipped, ok)
	}
	if q.Contains(store.ChunkKey{CX: 1}) {
		t.Fatalf("skipped item left in queue")
	}
}

func TestPlanRingsAtOrigin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinRadius, cfg.IdealRadius = 1, 2
	s := New(cfg)
	p := s.Plan(store.ChunkKey{}, Dir{}, newFake())

	if len(p.Immediate) != 9 {
		t.Fatalf("immediate=%d want 9", len(p.Immediate))
	}
	if p.Immediate[0] != (store.ChunkKey{}) {
		t.Fatalf("center chunk must come first, got %+v", p.Immediate[0])
	}
	ideal := 0
	for _, it := range s.Queue().Items() {
		d := mathx.Chebyshev(it.Key.CX, it.Key.CZ, 0, 0)
		if d <= 1 {
			t.Fatalf("immediate chunk %+v queued", it.Key)
		}
		if d == 2 {
			if it.Priority != 2 || it.Tier != TierIdeal {
				t.Fatalf("chunk %+v at distance 2 has priority %d", it.Key, it.Priority)
			}
			ideal++
		}
		if d == 3 && it.Tier == TierMax && it.Priority != 1 {
			t.Fatalf("max ring priority %d", it.Priority)
		}
	}
	if ideal != 16 {
		t.Fatalf("ideal ring queued %d chunks, want 16", ideal)
	}
	for k, tier := range p.Target {
		if mathx.Chebyshev(k.CX, k.CZ, 0, 0) <= 1 && tier != TierImmediate {
			t.Fatalf("inner chunk %+v tier %v", k, tier)
		}
	}
}

func TestPlanSkipsOwnedChunks(t *testing.T) {
	s := New(DefaultConfig())
	res := newFake()
	res.resident[store.ChunkKey{CX: 2}] = true
	res.cached[store.ChunkKey{CX: -2}] = true
	res.inflight[store.ChunkKey{CZ: 2}] = true
	res.failed[store.ChunkKey{CZ: -2}] = true
	s.Plan(store.ChunkKey{}, Dir{}, res)
	for _, k := range []store.ChunkKey{{CX: 2}, {CX: -2}, {CZ: 2}, {CZ: -2}} {
		if s.Queue().Contains(k) {
			t.Fatalf("owned chunk %+v was queued", k)
		}
	}
	before := s.Queue().Len()
	s.Plan(store.ChunkKey{}, Dir{}, res)
	if s.Queue().Len() != before {
		t.Fatalf("second plan changed queue length %d -> %d", before, s.Queue().Len())
	}
}

func TestLookAheadDominantAxis(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BorderRadius = cfg.MaxRadius
	s := New(cfg)
	p := s.Plan(store.ChunkKey{}, Dir{X: 0.9, Z: 0.3}, newFake())
	for sp := -1; sp <= 1; sp++ {
		k := store.ChunkKey{CX: 4, CZ: sp}
		if p.Target[k] != TierPreload {
			t.Fatalf("look-ahead chunk %+v tier %v", k, p.Target[k])
		}
	}
	if _, ok := p.Target[store.ChunkKey{CX: -4}]; ok {
		t.Fatalf("look-ahead went backwards")
	}

	s = New(cfg)
	p = s.Plan(store.ChunkKey{}, Dir{X: 0.1, Z: -0.99}, newFake())
	if p.Target[store.ChunkKey{CZ: -4}] != TierPreload {
		t.Fatalf("expected -Z look-ahead")
	}

	s = New(cfg)
	p = s.Plan(store.ChunkKey{}, Dir{X: 0.2, Z: 0.2}, newFake())
	if len(p.Target) != 49 {
		t.Fatalf("slow movement should not look ahead, target=%d", len(p.Target))
	}
}

func TestBorderExpansionFillsGap(t *testing.T) {
	cfg := DefaultConfig()
	s := New(cfg)
	res := newFake()
	p := s.Plan(store.ChunkKey{}, Dir{}, res)
	if p.Borders != 4 {
		t.Fatalf("borders=%d want 4", p.Borders)
	}
	k := store.ChunkKey{CX: cfg.BorderRadius}
	if !s.Queue().Contains(k) || p.Target[k] != TierBorder {
		t.Fatalf("border chunk %+v not queued", k)
	}
	for _, it := range s.Queue().Items() {
		if it.Tier == TierBorder && it.Priority != 0 {
			t.Fatalf("border priority %d", it.Priority)
		}
	}

	// once everything is resident there is no gap and no corridor
	for _, it := range s.Queue().Items() {
		res.resident[it.Key] = true
	}
	for k := range p.Target {
		res.resident[k] = true
	}
	s.Queue().Clear()
	p = s.Plan(store.ChunkKey{}, Dir{}, res)
	if p.Borders != 0 || s.Queue().Len() != 0 {
		t.Fatalf("borders=%d queue=%d after fill", p.Borders, s.Queue().Len())
	}
	if p.Target[store.ChunkKey{CX: cfg.BorderRadius}] != TierBorder {
		t.Fatalf("corridor chunk dropped from target")
	}
}

func TestPlanDropsUnwantedQueueEntries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BorderRadius = cfg.MaxRadius
	s := New(cfg)
	s.Plan(store.ChunkKey{}, Dir{}, newFake())
	p := s.Plan(store.ChunkKey{CX: 20}, Dir{}, newFake())
	if p.Dropped == 0 {
		t.Fatalf("moving away should cancel queued chunks")
	}
	for _, it := range s.Queue().Items() {
		if mathx.Chebyshev(it.Key.CX, it.Key.CZ, 20, 0) > cfg.PreloadRadius {
			t.Fatalf("stale item %+v survived", it.Key)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	bad := DefaultConfig()
	bad.IdealRadius = 0
	if bad.Validate() == nil {
		t.Fatalf("expected error for ideal < min")
	}
}
