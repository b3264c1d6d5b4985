package schedule

import (
	"math"
	"sort"

	"voxelstream.ai/internal/sim/world/logic/mathx"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

// Residency is what the scheduler needs to know about current ownership.
type Residency interface {
	Resident(store.ChunkKey) bool
	Cached(store.ChunkKey) bool
	InFlight(store.ChunkKey) bool
	// Abandoned keys failed generation and must not be queued again.
	Abandoned(store.ChunkKey) bool
}

type Dir struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

// Plan is the outcome of one scheduling pass.
type Plan struct {
	Center store.ChunkKey
	// Target is every chunk that should be resident, with its tier.
	Target map[store.ChunkKey]Tier
	// Immediate lists the inner ring in distance order; the caller must
	// make these resident this tick.
	Immediate []store.ChunkKey
	Enqueued  []Item
	Dropped   int
	// Borders counts axes where a gap triggered a corridor this pass.
	Borders int
}

type Scheduler struct {
	cfg   Config
	queue *Queue
	// border keeps corridor chunks wanted until they leave BorderRadius.
	border map[store.ChunkKey]struct{}
}

func New(cfg Config) *Scheduler {
	return &Scheduler{cfg: cfg, queue: NewQueue(), border: map[store.ChunkKey]struct{}{}}
}

func (s *Scheduler) Config() Config { return s.cfg }

// SetConfig swaps radii at runtime. Corridors tracked so far are kept and
// pruned on the next plan.
func (s *Scheduler) SetConfig(cfg Config) { s.cfg = cfg }

func (s *Scheduler) Queue() *Queue { return s.queue }

// Reset forgets the queue and every border corridor.
func (s *Scheduler) Reset() {
	s.queue.Clear()
	s.border = map[store.ChunkKey]struct{}{}
}

// Plan computes the target set around center and enqueues what is missing.
func (s *Scheduler) Plan(center store.ChunkKey, dir Dir, res Residency) Plan {
	p := Plan{Center: center, Target: map[store.ChunkKey]Tier{}}

	missing := func(k store.ChunkKey) bool {
		return !res.Resident(k) && !res.Cached(k) && !res.InFlight(k) && !res.Abandoned(k)
	}
	want := func(k store.ChunkKey, tier Tier) {
		if cur, ok := p.Target[k]; ok && cur.Priority() >= tier.Priority() {
			return
		}
		p.Target[k] = tier
	}

	r := s.cfg.MaxRadius
	for dx := -r; dx <= r; dx++ {
		for dz := -r; dz <= r; dz++ {
			k := store.ChunkKey{CX: center.CX + dx, CZ: center.CZ + dz}
			d := mathx.Chebyshev(k.CX, k.CZ, center.CX, center.CZ)
			switch {
			case d <= s.cfg.MinRadius:
				want(k, TierImmediate)
				p.Immediate = append(p.Immediate, k)
			case d <= s.cfg.IdealRadius:
				want(k, TierIdeal)
			default:
				want(k, TierMax)
			}
		}
	}
	sort.Slice(p.Immediate, func(i, j int) bool {
		di := mathx.Chebyshev(p.Immediate[i].CX, p.Immediate[i].CZ, center.CX, center.CZ)
		dj := mathx.Chebyshev(p.Immediate[j].CX, p.Immediate[j].CZ, center.CX, center.CZ)
		if di != dj {
			return di < dj
		}
		return p.Immediate[i].Less(p.Immediate[j])
	})

	for _, k := range s.lookAhead(center, dir) {
		want(k, TierPreload)
	}

	for k := range s.border {
		if mathx.Chebyshev(k.CX, k.CZ, center.CX, center.CZ) > s.cfg.BorderRadius {
			delete(s.border, k)
			continue
		}
		want(k, TierBorder)
	}

	// Queued chunks that fell out of the target are cancelled; the rest
	// take the tier and distance of this pass.
	p.Dropped = s.queue.Update(func(it Item) (Item, bool) {
		tier, ok := p.Target[it.Key]
		if !ok || tier == TierImmediate {
			return it, false
		}
		it.Tier = tier
		it.Dist = mathx.Chebyshev(it.Key.CX, it.Key.CZ, center.CX, center.CZ)
		return it, true
	})

	for k, tier := range p.Target {
		if tier == TierImmediate || !missing(k) {
			continue
		}
		d := mathx.Chebyshev(k.CX, k.CZ, center.CX, center.CZ)
		if s.queue.Push(k, tier, d) {
			p.Enqueued = append(p.Enqueued, Item{Key: k, Tier: tier, Priority: tier.Priority(), Dist: d})
		}
	}

	// Border expansion runs after the rings are queued so a gap means
	// nothing owns or awaits the chunk.
	gap := func(k store.ChunkKey) bool { return missing(k) && !s.queue.Contains(k) }
	for _, axis := range [...][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
		corridor := s.borderCorridor(center, axis, gap)
		if len(corridor) == 0 {
			continue
		}
		grew := false
		for _, k := range corridor {
			if !gap(k) {
				continue
			}
			d := mathx.Chebyshev(k.CX, k.CZ, center.CX, center.CZ)
			if s.queue.Push(k, TierBorder, d) {
				s.border[k] = struct{}{}
				want(k, TierBorder)
				p.Enqueued = append(p.Enqueued, Item{Key: k, Tier: TierBorder, Priority: TierBorder.Priority(), Dist: d})
				grew = true
			}
		}
		if grew {
			p.Borders++
		}
	}

	sort.Slice(p.Enqueued, func(i, j int) bool { return less(p.Enqueued[i], p.Enqueued[j]) })
	return p
}

// lookAhead returns the cone beyond MaxRadius along the dominant movement axis.
func (s *Scheduler) lookAhead(center store.ChunkKey, dir Dir) []store.ChunkKey {
	if dir.X*dir.X+dir.Z*dir.Z <= s.cfg.LookAheadThreshold {
		return nil
	}
	lx := int(math.Round(dir.X * s.cfg.LookAheadScale))
	lz := int(math.Round(dir.Z * s.cfg.LookAheadScale))
	if lx == 0 && lz == 0 {
		return nil
	}
	var out []store.ChunkKey
	for d := s.cfg.MaxRadius + 1; d <= s.cfg.PreloadRadius; d++ {
		for sp := -s.cfg.LookAheadSpread; sp <= s.cfg.LookAheadSpread; sp++ {
			var k store.ChunkKey
			if mathx.AbsInt(lx) > mathx.AbsInt(lz) {
				k = store.ChunkKey{CX: center.CX + sign(lx)*d, CZ: center.CZ + sp}
			} else {
				k = store.ChunkKey{CX: center.CX + sp, CZ: center.CZ + sign(lz)*d}
			}
			out = append(out, k)
		}
	}
	return out
}

// borderCorridor scans one axis outward from MaxRadius. At the first gap it
// returns a corridor from that distance out to BorderRadius.
func (s *Scheduler) borderCorridor(center store.ChunkKey, axis [2]int, gap func(store.ChunkKey) bool) []store.ChunkKey {
	at := func(d, sp int) store.ChunkKey {
		k := store.ChunkKey{CX: center.CX + axis[0]*d, CZ: center.CZ + axis[1]*d}
		if axis[0] != 0 {
			k.CZ += sp
		} else {
			k.CX += sp
		}
		return k
	}
	for d := s.cfg.MaxRadius; d <= s.cfg.BorderRadius; d++ {
		found := false
		for sp := -s.cfg.BorderProbeSpread; sp <= s.cfg.BorderProbeSpread; sp++ {
			if gap(at(d, sp)) {
				found = true
				break
			}
		}
		if !found {
			continue
		}
		var out []store.ChunkKey
		for e := d; e <= s.cfg.BorderRadius; e++ {
			for sp := -s.cfg.BorderCorridorSpread; sp <= s.cfg.BorderCorridorSpread; sp++ {
				out = append(out, at(e, sp))
			}
		}
		return out
	}
	return nil
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
