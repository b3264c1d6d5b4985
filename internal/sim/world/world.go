package world

import (
	"fmt"
	"log"
	"sync/atomic"

	"voxelstream.ai/internal/sim/world/feature/streaming/fade"
	"voxelstream.ai/internal/sim/world/feature/streaming/schedule"
	"voxelstream.ai/internal/sim/world/feature/streaming/worker"
	"voxelstream.ai/internal/sim/world/terrain/cache"
	"voxelstream.ai/internal/sim/world/terrain/gen"
	"voxelstream.ai/internal/sim/world/terrain/ledger"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Observer is the per-tick input from the gameplay layer.
type Observer struct {
	Pos Vec3
	// Dir is the movement direction, normalized or zero.
	Dir schedule.Dir
}

type Options struct {
	Logger *log.Logger
	// Executor runs queued generation. Nil means synchronous.
	Executor worker.Executor
	// Generate is used for the immediate ring and dirty rebuilds, which
	// always run on the calling goroutine. Nil means worker.Generate.
	Generate worker.Func
	// Ledger is the modification backend. Nil means in-memory.
	Ledger     ledger.Backend
	EventSinks []EventSink
	EditSinks  []EditSink
}

type inflight struct {
	id   uint64
	key  store.ChunkKey
	tier schedule.Tier
	// superseded requests were overtaken by a reset or a synchronous
	// generation; their result is discarded on arrival.
	superseded bool
}

// StreamingContext owns the resident chunks, the hibernation cache, the
// modification ledger and the pending generation set. All state must be
// accessed only from one goroutine; Run provides that loop.
type StreamingContext struct {
	cfg    Config
	logger *log.Logger

	sampler gen.Sampler
	store   *store.ChunkStore
	cache   *cache.ChunkCache
	ledger  *ledger.Ledger
	sched   *schedule.Scheduler
	fades   *fade.Controller

	exec     worker.Executor
	generate worker.Func

	clock     uint64
	nextReqID uint64
	inflight  *inflight
	failures  map[store.ChunkKey]int
	abandoned map[store.ChunkKey]struct{}
	dirty     []store.ChunkKey
	target    map[store.ChunkKey]schedule.Tier
	center    store.ChunkKey
	observer  Observer
	spawn     Vec3
	tier      string

	eventSinks []EventSink
	editSinks  []EditSink
	totals     Totals
	metrics    atomic.Value

	subs    map[uint64]*subscriber
	nextSub uint64

	observeCh     chan Observer
	editCh        chan editReq
	biomeCh       chan biomeReq
	capacityCh    chan capacityReq
	tierCh        chan tierReq
	solidCh       chan solidReq
	chunksCh      chan chunksReq
	subscribeCh   chan subscribeReq
	unsubscribeCh chan uint64
	stop          chan struct{}
	stopped       atomic.Bool
}

func New(cfg Config, opts Options) (*StreamingContext, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("world config: %w", err)
	}
	exec := opts.Executor
	if exec == nil {
		exec = worker.NewSync(opts.Generate)
	}
	genFn := opts.Generate
	if genFn == nil {
		genFn = worker.Generate
	}
	w := &StreamingContext{
		cfg:           cfg,
		logger:        opts.Logger,
		sampler:       gen.Sampler{Seed: cfg.Seed},
		store:         store.NewChunkStore(opts.Logger),
		cache:         cache.New(cfg.CacheCapacity, opts.Logger),
		ledger:        ledger.New(opts.Ledger),
		sched:         schedule.New(cfg.Schedule),
		fades:         fade.NewController(cfg.Fade),
		exec:          exec,
		generate:      genFn,
		failures:      map[store.ChunkKey]int{},
		abandoned:     map[store.ChunkKey]struct{}{},
		target:        map[store.ChunkKey]schedule.Tier{},
		eventSinks:    opts.EventSinks,
		editSinks:     opts.EditSinks,
		subs:          map[uint64]*subscriber{},
		observeCh:     make(chan Observer, 64),
		editCh:        make(chan editReq, 64),
		biomeCh:       make(chan biomeReq, 4),
		capacityCh:    make(chan capacityReq, 4),
		tierCh:        make(chan tierReq, 4),
		solidCh:       make(chan solidReq, 64),
		chunksCh:      make(chan chunksReq, 4),
		subscribeCh:   make(chan subscribeReq, 4),
		unsubscribeCh: make(chan uint64, 4),
		stop:          make(chan struct{}),
	}
	w.spawn = w.SafeSpawn()
	w.observer = Observer{Pos: w.spawn}
	w.publishMetrics(0)
	return w, nil
}

func (w *StreamingContext) Config() Config            { return w.cfg }
func (w *StreamingContext) CurrentTick() uint64       { return w.clock }
func (w *StreamingContext) Spawn() Vec3               { return w.spawn }
func (w *StreamingContext) Store() *store.ChunkStore  { return w.store }
func (w *StreamingContext) Cache() *cache.ChunkCache  { return w.cache }
func (w *StreamingContext) Ledger() *ledger.Ledger    { return w.ledger }
func (w *StreamingContext) Queue() *schedule.Queue    { return w.sched.Queue() }
func (w *StreamingContext) Sampler() gen.Sampler      { return w.sampler }
func (w *StreamingContext) Center() store.ChunkKey    { return w.center }
func (w *StreamingContext) InFlightKey() (store.ChunkKey, bool) {
	if w.inflight == nil || w.inflight.superseded {
		return store.ChunkKey{}, false
	}
	return w.inflight.key, true
}

// Target returns the tier of k in the last plan.
func (w *StreamingContext) Target(k store.ChunkKey) (schedule.Tier, bool) {
	t, ok := w.target[k]
	return t, ok
}

// Close stops the background executor.
func (w *StreamingContext) Close() { w.exec.Close() }

// residency adapts the context to schedule.Residency.
type residency struct{ w *StreamingContext }

func (r residency) Resident(k store.ChunkKey) bool { return r.w.store.Has(k) }
func (r residency) Cached(k store.ChunkKey) bool   { return r.w.cache.Has(k) }
func (r residency) InFlight(k store.ChunkKey) bool {
	return r.w.inflight != nil && !r.w.inflight.superseded && r.w.inflight.key == k
}
func (r residency) Abandoned(k store.ChunkKey) bool {
	_, ok := r.w.abandoned[k]
	return ok
}

func (w *StreamingContext) request(k store.ChunkKey) worker.Request {
	w.nextReqID++
	return worker.Request{
		ID:            w.nextReqID,
		Key:           k,
		Biome:         w.cfg.Biome,
		Seed:          w.cfg.Seed,
		Depth:         w.cfg.ColumnDepth,
		Modifications: w.ledger.RecordsFor(k),
		LedgerSeq:     w.ledger.LatestSeq(k),
	}
}
