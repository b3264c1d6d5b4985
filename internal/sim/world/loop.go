package world

import (
	"context"
	"errors"
	"time"

	"voxelstream.ai/internal/sim/world/terrain/block"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

var (
	ErrStopped = errors.New("world: stopped")
	// ErrBusy is returned to a second subscriber; a world streams around
	// a single observer.
	ErrBusy = errors.New("world: observer already attached")
)

type editReq struct {
	Edit Edit
	Resp chan editResp
}

type editResp struct {
	Result EditResult
	Err    error
}

type biomeReq struct {
	Biome block.Biome
	Resp  chan biomeResp
}

type biomeResp struct {
	Spawn Vec3
	Err   error
}

type capacityReq struct {
	Capacity int
	Resp     chan error
}

type tierReq struct {
	Name string
	Resp chan error
}

type solidReq struct {
	Pos  Vec3
	Resp chan bool
}

type chunksReq struct {
	Resp chan []ChunkInfo
}

type subscribeReq struct {
	Out     chan []byte
	MaxFull int
	Resp    chan subscribeResp
}

// Session is what a new subscriber needs to greet its client.
type Session struct {
	ID            uint64
	Seed          int64
	Biome         block.Biome
	Tier          string
	CacheCapacity int
	TickRateHz    int
	Spawn         Vec3
}

type subscribeResp struct {
	Session Session
	Err     error
}

// Run owns the context on the calling goroutine and ticks at TickRateHz.
// Observer updates are coalesced; the latest one drives the next tick.
func (w *StreamingContext) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case obs := <-w.observeCh:
			w.observer = obs
		case req := <-w.editCh:
			res, err := w.ApplyEdit(req.Edit)
			req.Resp <- editResp{Result: res, Err: err}
		case req := <-w.biomeCh:
			spawn, err := w.SetBiome(req.Biome)
			req.Resp <- biomeResp{Spawn: spawn, Err: err}
		case req := <-w.capacityCh:
			req.Resp <- w.SetCacheCapacity(req.Capacity)
		case req := <-w.tierCh:
			req.Resp <- w.ApplyTier(req.Name)
		case req := <-w.solidCh:
			req.Resp <- w.IsSolid(req.Pos)
		case req := <-w.chunksCh:
			req.Resp <- w.ChunkInfos()
		case req := <-w.subscribeCh:
			req.Resp <- w.subscribe(req)
		case id := <-w.unsubscribeCh:
			delete(w.subs, id)
		case now := <-ticker.C:
			delta := now.Sub(last).Seconds()
			last = now
			w.Tick(w.observer, delta)
		}
	}
}

func (w *StreamingContext) subscribe(req subscribeReq) subscribeResp {
	if len(w.subs) > 0 {
		return subscribeResp{Err: ErrBusy}
	}
	w.nextSub++
	w.subs[w.nextSub] = &subscriber{out: req.Out, maxFull: req.MaxFull, states: map[store.ChunkKey]*chunkSendState{}}
	return subscribeResp{Session: Session{
		ID:            w.nextSub,
		Seed:          w.cfg.Seed,
		Biome:         w.cfg.Biome,
		Tier:          w.tier,
		CacheCapacity: w.cache.Capacity(),
		TickRateHz:    w.cfg.TickRateHz,
		Spawn:         w.spawn,
	}}
}

func (w *StreamingContext) Stop() {
	if w.stopped.CompareAndSwap(false, true) {
		close(w.stop)
	}
}

// call sends req on ch and waits for the reply, both bounded by ctx.
func call[Req any, Resp any](ctx context.Context, stop <-chan struct{}, ch chan<- Req, req Req, resp <-chan Resp) (Resp, error) {
	var zero Resp
	select {
	case ch <- req:
	case <-stop:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case r := <-resp:
		return r, nil
	case <-stop:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Observe hands the next observer state to the loop without waiting.
// When the buffer is full the update is dropped; a newer one follows.
func (w *StreamingContext) Observe(obs Observer) bool {
	select {
	case w.observeCh <- obs:
		return true
	default:
		return false
	}
}

func (w *StreamingContext) RequestEdit(ctx context.Context, e Edit) (EditResult, error) {
	req := editReq{Edit: e, Resp: make(chan editResp, 1)}
	r, err := call(ctx, w.stop, w.editCh, req, req.Resp)
	if err != nil {
		return EditResult{}, err
	}
	return r.Result, r.Err
}

func (w *StreamingContext) RequestSetBiome(ctx context.Context, b block.Biome) (Vec3, error) {
	req := biomeReq{Biome: b, Resp: make(chan biomeResp, 1)}
	r, err := call(ctx, w.stop, w.biomeCh, req, req.Resp)
	if err != nil {
		return Vec3{}, err
	}
	return r.Spawn, r.Err
}

func (w *StreamingContext) RequestCacheCapacity(ctx context.Context, n int) error {
	req := capacityReq{Capacity: n, Resp: make(chan error, 1)}
	r, err := call(ctx, w.stop, w.capacityCh, req, req.Resp)
	if err != nil {
		return err
	}
	return r
}

func (w *StreamingContext) RequestTier(ctx context.Context, name string) error {
	req := tierReq{Name: name, Resp: make(chan error, 1)}
	r, err := call(ctx, w.stop, w.tierCh, req, req.Resp)
	if err != nil {
		return err
	}
	return r
}

func (w *StreamingContext) RequestIsSolid(ctx context.Context, p Vec3) (bool, error) {
	req := solidReq{Pos: p, Resp: make(chan bool, 1)}
	return call(ctx, w.stop, w.solidCh, req, req.Resp)
}

// RequestChunks lists resident and hibernated chunks from the loop goroutine.
func (w *StreamingContext) RequestChunks(ctx context.Context) ([]ChunkInfo, error) {
	req := chunksReq{Resp: make(chan []ChunkInfo, 1)}
	return call(ctx, w.stop, w.chunksCh, req, req.Resp)
}

// Subscribe registers out for CHUNK, CHUNK_EVICT and FRAME messages.
// maxFull caps full chunk payloads per tick; 0 uses the configured default.
func (w *StreamingContext) Subscribe(ctx context.Context, out chan []byte, maxFull int) (Session, error) {
	req := subscribeReq{Out: out, MaxFull: maxFull, Resp: make(chan subscribeResp, 1)}
	r, err := call(ctx, w.stop, w.subscribeCh, req, req.Resp)
	if err != nil {
		return Session{}, err
	}
	return r.Session, r.Err
}

func (w *StreamingContext) Unsubscribe(id uint64) {
	select {
	case w.unsubscribeCh <- id:
	case <-w.stop:
	}
}
