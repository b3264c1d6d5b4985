package world

import (
	"sort"

	"voxelstream.ai/internal/sim/world/feature/streaming/fade"
	"voxelstream.ai/internal/sim/world/logic/mathx"
	"voxelstream.ai/internal/sim/world/terrain/block"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

// Batch is the render export of one block type in one chunk.
type Batch struct {
	Type      block.Type
	Positions []block.Pos
	// Opacity is the chunk opacity times the material's base opacity.
	Opacity     float64
	Transparent bool
}

// RenderView is what a presentation layer needs to draw one chunk.
type RenderView struct {
	Key      store.ChunkKey
	State    fade.State
	Opacity  float64
	Revision uint64
	Digest   [32]byte
	Batches  []Batch
}

// RenderBatches exports the chunk at k if it is on screen.
func (w *StreamingContext) RenderBatches(k store.ChunkKey) (RenderView, bool) {
	ch, ok := w.store.Get(k)
	if !ok || !ch.Fade.OnScreen() {
		return RenderView{}, false
	}
	return renderView(ch), true
}

func renderView(ch *store.Chunk) RenderView {
	v := RenderView{
		Key:      ch.Key,
		State:    ch.Fade.State,
		Opacity:  ch.Fade.Opacity,
		Revision: ch.Revision,
		Digest:   ch.Digest(),
	}
	for t, ps := range ch.Batches() {
		p := t.Props()
		v.Batches = append(v.Batches, Batch{
			Type:        t,
			Positions:   ps,
			Opacity:     ch.Fade.Opacity * p.Opacity,
			Transparent: ch.Fade.Transparent || p.Translucent,
		})
	}
	sort.Slice(v.Batches, func(i, j int) bool { return v.Batches[i].Type < v.Batches[j].Type })
	return v
}

// Visible lists on-screen chunk keys in key order.
func (w *StreamingContext) Visible() []store.ChunkKey {
	var out []store.ChunkKey
	for _, k := range w.store.Keys() {
		if ch, _ := w.store.Get(k); ch.Fade.OnScreen() {
			out = append(out, k)
		}
	}
	return out
}

func sortByDistance(keys []store.ChunkKey, center store.ChunkKey) {
	sort.Slice(keys, func(i, j int) bool {
		di := mathx.Chebyshev(keys[i].CX, keys[i].CZ, center.CX, center.CZ)
		dj := mathx.Chebyshev(keys[j].CX, keys[j].CZ, center.CX, center.CZ)
		if di != dj {
			return di < dj
		}
		return keys[i].Less(keys[j])
	})
}

// ChunkInfo is the inspection row of one owned chunk.
type ChunkInfo struct {
	CX           int     `json:"cx"`
	CZ           int     `json:"cz"`
	State        string  `json:"state"`
	Opacity      float64 `json:"opacity"`
	Revision     uint64  `json:"revision"`
	Blocks       int     `json:"blocks"`
	Dirty        bool    `json:"dirty"`
	LedgerSeq    uint64  `json:"ledger_seq"`
	LastAccessed uint64  `json:"last_accessed"`
}

// ChunkInfos lists resident chunks in key order, then cached ones oldest first.
func (w *StreamingContext) ChunkInfos() []ChunkInfo {
	out := make([]ChunkInfo, 0, w.store.Len()+w.cache.Len())
	row := func(ch *store.Chunk) ChunkInfo {
		return ChunkInfo{
			CX:           ch.Key.CX,
			CZ:           ch.Key.CZ,
			State:        ch.Fade.State.String(),
			Opacity:      ch.Fade.Opacity,
			Revision:     ch.Revision,
			Blocks:       len(ch.Blocks),
			Dirty:        ch.Dirty,
			LedgerSeq:    ch.LedgerSeq,
			LastAccessed: ch.LastAccessed,
		}
	}
	for _, k := range w.store.Keys() {
		ch, _ := w.store.Get(k)
		out = append(out, row(ch))
	}
	for _, k := range w.cache.Keys() {
		if e, ok := w.cache.Peek(k); ok {
			out = append(out, row(e.Chunk))
		}
	}
	return out
}
