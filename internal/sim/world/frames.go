package world

import (
	"encoding/hex"
	"encoding/json"

	"voxelstream.ai/internal/protocol"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

type chunkSendState struct {
	SentRevision uint64
	SentFull     bool
}

// subscriber is a presentation client fed over a byte channel. Sends never
// block the loop; a full channel defers the payload to a later tick.
type subscriber struct {
	out     chan []byte
	maxFull int
	states  map[store.ChunkKey]*chunkSendState
}

func (s *subscriber) reset() {
	s.states = map[store.ChunkKey]*chunkSendState{}
}

func (s *subscriber) send(v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		return false
	}
	select {
	case s.out <- b:
		return true
	default:
		return false
	}
}

func (w *StreamingContext) publishFrames() {
	for _, s := range w.subs {
		w.stepSubscriber(s)
	}
}

// stepSubscriber sends evictions first, then full payloads for chunks whose
// revision changed (nearest first, up to the budget), then a FRAME.
func (w *StreamingContext) stepSubscriber(s *subscriber) {
	tick := w.clock
	visible := w.Visible()
	onScreen := make(map[store.ChunkKey]struct{}, len(visible))
	for _, k := range visible {
		onScreen[k] = struct{}{}
	}

	var gone []store.ChunkKey
	for k, st := range s.states {
		if _, ok := onScreen[k]; ok {
			continue
		}
		if !st.SentFull || s.send(protocol.ChunkEvictMsg{Type: protocol.TypeChunkEvict, Tick: tick, CX: k.CX, CZ: k.CZ}) {
			gone = append(gone, k)
		}
	}
	for _, k := range gone {
		delete(s.states, k)
	}

	sortByDistance(visible, w.center)
	budget := s.maxFull
	if budget <= 0 {
		budget = w.cfg.MaxChunksPerFrame
	}
	frame := protocol.FrameMsg{
		Type:   protocol.TypeFrame,
		Tick:   tick,
		Center: [2]int{w.center.CX, w.center.CZ},
		Queued: w.sched.Queue().Len(),
	}
	for _, k := range visible {
		ch, _ := w.store.Get(k)
		st := s.states[k]
		if st == nil {
			st = &chunkSendState{}
			s.states[k] = st
		}
		if st.SentRevision != ch.Revision && budget > 0 {
			if s.send(chunkMsg(tick, renderView(ch))) {
				st.SentRevision = ch.Revision
				st.SentFull = true
				budget--
			} else {
				budget = 0
			}
		}
		if !st.SentFull {
			continue
		}
		frame.Chunks = append(frame.Chunks, protocol.ChunkState{
			CX:          k.CX,
			CZ:          k.CZ,
			State:       ch.Fade.State.String(),
			Opacity:     ch.Fade.Opacity,
			Transparent: ch.Fade.Transparent,
		})
	}
	s.send(frame)
}

func chunkMsg(tick uint64, v RenderView) protocol.ChunkMsg {
	m := protocol.ChunkMsg{
		Type:     protocol.TypeChunk,
		Tick:     tick,
		CX:       v.Key.CX,
		CZ:       v.Key.CZ,
		Revision: v.Revision,
		Digest:   hex.EncodeToString(v.Digest[:]),
		State:    v.State.String(),
		Opacity:  v.Opacity,
		Batches:  make([]protocol.BatchEntry, 0, len(v.Batches)),
	}
	for _, b := range v.Batches {
		e := protocol.BatchEntry{
			BlockType:   b.Type.String(),
			Opacity:     b.Opacity,
			Transparent: b.Transparent,
			Positions:   make([][3]int, len(b.Positions)),
		}
		for i, p := range b.Positions {
			e.Positions[i] = [3]int{p.X, p.Y, p.Z}
		}
		m.Batches = append(m.Batches, e)
	}
	return m
}
