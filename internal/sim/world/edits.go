package world

import (
	"errors"
	"fmt"

	"voxelstream.ai/internal/sim/world/terrain/block"
	"voxelstream.ai/internal/sim/world/terrain/ledger"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

var ErrOccupied = errors.New("world: position occupied")

// Edit is an add/remove event from the interaction layer.
type Edit struct {
	Pos    block.Pos
	Action ledger.Action
	Block  block.Type
}

// EditResult says how an edit reached the live world.
type EditResult struct {
	Record ledger.Record
	// Patched means the resident chunk's block map was updated in place.
	Patched bool
	// Dirty means the chunk was queued for a full rebuild.
	Dirty bool
}

// ApplyEdit records the edit in the ledger and patches the resident chunk
// where it can. Removing a block patches in place. Placing a block needs a
// new batch entry, so the chunk is patched for collision and marked dirty.
// Edits to chunks that are not resident only touch the ledger.
func (w *StreamingContext) ApplyEdit(e Edit) (EditResult, error) {
	var res EditResult
	k := store.KeyOf(e.Pos)
	ch, resident := w.store.Get(k)
	if e.Action == ledger.Add && resident {
		if t, occ := ch.Get(e.Pos); occ {
			return res, fmt.Errorf("%w: %v at %d,%d,%d", ErrOccupied, t, e.Pos.X, e.Pos.Y, e.Pos.Z)
		}
	}
	prev := w.ledger.LatestSeq(k)
	rec, err := w.ledger.Record(e.Pos, e.Action, e.Block)
	if err != nil {
		return res, err
	}
	res.Record = rec

	if resident {
		upToDate := !ch.Dirty && ch.LedgerSeq == prev
		switch e.Action {
		case ledger.Remove:
			res.Patched = ch.Set(e.Pos, block.Air)
			if upToDate {
				ch.LedgerSeq = rec.Seq
			}
		case ledger.Add:
			res.Patched = ch.Set(e.Pos, rec.Block)
			w.markDirty(ch)
			res.Dirty = true
		}
	}

	w.totals.Edits++
	entry := EditEntry{
		Seq:     rec.Seq,
		Pos:     [3]int{e.Pos.X, e.Pos.Y, e.Pos.Z},
		Action:  rec.Action.String(),
		Patched: res.Patched,
		Dirty:   res.Dirty,
	}
	if rec.Action == ledger.Add {
		entry.Block = rec.Block.String()
	}
	w.emitEdit(entry)
	return res, nil
}
