package ledger

import (
	"errors"
	"fmt"
	"time"

	"voxelstream.ai/internal/sim/world/terrain/block"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

var (
	ErrBadAction    = errors.New("ledger: bad action")
	ErrNotPlaceable = errors.New("ledger: block type not placeable")
	ErrOutOfBounds  = errors.New("ledger: position out of bounds")
)

type Action uint8

const (
	Add Action = iota + 1
	Remove
)

func (a Action) String() string {
	switch a {
	case Add:
		return "add"
	case Remove:
		return "remove"
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

func ParseAction(s string) (Action, error) {
	switch s {
	case "add":
		return Add, nil
	case "remove":
		return Remove, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrBadAction, s)
}

// Record overrides the natural value of one block. Block is set iff Action is Add.
type Record struct {
	Pos    block.Pos
	Action Action
	Block  block.Type
	Seq    uint64
	At     time.Time
}

// Backend stores records. Implementations must be safe for one writer and
// many concurrent readers.
type Backend interface {
	Put(key store.ChunkKey, r Record)
	// Records returns a copy of every record for key.
	Records(key store.ChunkKey) map[block.Pos]Record
	LatestSeq(key store.ChunkKey) uint64
	Len() int
	Reset()
}

// Ledger is the single source of truth for player edits.
type Ledger struct {
	backend Backend
	now     func() time.Time
	seq     uint64
}

func New(backend Backend) *Ledger {
	if backend == nil {
		backend = NewMemory()
	}
	return &Ledger{backend: backend, now: time.Now}
}

// Record appends an edit. The newest record for a position replaces older ones.
func (l *Ledger) Record(p block.Pos, a Action, t block.Type) (Record, error) {
	if !p.InBounds() {
		return Record{}, fmt.Errorf("%w: y=%d", ErrOutOfBounds, p.Y)
	}
	switch a {
	case Add:
		if !t.Valid() || !t.Props().Placeable {
			return Record{}, fmt.Errorf("%w: %v", ErrNotPlaceable, t)
		}
	case Remove:
		t = block.Air
	default:
		return Record{}, ErrBadAction
	}
	l.seq++
	r := Record{Pos: p, Action: a, Block: t, Seq: l.seq, At: l.now()}
	l.backend.Put(store.KeyOf(p), r)
	return r, nil
}

func (l *Ledger) RecordsFor(key store.ChunkKey) map[block.Pos]Record {
	return l.backend.Records(key)
}

// LatestSeq is the sequence of the newest record in key, or 0.
func (l *Ledger) LatestSeq(key store.ChunkKey) uint64 {
	return l.backend.LatestSeq(key)
}

func (l *Ledger) Len() int { return l.backend.Len() }

// Clear drops every record. Sequence numbers keep increasing.
func (l *Ledger) Clear() { l.backend.Reset() }

// Overlay applies records onto natural blocks in place. Remove suppresses,
// Add overrides, and Adds where nothing was generated are inserted.
func Overlay(blocks map[block.Pos]block.Type, records map[block.Pos]Record) {
	for p, r := range records {
		switch r.Action {
		case Remove:
			delete(blocks, p)
		case Add:
			blocks[p] = r.Block
		}
	}
}
