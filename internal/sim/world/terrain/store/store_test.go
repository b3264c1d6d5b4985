package store

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"voxelstream.ai/internal/sim/world/terrain/block"
)

func TestKeyOfNegative(t *testing.T) {
	if k := KeyOf(block.Pos{X: -1, Y: 3, Z: 16}); k != (ChunkKey{CX: -1, CZ: 1}) {
		t.Fatalf("got %+v", k)
	}
	if k := KeyOf(block.Pos{X: 15, Z: 0}); k != (ChunkKey{}) {
		t.Fatalf("got %+v", k)
	}
}

func TestPutRejectsDuplicate(t *testing.T) {
	var buf bytes.Buffer
	s := NewChunkStore(log.New(&buf, "", 0))
	a := NewChunk(ChunkKey{CX: 1}, block.Forest, nil)
	b := NewChunk(ChunkKey{CX: 1}, block.Forest, nil)
	if !s.Put(a) {
		t.Fatalf("first put failed")
	}
	if s.Put(b) {
		t.Fatalf("duplicate put accepted")
	}
	if got, _ := s.Get(ChunkKey{CX: 1}); got != a {
		t.Fatalf("duplicate put replaced the resident chunk")
	}
	if !strings.Contains(buf.String(), "reject") {
		t.Fatalf("expected diagnostic log, got %q", buf.String())
	}
}

func TestIsSolid(t *testing.T) {
	s := NewChunkStore(nil)
	ch := NewChunk(ChunkKey{}, block.Plains, map[block.Pos]block.Type{
		{X: 2, Y: 8, Z: 3}: block.Grass,
		{X: 4, Y: 8, Z: 4}: block.Water,
	})
	s.Put(ch)
	if !s.IsSolid(2.4, 8.9, 2.6) {
		t.Fatalf("expected grass to be solid")
	}
	if s.IsSolid(4, 8, 4) {
		t.Fatalf("water must not be solid")
	}
	if s.IsSolid(2, 9, 3) {
		t.Fatalf("air above grass must not be solid")
	}
	if s.IsSolid(40, 8, 40) {
		t.Fatalf("non-resident chunk must not be solid")
	}
}

func TestKeysSorted(t *testing.T) {
	s := NewChunkStore(nil)
	for _, k := range []ChunkKey{{CX: 1, CZ: 0}, {CX: -1, CZ: 2}, {CX: -1, CZ: -2}, {CX: 0, CZ: 0}} {
		s.Put(NewChunk(k, block.Forest, nil))
	}
	got := s.Keys()
	want := []ChunkKey{{CX: -1, CZ: -2}, {CX: -1, CZ: 2}, {CX: 0, CZ: 0}, {CX: 1, CZ: 0}}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("keys[%d]=%+v want %+v", i, got[i], want[i])
		}
	}
}

func TestDigestTracksRevision(t *testing.T) {
	ch := NewChunk(ChunkKey{}, block.Forest, map[block.Pos]block.Type{{X: 1, Y: 2, Z: 3}: block.Stone})
	d1 := ch.Digest()
	if ch.Set(block.Pos{X: 1, Y: 2, Z: 3}, block.Stone) {
		t.Fatalf("no-op set reported a change")
	}
	if ch.Digest() != d1 {
		t.Fatalf("digest changed without a block change")
	}
	ch.Set(block.Pos{X: 1, Y: 2, Z: 3}, block.Air)
	if ch.Digest() == d1 {
		t.Fatalf("digest did not change after removal")
	}
}

func TestBatchesSorted(t *testing.T) {
	ch := NewChunk(ChunkKey{}, block.Forest, map[block.Pos]block.Type{
		{X: 3, Y: 5, Z: 0}: block.Dirt,
		{X: 1, Y: 5, Z: 0}: block.Dirt,
		{X: 0, Y: 4, Z: 9}: block.Dirt,
		{X: 0, Y: 6, Z: 0}: block.Grass,
	})
	b := ch.Batches()
	if len(b) != 2 || len(b[block.Dirt]) != 3 {
		t.Fatalf("unexpected batches %+v", b)
	}
	d := b[block.Dirt]
	if d[0] != (block.Pos{X: 0, Y: 4, Z: 9}) || d[1] != (block.Pos{X: 1, Y: 5, Z: 0}) {
		t.Fatalf("batch not sorted: %+v", d)
	}
}
