package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voxelstream.ai/internal/protocol"
	"voxelstream.ai/internal/sim/world"
)

func startServer(t *testing.T) (*world.StreamingContext, string) {
	t.Helper()
	return startServerWith(t, nil)
}

func startServerWith(t *testing.T, configure func(*Server)) (*world.StreamingContext, string) {
	t.Helper()
	w, err := world.New(world.DefaultConfig(), world.Options{})
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()

	s := NewServer(w, nil)
	if configure != nil {
		configure(s)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		w.Close()
	})
	return w, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readUntil skips messages until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) []byte {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if base.Type == typ {
			return msg
		}
	}
}

func hello(t *testing.T, conn *websocket.Conn) protocol.WelcomeMsg {
	t.Helper()
	send(t, conn, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: "test", MaxChunksPerFrame: 8})
	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeWelcome), &welcome); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	return welcome
}

func TestServer_StreamSession(t *testing.T) {
	_, url := startServer(t)
	conn := dial(t, url)

	welcome := hello(t, conn)
	if welcome.SessionID == "" || welcome.WorldParams.ChunkSize != 16 || welcome.WorldParams.Biome != "forest" {
		t.Fatalf("welcome: %+v", welcome)
	}
	if welcome.BlockPalette.Count == 0 || welcome.BlockPalette.Digest == "" {
		t.Fatalf("palette: %+v", welcome.BlockPalette)
	}

	spawn := welcome.Spawn
	send(t, conn, protocol.ObserveMsg{Type: protocol.TypeObserve, Pos: spawn, Dir: [2]float64{1, 0}})

	var chunk protocol.ChunkMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeChunk), &chunk); err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if len(chunk.Batches) == 0 || chunk.Revision == 0 {
		t.Fatalf("chunk payload: rev=%d batches=%d", chunk.Revision, len(chunk.Batches))
	}
	var frame protocol.FrameMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeFrame), &frame); err != nil {
		t.Fatalf("frame: %v", err)
	}

	send(t, conn, protocol.EditMsg{Type: protocol.TypeEdit, ID: "e1", Pos: [3]int{3, 200, 3}, Action: "add", BlockType: "stone"})
	var res protocol.EditResultMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeEditResult), &res); err != nil {
		t.Fatalf("edit result: %v", err)
	}
	if !res.OK || res.ID != "e1" || !res.Dirty {
		t.Fatalf("edit result: %+v", res)
	}

	send(t, conn, protocol.EditMsg{Type: protocol.TypeEdit, ID: "e2", Pos: [3]int{3, 201, 3}, Action: "add", BlockType: "obsidian"})
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeEditResult), &res); err != nil {
		t.Fatalf("edit result: %v", err)
	}
	if res.OK || res.Code != protocol.ErrUnknownBlock {
		t.Fatalf("unknown block: %+v", res)
	}

	send(t, conn, protocol.EditMsg{Type: protocol.TypeEdit, ID: "e3", Pos: [3]int{3, 200, 3}, Action: "add", BlockType: "stone"})
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeEditResult), &res); err != nil {
		t.Fatalf("edit result: %v", err)
	}
	if res.OK || res.Code != protocol.ErrOccupied {
		t.Fatalf("occupied: %+v", res)
	}

	send(t, conn, protocol.QuerySolidMsg{Type: protocol.TypeQuerySolid, ID: "q1", Pos: [3]float64{3, 200, 3}})
	var solid protocol.SolidResultMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeSolidResult), &solid); err != nil {
		t.Fatalf("solid: %v", err)
	}
	if !solid.Solid || solid.ID != "q1" {
		t.Fatalf("solid result: %+v", solid)
	}

	send(t, conn, protocol.SetTierMsg{Type: protocol.TypeSetTier, Tier: "ultra"})
	var em protocol.ErrorMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeError), &em); err != nil {
		t.Fatalf("error: %v", err)
	}
	if em.Code != protocol.ErrUnknownTier {
		t.Fatalf("tier error code: %s", em.Code)
	}

	send(t, conn, protocol.SetBiomeMsg{Type: protocol.TypeSetBiome, Biome: "desert"})
	var reset protocol.BiomeResetMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeBiomeReset), &reset); err != nil {
		t.Fatalf("biome reset: %v", err)
	}
	if reset.Biome != "desert" {
		t.Fatalf("biome reset: %+v", reset)
	}
}

func TestServer_SecondSessionBusy(t *testing.T) {
	_, url := startServer(t)
	first := dial(t, url)
	hello(t, first)

	second := dial(t, url)
	send(t, second, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version})
	var em protocol.ErrorMsg
	if err := json.Unmarshal(readUntil(t, second, protocol.TypeError), &em); err != nil {
		t.Fatalf("error: %v", err)
	}
	if em.Code != protocol.ErrWorldBusy {
		t.Fatalf("code: got %s want %s", em.Code, protocol.ErrWorldBusy)
	}
}

func TestServer_RejectsBadVersion(t *testing.T) {
	_, url := startServer(t)
	conn := dial(t, url)
	send(t, conn, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: "0.1"})
	var em protocol.ErrorMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeError), &em); err != nil {
		t.Fatalf("error: %v", err)
	}
	if em.Code != protocol.ErrProtoVersion {
		t.Fatalf("code: got %s want %s", em.Code, protocol.ErrProtoVersion)
	}
}

func TestServer_ReconnectAfterClose(t *testing.T) {
	_, url := startServer(t)
	first := dial(t, url)
	hello(t, first)
	_ = first.Close()

	// The handler unsubscribes once its read fails; retry briefly.
	deadline := time.Now().Add(5 * time.Second)
	for {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		send(t, conn, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version})
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		_ = conn.Close()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		base, _ := protocol.DecodeBase(msg)
		if base.Type == protocol.TypeWelcome {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("still busy after reconnect: %s", msg)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestServer_EditRateLimited(t *testing.T) {
	_, url := startServerWith(t, func(s *Server) { s.SetEditLimit(time.Hour, 2) })
	conn := dial(t, url)
	hello(t, conn)

	var res protocol.EditResultMsg
	for i, y := range []int{200, 201, 202} {
		send(t, conn, protocol.EditMsg{Type: protocol.TypeEdit, ID: "e", Pos: [3]int{5, y, 5}, Action: "add", BlockType: "stone"})
		if err := json.Unmarshal(readUntil(t, conn, protocol.TypeEditResult), &res); err != nil {
			t.Fatalf("edit result: %v", err)
		}
		if i < 2 && !res.OK {
			t.Fatalf("edit %d rejected: %+v", i, res)
		}
	}
	if res.OK || res.Code != protocol.ErrRateLimited {
		t.Fatalf("third edit: %+v", res)
	}
}
