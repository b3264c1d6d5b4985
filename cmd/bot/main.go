package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"voxelstream.ai/internal/protocol"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "client name")
		speed    = flag.Float64("speed", 8, "walk speed in blocks per second")
		heading  = flag.Float64("heading", 0, "walk heading in degrees (0 = +X)")
		editRate = flag.Int("edit_every", 40, "send an EDIT every N observer updates (0 disables)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	_, msg, err := conn.ReadMessage()
	if err != nil {
		logger.Fatalf("read WELCOME: %v", err)
	}
	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(msg, &welcome); err != nil || welcome.Type != protocol.TypeWelcome {
		logger.Fatalf("expected WELCOME, got %s", msg)
	}
	logger.Printf("WELCOME session=%s seed=%d biome=%s spawn=%v", welcome.SessionID, welcome.WorldParams.Seed, welcome.WorldParams.Biome, welcome.Spawn)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		readLoop(conn, logger)
	}()

	rad := *heading * math.Pi / 180
	dir := [2]float64{math.Cos(rad), math.Sin(rad)}
	pos := welcome.Spawn
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	var n int
	for {
		select {
		case <-stop:
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
			return
		case <-readDone:
			return
		case <-ticker.C:
		}
		pos[0] += dir[0] * *speed * 0.1
		pos[2] += dir[1] * *speed * 0.1
		if err := conn.WriteJSON(protocol.ObserveMsg{Type: protocol.TypeObserve, Pos: pos, Dir: dir}); err != nil {
			logger.Printf("send OBSERVE: %v", err)
			return
		}
		n++
		if *editRate > 0 && n%*editRate == 0 {
			// Dig a random block near the observer.
			target := [3]int{
				int(math.Floor(pos[0])) + r.Intn(9) - 4,
				int(math.Floor(pos[1])) - 1,
				int(math.Floor(pos[2])) + r.Intn(9) - 4,
			}
			edit := protocol.EditMsg{
				Type:   protocol.TypeEdit,
				ID:     fmt.Sprintf("E_%d", n),
				Pos:    target,
				Action: "remove",
			}
			if err := conn.WriteJSON(edit); err != nil {
				logger.Printf("send EDIT: %v", err)
				return
			}
		}
	}
}

func readLoop(conn *websocket.Conn, logger *log.Logger) {
	var chunks, evicts, frames, edits int
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Printf("read: %v", err)
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeChunk:
			chunks++
		case protocol.TypeChunkEvict:
			evicts++
		case protocol.TypeFrame:
			frames++
			if frames%100 == 0 {
				var f protocol.FrameMsg
				if err := json.Unmarshal(msg, &f); err == nil {
					logger.Printf("FRAME tick=%d center=%v on_screen=%d queued=%d chunks=%d evicts=%d edits=%d", f.Tick, f.Center, len(f.Chunks), f.Queued, chunks, evicts, edits)
				}
			}
		case protocol.TypeEditResult:
			var er protocol.EditResultMsg
			if err := json.Unmarshal(msg, &er); err != nil {
				continue
			}
			if er.OK {
				edits++
			} else {
				logger.Printf("EDIT %s rejected: %s %s", er.ID, er.Code, er.Message)
			}
		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err == nil {
				logger.Printf("ERROR %s: %s", e.Code, e.Message)
			}
		}
	}
}
