package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voxelstream.ai/internal/protocol"
	"voxelstream.ai/internal/sim/world"
	"voxelstream.ai/internal/sim/world/feature/streaming/schedule"
	"voxelstream.ai/internal/sim/world/logic/rates"
	"voxelstream.ai/internal/sim/world/terrain/block"
	"voxelstream.ai/internal/sim/world/terrain/ledger"
)

// Engine is the part of the streaming world the transport drives.
type Engine interface {
	Subscribe(ctx context.Context, out chan []byte, maxFull int) (world.Session, error)
	Unsubscribe(id uint64)
	Observe(obs world.Observer) bool
	RequestEdit(ctx context.Context, e world.Edit) (world.EditResult, error)
	RequestSetBiome(ctx context.Context, b block.Biome) (world.Vec3, error)
	RequestCacheCapacity(ctx context.Context, n int) error
	RequestTier(ctx context.Context, name string) error
	RequestIsSolid(ctx context.Context, p world.Vec3) (bool, error)
}

type Server struct {
	world Engine
	log   *log.Logger

	upgrader websocket.Upgrader

	editWindow time.Duration
	editMax    int
}

func NewServer(w Engine, logger *log.Logger) *Server {
	s := &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

// SetEditLimit caps EDIT messages per session to max per window.
// A zero window or max disables the limit.
func (s *Server) SetEditLimit(window time.Duration, max int) {
	s.editWindow = window
	s.editMax = max
}

// session is one connected presentation client.
type session struct {
	id  string
	out chan []byte
	ctx context.Context

	started time.Time
	edits   rates.Window
}

// send queues v for the writer goroutine, waiting while the session lives.
func (ss *session) send(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case ss.out <- b:
	case <-ss.ctx.Done():
	}
}

func (ss *session) sendError(code, msg string) {
	ss.send(protocol.ErrorMsg{Type: protocol.TypeError, Code: code, Message: msg})
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ss, subID := s.handshake(ctx, conn)
		if ss == nil {
			return
		}
		defer s.world.Unsubscribe(subID)
		s.printf("session %s attached", ss.id)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-ss.out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			s.route(ss, msg)
		}
		s.printf("session %s detached", ss.id)
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (*session, uint64) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, 0
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil, 0
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		rejectf(conn, protocol.ErrProtoBadRequest, "bad HELLO")
		return nil, 0
	}
	if hello.ProtocolVersion != protocol.Version {
		rejectf(conn, protocol.ErrProtoVersion, "bad protocol_version")
		return nil, 0
	}

	maxFull := hello.MaxChunksPerFrame
	if maxFull < 0 {
		maxFull = 0
	}
	if maxFull > 64 {
		maxFull = 64
	}
	// Room for a frame's chunk payloads plus the frame and a few replies.
	out := make(chan []byte, 64+maxFull*2)

	subCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	sess, err := s.world.Subscribe(subCtx, out, maxFull)
	if err != nil {
		code := protocol.ErrInternal
		if errors.Is(err, world.ErrBusy) {
			code = protocol.ErrWorldBusy
		}
		rejectf(conn, code, err.Error())
		return nil, 0
	}

	ss := &session{id: uuid.NewString(), out: out, ctx: ctx, started: time.Now()}
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       ss.id,
		WorldParams: protocol.WorldParams{
			TickRateHz:    sess.TickRateHz,
			ChunkSize:     block.ChunkSize,
			Height:        block.MaxHeight,
			Seed:          sess.Seed,
			Biome:         sess.Biome.String(),
			CacheCapacity: sess.CacheCapacity,
			Tier:          sess.Tier,
		},
		BlockPalette: protocol.DigestRef{Digest: block.PaletteDigest(), Count: len(block.All())},
		Spawn:        vec(sess.Spawn),
	}
	// WELCOME goes out before the writer starts, so it is always first.
	if err := writeJSON(conn, welcome); err != nil {
		s.world.Unsubscribe(sess.ID)
		return nil, 0
	}
	return ss, sess.ID
}

func (s *Server) route(ss *session, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		ss.sendError(protocol.ErrProtoBadRequest, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(ss.ctx, 5*time.Second)
	defer cancel()

	switch base.Type {
	case protocol.TypeObserve:
		var m protocol.ObserveMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			ss.sendError(protocol.ErrProtoBadRequest, "bad OBSERVE")
			return
		}
		s.world.Observe(world.Observer{
			Pos: world.Vec3{X: m.Pos[0], Y: m.Pos[1], Z: m.Pos[2]},
			Dir: schedule.Dir{X: m.Dir[0], Z: m.Dir[1]},
		})

	case protocol.TypeEdit:
		var m protocol.EditMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			ss.sendError(protocol.ErrProtoBadRequest, "bad EDIT")
			return
		}
		now := uint64(time.Since(ss.started).Milliseconds())
		if ok, cooldown := ss.edits.Allow(now, uint64(s.editWindow.Milliseconds()), s.editMax); !ok {
			ss.send(protocol.EditResultMsg{
				Type:    protocol.TypeEditResult,
				ID:      m.ID,
				Code:    protocol.ErrRateLimited,
				Message: fmt.Sprintf("edit rate limited; retry in %dms", cooldown),
			})
			return
		}
		ss.send(s.edit(ctx, m))

	case protocol.TypeSetBiome:
		var m protocol.SetBiomeMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			ss.sendError(protocol.ErrProtoBadRequest, "bad SET_BIOME")
			return
		}
		b, err := block.ParseBiome(m.Biome)
		if err != nil {
			ss.sendError(protocol.ErrUnknownBiome, err.Error())
			return
		}
		spawn, err := s.world.RequestSetBiome(ctx, b)
		if err != nil {
			ss.sendError(protocol.ErrInternal, err.Error())
			return
		}
		ss.send(protocol.BiomeResetMsg{Type: protocol.TypeBiomeReset, Biome: b.String(), Spawn: vec(spawn)})

	case protocol.TypeSetCacheCapacity:
		var m protocol.SetCacheCapacityMsg
		if err := json.Unmarshal(msg, &m); err != nil || m.Capacity < 0 {
			ss.sendError(protocol.ErrBadRequest, "capacity must be >= 0")
			return
		}
		if err := s.world.RequestCacheCapacity(ctx, m.Capacity); err != nil {
			ss.sendError(protocol.ErrInternal, err.Error())
		}

	case protocol.TypeSetTier:
		var m protocol.SetTierMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			ss.sendError(protocol.ErrProtoBadRequest, "bad SET_TIER")
			return
		}
		if err := s.world.RequestTier(ctx, m.Tier); err != nil {
			code := protocol.ErrInternal
			if errors.Is(err, world.ErrUnknownTier) {
				code = protocol.ErrUnknownTier
			}
			ss.sendError(code, err.Error())
		}

	case protocol.TypeQuerySolid:
		var m protocol.QuerySolidMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			ss.sendError(protocol.ErrProtoBadRequest, "bad QUERY_SOLID")
			return
		}
		solid, err := s.world.RequestIsSolid(ctx, world.Vec3{X: m.Pos[0], Y: m.Pos[1], Z: m.Pos[2]})
		if err != nil {
			ss.sendError(protocol.ErrInternal, err.Error())
			return
		}
		ss.send(protocol.SolidResultMsg{Type: protocol.TypeSolidResult, ID: m.ID, Pos: m.Pos, Solid: solid})

	default:
		ss.sendError(protocol.ErrProtoBadRequest, "unknown type "+base.Type)
	}
}

func (s *Server) edit(ctx context.Context, m protocol.EditMsg) protocol.EditResultMsg {
	res := protocol.EditResultMsg{Type: protocol.TypeEditResult, ID: m.ID}
	fail := func(code string, err error) protocol.EditResultMsg {
		res.Code = code
		res.Message = err.Error()
		return res
	}
	action, err := ledger.ParseAction(m.Action)
	if err != nil {
		return fail(protocol.ErrBadRequest, err)
	}
	e := world.Edit{Pos: block.Pos{X: m.Pos[0], Y: m.Pos[1], Z: m.Pos[2]}, Action: action}
	if action == ledger.Add {
		t, err := block.Parse(m.BlockType)
		if err != nil {
			return fail(protocol.ErrUnknownBlock, err)
		}
		e.Block = t
	}
	out, err := s.world.RequestEdit(ctx, e)
	switch {
	case err == nil:
	case errors.Is(err, world.ErrOccupied):
		return fail(protocol.ErrOccupied, err)
	case errors.Is(err, ledger.ErrNotPlaceable), errors.Is(err, ledger.ErrOutOfBounds):
		return fail(protocol.ErrInvalidTarget, err)
	case errors.Is(err, ledger.ErrBadAction):
		return fail(protocol.ErrBadRequest, err)
	default:
		return fail(protocol.ErrInternal, err)
	}
	res.OK = true
	res.Seq = out.Record.Seq
	res.Patched = out.Patched
	res.Dirty = out.Dirty
	return res
}

func (s *Server) printf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func vec(v world.Vec3) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

// rejectf sends an ERROR and closes the connection with a policy violation.
func rejectf(conn *websocket.Conn, code, msg string) {
	_ = writeJSON(conn, protocol.ErrorMsg{Type: protocol.TypeError, Code: code, Message: msg})
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, msg), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
