package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"voxelstream.ai/internal/sim/world"
	"voxelstream.ai/internal/sim/world/terrain/block"
)

// Inspector is the read side of the streaming world used by admin endpoints.
type Inspector interface {
	Metrics() world.Metrics
	RequestChunks(ctx context.Context) ([]world.ChunkInfo, error)
}

// Server exposes loopback-only inspection endpoints for a running world.
type Server struct {
	world Inspector
	log   *log.Logger
}

func NewServer(w Inspector, logger *log.Logger) *Server {
	return &Server{world: w, log: logger}
}

type paletteEntry struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Color       string  `json:"color"`
	Solid       bool    `json:"solid"`
	Translucent bool    `json:"translucent"`
	Opacity     float64 `json:"opacity"`
	Placeable   bool    `json:"placeable"`
}

type stateResponse struct {
	Metrics       world.Metrics  `json:"metrics"`
	PaletteDigest string         `json:"palette_digest"`
	Palette       []paletteEntry `json:"palette"`
}

func (s *Server) StateHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		resp := stateResponse{
			Metrics:       s.world.Metrics(),
			PaletteDigest: block.PaletteDigest(),
		}
		for _, t := range block.All() {
			p := t.Props()
			resp.Palette = append(resp.Palette, paletteEntry{
				ID:          int(t),
				Name:        p.Name,
				Color:       fmt.Sprintf("#%06x", p.Color),
				Solid:       p.Solid,
				Translucent: p.Translucent,
				Opacity:     p.Opacity,
				Placeable:   p.Placeable,
			})
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) ChunksHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		chunks, err := s.world.RequestChunks(ctx)
		rw.Header().Set("Content-Type", "application/json")
		if err != nil {
			if s.log != nil {
				s.log.Printf("observer: chunks: %v", err)
			}
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "chunks": chunks})
	}
}

// ConfigHandler serves v, typically the effective tuning, as JSON.
func (s *Server) ConfigHandler(v any) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(v)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
