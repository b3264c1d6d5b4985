package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	// MaxChunksPerFrame caps full chunk payloads per frame; 0 means server default.
	MaxChunksPerFrame int `json:"max_chunks_per_frame,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	WorldParams     WorldParams `json:"world_params"`
	BlockPalette    DigestRef   `json:"block_palette"`
	Spawn           [3]float64  `json:"spawn"`
}

type WorldParams struct {
	TickRateHz    int    `json:"tick_rate_hz"`
	ChunkSize     int    `json:"chunk_size"`
	Height        int    `json:"height"`
	Seed          int64  `json:"seed"`
	Biome         string `json:"biome"`
	CacheCapacity int    `json:"cache_capacity"`
	Tier          string `json:"tier,omitempty"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// OBSERVE (client -> server): observer position and movement direction.
type ObserveMsg struct {
	Type string     `json:"type"`
	Pos  [3]float64 `json:"pos"`
	Dir  [2]float64 `json:"dir"`
}

// EDIT (client -> server)
type EditMsg struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Pos       [3]int `json:"pos"`
	Action    string `json:"action"`
	BlockType string `json:"block_type,omitempty"`
}

type EditResultMsg struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	OK      bool   `json:"ok"`
	Seq     uint64 `json:"seq,omitempty"`
	Patched bool   `json:"patched,omitempty"`
	Dirty   bool   `json:"dirty,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type SetBiomeMsg struct {
	Type  string `json:"type"`
	Biome string `json:"biome"`
}

type BiomeResetMsg struct {
	Type  string     `json:"type"`
	Biome string     `json:"biome"`
	Spawn [3]float64 `json:"spawn"`
}

type SetCacheCapacityMsg struct {
	Type     string `json:"type"`
	Capacity int    `json:"capacity"`
}

type SetTierMsg struct {
	Type string `json:"type"`
	Tier string `json:"tier"`
}

type QuerySolidMsg struct {
	Type string     `json:"type"`
	ID   string     `json:"id,omitempty"`
	Pos  [3]float64 `json:"pos"`
}

type SolidResultMsg struct {
	Type  string     `json:"type"`
	ID    string     `json:"id,omitempty"`
	Pos   [3]float64 `json:"pos"`
	Solid bool       `json:"solid"`
}

// CHUNK (server -> client): full render batches for one chunk.
type ChunkMsg struct {
	Type     string       `json:"type"`
	Tick     uint64       `json:"tick"`
	CX       int          `json:"cx"`
	CZ       int          `json:"cz"`
	Revision uint64       `json:"revision"`
	Digest   string       `json:"digest"`
	State    string       `json:"state"`
	Opacity  float64      `json:"opacity"`
	Batches  []BatchEntry `json:"batches"`
}

type BatchEntry struct {
	BlockType   string   `json:"block_type"`
	Opacity     float64  `json:"opacity"`
	Transparent bool     `json:"transparent"`
	Positions   [][3]int `json:"positions"`
}

type ChunkEvictMsg struct {
	Type string `json:"type"`
	Tick uint64 `json:"tick"`
	CX   int    `json:"cx"`
	CZ   int    `json:"cz"`
}

// FRAME (server -> client): per-tick fade state of every chunk on screen.
type FrameMsg struct {
	Type   string       `json:"type"`
	Tick   uint64       `json:"tick"`
	Center [2]int       `json:"center"`
	Queued int          `json:"queued"`
	Chunks []ChunkState `json:"chunks"`
}

type ChunkState struct {
	CX          int     `json:"cx"`
	CZ          int     `json:"cz"`
	State       string  `json:"state"`
	Opacity     float64 `json:"opacity"`
	Transparent bool    `json:"transparent"`
}

type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
