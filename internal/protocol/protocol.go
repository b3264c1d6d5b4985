package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	// client -> server
	TypeHello            = "HELLO"
	TypeObserve          = "OBSERVE"
	TypeEdit             = "EDIT"
	TypeSetBiome         = "SET_BIOME"
	TypeSetCacheCapacity = "SET_CACHE_CAPACITY"
	TypeSetTier          = "SET_TIER"
	TypeQuerySolid       = "QUERY_SOLID"

	// server -> client
	TypeWelcome     = "WELCOME"
	TypeChunk       = "CHUNK"
	TypeChunkEvict  = "CHUNK_EVICT"
	TypeFrame       = "FRAME"
	TypeEditResult  = "EDIT_RESULT"
	TypeBiomeReset  = "BIOME_RESET"
	TypeSolidResult = "SOLID_RESULT"
	TypeError       = "ERROR"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
