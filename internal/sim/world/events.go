package world

type EventKind string

const (
	EventGenerated     EventKind = "GENERATED"
	EventRetrieved     EventKind = "RETRIEVED"
	EventHibernated    EventKind = "HIBERNATED"
	EventDestroyed     EventKind = "DESTROYED"
	EventEvicted       EventKind = "EVICTED"
	EventStale         EventKind = "STALE_DISCARD"
	EventGenFailed     EventKind = "GEN_FAILED"
	EventAbandoned     EventKind = "ABANDONED"
	EventRebuilt       EventKind = "REBUILT"
	EventRebuildFailed EventKind = "REBUILD_FAILED"
	EventBiomeReset    EventKind = "BIOME_RESET"
	EventBorder        EventKind = "BORDER_EXPANDED"
)

// Event is one stream lifecycle transition, recorded for telemetry.
type Event struct {
	Tick   uint64    `json:"tick"`
	Kind   EventKind `json:"kind"`
	CX     int       `json:"cx"`
	CZ     int       `json:"cz"`
	Blocks int       `json:"blocks,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// EditEntry is the audit record of one applied edit.
type EditEntry struct {
	Tick    uint64 `json:"tick"`
	Seq     uint64 `json:"seq"`
	Pos     [3]int `json:"pos"`
	Action  string `json:"action"`
	Block   string `json:"block,omitempty"`
	Patched bool   `json:"patched"`
	Dirty   bool   `json:"dirty"`
}

// EventSink receives stream events. Implemented in internal/persistence/*.
type EventSink interface {
	WriteEvent(Event) error
}

// EditSink receives applied edits. Implemented in internal/persistence/*.
type EditSink interface {
	WriteEdit(EditEntry) error
}

func (w *StreamingContext) emit(ev Event) {
	ev.Tick = w.clock
	for _, s := range w.eventSinks {
		if err := s.WriteEvent(ev); err != nil && w.logger != nil {
			w.logger.Printf("event sink: %v", err)
		}
	}
}

func (w *StreamingContext) emitEdit(e EditEntry) {
	e.Tick = w.clock
	for _, s := range w.editSinks {
		if err := s.WriteEdit(e); err != nil && w.logger != nil {
			w.logger.Printf("edit sink: %v", err)
		}
	}
}
