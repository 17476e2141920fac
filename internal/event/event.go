package event

import "time"

// EventType identifies the kind of store event.
type EventType string

const (
	// Record lifecycle
	PatternInserted   EventType = "pattern.inserted"
	PatternSuperseded EventType = "pattern.superseded"
	PatternRemoved    EventType = "pattern.removed"

	// Eviction
	PatternExpired EventType = "pattern.expired"
	PatternEvicted EventType = "pattern.evicted"

	// Resolution
	PatternResolved EventType = "pattern.resolved"

	// Persistence
	SnapshotFlushed EventType = "snapshot.flushed"
	SnapshotFailed  EventType = "snapshot.failed"
)

// AllTypes lists every event type the store emits.
var AllTypes = []EventType{
	PatternInserted,
	PatternSuperseded,
	PatternRemoved,
	PatternExpired,
	PatternEvicted,
	PatternResolved,
	SnapshotFlushed,
	SnapshotFailed,
}

// Event carries data about a store occurrence.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// NewEvent creates an event stamped with at.
func NewEvent(t EventType, at time.Time, data map[string]interface{}) Event {
	if at.IsZero() {
		at = time.Now()
	}
	return Event{
		Type:      t,
		Timestamp: at,
		Data:      data,
	}
}

// PatternID returns the pattern the event is about: the record id, or the
// winner for pattern.resolved. Snapshot events return "".
func (e Event) PatternID() string {
	if id := e.str("id"); id != "" {
		return id
	}
	return e.str("winner_id")
}

// ContributorID returns the contributor of the affected pattern, if known.
func (e Event) ContributorID() string {
	return e.str("contributor_id")
}

func (e Event) str(key string) string {
	s, _ := e.Data[key].(string)
	return s
}
