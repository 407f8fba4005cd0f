package player

import (
	"time"

	"github.com/Virtual-Educator/SimLearning/core/scene"
)

// Session-level interaction event types. Scene-level types live in the scene
// package next to the components that emit them.
const EventPanelToggled = "panel_toggled"

var nowFunc = time.Now // mocked in tests

type (
	// Event is one buffered interaction waiting to be flushed into the durable
	// store on the next draft save.
	Event struct {
		Seq     int64                  `json:"seq"`
		Type    string                 `json:"type"`
		Payload map[string]interface{} `json:"payload,omitempty"`
		At      time.Time              `json:"at"` // UTC
	}

	// EventLog is the append-only in-memory interaction buffer. One log lives
	// and dies with its session; durable history is the event store's concern.
	// The owning Session serializes access.
	EventLog struct {
		events []Event
		seq    int64
	}
)

var _ scene.EventSink = (*EventLog)(nil) // interface compliance check

func NewEventLog() *EventLog {
	return &EventLog{events: make([]Event, 0, 64)}
}

// Append records an interaction. It never fails, never blocks and never
// reorders: events keep the exact order they occurred in.
func (l *EventLog) Append(eventType string, payload map[string]interface{}) {
	l.seq++
	l.events = append(l.events, Event{
		Seq:     l.seq,
		Type:    eventType,
		Payload: payload,
		At:      nowFunc().UTC(),
	})
}

func (l *EventLog) Len() int { return len(l.events) }

// All returns a copy of the full buffer.
func (l *EventLog) All() []Event {
	return l.Since(0)
}

// Since returns a copy of the tail starting at cursor, where cursor counts
// events already flushed. A cursor at or past the end yields an empty slice.
func (l *EventLog) Since(cursor int) []Event {
	if cursor < 0 {
		cursor = 0
	}
	if cursor >= len(l.events) {
		return []Event{}
	}
	tail := make([]Event, len(l.events)-cursor)
	copy(tail, l.events[cursor:])
	return tail
}

// Reset drops all buffered events. Only a reload should do this; flushed
// history stays in the store regardless.
func (l *EventLog) Reset() {
	l.events = l.events[:0]
	l.seq = 0
}
