package player

import (
	"testing"
	"time"
)

func TestEventLogAppendKeepsOrder(t *testing.T) {
	now := time.Date(2021, 5, 10, 8, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }
	defer func() { nowFunc = time.Now }() // reset

	log := NewEventLog()
	log.Append("zoom_changed", map[string]interface{}{"scale": 1.2})
	log.Append("pan_changed", map[string]interface{}{"x": 4.0, "y": -2.0})
	log.Append("view_reset", nil)

	events := log.All()
	if len(events) != 3 {
		t.Fatalf("Len() = %d, want 3", log.Len())
	}
	wantTypes := []string{"zoom_changed", "pan_changed", "view_reset"}
	for i, evt := range events {
		if evt.Type != wantTypes[i] {
			t.Errorf("events[%d].Type = %q, want %q", i, evt.Type, wantTypes[i])
		}
		if evt.Seq != int64(i+1) {
			t.Errorf("events[%d].Seq = %d, want %d", i, evt.Seq, i+1)
		}
		if !evt.At.Equal(now) {
			t.Errorf("events[%d].At = %v, want %v", i, evt.At, now)
		}
	}
	if events[0].Payload["scale"] != 1.2 {
		t.Errorf("payload scale = %v, want 1.2", events[0].Payload["scale"])
	}
}

func TestEventLogSince(t *testing.T) {
	log := NewEventLog()
	for i := 0; i < 5; i++ {
		log.Append("zoom_changed", nil)
	}

	tests := []struct {
		name   string
		cursor int
		want   int
	}{
		{"full buffer", 0, 5},
		{"tail", 3, 2},
		{"at end", 5, 0},
		{"past end", 9, 0},
		{"negative cursor reads all", -1, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := log.Since(tt.cursor); len(got) != tt.want {
				t.Errorf("Since(%d) returned %d events, want %d", tt.cursor, len(got), tt.want)
			}
		})
	}
}

func TestEventLogSinceReturnsCopy(t *testing.T) {
	log := NewEventLog()
	log.Append("grid_toggled", map[string]interface{}{"enabled": true})

	tail := log.Since(0)
	tail[0].Type = "mutated"
	if log.All()[0].Type != "grid_toggled" {
		t.Error("mutating a Since() result leaked into the log")
	}
}

func TestEventLogReset(t *testing.T) {
	log := NewEventLog()
	log.Append("zoom_changed", nil)
	log.Append("zoom_changed", nil)

	log.Reset()
	if log.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", log.Len())
	}
	log.Append("pan_changed", nil)
	if got := log.All()[0].Seq; got != 1 {
		t.Errorf("first Seq after Reset = %d, want 1", got)
	}
}
