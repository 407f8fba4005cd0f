package player

import (
	"github.com/volatiletech/null/v8"

	"github.com/Virtual-Educator/SimLearning/core/attempt"
	"github.com/Virtual-Educator/SimLearning/core/scene"
	"github.com/Virtual-Educator/SimLearning/core/simulation"
)

// Snapshot is a point-in-time view of a session, safe to serialize to the
// client. It carries everything the UI needs to render: no follow-up lookups.
type Snapshot struct {
	SessionID string `json:"session_id"`
	Phase     Phase  `json:"phase"`

	// set in PhaseLoadError; empty otherwise
	Error string `json:"error,omitempty"`
	// set when the scene image is down but the session carries on
	SceneError string `json:"scene_error,omitempty"`

	Activity *simulation.Activity      `json:"activity,omitempty"`
	Asset    *simulation.ResolvedAsset `json:"asset,omitempty"`
	Attempt  *attempt.Attempt          `json:"attempt,omitempty"`

	ResponseText string    `json:"response_text"`
	LastSavedAt  null.Time `json:"last_saved_at"`

	Transform scene.Transform `json:"transform"`
	Pins      []scene.Pin     `json:"pins"`
	// set when the manifest enables the grid tool
	Grid      *scene.GridSpec `json:"grid,omitempty"`
	GridShown bool            `json:"grid_shown"`
	PinMode   bool            `json:"pin_mode"`
	PanelOpen bool            `json:"panel_open"`

	ControlsDisabled bool `json:"controls_disabled"`

	BufferedEvents int `json:"buffered_events"`
	FlushedEvents  int `json:"flushed_events"`
}

// Snapshot captures the session under its lock.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		SessionID:        s.id,
		Phase:            s.phase,
		Error:            s.loadErr,
		SceneError:       s.sceneErr,
		ResponseText:     s.responseText,
		LastSavedAt:      s.lastSavedAt,
		PanelOpen:        s.panelOpen,
		ControlsDisabled: s.closed || s.phase.ControlsDisabled(),
		Transform:        scene.Identity(),
		Pins:             []scene.Pin{},
	}
	if s.activity.ID != "" {
		act := s.activity
		asset := s.asset
		snap.Activity = &act
		snap.Asset = &asset
	}
	if s.att.ID != "" {
		att := s.att
		snap.Attempt = &att
	}
	if s.viewport != nil {
		snap.Transform = s.viewport.Transform()
		snap.Pins = s.overlay.Pins()
		if s.overlay.Tools().Grid {
			grid := scene.DefaultGrid()
			snap.Grid = &grid
		}
		snap.GridShown = s.overlay.GridShown()
		snap.PinMode = s.overlay.PinMode()
		snap.BufferedEvents = s.log.Len() - s.cursor
		snap.FlushedEvents = s.flushed
	}
	return snap
}
