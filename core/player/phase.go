package player

// Phase is the lifecycle state of a player session. Transitions are owned by
// the Session; nothing outside this package moves a session between phases.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseLoading       Phase = "loading"
	PhaseLoadError     Phase = "load_error"
	PhaseDraft         Phase = "draft"
	PhaseSaving        Phase = "saving"
	PhaseSubmitting    Phase = "submitting"
	PhaseSubmitted     Phase = "submitted"
)

// ControlsDisabled reports whether scene interactions are blocked in this
// phase. Interaction stays enabled while an autosave is in flight; a submit in
// flight locks the scene, and a submitted attempt stays locked for good.
func (p Phase) ControlsDisabled() bool {
	switch p {
	case PhaseDraft, PhaseSaving:
		return false
	}
	return true
}

// Loaded reports whether the session holds a playable scene, i.e. the load
// pipeline ran to completion at least once since the last reset.
func (p Phase) Loaded() bool {
	switch p {
	case PhaseUninitialized, PhaseLoading, PhaseLoadError:
		return false
	}
	return true
}
