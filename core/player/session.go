// Package player hosts live simulation sessions: the server-side engine behind
// the student player. A session glues the scene components to the activity and
// attempt services, owns the interaction event buffer and its flush cursor, and
// walks the attempt through draft, save, submit.
package player

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/Virtual-Educator/SimLearning/core"
	"github.com/Virtual-Educator/SimLearning/core/attempt"
	"github.com/Virtual-Educator/SimLearning/core/scene"
	"github.com/Virtual-Educator/SimLearning/core/simulation"
)

var (
	// errors
	ErrSessionClosed  = errors.New("session is closed")
	ErrNotLoaded      = errors.New("session has no loaded attempt")
	ErrSaveInFlight   = errors.New("a save is already in flight")
	ErrExportInFlight = errors.New("an export is already in flight")
)

type (
	// SessionDeps are the collaborators every session needs. The registry
	// carries one set and hands it to each session it opens.
	SessionDeps struct {
		Logger     core.Logger
		Activities simulation.ServiceInterface
		Attempts   attempt.ServiceInterface
		Resolver   simulation.AssetResolver
	}

	// DownloadSink receives a finished export file. The HTTP layer sends it as
	// an attachment; tests capture it in memory.
	DownloadSink interface {
		Download(filename, contentType string, data []byte) error
	}

	// Session drives one student's run of one activity. All methods are safe
	// for concurrent use; the session lock is released while a save or submit
	// is in flight so interactions keep landing in the buffer meanwhile.
	Session struct {
		mu sync.Mutex

		id      string
		student core.Principal
		slug    string

		logger     core.Logger
		activities simulation.ServiceInterface
		attempts   attempt.ServiceInterface
		resolver   simulation.AssetResolver

		phase    Phase
		loadErr  string
		sceneErr string

		activity simulation.Activity
		asset    simulation.ResolvedAsset
		att      attempt.Attempt

		log      *EventLog
		cursor   int // events before this index are confirmed flushed
		flushed  int
		viewport *scene.Viewport
		overlay  *scene.Overlay

		responseText string
		lastSavedAt  null.Time
		panelOpen    bool

		assetRetried bool
		exporting    bool
		closed       bool
	}
)

func NewSession(student core.Principal, activitySlug string, deps SessionDeps) *Session {
	return &Session{
		id:         uuid.New().String(),
		student:    student,
		slug:       activitySlug,
		logger:     deps.Logger,
		activities: deps.Activities,
		attempts:   deps.Attempts,
		resolver:   deps.Resolver,
		phase:      PhaseUninitialized,
	}
}

func (s *Session) ID() string { return s.id }

// Owner returns the student this session belongs to.
func (s *Session) Owner() core.Principal { return s.student }

// Load runs the startup pipeline: activity by slug, manifest check, asset
// resolution, attempt open, draft hydration. It is all-or-nothing: any failure
// leaves the session in PhaseLoadError with no partial scene state.
func (s *Session) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.phase != PhaseUninitialized {
		return
	}
	s.load(ctx)
}

// Retry reruns the full load pipeline after a failed load.
func (s *Session) Retry(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.phase != PhaseLoadError {
		return
	}
	s.load(ctx)
}

func (s *Session) load(ctx context.Context) {
	s.phase = PhaseLoading
	s.clearLoadedState()

	act, err := s.activities.GetBySlug(ctx, s.slug)
	if err != nil {
		if errors.Cause(err) == simulation.ErrNotFound {
			s.failLoad("activity not found", err)
		} else {
			s.failLoad("could not load activity", err)
		}
		return
	}
	if err = act.Manifest.Validate(); err != nil {
		s.failLoad("activity configuration is invalid", err)
		return
	}
	asset, err := s.resolver.Resolve(ctx, act.Manifest.Scene)
	if err != nil {
		s.failLoad("could not resolve scene asset", err)
		return
	}
	att, err := s.attempts.FindOrCreateDraft(ctx, act.ID, s.student)
	if err != nil {
		s.failLoad("could not open attempt", err)
		return
	}
	state, err := s.attempts.HydrateDraft(ctx, att.ID)
	if err != nil {
		s.failLoad("could not restore draft", err)
		return
	}

	s.activity = act
	s.asset = asset
	s.att = att
	s.responseText = state.ResponseText
	if !state.SavedAt.IsZero() {
		s.lastSavedAt = null.TimeFrom(state.SavedAt)
	}
	s.flushed = state.FlushedEvents
	s.log = NewEventLog()
	s.viewport = scene.NewViewport(s.log)
	s.overlay = scene.NewOverlay(s.log, act.Manifest.Tools)
	s.panelOpen = true
	s.phase = PhaseDraft
}

func (s *Session) failLoad(msg string, err error) {
	s.logger.Error(fmt.Sprintf("session %s: %s", s.id, msg), err, s.student)
	s.clearLoadedState()
	s.phase = PhaseLoadError
	s.loadErr = msg
}

func (s *Session) clearLoadedState() {
	s.loadErr = ""
	s.sceneErr = ""
	s.activity = simulation.Activity{}
	s.asset = simulation.ResolvedAsset{}
	s.att = attempt.Attempt{}
	s.responseText = ""
	s.lastSavedAt = null.Time{}
	s.flushed = 0
	s.log = nil
	s.cursor = 0
	s.viewport = nil
	s.overlay = nil
	s.panelOpen = false
	s.assetRetried = false
}

// ReportAssetError records that the scene image failed to display. A signed
// storage URL gets exactly one re-resolution per load, since an expired
// signature usually heals with a fresh one. Further failures, and public URLs,
// park the scene in an error state without touching the draft: text work and
// saving carry on.
func (s *Session) ReportAssetError(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.phase.Loaded() {
		return
	}
	if s.asset.Source == simulation.AssetSourceStorage && !s.assetRetried {
		s.assetRetried = true
		asset, err := s.resolver.Resolve(ctx, s.activity.Manifest.Scene)
		if err == nil {
			s.asset = asset
			s.sceneErr = ""
			return
		}
		s.logger.Error(fmt.Sprintf("session %s: asset re-resolution failed", s.id), err, s.student)
	}
	s.sceneErr = "scene image failed to load"
}

func (s *Session) ZoomIn()              { s.interact(func() { s.viewport.ZoomIn() }) }
func (s *Session) ZoomOut()             { s.interact(func() { s.viewport.ZoomOut() }) }
func (s *Session) ZoomBy(delta float64) { s.interact(func() { s.viewport.ZoomBy(delta) }) }

func (s *Session) PointerDown(x, y float64) { s.interact(func() { s.viewport.PointerDown(x, y) }) }
func (s *Session) PointerMove(x, y float64) { s.interact(func() { s.viewport.PointerMove(x, y) }) }
func (s *Session) PointerUp()               { s.interact(func() { s.viewport.PointerUp() }) }
func (s *Session) PointerCancel()           { s.interact(func() { s.viewport.PointerCancel() }) }

// ResetView recenters the scene. Unlike other interactions it stays available
// after submission: reviewing a locked attempt still needs a working viewport.
func (s *Session) ResetView() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.viewport == nil {
		return
	}
	s.viewport.ResetView()
}

// Click runs the pin placement flow for a click at screen coordinates, where
// box is the rendered image's on-screen rectangle as measured by the client.
// A click that concludes a drag is swallowed once; clicks outside the image do
// nothing.
func (s *Session) Click(clientX, clientY float64, box scene.Box) {
	s.interact(func() {
		if !s.viewport.ClickAllowed() {
			return
		}
		if p, ok := scene.ScreenToNormalized(clientX, clientY, box); ok {
			s.overlay.AddPinAt(p)
		}
	})
}

func (s *Session) AddPin(p scene.Point) { s.interact(func() { s.overlay.AddPinAt(p) }) }
func (s *Session) RemovePin(id int)     { s.interact(func() { s.overlay.RemovePin(id) }) }
func (s *Session) ToggleGrid()          { s.interact(func() { s.overlay.ToggleGrid() }) }
func (s *Session) TogglePinMode()       { s.interact(func() { s.overlay.TogglePinMode() }) }

// TogglePanel opens or closes the task panel. Panel visibility is not a scene
// control: it works in every loaded phase, including after submission.
func (s *Session) TogglePanel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.phase.Loaded() {
		return
	}
	s.panelOpen = !s.panelOpen
	s.log.Append(EventPanelToggled, map[string]interface{}{"open": s.panelOpen})
}

// interact runs fn under the session lock when scene controls are enabled.
// Blocked interactions are dropped silently, mirroring a disabled UI control.
func (s *Session) interact(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.phase.ControlsDisabled() {
		return
	}
	fn()
}

// PersistDraft runs one autosave pass: response text first, then the buffered
// event tail. The flush cursor only advances once the store confirms, so a
// failed flush re-sends the same events on the next save. The lock is released
// during the store round trip; interactions made meanwhile land past the
// snapshot and survive.
func (s *Session) PersistDraft(ctx context.Context, text string) error {
	s.mu.Lock()
	if err := s.editable(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.phase = PhaseSaving
	s.responseText = text
	batch := s.log.Since(s.cursor)
	attemptID := s.att.ID
	s.mu.Unlock()

	savedAt, err := s.attempts.SaveDraft(ctx, attemptID, text, toNewEvents(batch))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseDraft
	if err != nil {
		s.logger.Error(fmt.Sprintf("session %s: draft save failed", s.id), err, s.student)
		return err
	}
	s.cursor += len(batch)
	s.flushed += len(batch)
	s.lastSavedAt = null.TimeFrom(savedAt)
	return nil
}

// Submit performs the final save and flips the attempt to submitted. The save
// must fully succeed first; on any failure the attempt stays an editable
// draft. After the flip the session is read-only and pin mode is forced off.
func (s *Session) Submit(ctx context.Context, text string) error {
	s.mu.Lock()
	if err := s.editable(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.phase = PhaseSubmitting
	s.responseText = text
	batch := s.log.Since(s.cursor)
	att := s.att
	student := s.student
	title := s.activity.Title
	s.mu.Unlock()

	submitted, err := s.attempts.Submit(ctx, att, student, title, text, toNewEvents(batch))

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.phase = PhaseDraft
		s.logger.Error(fmt.Sprintf("session %s: submit failed", s.id), err, s.student)
		return err
	}
	s.att = submitted
	s.cursor += len(batch)
	s.flushed += len(batch)
	if submitted.SubmittedAt.Valid {
		s.lastSavedAt = submitted.SubmittedAt
	}
	s.overlay.DisablePinMode()
	s.phase = PhaseSubmitted
	return nil
}

// Export builds a fresh bundle from the stores, not from session memory, and
// streams it through the sink. One export at a time per session.
func (s *Session) Export(ctx context.Context, sink DownloadSink) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if !s.phase.Loaded() {
		s.mu.Unlock()
		return ErrNotLoaded
	}
	if s.exporting {
		s.mu.Unlock()
		return ErrExportInFlight
	}
	s.exporting = true
	attemptID := s.att.ID
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.exporting = false
		s.mu.Unlock()
	}()

	bundle, err := s.attempts.Export(ctx, attemptID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding export bundle")
	}
	return sink.Download(bundle.Filename(), "application/json", data)
}

// Close marks the session dead. Interactions become no-ops and writes are
// rejected; the attempt itself is untouched and reopens in a new session.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// editable explains why the session cannot accept a draft write, if it cannot.
func (s *Session) editable() error {
	if s.closed {
		return ErrSessionClosed
	}
	switch s.phase {
	case PhaseDraft:
		return nil
	case PhaseSaving:
		return ErrSaveInFlight
	case PhaseSubmitting, PhaseSubmitted:
		return attempt.ErrAttemptLocked
	}
	return ErrNotLoaded
}

func toNewEvents(events []Event) []attempt.NewEvent {
	batch := make([]attempt.NewEvent, 0, len(events))
	for _, evt := range events {
		var payload []byte
		if len(evt.Payload) > 0 {
			payload, _ = json.Marshal(evt.Payload) // payloads hold JSON primitives only
		}
		batch = append(batch, attempt.NewEvent{
			EventType:  evt.Type,
			Payload:    payload,
			OccurredAt: evt.At,
		})
	}
	return batch
}
