package tests

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/Virtual-Educator/SimLearning/apps/api/echo"
	"github.com/Virtual-Educator/SimLearning/core"
	"github.com/Virtual-Educator/SimLearning/core/attempt"
	"github.com/Virtual-Educator/SimLearning/core/player"
	"github.com/Virtual-Educator/SimLearning/core/scene"
	"github.com/Virtual-Educator/SimLearning/core/simulation"
	emailsvc "github.com/Virtual-Educator/SimLearning/services/email"
)

func decodeSnapshot(t *testing.T, rec *httptest.ResponseRecorder) player.Snapshot {
	t.Helper()
	var snap player.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("json.Unmarshal(): %v; body %s", err, rec.Body.String())
	}
	return snap
}

func openSession(t *testing.T, token, slug string) player.Snapshot {
	t.Helper()
	req, rec := newAuthRequest(http.MethodPost, "/v1/player/sessions", token, marchallObj(t, OpenSessionRequest{Activity: slug}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("openSession() code = %v; body %s", rec.Code, rec.Body.String())
	}
	return decodeSnapshot(t, rec)
}

func interact(t *testing.T, token, sessionID string, data InteractionRequest) player.Snapshot {
	t.Helper()
	req, rec := newAuthRequest(http.MethodPost, "/v1/player/sessions/"+sessionID+"/events", token, marchallObj(t, data))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("interact(%s) code = %v; body %s", data.Op, rec.Code, rec.Body.String())
	}
	return decodeSnapshot(t, rec)
}

func Test_playerApi_openSession(t *testing.T) {
	setup(t)

	act := createActivity(t, "sediment-layers", "Sediment Layers", true, publicScene())
	createActivity(t, "wip-activity", "Work In Progress", false, publicScene())
	createActivity(t, "broken-manifest", "Broken Manifest", true, simulation.Scene{})

	student := core.Principal{ID: "std-ada", Name: "Ada Uwase", Email: "ada@test.cd"}
	studentToken := getStudentToken(t, student)
	teacherToken := getTeacherToken(t, core.Principal{ID: "tch-001", Name: "Prof Kalala", Email: "prof@test.cd"})

	body := marchallObj(t, OpenSessionRequest{Activity: "sediment-layers"})
	tests := []httpTest{
		{name: "Auth required", body: body, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Student role required", body: body, token: teacherToken, wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Activity is required", body: marchallObj(t, OpenSessionRequest{}), token: studentToken, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"activity": "this field is required"}),
		},
		{
			name: "Malformed slug", body: []byte(`{"activity":"No Spaces!"}`), token: studentToken, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"activity": "only lowercase letters, digits and hyphens are allowed"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/player/sessions"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("Unknown activity registers a failed session", func(t *testing.T) {
		snap := openSession(t, studentToken, "no-such-activity")
		if snap.Phase != player.PhaseLoadError {
			t.Errorf("phase = %v; want %v", snap.Phase, player.PhaseLoadError)
		}
		if snap.Error != "activity not found" {
			t.Errorf("error = %q; want %q", snap.Error, "activity not found")
		}
		if snap.Activity != nil {
			t.Errorf("activity = %+v; want nil", snap.Activity)
		}
		if !snap.ControlsDisabled {
			t.Error("controls should be disabled on a failed load")
		}
	})

	t.Run("Unpublished activity is invisible to students", func(t *testing.T) {
		snap := openSession(t, studentToken, "wip-activity")
		if snap.Phase != player.PhaseLoadError {
			t.Errorf("phase = %v; want %v", snap.Phase, player.PhaseLoadError)
		}
		if snap.Error != "activity not found" {
			t.Errorf("error = %q; want %q", snap.Error, "activity not found")
		}
	})

	t.Run("Invalid manifest refuses to load", func(t *testing.T) {
		snap := openSession(t, studentToken, "broken-manifest")
		if snap.Phase != player.PhaseLoadError {
			t.Errorf("phase = %v; want %v", snap.Phase, player.PhaseLoadError)
		}
		if snap.Error != "activity configuration is invalid" {
			t.Errorf("error = %q; want %q", snap.Error, "activity configuration is invalid")
		}
	})

	t.Run("Draft opens ready to play", func(t *testing.T) {
		snap := openSession(t, studentToken, "sediment-layers")
		if snap.Phase != player.PhaseDraft {
			t.Fatalf("phase = %v; want %v; error %q", snap.Phase, player.PhaseDraft, snap.Error)
		}
		if snap.Activity == nil || snap.Activity.ID != act.ID {
			t.Errorf("activity = %+v; want %v", snap.Activity, act.ID)
		}
		if snap.Asset == nil || snap.Asset.URL != "https://static.test.cd/scenes/rocks.png" {
			t.Errorf("asset = %+v; want public src URL", snap.Asset)
		}
		if snap.Attempt == nil || snap.Attempt.AttemptNo != 1 || snap.Attempt.Status != attempt.StatusDraft {
			t.Errorf("attempt = %+v; want draft #1", snap.Attempt)
		}
		if snap.Transform.Scale != 1 || snap.Transform.Translate.X != 0 || snap.Transform.Translate.Y != 0 {
			t.Errorf("transform = %+v; want identity", snap.Transform)
		}
		if len(snap.Pins) != 0 || snap.GridShown || snap.PinMode {
			t.Errorf("overlay not pristine: pins %v grid %v pinMode %v", snap.Pins, snap.GridShown, snap.PinMode)
		}
		if !snap.PanelOpen {
			t.Error("panel should open with the session")
		}
		if snap.ControlsDisabled {
			t.Error("controls should be enabled in draft")
		}
		if snap.BufferedEvents != 0 || snap.FlushedEvents != 0 {
			t.Errorf("event counts = %d/%d; want 0/0", snap.BufferedEvents, snap.FlushedEvents)
		}
	})

	t.Run("Reopening resumes the same draft", func(t *testing.T) {
		first := openSession(t, studentToken, "sediment-layers")
		second := openSession(t, studentToken, "sediment-layers")
		if first.SessionID == second.SessionID {
			t.Error("sessions should be distinct")
		}
		if first.Attempt == nil || second.Attempt == nil || first.Attempt.ID != second.Attempt.ID {
			t.Errorf("attempts differ: %+v vs %+v; a student holds one draft per activity", first.Attempt, second.Attempt)
		}
	})
}

func Test_playerApi_interact(t *testing.T) {
	setup(t)

	createActivity(t, "sediment-layers", "Sediment Layers", true, publicScene())
	token := getStudentToken(t, core.Principal{ID: "std-ada", Name: "Ada Uwase", Email: "ada@test.cd"})
	id := openSession(t, token, "sediment-layers").SessionID

	snap := interact(t, token, id, InteractionRequest{Op: OpZoomIn})
	if snap.Transform.Scale != 1.2 {
		t.Errorf("scale = %v; want 1.2", snap.Transform.Scale)
	}
	if snap.BufferedEvents != 1 {
		t.Errorf("buffered = %d; want 1", snap.BufferedEvents)
	}

	// a large delta clamps to the max scale
	snap = interact(t, token, id, InteractionRequest{Op: OpZoomBy, Factor: 10})
	if snap.Transform.Scale != 3 {
		t.Errorf("scale = %v; want 3", snap.Transform.Scale)
	}

	// zooming past the clamp is a silent no-op
	snap = interact(t, token, id, InteractionRequest{Op: OpZoomBy, Factor: 1})
	if snap.Transform.Scale != 3 {
		t.Errorf("scale = %v; want 3", snap.Transform.Scale)
	}
	if snap.BufferedEvents != 2 {
		t.Errorf("buffered = %d; want 2; a clamped no-op zoom must not log", snap.BufferedEvents)
	}

	snap = interact(t, token, id, InteractionRequest{Op: OpResetView})
	if snap.Transform.Scale != 1 {
		t.Errorf("scale = %v; want 1 after reset", snap.Transform.Scale)
	}

	// drag pans the scene
	interact(t, token, id, InteractionRequest{Op: OpPointerDown, X: 100, Y: 100})
	snap = interact(t, token, id, InteractionRequest{Op: OpPointerMove, X: 140, Y: 130})
	if snap.Transform.Translate.X != 40 || snap.Transform.Translate.Y != 30 {
		t.Errorf("translate = %+v; want {40 30}", snap.Transform.Translate)
	}
	interact(t, token, id, InteractionRequest{Op: OpPointerUp})

	snap = interact(t, token, id, InteractionRequest{Op: OpTogglePinMode})
	if !snap.PinMode {
		t.Error("pin mode should be on")
	}

	// the click that concludes a drag is swallowed
	box := scene.Box{Left: 0, Top: 0, Width: 800, Height: 600}
	snap = interact(t, token, id, InteractionRequest{Op: OpClick, X: 400, Y: 300, Box: box})
	if len(snap.Pins) != 0 {
		t.Errorf("pins = %v; a drag-ending click must not place", snap.Pins)
	}

	snap = interact(t, token, id, InteractionRequest{Op: OpClick, X: 400, Y: 300, Box: box})
	if len(snap.Pins) != 1 || snap.Pins[0].ID != 1 || snap.Pins[0].X != 0.5 || snap.Pins[0].Y != 0.5 {
		t.Errorf("pins = %v; want pin 1 at (0.5, 0.5)", snap.Pins)
	}

	snap = interact(t, token, id, InteractionRequest{Op: OpAddPin, X: 0.25, Y: 0.75})
	if len(snap.Pins) != 2 || snap.Pins[1].ID != 2 {
		t.Errorf("pins = %v; want a second pin with id 2", snap.Pins)
	}

	snap = interact(t, token, id, InteractionRequest{Op: OpRemovePin, PinID: 1})
	if len(snap.Pins) != 1 || snap.Pins[0].ID != 2 {
		t.Errorf("pins = %v; want only pin 2 left", snap.Pins)
	}

	snap = interact(t, token, id, InteractionRequest{Op: OpToggleGrid})
	if !snap.GridShown {
		t.Error("grid should be shown")
	}

	snap = interact(t, token, id, InteractionRequest{Op: OpTogglePanel})
	if snap.PanelOpen {
		t.Error("panel should be closed")
	}

	if snap.BufferedEvents != 10 || snap.FlushedEvents != 0 {
		t.Errorf("event counts = %d/%d; want 10 buffered, none flushed", snap.BufferedEvents, snap.FlushedEvents)
	}

	t.Run("Unknown op is rejected", func(t *testing.T) {
		tt := httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"op": "unknown interaction op"}),
		}
		req, rec := newAuthRequest(http.MethodPost, "/v1/player/sessions/"+id+"/events", token, []byte(`{"op":"warp_speed"}`))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})
}

func Test_playerApi_draft(t *testing.T) {
	setup(t)

	createActivity(t, "sediment-layers", "Sediment Layers", true, publicScene())
	token := getStudentToken(t, core.Principal{ID: "std-ada", Name: "Ada Uwase", Email: "ada@test.cd"})
	first := openSession(t, token, "sediment-layers")
	id := first.SessionID

	interact(t, token, id, InteractionRequest{Op: OpZoomIn})

	req, rec := newAuthRequest(http.MethodPut, "/v1/player/sessions/"+id+"/draft", token, marchallObj(t, DraftRequest{Text: "Layered sandstone above shale."}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("draft code = %v; body %s", rec.Code, rec.Body.String())
	}
	snap := decodeSnapshot(t, rec)
	if snap.Phase != player.PhaseDraft {
		t.Errorf("phase = %v; want %v", snap.Phase, player.PhaseDraft)
	}
	if snap.ResponseText != "Layered sandstone above shale." {
		t.Errorf("response_text = %q", snap.ResponseText)
	}
	if !snap.LastSavedAt.Valid {
		t.Error("last_saved_at should be set after a save")
	}
	if snap.BufferedEvents != 0 || snap.FlushedEvents != 1 {
		t.Errorf("event counts = %d/%d; want 0 buffered, 1 flushed", snap.BufferedEvents, snap.FlushedEvents)
	}
	if snap.ControlsDisabled {
		t.Error("controls should stay enabled after an autosave")
	}

	t.Run("Saved draft hydrates a new session", func(t *testing.T) {
		resumed := openSession(t, token, "sediment-layers")
		if resumed.Attempt == nil || first.Attempt == nil || resumed.Attempt.ID != first.Attempt.ID {
			t.Errorf("attempt = %+v; want the original draft back", resumed.Attempt)
		}
		if resumed.ResponseText != "Layered sandstone above shale." {
			t.Errorf("response_text = %q; want the saved text", resumed.ResponseText)
		}
		if !resumed.LastSavedAt.Valid {
			t.Error("last_saved_at should survive the reload")
		}
		if resumed.FlushedEvents != 1 || resumed.BufferedEvents != 0 {
			t.Errorf("event counts = %d/%d; want 0 buffered, 1 flushed", resumed.BufferedEvents, resumed.FlushedEvents)
		}
	})
}

func Test_playerApi_submit(t *testing.T) {
	setup(t)

	createActivity(t, "sediment-layers", "Sediment Layers", true, publicScene())
	student := core.Principal{ID: "std-ada", Name: "Ada Uwase", Email: "ada@test.cd"}
	token := getStudentToken(t, student)
	id := openSession(t, token, "sediment-layers").SessionID

	interact(t, token, id, InteractionRequest{Op: OpTogglePinMode})
	interact(t, token, id, InteractionRequest{Op: OpAddPin, X: 0.25, Y: 0.75})
	interact(t, token, id, InteractionRequest{Op: OpZoomIn})

	sentBefore := len(emailsvc.SentMessages)

	req, rec := newAuthRequest(http.MethodPost, "/v1/player/sessions/"+id+"/submit", token, marchallObj(t, DraftRequest{Text: "Sandstone sits above the shale bed."}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit code = %v; body %s", rec.Code, rec.Body.String())
	}
	snap := decodeSnapshot(t, rec)
	if snap.Phase != player.PhaseSubmitted {
		t.Fatalf("phase = %v; want %v", snap.Phase, player.PhaseSubmitted)
	}
	if snap.Attempt == nil || snap.Attempt.Status != attempt.StatusSubmitted || !snap.Attempt.SubmittedAt.Valid {
		t.Errorf("attempt = %+v; want submitted with a timestamp", snap.Attempt)
	}
	if snap.ResponseText != "Sandstone sits above the shale bed." {
		t.Errorf("response_text = %q", snap.ResponseText)
	}
	if !snap.ControlsDisabled {
		t.Error("controls should lock on submission")
	}
	if snap.PinMode {
		t.Error("pin mode should be forced off on submission")
	}
	if snap.BufferedEvents != 0 || snap.FlushedEvents != 3 {
		t.Errorf("event counts = %d/%d; want 0 buffered, 3 flushed", snap.BufferedEvents, snap.FlushedEvents)
	}

	t.Run("Receipt email goes out with the export attached", func(t *testing.T) {
		if len(emailsvc.SentMessages) != sentBefore+1 {
			t.Fatalf("sent = %d; want %d", len(emailsvc.SentMessages), sentBefore+1)
		}
		msg := emailsvc.SentMessages[len(emailsvc.SentMessages)-1]
		if msg.Subject != "Attempt #1 submitted: Sediment Layers" {
			t.Errorf("subject = %q", msg.Subject)
		}
		if len(msg.Attachments) != 1 {
			t.Errorf("attachments = %d; want 1", len(msg.Attachments))
		}
	})

	t.Run("Scene interactions are dropped", func(t *testing.T) {
		after := interact(t, token, id, InteractionRequest{Op: OpZoomIn})
		if after.Transform.Scale != 1.2 {
			t.Errorf("scale = %v; want 1.2 unchanged", after.Transform.Scale)
		}
	})

	t.Run("View reset and panel still work", func(t *testing.T) {
		after := interact(t, token, id, InteractionRequest{Op: OpResetView})
		if after.Transform.Scale != 1 {
			t.Errorf("scale = %v; want 1 after reset", after.Transform.Scale)
		}
		after = interact(t, token, id, InteractionRequest{Op: OpTogglePanel})
		if after.PanelOpen {
			t.Error("panel should toggle closed")
		}
	})

	locked := marchallObj(t, httpErr{Error: "attempt is no longer editable"})
	tests := []httpTest{
		{
			name: "Draft save is rejected", method: http.MethodPut, path: "/v1/player/sessions/" + id + "/draft",
			body: marchallObj(t, DraftRequest{Text: "too late"}), wantCode: http.StatusConflict, wantData: locked,
		},
		{
			name: "Second submit is rejected", method: http.MethodPost, path: "/v1/player/sessions/" + id + "/submit",
			body: marchallObj(t, DraftRequest{Text: "again"}), wantCode: http.StatusConflict, wantData: locked,
		},
	}
	for _, tt := range tests {
		tt.token = token

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_playerApi_retry(t *testing.T) {
	setup(t)

	token := getStudentToken(t, core.Principal{ID: "std-ada", Name: "Ada Uwase", Email: "ada@test.cd"})
	snap := openSession(t, token, "future-activity")
	if snap.Phase != player.PhaseLoadError {
		t.Fatalf("phase = %v; want %v", snap.Phase, player.PhaseLoadError)
	}
	id := snap.SessionID

	// a failed session drops interactions and refuses writes
	after := interact(t, token, id, InteractionRequest{Op: OpZoomIn})
	if after.Transform.Scale != 1 {
		t.Errorf("scale = %v; want 1", after.Transform.Scale)
	}
	tt := httpTest{
		wantCode: http.StatusConflict,
		wantData: marchallObj(t, httpErr{Error: "session has no loaded attempt"}),
	}
	req, rec := newAuthRequest(http.MethodPut, "/v1/player/sessions/"+id+"/draft", token, marchallObj(t, DraftRequest{Text: "nope"}))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, tt, rec)

	// once the activity ships, retry recovers the same session
	createActivity(t, "future-activity", "Future Activity", true, publicScene())

	req, rec = newAuthRequest(http.MethodPost, "/v1/player/sessions/"+id+"/retry", token)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("retry code = %v; body %s", rec.Code, rec.Body.String())
	}
	snap = decodeSnapshot(t, rec)
	if snap.Phase != player.PhaseDraft {
		t.Errorf("phase = %v; want %v; error %q", snap.Phase, player.PhaseDraft, snap.Error)
	}
	if snap.Error != "" {
		t.Errorf("error = %q; want empty", snap.Error)
	}
	if snap.Attempt == nil || snap.Attempt.AttemptNo != 1 {
		t.Errorf("attempt = %+v; want draft #1", snap.Attempt)
	}
}

func Test_playerApi_assetError(t *testing.T) {
	setup(t)

	createActivity(t, "core-sample", "Core Sample", true, storageScene())
	createActivity(t, "photo-tour", "Photo Tour", true, publicScene())
	token := getStudentToken(t, core.Principal{ID: "std-ada", Name: "Ada Uwase", Email: "ada@test.cd"})

	snap := openSession(t, token, "core-sample")
	if snap.Asset == nil || snap.Asset.Source != simulation.AssetSourceStorage {
		t.Fatalf("asset = %+v; want a storage-backed asset", snap.Asset)
	}
	id := snap.SessionID

	report := func() player.Snapshot {
		req, rec := newAuthRequest(http.MethodPost, "/v1/player/sessions/"+id+"/asset-error", token)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("asset-error code = %v; body %s", rec.Code, rec.Body.String())
		}
		return decodeSnapshot(t, rec)
	}

	// the first failure re-signs the URL and carries on
	snap = report()
	if snap.SceneError != "" {
		t.Errorf("scene_error = %q; want a silent re-resolution", snap.SceneError)
	}
	if snap.Asset == nil || snap.Asset.URL == "" {
		t.Error("asset should still be resolvable")
	}

	// the second failure parks the scene without touching the draft
	snap = report()
	if snap.SceneError != "scene image failed to load" {
		t.Errorf("scene_error = %q", snap.SceneError)
	}
	if snap.Phase != player.PhaseDraft {
		t.Errorf("phase = %v; the draft must survive a dead scene", snap.Phase)
	}

	req, rec := newAuthRequest(http.MethodPut, "/v1/player/sessions/"+id+"/draft", token, marchallObj(t, DraftRequest{Text: "Text work continues."}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("draft save code = %v; saving must work with a dead scene", rec.Code)
	}

	t.Run("Public assets are never re-resolved", func(t *testing.T) {
		snap := openSession(t, token, "photo-tour")
		req, rec := newAuthRequest(http.MethodPost, "/v1/player/sessions/"+snap.SessionID+"/asset-error", token)
		app.ServeHTTP(rec, req)
		snap = decodeSnapshot(t, rec)
		if snap.SceneError != "scene image failed to load" {
			t.Errorf("scene_error = %q; a public URL has nothing to re-sign", snap.SceneError)
		}
	})
}

func Test_playerApi_export(t *testing.T) {
	setup(t)

	createActivity(t, "sediment-layers", "Sediment Layers", true, publicScene())
	token := getStudentToken(t, core.Principal{ID: "std-ada", Name: "Ada Uwase", Email: "ada@test.cd"})
	snap := openSession(t, token, "sediment-layers")
	if snap.Phase != player.PhaseDraft {
		t.Fatalf("phase = %v; want %v; error %q", snap.Phase, player.PhaseDraft, snap.Error)
	}
	id := snap.SessionID
	attemptID := snap.Attempt.ID

	interact(t, token, id, InteractionRequest{Op: OpTogglePinMode})
	interact(t, token, id, InteractionRequest{Op: OpAddPin, X: 0.25, Y: 0.75})

	req, rec := newAuthRequest(http.MethodPut, "/v1/player/sessions/"+id+"/draft", token, marchallObj(t, DraftRequest{Text: "Notes so far."}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("draft code = %v; body %s", rec.Code, rec.Body.String())
	}

	req, rec = newAuthRequest(http.MethodGet, "/v1/player/sessions/"+id+"/export", token)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("export code = %v; body %s", rec.Code, rec.Body.String())
	}
	wantCD := fmt.Sprintf("attachment; filename=%q", "attempt-"+attemptID+"-export.json")
	if cd := rec.Header().Get("Content-Disposition"); cd != wantCD {
		t.Errorf("Content-Disposition = %q; want %q", cd, wantCD)
	}

	var bundle attempt.ExportBundle
	if err := json.Unmarshal(rec.Body.Bytes(), &bundle); err != nil {
		t.Fatalf("json.Unmarshal(): %v", err)
	}
	if bundle.Attempt.ID != attemptID {
		t.Errorf("attempt = %q; want %q", bundle.Attempt.ID, attemptID)
	}
	if len(bundle.Responses) != 1 || bundle.Responses[0].ResponseKey != attempt.PrimaryResponseKey || bundle.Responses[0].ResponseText != "Notes so far." {
		t.Errorf("responses = %+v; want the saved primary response", bundle.Responses)
	}
	if len(bundle.Events) != 2 {
		t.Fatalf("events = %d; want 2", len(bundle.Events))
	}
	if bundle.Events[0].EventType != "pin_mode_toggled" || bundle.Events[1].EventType != "pin_added" {
		t.Errorf("event order = %q, %q; want pin_mode_toggled then pin_added", bundle.Events[0].EventType, bundle.Events[1].EventType)
	}
	if bundle.ExportedAt.IsZero() {
		t.Error("exported_at should be set")
	}
}

func Test_playerApi_sessionAccess(t *testing.T) {
	setup(t)

	createActivity(t, "sediment-layers", "Sediment Layers", true, publicScene())
	adaToken := getStudentToken(t, core.Principal{ID: "std-ada", Name: "Ada Uwase", Email: "ada@test.cd"})
	bobToken := getStudentToken(t, core.Principal{ID: "std-bob", Name: "Bob Ilunga", Email: "bob@test.cd"})
	teacherToken := getTeacherToken(t, core.Principal{ID: "tch-001", Name: "Prof Kalala", Email: "prof@test.cd"})

	path := "/v1/player/sessions/" + openSession(t, adaToken, "sediment-layers").SessionID
	notFound := marchallObj(t, httpErr{Error: "not found"})

	tests := []httpTest{
		{name: "Auth required", path: path, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Student role required", path: path, token: teacherToken, wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "Another student's session reads as missing", path: path, token: bobToken, wantCode: http.StatusNotFound, wantData: notFound},
		{name: "Unknown session", path: "/v1/player/sessions/nope", token: adaToken, wantCode: http.StatusNotFound, wantData: notFound},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("Closing releases the handle", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, path, adaToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Errorf("close code = %v; want %v", rec.Code, http.StatusNoContent)
		}

		tt := httpTest{wantCode: http.StatusNotFound, wantData: notFound}
		req, rec = newAuthRequest(http.MethodGet, path, adaToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})
}
