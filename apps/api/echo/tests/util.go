package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	. "github.com/Virtual-Educator/SimLearning/apps/api/echo"
	"github.com/Virtual-Educator/SimLearning/core"
	"github.com/Virtual-Educator/SimLearning/core/attempt"
	"github.com/Virtual-Educator/SimLearning/core/player"
	"github.com/Virtual-Educator/SimLearning/core/scene"
	"github.com/Virtual-Educator/SimLearning/core/simulation"
	emailsvc "github.com/Virtual-Educator/SimLearning/services/email"
	inmemdb "github.com/Virtual-Educator/SimLearning/storage/database/inmem"
)

var (
	conf *core.Config
	app  Server

	activitySvc simulation.ServiceInterface
	attemptSvc  attempt.ServiceInterface

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...interface{}) {}
func (nopLogger) Info(msg string, args ...interface{})  {}
func (nopLogger) Warn(msg string, args ...interface{})  {}
func (nopLogger) Error(msg string, args ...interface{}) {}
func (nopLogger) Fatal(msg string, args ...interface{}) {}

// setup builds a fresh API stack on in-memory repositories. Each test starts
// from its own instance, so tests may mutate conf freely.
func setup(t *testing.T) {
	t.Helper()

	conf = newTestConfig()

	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open(): %v", err)
	}

	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	activitySvc = simulation.NewService(inmemdb.NewActivityRepository(db))
	attemptSvc = attempt.NewService(inmemdb.NewAttemptRepository(db), mailSvc, conf)
	resolver := simulation.NewSignedAssetResolver(conf)

	registry := player.NewRegistry(
		player.SessionDeps{
			Logger:     nopLogger{},
			Activities: activitySvc,
			Attempts:   attemptSvc,
			Resolver:   resolver,
		},
		conf.SessionIdleTimeout,
	)
	t.Cleanup(registry.Shutdown)

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	simulation.InitValidators(validate, translator)

	app = NewServer(
		ServerDeps{
			Conf:           conf,
			Logger:         nopLogger{},
			ActivitySvc:    activitySvc,
			AttemptSvc:     attemptSvc,
			Registry:       registry,
			AssetVerifier:  resolver,
			Validate:       validate,
			Translator:     translator,
			DisableReqLogs: true,
		},
	)
}

func newTestConfig() *core.Config {
	return &core.Config{
		TestMode:         true,
		Env:              "TEST",
		Build:            "test",
		AppName:          "SimLearning",
		SecretKey:        "~t35t-s3cr3t~",
		FrontendBaseURL:  "http://localhost:3000",
		DefaultFromEmail: mail.Address{Name: "SimLearning", Address: "noreply@test.cd"},

		AssetSigningTTL:    15 * time.Minute,
		SessionIdleTimeout: 30 * time.Minute,

		Server: core.ServerConfig{JWTExpirationDelta: 1 * time.Hour},
	}
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func createActivity(t *testing.T, slug, title string, published bool, sc simulation.Scene) simulation.Activity {
	t.Helper()
	act, err := activitySvc.Create(context.Background(), simulation.NewActivity{
		Slug:  slug,
		Title: title,
		Manifest: simulation.Manifest{
			Scene: sc,
			Task:  simulation.Task{Prompt: "Describe what the scene shows."},
			Tools: scene.ToolConfig{Grid: true, Pins: true},
		},
		IsPublished: published,
	})
	if err != nil {
		t.Fatalf("createActivity(): %v", err)
	}
	return act
}

func publicScene() simulation.Scene {
	return simulation.Scene{Type: simulation.SceneTypeImage, Src: "https://static.test.cd/scenes/rocks.png"}
}

func storageScene() simulation.Scene {
	return simulation.Scene{Type: simulation.SceneTypeImage, ImagePath: "rocks/sediment.png"}
}

func getStudentToken(t *testing.T, p core.Principal) string {
	t.Helper()
	token, err := GenerateToken(conf, NewStudentClaims(conf, p))
	if err != nil {
		t.Fatalf("GenerateToken(): %v", err)
	}
	return token
}

func getTeacherToken(t *testing.T, p core.Principal) string {
	t.Helper()
	token, err := GenerateToken(conf, NewTeacherClaims(conf, p))
	if err != nil {
		t.Fatalf("GenerateToken(): %v", err)
	}
	return token
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList(): %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
