package echoapi

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Virtual-Educator/SimLearning/core"
	"github.com/Virtual-Educator/SimLearning/core/player"
	"github.com/Virtual-Educator/SimLearning/core/scene"
)

// Interaction ops accepted by the events endpoint.
const (
	OpZoomIn        = "zoom_in"
	OpZoomOut       = "zoom_out"
	OpZoomBy        = "zoom_by"
	OpPointerDown   = "pointer_down"
	OpPointerMove   = "pointer_move"
	OpPointerUp     = "pointer_up"
	OpPointerCancel = "pointer_cancel"
	OpClick         = "click"
	OpResetView     = "reset_view"
	OpAddPin        = "add_pin"
	OpRemovePin     = "remove_pin"
	OpToggleGrid    = "toggle_grid"
	OpTogglePinMode = "toggle_pin_mode"
	OpTogglePanel   = "toggle_panel"
)

type playerApi struct {
	registry *player.Registry
	validate *validator.Validate
}

func registerPlayerAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := playerApi{
		registry: deps.Registry,
		validate: deps.Validate,
	}

	pg := g.Group("/player", jwt, studentMiddleware())
	pg.POST("/sessions", api.openSession)

	// session endpoints; the session must belong to the caller
	sg := pg.Group("/sessions/:id")
	sg.GET("", api.retrieveSession)
	sg.DELETE("", api.closeSession)
	sg.POST("/retry", api.retryLoad)
	sg.POST("/events", api.interact)
	sg.POST("/asset-error", api.reportAssetError)
	sg.PUT("/draft", api.saveDraft)
	sg.POST("/submit", api.submit)
	sg.GET("/export", api.export)
}

// Handlers

func (api *playerApi) openSession(ctx echo.Context) error {
	principal, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}

	var data OpenSessionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to OpenSessionRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sess := api.registry.Open(ctx.Request().Context(), principal, data.Activity)
	return ctx.JSON(http.StatusCreated, sess.Snapshot())
}

func (api *playerApi) retrieveSession(ctx echo.Context) error {
	sess, err := api.ownedSession(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess.Snapshot())
}

func (api *playerApi) closeSession(ctx echo.Context) error {
	sess, err := api.ownedSession(ctx)
	if err != nil {
		return err
	}
	api.registry.Close(sess.ID())
	return ctx.NoContent(http.StatusNoContent)
}

func (api *playerApi) retryLoad(ctx echo.Context) error {
	sess, err := api.ownedSession(ctx)
	if err != nil {
		return err
	}
	sess.Retry(ctx.Request().Context())
	return ctx.JSON(http.StatusOK, sess.Snapshot())
}

// interact applies one viewport or overlay operation to the session and
// returns the refreshed snapshot. Operations arriving in a phase that does not
// accept them are dropped, exactly like a disabled button swallowing a click.
func (api *playerApi) interact(ctx echo.Context) error {
	sess, err := api.ownedSession(ctx)
	if err != nil {
		return err
	}

	var data InteractionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to InteractionRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	switch data.Op {
	case OpZoomIn:
		sess.ZoomIn()
	case OpZoomOut:
		sess.ZoomOut()
	case OpZoomBy:
		sess.ZoomBy(data.Factor)
	case OpPointerDown:
		sess.PointerDown(data.X, data.Y)
	case OpPointerMove:
		sess.PointerMove(data.X, data.Y)
	case OpPointerUp:
		sess.PointerUp()
	case OpPointerCancel:
		sess.PointerCancel()
	case OpClick:
		sess.Click(data.X, data.Y, data.Box)
	case OpResetView:
		sess.ResetView()
	case OpAddPin:
		sess.AddPin(scene.Point{X: data.X, Y: data.Y})
	case OpRemovePin:
		sess.RemovePin(data.PinID)
	case OpToggleGrid:
		sess.ToggleGrid()
	case OpTogglePinMode:
		sess.TogglePinMode()
	case OpTogglePanel:
		sess.TogglePanel()
	default:
		return core.NewValidationError(nil, core.FieldError{Field: "op", Error: "unknown interaction op"})
	}
	return ctx.JSON(http.StatusOK, sess.Snapshot())
}

func (api *playerApi) reportAssetError(ctx echo.Context) error {
	sess, err := api.ownedSession(ctx)
	if err != nil {
		return err
	}
	sess.ReportAssetError(ctx.Request().Context())
	return ctx.JSON(http.StatusOK, sess.Snapshot())
}

func (api *playerApi) saveDraft(ctx echo.Context) error {
	sess, err := api.ownedSession(ctx)
	if err != nil {
		return err
	}

	var data DraftRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DraftRequest")
	}

	if err := sess.PersistDraft(ctx.Request().Context(), data.Text); err != nil {
		return errors.Wrap(err, "saving draft")
	}
	return ctx.JSON(http.StatusOK, sess.Snapshot())
}

func (api *playerApi) submit(ctx echo.Context) error {
	sess, err := api.ownedSession(ctx)
	if err != nil {
		return err
	}

	var data DraftRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DraftRequest")
	}

	if err := sess.Submit(ctx.Request().Context(), data.Text); err != nil {
		return errors.Wrap(err, "submitting attempt")
	}
	return ctx.JSON(http.StatusOK, sess.Snapshot())
}

func (api *playerApi) export(ctx echo.Context) error {
	sess, err := api.ownedSession(ctx)
	if err != nil {
		return err
	}
	return sess.Export(ctx.Request().Context(), httpDownloadSink{ctx: ctx})
}

// ownedSession resolves the :id session and checks it belongs to the caller.
// Another student's session id yields the same 404 as an unknown one.
func (api *playerApi) ownedSession(ctx echo.Context) (*player.Session, error) {
	principal, err := getContextPrincipal(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting context principal")
	}

	sess, err := api.registry.Get(ctx.Param("id"))
	if err != nil {
		return nil, errHttpNotFound
	}
	if sess.Owner().ID != principal.ID {
		return nil, errHttpNotFound
	}
	return sess, nil
}

// httpDownloadSink streams an export bundle as a file download response.
type httpDownloadSink struct {
	ctx echo.Context
}

var _ player.DownloadSink = httpDownloadSink{}

func (s httpDownloadSink) Download(filename, contentType string, data []byte) error {
	s.ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return s.ctx.Blob(http.StatusOK, contentType, data)
}

type (
	OpenSessionRequest struct {
		Activity string `json:"activity" validate:"required,slug"`
	}

	// InteractionRequest is one player control action. X and Y are screen pixels
	// for pointer ops and click, and normalized scene coordinates for add_pin.
	InteractionRequest struct {
		Op     string    `json:"op" validate:"required"`
		X      float64   `json:"x"`
		Y      float64   `json:"y"`
		Factor float64   `json:"factor"`
		PinID  int       `json:"pin_id"`
		Box    scene.Box `json:"box"`
	}

	DraftRequest struct {
		Text string `json:"text"`
	}
)

func (r *OpenSessionRequest) Validate(validate *validator.Validate) error {
	r.Activity = core.CleanString(r.Activity, true /* lower */)
	return validate.Struct(r)
}

func (r *InteractionRequest) Validate(validate *validator.Validate) error {
	r.Op = core.CleanString(r.Op, true /* lower */)
	return validate.Struct(r)
}
