package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/Virtual-Educator/SimLearning/core"
	"github.com/Virtual-Educator/SimLearning/core/attempt"
	"github.com/Virtual-Educator/SimLearning/core/player"
	"github.com/Virtual-Educator/SimLearning/core/simulation"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound  = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch cause := errors.Cause(err); cause {
		case simulation.ErrNotFound, attempt.ErrNotFound, player.ErrSessionNotFound:
			code = http.StatusNotFound
			message = cause.Error()
		case attempt.ErrAttemptLocked, attempt.ErrDuplicateAttempt, player.ErrSaveInFlight, player.ErrExportInFlight, player.ErrNotLoaded:
			code = http.StatusConflict
			message = cause.Error()
		case player.ErrSessionClosed:
			code = http.StatusGone
			message = cause.Error()
		case attempt.ErrNotSubmitted, simulation.ErrSlugExists:
			code = http.StatusBadRequest
			message = cause.Error()
		case simulation.ErrAssetForbidden:
			code = http.StatusForbidden
			message = cause.Error()
		case attempt.ErrAuthRequired:
			code = http.StatusUnauthorized
			message = cause.Error()
		default:
			code, message = typedErrorResponse(err, ctx, logger, translator, signalShutdown)
		}

		if ctx.Echo().Debug {
			message = err.Error()
		} else if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

func typedErrorResponse(err error, ctx echo.Context, logger core.Logger, translator ut.Translator, signalShutdown func()) (int, interface{}) {
	switch origErr := errors.Cause(err).(type) {
	case *echo.HTTPError:
		if origErr == middleware.ErrJWTMissing {
			return http.StatusUnauthorized, origErr.Message
		}
		if origErr.Internal != nil {
			if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
				origErr = herr
			}
		}
		return origErr.Code, origErr.Message
	case validator.ValidationErrors:
		fldErrs := make(map[string]string, len(origErr))
		for _, vErr := range origErr {
			fldErrs[vErr.Field()] = vErr.Translate(translator)
		}
		return http.StatusBadRequest, fldErrs
	case *core.ValidationError:
		if origErr.Fields != nil {
			fldErrs := make(map[string]string, len(origErr.Fields))
			for _, fErr := range origErr.Fields {
				fldErrs[fErr.Field] = fErr.Error
			}
			return http.StatusBadRequest, fldErrs
		}
		return http.StatusBadRequest, origErr.Error()
	default: // any other error is a server error
		msg := http.StatusText(http.StatusInternalServerError)

		var principal core.Principal
		if claims, cErr := getContextClaims(ctx); cErr == nil {
			principal = claims.Principal()
		}
		logger.Error(msg, errors.Wrap(err, msg), principal)

		// shutting down...
		if core.IsShutdown(err) {
			signalShutdown()
		}
		return http.StatusInternalServerError, msg
	}
}
