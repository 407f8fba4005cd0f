package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Virtual-Educator/SimLearning/core/attempt"
	"github.com/Virtual-Educator/SimLearning/core/simulation"
)

type activityApi struct {
	svc        simulation.ServiceInterface
	attemptSvc attempt.ServiceInterface
	validate   *validator.Validate
}

func registerActivityAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := activityApi{
		svc:        deps.ActivitySvc,
		attemptSvc: deps.AttemptSvc,
		validate:   deps.Validate,
	}

	ag := g.Group("/activities", jwt, teacherMiddleware())
	ag.GET("", api.query)
	ag.POST("", api.create)
	ag.GET("/:id", api.retrieve)
	ag.GET("/:id/attempts", api.queryAttempts)

	tg := g.Group("/attempts", jwt, teacherMiddleware())
	tg.GET("/:id", api.retrieveAttempt)
	tg.PUT("/:id/grade", api.grade)
	tg.GET("/:id/export", api.exportAttempt)
}

// Handlers

func (api *activityApi) query(ctx echo.Context) error {
	activities, err := api.svc.QueryAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying activities")
	}
	if activities == nil {
		activities = []simulation.Activity{}
	}
	return ctx.JSON(http.StatusOK, activities)
}

func (api *activityApi) create(ctx echo.Context) error {
	var data simulation.NewActivity
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewActivity")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	act, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating activity")
	}
	return ctx.JSON(http.StatusCreated, act)
}

func (api *activityApi) retrieve(ctx echo.Context) error {
	act, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding activity by ID")
	}
	return ctx.JSON(http.StatusOK, act)
}

func (api *activityApi) queryAttempts(ctx echo.Context) error {
	act, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding activity by ID")
	}

	filter := new(attempt.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []attempt.Attempt{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)
	ordering.Keep("attempt_no", "started_at", "submitted_at", "student_name", "status", "grade")

	attempts, err := api.attemptSvc.Query(ctx.Request().Context(), act.ID, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying attempts")
	}
	if attempts == nil {
		attempts = []attempt.Attempt{}
	}
	return ctx.JSON(http.StatusOK, attempts)
}

func (api *activityApi) retrieveAttempt(ctx echo.Context) error {
	att, err := api.attemptSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding attempt by ID")
	}
	return ctx.JSON(http.StatusOK, att)
}

func (api *activityApi) grade(ctx echo.Context) error {
	var data attempt.GradeAttempt
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GradeAttempt")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	att, err := api.attemptSvc.Grade(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "grading attempt")
	}
	return ctx.JSON(http.StatusOK, att)
}

func (api *activityApi) exportAttempt(ctx echo.Context) error {
	bundle, err := api.attemptSvc.Export(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "exporting attempt")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+bundle.Filename()+`"`)
	return ctx.JSONPretty(http.StatusOK, bundle, "  ")
}
