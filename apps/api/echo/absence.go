package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/bellbook/bellbook/core/absence"
	"github.com/bellbook/bellbook/core/user"
)

type absenceApi struct {
	svc      *absence.Service
	usrSvc   *user.Service
	validate *validator.Validate
}

func registerAbsenceAPI(g *echo.Group, jwt, sess echo.MiddlewareFunc, deps ServerDeps) {
	api := absenceApi{
		svc:      deps.AbsenceSvc,
		usrSvc:   deps.UserSvc,
		validate: deps.Validate,
	}

	ag := g.Group("/absences", jwt, sess)
	ag.POST("", api.create)
	ag.GET("", api.query)
	ag.POST("/:id/review", api.review, staffMiddleware())
}

func (api *absenceApi) create(ctx echo.Context) error {
	var data absence.NewReport
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReport")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	rep, err := api.svc.Report(ctx.Request().Context(), sess, usr, data)
	if err != nil {
		return errors.Wrap(err, "filing absence report")
	}
	return ctx.JSON(http.StatusCreated, rep)
}

func (api *absenceApi) query(ctx echo.Context) error {
	filter := new(absence.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []absence.Report{})
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	reps, err := api.svc.List(ctx.Request().Context(), sess, usr, *filter)
	if err != nil {
		return errors.Wrap(err, "querying absence reports")
	}
	if reps == nil {
		reps = []absence.Report{}
	}
	return ctx.JSON(http.StatusOK, reps)
}

func (api *absenceApi) review(ctx echo.Context) error {
	var data absence.Review
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Review")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	rep, err := api.svc.Review(ctx.Request().Context(), sess, usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "reviewing absence report")
	}
	return ctx.JSON(http.StatusOK, rep)
}
