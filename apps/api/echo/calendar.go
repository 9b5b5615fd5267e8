package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/bellbook/bellbook/core/calendar"
	"github.com/bellbook/bellbook/core/user"
)

type calendarApi struct {
	svc      *calendar.Service
	usrSvc   *user.Service
	validate *validator.Validate
}

func registerCalendarAPI(g *echo.Group, jwt, sess echo.MiddlewareFunc, deps ServerDeps) {
	api := calendarApi{
		svc:      deps.CalendarSvc,
		usrSvc:   deps.UserSvc,
		validate: deps.Validate,
	}

	eg := g.Group("/events", jwt, sess)
	eg.GET("", api.query)
	eg.POST("", api.create, staffMiddleware())
	eg.GET("/:id", api.retrieve)
	eg.DELETE("/:id", api.destroy, staffMiddleware())
}

func (api *calendarApi) query(ctx echo.Context) error {
	filter := new(calendar.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []calendar.Event{})
	}

	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	evs, err := api.svc.List(ctx.Request().Context(), sess, *filter)
	if err != nil {
		return errors.Wrap(err, "querying events")
	}
	if evs == nil {
		evs = []calendar.Event{}
	}
	return ctx.JSON(http.StatusOK, evs)
}

func (api *calendarApi) create(ctx echo.Context) error {
	var data calendar.NewEvent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEvent")
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
	ev, err := api.svc.Create(ctx.Request().Context(), sess, usr, data)
	if err != nil {
		return errors.Wrap(err, "creating event")
	}
	return ctx.JSON(http.StatusCreated, ev)
}

func (api *calendarApi) retrieve(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	ev, err := api.svc.Get(ctx.Request().Context(), sess, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrieving event")
	}
	return ctx.JSON(http.StatusOK, ev)
}

func (api *calendarApi) destroy(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), sess, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting event")
	}
	return ctx.NoContent(http.StatusNoContent)
}
