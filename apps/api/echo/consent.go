package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/bellbook/bellbook/core/consent"
	"github.com/bellbook/bellbook/core/user"
)

type consentApi struct {
	svc      *consent.Service
	usrSvc   *user.Service
	validate *validator.Validate
}

func registerConsentAPI(g *echo.Group, jwt, sess echo.MiddlewareFunc, deps ServerDeps) {
	api := consentApi{
		svc:      deps.ConsentSvc,
		usrSvc:   deps.UserSvc,
		validate: deps.Validate,
	}

	cg := g.Group("/consent-forms", jwt, sess)
	cg.POST("", api.create, staffMiddleware())
	cg.GET("", api.query)
	cg.POST("/:id/responses", api.respond)
	cg.GET("/:id/responses", api.responses, staffMiddleware())
}

func (api *consentApi) create(ctx echo.Context) error {
	var data consent.NewForm
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewForm")
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
	form, err := api.svc.CreateForm(ctx.Request().Context(), sess, usr, data)
	if err != nil {
		return errors.Wrap(err, "creating consent form")
	}
	return ctx.JSON(http.StatusCreated, form)
}

func (api *consentApi) query(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	forms, err := api.svc.ListActive(ctx.Request().Context(), sess)
	if err != nil {
		return errors.Wrap(err, "querying consent forms")
	}
	if forms == nil {
		forms = []consent.Form{}
	}
	return ctx.JSON(http.StatusOK, forms)
}

func (api *consentApi) respond(ctx echo.Context) error {
	var data consent.NewResponse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewResponse")
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
	resp, err := api.svc.Respond(ctx.Request().Context(), sess, usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "recording consent response")
	}
	return ctx.JSON(http.StatusCreated, resp)
}

func (api *consentApi) responses(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	resps, err := api.svc.Responses(ctx.Request().Context(), sess, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying consent responses")
	}
	if resps == nil {
		resps = []consent.Response{}
	}
	return ctx.JSON(http.StatusOK, resps)
}
