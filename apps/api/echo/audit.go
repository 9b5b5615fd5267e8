package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/bellbook/bellbook/core/audit"
)

type auditApi struct {
	svc *audit.Service
}

func registerAuditAPI(g *echo.Group, jwt, sess echo.MiddlewareFunc, deps ServerDeps) {
	api := auditApi{svc: deps.AuditSvc}

	ag := g.Group("/audit-log", jwt, sess, adminMiddleware())
	ag.GET("", api.query)
}

func (api *auditApi) query(ctx echo.Context) error {
	filter := new(audit.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []audit.Entry{})
	}

	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	entries, err := api.svc.Filter(ctx.Request().Context(), sess, *filter)
	if err != nil {
		return errors.Wrap(err, "querying audit log")
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}
