package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/bellbook/bellbook/core"
)

// tenantHeader names the school for requests that carry no access token
// (login, registration). An authenticated principal's token claim always
// wins over the header.
const tenantHeader = "X-School-ID"

func requestTenant(ctx echo.Context) string {
	if claims, err := getContextClaims(ctx); err == nil && claims.SchoolID != "" {
		return claims.SchoolID
	}
	return ctx.Request().Header.Get(tenantHeader)
}

// sessionMiddleware opens one unit-of-work per request, bound to the resolved
// tenant, and finishes it once the handler returns: commit on success,
// rollback on error. Handlers that fan events out commit explicitly first;
// the trailing commit is then a no-op.
func sessionMiddleware(store core.SessionStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			sess, err := store.Begin(ctx.Request().Context(), requestTenant(ctx))
			if err != nil {
				return errors.Wrap(err, "opening session")
			}
			ctx.Set(contextSessionKey, sess)

			if err = next(ctx); err != nil {
				_ = sess.Rollback()
				return err
			}
			return errors.Wrap(sess.Commit(), "committing session")
		}
	}
}
