package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/bellbook/bellbook/core"
	"github.com/bellbook/bellbook/core/stream"
	"github.com/bellbook/bellbook/core/user"
)

type streamApi struct {
	conf       *core.Config
	store      core.SessionStore
	usrSvc     *user.Service
	dispatcher *stream.Dispatcher
}

func registerStreamAPI(g *echo.Group, deps ServerDeps) {
	api := streamApi{
		conf:       deps.Conf,
		store:      deps.Store,
		usrSvc:     deps.UserSvc,
		dispatcher: deps.Dispatcher,
	}
	g.GET("/stream", api.stream)
}

// stream holds a server-sent-events connection open and relays committed
// domain events to the authenticated user. EventSource cannot set headers,
// so the access token may also arrive as a query parameter. The connection
// never holds a database session; the principal is resolved once up front.
func (api *streamApi) stream(ctx echo.Context) error {
	raw := ctx.QueryParam("token")
	if raw == "" {
		raw = bearerToken(ctx)
	}
	claims, err := ParseToken(api.conf, raw)
	if err != nil || claims.Kind != tokenKindAccess {
		return errUnauthorized
	}

	reqCtx := ctx.Request().Context()
	sess, err := api.store.Begin(reqCtx, claims.SchoolID)
	if err != nil {
		return errors.Wrap(err, "opening session")
	}
	usr, err := api.usrSvc.GetByID(reqCtx, sess, claims.Subject)
	_ = sess.Rollback()
	if err != nil {
		return errUnauthorized
	}
	if !usr.IsActive {
		return errAccountDeactivated
	}

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)

	q := api.dispatcher.Register(usr.ID)
	defer api.dispatcher.Unregister(usr.ID, q)

	connected, err := json.Marshal(stream.NewConnectedEvent(usr.ID))
	if err != nil {
		return errors.Wrap(err, "marshaling connected event")
	}
	if err = writeSSE(res, connected); err != nil {
		return nil // client gone
	}

	keepalive := time.NewTicker(api.conf.Stream.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-reqCtx.Done():
			return nil
		case payload := <-q.C():
			if err = writeSSE(res, payload); err != nil {
				return nil
			}
		case <-keepalive.C:
			// comment line keeps intermediaries from closing an idle stream
			if _, err = fmt.Fprint(res, ": keepalive\n\n"); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

func writeSSE(res *echo.Response, payload []byte) error {
	if _, err := fmt.Fprintf(res, "data: %s\n\n", payload); err != nil {
		return err
	}
	res.Flush()
	return nil
}
