package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/bellbook/bellbook/core/messaging"
	"github.com/bellbook/bellbook/core/notify"
	"github.com/bellbook/bellbook/core/stream"
	"github.com/bellbook/bellbook/core/user"
)

type messagingApi struct {
	svc        *messaging.Service
	usrSvc     *user.Service
	notify     *notify.Service
	dispatcher *stream.Dispatcher
	validate   *validator.Validate
}

func registerMessagingAPI(g *echo.Group, jwt, sess echo.MiddlewareFunc, deps ServerDeps) {
	api := messagingApi{
		svc:        deps.MessagingSvc,
		usrSvc:     deps.UserSvc,
		notify:     deps.NotifySvc,
		dispatcher: deps.Dispatcher,
		validate:   deps.Validate,
	}

	cg := g.Group("/conversations", jwt, sess)
	cg.GET("", api.query)
	cg.POST("", api.create)
	cg.GET("/:id/messages", api.messages)
	cg.POST("/:id/messages", api.send)
	cg.POST("/:id/read", api.markRead)
	cg.POST("/:id/mute", api.mute)
	cg.POST("/:id/block", api.block, staffMiddleware())
}

func (api *messagingApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	convs, err := api.svc.List(ctx.Request().Context(), sess, usr)
	if err != nil {
		return errors.Wrap(err, "querying conversations")
	}
	if convs == nil {
		convs = []messaging.Summary{}
	}
	return ctx.JSON(http.StatusOK, convs)
}

func (api *messagingApi) create(ctx echo.Context) error {
	var data messaging.NewConversation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewConversation")
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
	sum, err := api.svc.Create(ctx.Request().Context(), sess, usr, data)
	if err != nil {
		return errors.Wrap(err, "creating conversation")
	}
	return ctx.JSON(http.StatusCreated, sum)
}

func (api *messagingApi) messages(ctx echo.Context) error {
	filter := new(messaging.PageFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []messaging.Message{})
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	msgs, err := api.svc.Messages(ctx.Request().Context(), sess, usr, ctx.Param("id"), ctx.RealIP(), *filter)
	if err != nil {
		return errors.Wrap(err, "querying messages")
	}
	if msgs == nil {
		msgs = []messaging.Message{}
	}
	return ctx.JSON(http.StatusOK, msgs)
}

// send appends the message, commits, then notifies the other participants.
// Rate-limited sends surface a 429 without writing anything.
func (api *messagingApi) send(ctx echo.Context) error {
	var data messaging.NewMessage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMessage")
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
	reqCtx := ctx.Request().Context()
	msg, recipients, err := api.svc.Send(reqCtx, sess, usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "sending message")
	}
	if err = api.notify.QueuePush(reqCtx, sess, usr.SchoolID, "New message from "+usr.FirstName, recipients); err != nil {
		return err
	}
	if err = sess.Commit(); err != nil {
		return errors.Wrap(err, "committing message")
	}

	api.dispatcher.Publish(recipients, stream.NewMessageEvent(msg.ConversationID, msg.ID))
	return ctx.JSON(http.StatusCreated, msg)
}

func (api *messagingApi) markRead(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.MarkRead(ctx.Request().Context(), sess, usr, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "marking conversation read")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *messagingApi) mute(ctx echo.Context) error {
	var data messaging.MuteRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MuteRequest")
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Mute(ctx.Request().Context(), sess, usr, ctx.Param("id"), data.Muted); err != nil {
		return errors.Wrap(err, "muting conversation")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *messagingApi) block(ctx echo.Context) error {
	var data messaging.BlockRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BlockRequest")
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
	if err = api.svc.Block(ctx.Request().Context(), sess, usr, ctx.Param("id"), data); err != nil {
		return errors.Wrap(err, "blocking participant")
	}
	return ctx.NoContent(http.StatusNoContent)
}
