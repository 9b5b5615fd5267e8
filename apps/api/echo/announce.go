package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/bellbook/bellbook/core/announce"
	"github.com/bellbook/bellbook/core/audit"
	"github.com/bellbook/bellbook/core/notify"
	"github.com/bellbook/bellbook/core/stream"
	"github.com/bellbook/bellbook/core/user"
)

type announceApi struct {
	svc        *announce.Service
	usrSvc     *user.Service
	audits     *audit.Service
	notify     *notify.Service
	dispatcher *stream.Dispatcher
	validate   *validator.Validate
}

func registerAnnounceAPI(g *echo.Group, jwt, sess echo.MiddlewareFunc, deps ServerDeps) {
	api := announceApi{
		svc:        deps.AnnounceSvc,
		usrSvc:     deps.UserSvc,
		audits:     deps.AuditSvc,
		notify:     deps.NotifySvc,
		dispatcher: deps.Dispatcher,
		validate:   deps.Validate,
	}

	cg := g.Group("/channels", jwt, sess)
	cg.GET("", api.queryChannels)
	cg.GET("/:id/announcements", api.query)

	ag := g.Group("/announcements", jwt, sess)
	ag.POST("", api.create, staffMiddleware())
	ag.GET("/:id", api.retrieve)
	ag.POST("/:id/read", api.markRead)
	ag.GET("/:id/reads", api.reads, staffMiddleware())
	ag.GET("/:id/stats", api.stats, staffMiddleware())
	ag.DELETE("/:id", api.destroy, staffMiddleware())
}

func (api *announceApi) queryChannels(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	chans, err := api.svc.Channels(ctx.Request().Context(), sess, usr)
	if err != nil {
		return errors.Wrap(err, "querying channels")
	}
	if chans == nil {
		chans = []announce.Channel{}
	}
	return ctx.JSON(http.StatusOK, chans)
}

func (api *announceApi) query(ctx echo.Context) error {
	filter := new(announce.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []announce.Announcement{})
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	anns, err := api.svc.List(ctx.Request().Context(), sess, usr, ctx.Param("id"), *filter)
	if err != nil {
		return errors.Wrap(err, "querying announcements")
	}
	if anns == nil {
		anns = []announce.Announcement{}
	}
	return ctx.JSON(http.StatusOK, anns)
}

// create persists the announcement, commits, then fans a live event out to
// the channel audience. A failed commit publishes nothing.
func (api *announceApi) create(ctx echo.Context) error {
	var data announce.NewAnnouncement
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAnnouncement")
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
	ann, recipients, err := api.svc.Create(reqCtx, sess, usr, data)
	if err != nil {
		return errors.Wrap(err, "creating announcement")
	}
	if err = api.notify.QueuePush(reqCtx, sess, usr.SchoolID, ann.Title, recipients); err != nil {
		return err
	}
	if err = sess.Commit(); err != nil {
		return errors.Wrap(err, "committing announcement")
	}

	api.dispatcher.Publish(recipients, stream.NewAnnouncementEvent(ann.ID, ann.ChannelID, ann.Title, ann.Priority))
	return ctx.JSON(http.StatusCreated, ann)
}

func (api *announceApi) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	ann, err := api.svc.Get(ctx.Request().Context(), sess, usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrieving announcement")
	}
	return ctx.JSON(http.StatusOK, ann)
}

func (api *announceApi) markRead(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.MarkRead(ctx.Request().Context(), sess, usr, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "marking announcement read")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *announceApi) reads(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	reads, err := api.svc.Reads(ctx.Request().Context(), sess, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying reads")
	}
	if reads == nil {
		reads = []announce.ReadReceipt{}
	}
	return ctx.JSON(http.StatusOK, reads)
}

func (api *announceApi) stats(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	stats, err := api.svc.Stats(ctx.Request().Context(), sess, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "aggregating stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *announceApi) destroy(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	if err = api.svc.Delete(reqCtx, sess, usr, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting announcement")
	}
	err = api.audits.Record(reqCtx, sess, audit.Entry{
		SchoolID:   usr.SchoolID,
		UserID:     usr.ID,
		Action:     audit.ActionDeleteAnnounce,
		EntityType: "announcement",
		EntityID:   ctx.Param("id"),
		IPAddress:  ctx.RealIP(),
	})
	if err != nil {
		return errors.Wrap(err, "recording deletion")
	}
	return ctx.NoContent(http.StatusNoContent)
}
