package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"

	"github.com/bellbook/bellbook/core"
	"github.com/bellbook/bellbook/core/absence"
	"github.com/bellbook/bellbook/core/announce"
	"github.com/bellbook/bellbook/core/audit"
	"github.com/bellbook/bellbook/core/calendar"
	"github.com/bellbook/bellbook/core/consent"
	"github.com/bellbook/bellbook/core/messaging"
	"github.com/bellbook/bellbook/core/notify"
	"github.com/bellbook/bellbook/core/stream"
	"github.com/bellbook/bellbook/core/user"
)

type (
	ServerDeps struct {
		Conf   *core.Config
		Logger core.Logger
		Store  core.SessionStore
		Redis  *redis.Client

		UserSvc      *user.Service
		AnnounceSvc  *announce.Service
		MessagingSvc *messaging.Service
		AbsenceSvc   *absence.Service
		ConsentSvc   *consent.Service
		CalendarSvc  *calendar.Service
		AuditSvc     *audit.Service
		NotifySvc    *notify.Service
		Dispatcher   *stream.Dispatcher

		Validate   *validator.Validate
		Translator ut.Translator
	}

	Server interface {
		http.Handler
		Start()
		Shutdown(context.Context) error
		Close() error

		// Errors receives fatal listener errors.
		Errors() <-chan error
		// ShutdownSignal receives OS signals and internal shutdown requests.
		ShutdownSignal() <-chan os.Signal
	}

	server struct {
		deps       ServerDeps
		app        *echo.Echo
		errCh      chan error
		shutdownCh chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	s := &server{
		deps:       deps,
		app:        echo.New(),
		errCh:      make(chan error, 1),
		shutdownCh: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdownCh, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Debug = conf.Debug

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(
		func(fe validator.FieldError) string { return fe.Translate(s.deps.Translator) },
		s.deps.Logger,
		s.signalShutdown,
	)

	s.app.GET("/", home)
	s.app.GET("/health", s.health)

	v1 := s.app.Group("/v1")
	jwt := jwtMiddleware(conf)
	sess := sessionMiddleware(s.deps.Store)

	registerUserAPI(v1, jwt, sess, s.deps)
	registerAnnounceAPI(v1, jwt, sess, s.deps)
	registerMessagingAPI(v1, jwt, sess, s.deps)
	registerAbsenceAPI(v1, jwt, sess, s.deps)
	registerConsentAPI(v1, jwt, sess, s.deps)
	registerCalendarAPI(v1, jwt, sess, s.deps)
	registerAuditAPI(v1, jwt, sess, s.deps)
	registerStreamAPI(v1, s.deps)
}

func (s *server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Addr); err != nil && err != http.ErrServerClosed {
		s.errCh <- err
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) Errors() <-chan error {
	return s.errCh
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdownCh
}

// signalShutdown requests a graceful shutdown, as if SIGTERM were received.
func (s *server) signalShutdown() {
	s.shutdownCh <- syscall.SIGTERM
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to BellBook API!")
}

func (s *server) health(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	sess, err := s.deps.Store.Begin(reqCtx, "")
	if err != nil {
		return ctx.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
	}
	_ = sess.Rollback()
	if err = s.deps.Redis.Ping(reqCtx).Err(); err != nil {
		return ctx.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
	}
	return ctx.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
