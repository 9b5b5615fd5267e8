package main

import (
	"context"
	"database/sql"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	echoapi "github.com/bellbook/bellbook/apps/api/echo"
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
	emailsvc "github.com/bellbook/bellbook/services/email"
	logsvc "github.com/bellbook/bellbook/services/logger"
	smssvc "github.com/bellbook/bellbook/services/sms"
	"github.com/bellbook/bellbook/storage/database"
	"github.com/bellbook/bellbook/storage/redisdb"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()
	store := database.NewStore(db)

	// set up redis-backed stores
	ctx := context.Background()
	redisClient, err := redisdb.Open(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("connecting to redis: %v", err), err)
	}
	defer func() { _ = redisClient.Close() }()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	smsSvc := smssvc.NewConsoleService()

	schRepo := database.NewSchoolRepository()
	auditSvc := audit.NewService(database.NewAuditRepository())
	usrSvc := user.NewService(
		database.NewUserRepository(),
		redisdb.NewOTPStore(redisClient, conf.Auth.OTPTTL),
		redisdb.NewRefreshTokenStore(redisClient, conf.SecretKey, conf.Auth.RefreshTokenTTL),
		smsSvc,
		mailSvc,
		conf,
	)
	dispatcher := stream.NewDispatcher(conf.Stream.QueueSize, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugAddr, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:   conf,
			Logger: logger,
			Store:  store,
			Redis:  redisClient,

			UserSvc:      usrSvc,
			AnnounceSvc:  announce.NewService(database.NewAnnounceRepository(), schRepo),
			MessagingSvc: messaging.NewService(database.NewMessagingRepository(), redisdb.NewRateLimiter(redisClient, conf.Messaging.RateLimit, conf.Messaging.RateWindow), auditSvc),
			AbsenceSvc:   absence.NewService(database.NewAbsenceRepository(), schRepo),
			ConsentSvc:   consent.NewService(database.NewConsentRepository(), schRepo),
			CalendarSvc:  calendar.NewService(database.NewCalendarRepository()),
			AuditSvc:     auditSvc,
			NotifySvc:    notify.NewService(database.NewNotifyRepository()),
			Dispatcher:   dispatcher,

			Validate:   validate,
			Translator: translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(shutdownCtx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sql.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
