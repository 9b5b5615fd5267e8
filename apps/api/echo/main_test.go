package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/bellbook/bellbook/core"
	"github.com/bellbook/bellbook/core/absence"
	"github.com/bellbook/bellbook/core/announce"
	"github.com/bellbook/bellbook/core/audit"
	"github.com/bellbook/bellbook/core/calendar"
	"github.com/bellbook/bellbook/core/consent"
	"github.com/bellbook/bellbook/core/messaging"
	"github.com/bellbook/bellbook/core/notify"
	"github.com/bellbook/bellbook/core/school"
	"github.com/bellbook/bellbook/core/stream"
	"github.com/bellbook/bellbook/core/user"
	emailsvc "github.com/bellbook/bellbook/services/email"
	logsvc "github.com/bellbook/bellbook/services/logger"
	smssvc "github.com/bellbook/bellbook/services/sms"
	dummydb "github.com/bellbook/bellbook/storage/database/dummy"
	"github.com/bellbook/bellbook/storage/redisdb"
)

func testConfig() *core.Config {
	return &core.Config{
		TestMode:  true,
		AppName:   "BellBook",
		Env:       "TEST",
		SecretKey: []byte("test-secret"),
		Server:    core.ServerConfig{Addr: ":0", ShutdownTimeout: time.Second},
		Auth: core.AuthConfig{
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: time.Hour,
			OTPLength:       6,
			OTPTTL:          5 * time.Minute,
		},
		Messaging: core.MessagingConfig{RateLimit: 3, RateWindow: time.Hour},
		Stream:    core.StreamConfig{QueueSize: 8, KeepaliveInterval: 20 * time.Millisecond},
	}
}

type testEnv struct {
	conf       *core.Config
	db         *dummydb.DB
	redis      *miniredis.Miniredis
	app        Server
	dispatcher *stream.Dispatcher

	usrSvc *user.Service
	schSvc *school.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conf := testConfig()
	db, err := dummydb.Open()
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	usrRepo := dummydb.NewUserRepository(db)
	schRepo := dummydb.NewSchoolRepository(db)
	auditSvc := audit.NewService(dummydb.NewAuditRepository(db))
	usrSvc := user.NewService(
		usrRepo,
		redisdb.NewOTPStore(client, conf.Auth.OTPTTL),
		redisdb.NewRefreshTokenStore(client, conf.SecretKey, conf.Auth.RefreshTokenTTL),
		smssvc.NewConsoleServiceMock(),
		emailsvc.NewConsoleServiceMock(conf),
		conf,
	)

	logger := logsvc.NewConsoleLogger()
	logger.Enable(false)
	dispatcher := stream.NewDispatcher(conf.Stream.QueueSize, logger)

	validate := validator.New()
	translator := newTestTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	app := NewServer(ServerDeps{
		Conf:   conf,
		Logger: logger,
		Store:  db,
		Redis:  client,

		UserSvc:      usrSvc,
		AnnounceSvc:  announce.NewService(dummydb.NewAnnounceRepository(db), schRepo),
		MessagingSvc: messaging.NewService(dummydb.NewMessagingRepository(db), redisdb.NewRateLimiter(client, conf.Messaging.RateLimit, conf.Messaging.RateWindow), auditSvc),
		AbsenceSvc:   absence.NewService(dummydb.NewAbsenceRepository(db), schRepo),
		ConsentSvc:   consent.NewService(dummydb.NewConsentRepository(db), schRepo),
		CalendarSvc:  calendar.NewService(dummydb.NewCalendarRepository(db)),
		AuditSvc:     auditSvc,
		NotifySvc:    notify.NewService(dummydb.NewNotifyRepository(db)),
		Dispatcher:   dispatcher,

		Validate:   validate,
		Translator: translator,
	})

	return &testEnv{
		conf:       conf,
		db:         db,
		redis:      mr,
		app:        app,
		dispatcher: dispatcher,
		usrSvc:     usrSvc,
		schSvc:     school.NewService(schRepo),
	}
}

func newTestTranslator() ut.Translator {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	return translator
}

// Seeding helpers

func (env *testEnv) seedSchool(t *testing.T, name, slug string) school.School {
	t.Helper()
	sess, err := env.db.Begin(context.Background(), "")
	require.NoError(t, err)
	sch, err := env.schSvc.Create(context.Background(), sess, school.NewSchool{Name: name, Slug: slug})
	require.NoError(t, err)
	return sch
}

func (env *testEnv) seedStaff(t *testing.T, schoolID, email string, role user.Role) user.User {
	t.Helper()
	sess, err := env.db.Begin(context.Background(), schoolID)
	require.NoError(t, err)
	usr, err := env.usrSvc.CreateStaff(context.Background(), sess, user.NewStaff{
		SchoolID:  schoolID,
		Email:     email,
		FirstName: "Test",
		LastName:  "Staff",
		Role:      role,
		Password:  "Sup3rS3cret!",
	})
	require.NoError(t, err)
	return usr
}

func (env *testEnv) seedParent(t *testing.T, schoolID, phone string) user.User {
	t.Helper()
	sess, err := env.db.Begin(context.Background(), "")
	require.NoError(t, err)
	usr, err := env.usrSvc.RegisterGuardian(context.Background(), sess, user.RegisterGuardian{
		SchoolID:  schoolID,
		Phone:     phone,
		OTP:       "seeded",
		FirstName: "Test",
		LastName:  "Parent",
	})
	require.NoError(t, err)
	return usr
}

func (env *testEnv) seedLearner(t *testing.T, schoolID, classID string, guardians ...user.User) school.Learner {
	t.Helper()
	l := school.Learner{
		ID:        uuid.NewString(),
		SchoolID:  schoolID,
		FirstName: "Lina",
		LastName:  "Learner",
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	env.db.AddLearner(l, classID)
	for _, g := range guardians {
		env.db.LinkGuardian(g.ID, l.ID)
	}
	return l
}

func (env *testEnv) seedSchoolChannel(t *testing.T, schoolID string) announce.Channel {
	t.Helper()
	ch := announce.Channel{
		ID:        uuid.NewString(),
		SchoolID:  schoolID,
		Name:      "General",
		Type:      announce.ChannelSchool,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	env.db.AddChannel(ch)
	return ch
}

// Request helpers

func (env *testEnv) accessToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(env.conf, newClaims(env.conf, usr, tokenKindAccess, env.conf.Auth.AccessTokenTTL))
	require.NoError(t, err)
	return token
}

func (env *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	return env.doWithSchool(t, method, path, token, "", body)
}

// doWithSchool sends a request carrying the tenant header, for endpoints
// reached before any token exists (login, OTP verification).
func (env *testEnv) doWithSchool(t *testing.T, method, path, token, schoolID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	if schoolID != "" {
		req.Header.Set(tenantHeader, schoolID)
	}
	rec := httptest.NewRecorder()
	env.app.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, body io.Reader, dest interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(body).Decode(dest))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// losing redis degrades health even while the database is reachable
	env.redis.Close()
	rec = env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
