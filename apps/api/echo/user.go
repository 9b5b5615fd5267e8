package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/bellbook/bellbook/core"
	"github.com/bellbook/bellbook/core/audit"
	"github.com/bellbook/bellbook/core/user"
)

type userApi struct {
	conf     *core.Config
	svc      *user.Service
	audits   *audit.Service
	validate *validator.Validate
}

func registerUserAPI(g *echo.Group, jwt, sess echo.MiddlewareFunc, deps ServerDeps) {
	api := userApi{
		conf:     deps.Conf,
		svc:      deps.UserSvc,
		audits:   deps.AuditSvc,
		validate: deps.Validate,
	}

	// un-authed endpoints
	ag := g.Group("/auth", sess)
	ag.POST("/otp/request", api.requestOTP)
	ag.POST("/otp/verify", api.verifyOTP)
	ag.POST("/register", api.register)
	ag.POST("/login", api.login)
	ag.POST("/token-refresh", api.refreshToken)

	// authed endpoints
	mg := g.Group("/auth", jwt, sess)
	mg.GET("/me", api.me)
	mg.POST("/logout", api.logout)

	ug := g.Group("/users", jwt, sess, adminMiddleware())
	ug.GET("", api.query)
	ug.DELETE("/:id", api.deactivate)

	dg := g.Group("/devices", jwt, sess)
	dg.POST("", api.registerDevice)
	dg.DELETE("", api.deactivateDevice)
}

// Handlers

func (api *userApi) requestOTP(ctx echo.Context) error {
	var data user.OTPRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to OTPRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.RequestOTP(ctx.Request().Context(), data.Phone); err != nil {
		return errors.Wrap(err, "requesting OTP")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "A verification code has been sent to the phone number supplied.",
	})
}

func (api *userApi) verifyOTP(ctx echo.Context) error {
	var data user.OTPVerify
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to OTPVerify")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	ok, err := api.svc.VerifyOTP(reqCtx, data.Phone, data.OTP)
	if err != nil {
		return errors.Wrap(err, "verifying OTP")
	}
	if !ok {
		return core.NewValidationError(errors.New("invalid or expired code"))
	}

	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	usr, err := api.svc.ActiveByPhone(reqCtx, sess, data.Phone)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			// the code checked out but no account exists yet
			return ctx.JSON(http.StatusOK, RegistrationRequiredResponse{RegistrationRequired: true})
		}
		return errors.Wrap(err, "finding user by phone")
	}
	return api.loginResponse(ctx, sess, usr)
}

func (api *userApi) register(ctx echo.Context) error {
	var data user.RegisterGuardian
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RegisterGuardian")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	ok, err := api.svc.VerifyOTP(reqCtx, data.Phone, data.OTP)
	if err != nil {
		return errors.Wrap(err, "verifying OTP")
	}
	if !ok {
		return core.NewValidationError(errors.New("invalid or expired code"))
	}

	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	usr, err := api.svc.RegisterGuardian(reqCtx, sess, data)
	if err != nil {
		return errors.Wrap(err, "registering guardian")
	}

	pair, err := issueTokenPair(reqCtx, api.conf, api.svc, usr)
	if err != nil {
		return errors.Wrap(err, "issuing tokens")
	}
	return ctx.JSON(http.StatusCreated, TokenPairResponse{TokenPair: pair, User: usr})
}

func (api *userApi) login(ctx echo.Context) error {
	var data user.EmailLogin
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EmailLogin")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	usr, err := api.svc.Authenticate(ctx.Request().Context(), sess, data.Email, data.Password)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewValidationError(errors.New("invalid credentials"))
		}
		return errors.Wrap(err, "authenticating")
	}
	return api.loginResponse(ctx, sess, usr)
}

func (api *userApi) loginResponse(ctx echo.Context, sess core.Session, usr user.User) error {
	reqCtx := ctx.Request().Context()
	usr, err := api.svc.SetLastLogin(reqCtx, sess, usr)
	if err != nil {
		return errors.Wrap(err, "setting last login")
	}
	pair, err := issueTokenPair(reqCtx, api.conf, api.svc, usr)
	if err != nil {
		return errors.Wrap(err, "issuing tokens")
	}
	return ctx.JSON(http.StatusOK, TokenPairResponse{TokenPair: pair, User: usr})
}

// refreshToken exchanges a valid refresh token for a fresh pair. The spent
// token is revoked first, so a replayed token fails even within its TTL.
func (api *userApi) refreshToken(ctx echo.Context) error {
	var data RefreshRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RefreshRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := ParseToken(api.conf, data.RefreshToken)
	if err != nil || claims.Kind != tokenKindRefresh {
		return errUnauthorized
	}
	reqCtx := ctx.Request().Context()
	ok, err := api.svc.Refresh().IsRefreshTokenValid(reqCtx, claims.Subject, data.RefreshToken)
	if err != nil {
		return errors.Wrap(err, "checking refresh token")
	}
	if !ok {
		return errUnauthorized
	}

	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	if sess.TenantID() == "" && claims.SchoolID != "" {
		if err = sess.SetTenant(reqCtx, claims.SchoolID); err != nil {
			return errors.Wrap(err, "binding tenant")
		}
	}
	usr, err := api.svc.GetByID(reqCtx, sess, claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errUnauthorized
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if !usr.IsActive {
		return errAccountDeactivated
	}

	if err = api.svc.Refresh().RevokeRefreshToken(reqCtx, claims.Subject, data.RefreshToken); err != nil {
		return errors.Wrap(err, "revoking refresh token")
	}
	pair, err := issueTokenPair(reqCtx, api.conf, api.svc, usr)
	if err != nil {
		return errors.Wrap(err, "issuing tokens")
	}
	return ctx.JSON(http.StatusOK, TokenPairResponse{TokenPair: pair, User: usr})
}

func (api *userApi) logout(ctx echo.Context) error {
	var data RefreshRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RefreshRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Refresh().RevokeRefreshToken(ctx.Request().Context(), claims.Subject, data.RefreshToken); err != nil {
		return errors.Wrap(err, "revoking refresh token")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) query(ctx echo.Context) error {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}

	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	users, err := api.svc.Filter(ctx.Request().Context(), sess, *filter)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) deactivate(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return err
	}
	// ctxUser cannot deactivate themselves
	if ctx.Param("id") == ctxUsr.ID {
		return errHttpForbidden
	}

	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	if err = api.svc.Deactivate(reqCtx, sess, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deactivating user")
	}
	err = api.audits.Record(reqCtx, sess, audit.Entry{
		SchoolID:   ctxUsr.SchoolID,
		UserID:     ctxUsr.ID,
		Action:     audit.ActionDeactivateUser,
		EntityType: "user",
		EntityID:   ctx.Param("id"),
		IPAddress:  ctx.RealIP(),
	})
	if err != nil {
		return errors.Wrap(err, "recording deactivation")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) registerDevice(ctx echo.Context) error {
	var data RegisterDeviceRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RegisterDeviceRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return err
	}
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	dev, err := api.svc.RegisterDevice(ctx.Request().Context(), sess, usr.ID, data.Token, data.Platform)
	if err != nil {
		return errors.Wrap(err, "registering device")
	}
	return ctx.JSON(http.StatusCreated, dev)
}

func (api *userApi) deactivateDevice(ctx echo.Context) error {
	var data RegisterDeviceRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RegisterDeviceRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return err
	}
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeactivateDevice(ctx.Request().Context(), sess, usr.ID, data.Token); err != nil {
		return errors.Wrap(err, "deactivating device")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Bindings

type (
	TokenPairResponse struct {
		TokenPair
		User user.User `json:"user"`
	}

	RegistrationRequiredResponse struct {
		RegistrationRequired bool `json:"registration_required"`
	}

	RefreshRequest struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}

	RegisterDeviceRequest struct {
		Token    string `json:"token" validate:"required"`
		Platform string `json:"platform" validate:"omitempty,oneof=ios android web"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)

func (rr *RefreshRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(rr)
}

func (rd *RegisterDeviceRequest) Validate(validate *validator.Validate) error {
	rd.Token = core.CleanString(rd.Token)
	return validate.Struct(rd)
}
