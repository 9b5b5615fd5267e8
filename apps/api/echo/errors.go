package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/bellbook/bellbook/core"
	"github.com/bellbook/bellbook/core/absence"
	"github.com/bellbook/bellbook/core/announce"
	"github.com/bellbook/bellbook/core/calendar"
	"github.com/bellbook/bellbook/core/consent"
	"github.com/bellbook/bellbook/core/messaging"
	"github.com/bellbook/bellbook/core/school"
	"github.com/bellbook/bellbook/core/user"
)

var (
	errUnauthorized       = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAccountDeactivated = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errHttpForbidden      = echo.NewHTTPError(http.StatusForbidden, "permission denied")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that maps our
// domain errors onto HTTP statuses. signalShutdown is called to gracefully
// shut the Server down whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(translator translatorFunc, logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = translator(vErr)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			code, message = domainErrorStatus(origErr)
			if code == http.StatusInternalServerError {
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				var usr user.User
				if claims, cErr := getContextClaims(ctx); cErr == nil {
					usr.ID = claims.Subject
					usr.SchoolID = claims.SchoolID
					usr.Role = claims.Role
				}
				logger.Error(msg, errors.Wrap(err, msg), usr)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead {
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

// domainErrorStatus maps sentinel errors from the core services onto HTTP
// statuses. Anything unknown is a server error.
func domainErrorStatus(err error) (int, interface{}) {
	switch err {
	case user.ErrNotFound,
		school.ErrNotFound,
		school.ErrLearnerNotFound,
		announce.ErrNotFound,
		announce.ErrChannelNotFound,
		messaging.ErrNotFound,
		absence.ErrNotFound,
		consent.ErrNotFound,
		calendar.ErrNotFound:
		return http.StatusNotFound, err.Error()

	case announce.ErrAccessDenied,
		announce.ErrNotAuthor,
		messaging.ErrNotParticipant,
		messaging.ErrBlocked,
		messaging.ErrCannotMute,
		absence.ErrNotGuardian,
		consent.ErrNotGuardian:
		return http.StatusForbidden, err.Error()

	case user.ErrPhoneExists,
		user.ErrEmailExists,
		school.ErrSlugExists,
		consent.ErrAlreadyResponded:
		return http.StatusConflict, err.Error()

	case consent.ErrFormClosed:
		return http.StatusBadRequest, err.Error()

	case messaging.ErrRateLimited:
		return http.StatusTooManyRequests, err.Error()
	}
	return http.StatusInternalServerError, nil
}

// translatorFunc renders one field validation error as user-facing text.
type translatorFunc func(validator.FieldError) string
