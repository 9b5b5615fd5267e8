package echoapi

import (
	"net/http"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bellbook/bellbook/core/audit"
	"github.com/bellbook/bellbook/core/user"
	smssvc "github.com/bellbook/bellbook/services/sms"
)

var otpPattern = regexp.MustCompile(`\d{6}`)

func lastOTP(t *testing.T, phone string) string {
	t.Helper()
	sms, ok := smssvc.LastSMSTo(phone)
	require.True(t, ok, "no SMS sent to %s", phone)
	otp := otpPattern.FindString(sms.Body)
	require.NotEmpty(t, otp)
	return otp
}

func TestStaffLogin(t *testing.T) {
	env := newTestEnv(t)
	sch := env.seedSchool(t, "Green Valley Primary", "green-valley")
	admin := env.seedStaff(t, sch.ID, "admin@greenvalley.test", user.RoleSchoolAdmin)

	t.Run("valid credentials return a token pair", func(t *testing.T) {
		rec := env.doWithSchool(t, http.MethodPost, "/v1/auth/login", "", sch.ID, user.EmailLogin{
			Email:    "admin@greenvalley.test",
			Password: "Sup3rS3cret!",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp TokenPairResponse
		decodeBody(t, rec.Body, &resp)
		assert.NotEmpty(t, resp.AccessToken)
		assert.NotEmpty(t, resp.RefreshToken)
		assert.Equal(t, admin.ID, resp.User.ID)

		claims, err := ParseToken(env.conf, resp.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, tokenKindAccess, claims.Kind)
		assert.Equal(t, sch.ID, claims.SchoolID)
		assert.Equal(t, user.RoleSchoolAdmin, claims.Role)
	})

	t.Run("wrong password is indistinct from unknown email", func(t *testing.T) {
		rec := env.doWithSchool(t, http.MethodPost, "/v1/auth/login", "", sch.ID, user.EmailLogin{
			Email:    "admin@greenvalley.test",
			Password: "wrong",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = env.doWithSchool(t, http.MethodPost, "/v1/auth/login", "", sch.ID, user.EmailLogin{
			Email:    "nobody@greenvalley.test",
			Password: "Sup3rS3cret!",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGuardianOTPFlow(t *testing.T) {
	env := newTestEnv(t)
	sch := env.seedSchool(t, "Green Valley Primary", "green-valley")
	phone := "+27821230001"

	t.Run("unknown phone verifies but requires registration", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/auth/otp/request", "", user.OTPRequest{Phone: phone})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = env.do(t, http.MethodPost, "/v1/auth/otp/verify", "", user.OTPVerify{Phone: phone, OTP: lastOTP(t, phone)})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp RegistrationRequiredResponse
		decodeBody(t, rec.Body, &resp)
		assert.True(t, resp.RegistrationRequired)
	})

	t.Run("registration creates the guardian and logs them in", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/auth/otp/request", "", user.OTPRequest{Phone: phone})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = env.do(t, http.MethodPost, "/v1/auth/register", "", user.RegisterGuardian{
			SchoolID:  sch.ID,
			Phone:     phone,
			OTP:       lastOTP(t, phone),
			FirstName: "Naledi",
			LastName:  "Dlamini",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp TokenPairResponse
		decodeBody(t, rec.Body, &resp)
		assert.NotEmpty(t, resp.AccessToken)
		assert.Equal(t, user.RoleParent, resp.User.Role)
		assert.Equal(t, sch.ID, resp.User.SchoolID)
	})

	t.Run("registered phone logs in via verify", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/auth/otp/request", "", user.OTPRequest{Phone: phone})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = env.doWithSchool(t, http.MethodPost, "/v1/auth/otp/verify", "", sch.ID, user.OTPVerify{Phone: phone, OTP: lastOTP(t, phone)})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp TokenPairResponse
		decodeBody(t, rec.Body, &resp)
		assert.NotEmpty(t, resp.AccessToken)
		assert.NotEmpty(t, resp.RefreshToken)
	})

	t.Run("a consumed code cannot be replayed", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/auth/otp/request", "", user.OTPRequest{Phone: phone})
		require.Equal(t, http.StatusOK, rec.Code)
		otp := lastOTP(t, phone)

		rec = env.doWithSchool(t, http.MethodPost, "/v1/auth/otp/verify", "", sch.ID, user.OTPVerify{Phone: phone, OTP: otp})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = env.doWithSchool(t, http.MethodPost, "/v1/auth/otp/verify", "", sch.ID, user.OTPVerify{Phone: phone, OTP: otp})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTokenRefresh(t *testing.T) {
	env := newTestEnv(t)
	sch := env.seedSchool(t, "Green Valley Primary", "green-valley")
	env.seedStaff(t, sch.ID, "teacher@greenvalley.test", user.RoleTeacher)

	login := func(t *testing.T) TokenPairResponse {
		rec := env.doWithSchool(t, http.MethodPost, "/v1/auth/login", "", sch.ID, user.EmailLogin{
			Email:    "teacher@greenvalley.test",
			Password: "Sup3rS3cret!",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		var resp TokenPairResponse
		decodeBody(t, rec.Body, &resp)
		return resp
	}

	t.Run("refresh rotates the pair and kills the spent token", func(t *testing.T) {
		first := login(t)

		rec := env.do(t, http.MethodPost, "/v1/auth/token-refresh", "", RefreshRequest{RefreshToken: first.RefreshToken})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var second TokenPairResponse
		decodeBody(t, rec.Body, &second)
		assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

		// replaying the spent token fails even though its TTL has not passed
		rec = env.do(t, http.MethodPost, "/v1/auth/token-refresh", "", RefreshRequest{RefreshToken: first.RefreshToken})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		// the rotated token still works
		rec = env.do(t, http.MethodPost, "/v1/auth/token-refresh", "", RefreshRequest{RefreshToken: second.RefreshToken})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("an access token is not accepted as a refresh token", func(t *testing.T) {
		pair := login(t)
		rec := env.do(t, http.MethodPost, "/v1/auth/token-refresh", "", RefreshRequest{RefreshToken: pair.AccessToken})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("a refresh token does not authenticate API calls", func(t *testing.T) {
		pair := login(t)
		rec := env.do(t, http.MethodGet, "/v1/auth/me", pair.RefreshToken, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("logout revokes the refresh token", func(t *testing.T) {
		pair := login(t)
		rec := env.do(t, http.MethodPost, "/v1/auth/logout", pair.AccessToken, RefreshRequest{RefreshToken: pair.RefreshToken})
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = env.do(t, http.MethodPost, "/v1/auth/token-refresh", "", RefreshRequest{RefreshToken: pair.RefreshToken})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAuthorization(t *testing.T) {
	env := newTestEnv(t)
	sch := env.seedSchool(t, "Green Valley Primary", "green-valley")
	admin := env.seedStaff(t, sch.ID, "admin@greenvalley.test", user.RoleSchoolAdmin)
	parent := env.seedParent(t, sch.ID, "+27821230002")

	t.Run("me requires a token", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/auth/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("me returns the principal", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/auth/me", env.accessToken(t, parent), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var usr user.User
		decodeBody(t, rec.Body, &usr)
		assert.Equal(t, parent.ID, usr.ID)
	})

	t.Run("listing users is admin-only", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/users", env.accessToken(t, parent), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = env.do(t, http.MethodGet, "/v1/users", env.accessToken(t, admin), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var users []user.User
		decodeBody(t, rec.Body, &users)
		assert.Len(t, users, 2)
	})

	t.Run("admins cannot deactivate themselves", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, "/v1/users/"+admin.ID, env.accessToken(t, admin), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("deactivation locks the account out", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, "/v1/users/"+parent.ID, env.accessToken(t, admin), nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = env.do(t, http.MethodGet, "/v1/auth/me", env.accessToken(t, parent), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestPlatformAdminActions(t *testing.T) {
	env := newTestEnv(t)
	root := env.seedStaff(t, "", "root@bellbook.test", user.RoleSuperAdmin)
	ops := env.seedStaff(t, "", "ops@bellbook.test", user.RoleSuperAdmin)

	// platform accounts carry no school; audited actions must still go through
	rec := env.do(t, http.MethodDelete, "/v1/users/"+ops.ID, env.accessToken(t, root), nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/v1/audit-log?action="+audit.ActionDeactivateUser, env.accessToken(t, root), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []audit.Entry
	decodeBody(t, rec.Body, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, root.ID, entries[0].UserID)
	assert.Equal(t, ops.ID, entries[0].EntityID)
	assert.Empty(t, entries[0].SchoolID)
}
