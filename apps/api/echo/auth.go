package echoapi

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/bellbook/bellbook/core"
	"github.com/bellbook/bellbook/core/user"
)

// Token kinds. Only access tokens authenticate API calls; refresh tokens are
// exchanged at the refresh endpoint and are useless anywhere else.
const (
	tokenKindAccess  = "access"
	tokenKindRefresh = "refresh"
)

const (
	contextClaimsKey  = "claims"
	contextUserKey    = "user"
	contextSessionKey = "session"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.RegisteredClaims
	SchoolID string    `json:"school_id,omitempty"`
	Role     user.Role `json:"role,omitempty"`
	Kind     string    `json:"kind"`
}

func newClaims(conf *core.Config, usr user.User, kind string, ttl time.Duration) *Claims {
	now := time.Now()
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    conf.AppName,
			Subject:   usr.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		SchoolID: usr.SchoolID,
		Role:     usr.Role,
		Kind:     kind,
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(conf.SecretKey)
	return ss, errors.Wrap(err, "signing token")
}

// ParseToken validates a raw token string and returns its claims.
func ParseToken(conf *core.Config, raw string) (*Claims, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return conf.SecretKey, nil
	})
	if err != nil || !token.Valid {
		return nil, errUnauthorized
	}
	return claims, nil
}

// TokenPair is the two-token credential set handed out on login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// issueTokenPair mints an access+refresh pair for usr and registers the
// refresh token on the server-side allow-list.
func issueTokenPair(ctx context.Context, conf *core.Config, svc *user.Service, usr user.User) (TokenPair, error) {
	access, err := GenerateToken(conf, newClaims(conf, usr, tokenKindAccess, conf.Auth.AccessTokenTTL))
	if err != nil {
		return TokenPair{}, errors.Wrap(err, "generating access token")
	}
	refresh, err := GenerateToken(conf, newClaims(conf, usr, tokenKindRefresh, conf.Auth.RefreshTokenTTL))
	if err != nil {
		return TokenPair{}, errors.Wrap(err, "generating refresh token")
	}
	if err = svc.Refresh().StoreRefreshToken(ctx, usr.ID, refresh); err != nil {
		return TokenPair{}, errors.Wrap(err, "storing refresh token")
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// jwtMiddleware authenticates requests off a Bearer access token.
func jwtMiddleware(conf *core.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			raw := bearerToken(ctx)
			if raw == "" {
				return errUnauthorized
			}
			claims, err := ParseToken(conf, raw)
			if err != nil || claims.Kind != tokenKindAccess {
				return errUnauthorized
			}
			ctx.Set(contextClaimsKey, claims)
			return next(ctx)
		}
	}
}

func bearerToken(ctx echo.Context) string {
	auth := ctx.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return auth[len(prefix):]
	}
	return ""
}

// roleMiddleware allows only principals whose role is in the allow-list.
func roleMiddleware(roles ...user.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			for _, role := range roles {
				if claims.Role == role {
					return next(ctx)
				}
			}
			return errHttpForbidden
		}
	}
}

func adminMiddleware() echo.MiddlewareFunc {
	return roleMiddleware(user.AdminRoles...)
}

func staffMiddleware() echo.MiddlewareFunc {
	return roleMiddleware(user.RoleSuperAdmin, user.RoleSchoolAdmin, user.RoleTeacher)
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if claims, ok := ctx.Get(contextClaimsKey).(*Claims); ok {
		return *claims, nil
	}
	return Claims{}, errUnauthorized
}

func getContextSession(ctx echo.Context) (core.Session, error) {
	if sess, ok := ctx.Get(contextSessionKey).(core.Session); ok {
		return sess, nil
	}
	return nil, errors.New("session not found in echo.Context")
}

// getContextUser loads the authenticated principal, caching it on the request
// context so repeated lookups in one request hit the database once.
func getContextUser(ctx echo.Context, svc *user.Service) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return user.User{}, err
	}
	sess, err := getContextSession(ctx)
	if err != nil {
		return user.User{}, err
	}

	usr, err := svc.GetByID(ctx.Request().Context(), sess, claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	if !usr.IsActive {
		return user.User{}, errAccountDeactivated
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}
