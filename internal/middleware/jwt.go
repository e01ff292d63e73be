package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/session-auth/internal/auth"
	"github.com/iliyamo/session-auth/internal/model"
)

// lookupTimeout bounds the user lookup behind a bearer token.
const lookupTimeout = 5 * time.Second

// Authenticator resolves credentials to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, creds auth.Credentials) (model.Identity, error)
}

// BearerAuth requires a valid access token in the Authorization header and
// stores the resolved identity in the request context. Failures are
// returned as *auth.Error for the HTTP error handler to render.
func BearerAuth(a Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c)
			if !ok {
				return auth.Unauthorized("missing bearer token")
			}
			id, err := authenticate(c, a, raw)
			if err != nil {
				return err
			}
			setIdentity(c, id)
			return next(c)
		}
	}
}

// OptionalBearer attaches an identity when a valid access token is
// present and otherwise lets the request through anonymously.
func OptionalBearer(a Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if raw, ok := bearerToken(c); ok {
				id, err := authenticate(c, a, raw)
				if err == nil {
					setIdentity(c, id)
				} else if auth.KindOf(err) == auth.KindInternal {
					return err
				}
			}
			return next(c)
		}
	}
}

func authenticate(c echo.Context, a Authenticator, token string) (model.Identity, error) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), lookupTimeout)
	defer cancel()
	return a.Authenticate(ctx, auth.BearerCredentials{Token: token})
}

func bearerToken(c echo.Context) (string, bool) {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
