package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/session-auth/internal/model"
)

const identityKey = "identity"

func setIdentity(c echo.Context, id model.Identity) {
	c.Set(identityKey, id)
}

// IdentityFrom returns the identity stored by BearerAuth or OptionalBearer.
func IdentityFrom(c echo.Context) (model.Identity, bool) {
	id, ok := c.Get(identityKey).(model.Identity)
	return id, ok && id.ID != ""
}

// userID is the rate limiter's view of the caller: the account id, or
// "anon" before authentication.
func userID(c echo.Context) string {
	if id, ok := IdentityFrom(c); ok {
		return id.ID
	}
	return "anon"
}
