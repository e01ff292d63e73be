package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/session-auth/internal/auth"
	"github.com/iliyamo/session-auth/internal/model"
)

type stubAuthenticator map[string]model.Identity

func (s stubAuthenticator) Authenticate(_ context.Context, creds auth.Credentials) (model.Identity, error) {
	b, ok := creds.(auth.BearerCredentials)
	if !ok {
		return model.Identity{}, errors.New("unexpected credentials")
	}
	if b.Token == "boom" {
		return model.Identity{}, auth.Internal("lookup user failed", errors.New("db down"))
	}
	id, ok := s[b.Token]
	if !ok {
		return model.Identity{}, auth.Unauthorized("invalid or expired token")
	}
	return id, nil
}

func run(t *testing.T, mw echo.MiddlewareFunc, header string) (*model.Identity, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	c := e.NewContext(req, httptest.NewRecorder())

	var seen *model.Identity
	err := mw(func(c echo.Context) error {
		if id, ok := IdentityFrom(c); ok {
			seen = &id
		}
		return nil
	})(c)
	return seen, err
}

func TestBearerAuth(t *testing.T) {
	a := stubAuthenticator{"good": {ID: "u-1", Email: "a@x.com"}}
	mw := BearerAuth(a)

	id, err := run(t, mw, "Bearer good")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "u-1", id.ID)

	_, err = run(t, mw, "bearer good")
	assert.NoError(t, err, "scheme is case-insensitive")

	for _, h := range []string{"", "Bearer", "Bearer   ", "Basic Zm9vOmJhcg==", "Bearer bad"} {
		id, err := run(t, mw, h)
		assert.ErrorIs(t, err, auth.ErrUnauthorized, h)
		assert.Nil(t, id)
	}
}

func TestOptionalBearer(t *testing.T) {
	a := stubAuthenticator{"good": {ID: "u-1"}}
	mw := OptionalBearer(a)

	id, err := run(t, mw, "Bearer good")
	require.NoError(t, err)
	require.NotNil(t, id)

	id, err = run(t, mw, "")
	require.NoError(t, err)
	assert.Nil(t, id)

	id, err = run(t, mw, "Bearer bad")
	require.NoError(t, err)
	assert.Nil(t, id)

	_, err = run(t, mw, "Bearer boom")
	assert.ErrorIs(t, err, auth.ErrInternal)
}

type deadlineRecorder struct {
	deadlines []time.Time
}

func (d *deadlineRecorder) Authenticate(ctx context.Context, _ auth.Credentials) (model.Identity, error) {
	dl, ok := ctx.Deadline()
	if !ok {
		return model.Identity{}, errors.New("lookup without deadline")
	}
	d.deadlines = append(d.deadlines, dl)
	return model.Identity{ID: "u-1"}, nil
}

func TestBearerLookupIsBounded(t *testing.T) {
	rec := &deadlineRecorder{}
	start := time.Now()

	_, err := run(t, BearerAuth(rec), "Bearer good")
	require.NoError(t, err)
	_, err = run(t, OptionalBearer(rec), "Bearer good")
	require.NoError(t, err)

	require.Len(t, rec.deadlines, 2)
	for _, dl := range rec.deadlines {
		assert.WithinDuration(t, start.Add(lookupTimeout), dl, time.Second)
	}
}
