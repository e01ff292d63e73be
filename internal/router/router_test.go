package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/session-auth/internal/auth"
	"github.com/iliyamo/session-auth/internal/database/dbtest"
	"github.com/iliyamo/session-auth/internal/handler"
	"github.com/iliyamo/session-auth/internal/model"
	"github.com/iliyamo/session-auth/internal/oauth"
	"github.com/iliyamo/session-auth/internal/repository"
	"github.com/iliyamo/session-auth/internal/service"
	"github.com/iliyamo/session-auth/internal/utils"
)

type fakeProvider struct{ creds auth.DelegatedCredentials }

func (f fakeProvider) Name() model.Provider { return f.creds.Provider }

func (f fakeProvider) AuthCodeURL(state string) string {
	return "https://provider.example/authorize?state=" + state
}

func (f fakeProvider) Exchange(_ context.Context, code string) (auth.DelegatedCredentials, error) {
	if code != "good-code" {
		return auth.DelegatedCredentials{}, oauth.ErrExchange
	}
	return f.creds, nil
}

func newServer(t *testing.T) *echo.Echo {
	t.Helper()
	db := dbtest.Open(t)
	users := repository.NewUserRepo(db)
	codec, err := utils.NewTokenCodec("access-secret-0123456789abcdef0123", "refresh-secret-0123456789abcdef012", 15*time.Minute, 7*24*time.Hour)
	require.NoError(t, err)
	resolver := auth.NewResolver(users, codec)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := service.NewSessionService(service.Deps{
		Users:      users,
		Sessions:   repository.NewTokenRepo(db),
		Codec:      codec,
		Resolver:   resolver,
		Logger:     logger,
		BcryptCost: bcrypt.MinCost,
	})

	providers := oauth.Registry{}
	providers.Register(fakeProvider{creds: auth.DelegatedCredentials{
		Provider: model.ProviderGitHub, ExternalID: "42", Username: "octo", AvatarURL: "https://img/octo.png",
	}})

	e := echo.New()
	e.HTTPErrorHandler = handler.ErrorHandler(logger)
	RegisterRoutes(e, db)
	RegisterAuth(e,
		handler.NewAuthHandler(svc, logger),
		&handler.OAuthHandler{Providers: providers, Service: svc, FrontendURL: "http://front.example", StateTTL: 10 * time.Minute, Logger: logger},
		resolver, nil)
	return e
}

type reply struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Kind    string          `json:"kind"`
	Data    json.RawMessage `json:"data"`
	Errors  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}

func call(t *testing.T, e *echo.Echo, method, path, bearer string, body any) (int, reply, string) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var out reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out, rec.Body.String()
}

type tokens struct {
	User         map[string]any `json:"user"`
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestPasswordSessionFlow(t *testing.T) {
	e := newServer(t)

	code, res, _ := call(t, e, http.MethodPost, "/api/auth/register", "",
		map[string]string{"email": "a@x.com", "name": "Ana", "password": "secret1"})
	require.Equal(t, http.StatusCreated, code)
	assert.True(t, res.Success)
	reg := decode[tokens](t, res.Data)
	assert.Equal(t, "a@x.com", reg.User["email"])
	assert.NotContains(t, reg.User, "passwordHash")

	code, res, _ = call(t, e, http.MethodPost, "/api/auth/login", "",
		map[string]string{"email": "a@x.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, res.Success)
	assert.Equal(t, "unauthorized", res.Kind)

	code, res, body := call(t, e, http.MethodGet, "/api/auth/me", reg.AccessToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "a@x.com", decode[map[string]map[string]any](t, res.Data)["user"]["email"])
	assert.NotContains(t, strings.ToLower(body), "password")

	code, res, _ = call(t, e, http.MethodPost, "/api/auth/login", "",
		map[string]string{"email": "a@x.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, code)
	second := decode[tokens](t, res.Data)

	code, res, _ = call(t, e, http.MethodGet, "/api/auth/sessions", second.AccessToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[map[string][]map[string]any](t, res.Data)["sessions"], 2)

	code, res, _ = call(t, e, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": reg.RefreshToken})
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, decode[map[string]string](t, res.Data)["accessToken"])

	code, _, _ = call(t, e, http.MethodPost, "/api/auth/logout-all", second.AccessToken, nil)
	require.Equal(t, http.StatusOK, code)

	for _, tok := range []string{reg.RefreshToken, second.RefreshToken} {
		code, res, _ = call(t, e, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": tok})
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, "unauthorized", res.Kind)
	}

	code, _, _ = call(t, e, http.MethodPost, "/api/auth/logout", "", map[string]string{"refreshToken": reg.RefreshToken})
	assert.Equal(t, http.StatusOK, code, "logout of a revoked token is a no-op")
}

func TestRegisterValidationAndConflict(t *testing.T) {
	e := newServer(t)

	code, res, _ := call(t, e, http.MethodPost, "/api/auth/register", "",
		map[string]string{"email": "not-an-email", "name": "A", "password": "123"})
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation", res.Kind)
	fields := map[string]bool{}
	for _, fe := range res.Errors {
		fields[fe.Field] = true
	}
	assert.Equal(t, map[string]bool{"email": true, "name": true, "password": true}, fields)

	body := map[string]string{"email": "a@x.com", "name": "Ana", "password": "secret1"}
	code, _, _ = call(t, e, http.MethodPost, "/api/auth/register", "", body)
	require.Equal(t, http.StatusCreated, code)

	code, res, _ = call(t, e, http.MethodPost, "/api/auth/register", "", body)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", res.Kind)
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	e := newServer(t)

	for _, path := range []string{"/api/auth/me", "/api/auth/sessions"} {
		code, res, _ := call(t, e, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, code, path)
		assert.Equal(t, "unauthorized", res.Kind)

		code, _, _ = call(t, e, http.MethodGet, path, "garbage", nil)
		assert.Equal(t, http.StatusUnauthorized, code, path)
	}
	code, _, _ := call(t, e, http.MethodPost, "/api/auth/logout-all", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestHealth(t *testing.T) {
	e := newServer(t)
	code, res, _ := call(t, e, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, res.Success)
}

func TestDelegatedSignInRedirects(t *testing.T) {
	e := newServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/github", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusFound, rec.Code)

	consent, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	require.NoError(t, err)
	state := consent.Query().Get("state")
	require.NotEmpty(t, state)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	callback := func(code, state string, withCookie bool) *url.URL {
		t.Helper()
		q := url.Values{"code": {code}, "state": {state}}
		req := httptest.NewRequest(http.MethodGet, "/api/auth/github/callback?"+q.Encode(), nil)
		if withCookie {
			req.AddCookie(cookies[0])
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		require.Equal(t, http.StatusFound, rec.Code)
		loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
		require.NoError(t, err)
		return loc
	}

	loc := callback("good-code", state, true)
	assert.Equal(t, "/auth/callback", loc.Path)
	access := loc.Query().Get("accessToken")
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, loc.Query().Get("refreshToken"))

	code, res, _ := call(t, e, http.MethodGet, "/api/auth/me", access, nil)
	require.Equal(t, http.StatusOK, code)
	user := decode[map[string]map[string]any](t, res.Data)["user"]
	assert.Equal(t, "octo@github.com", user["email"])
	assert.Equal(t, "42", user["githubId"])

	loc = callback("good-code", "forged", true)
	assert.Equal(t, "/login", loc.Path)
	assert.Equal(t, "auth_failed", loc.Query().Get("error"))

	loc = callback("good-code", state, false)
	assert.Equal(t, "auth_failed", loc.Query().Get("error"))

	loc = callback("bad-code", state, true)
	assert.Equal(t, "auth_failed", loc.Query().Get("error"))
}

func TestUnknownProvider(t *testing.T) {
	e := newServer(t)
	code, res, _ := call(t, e, http.MethodGet, "/api/auth/google", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", res.Kind)
}
