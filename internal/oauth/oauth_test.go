package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/iliyamo/session-auth/internal/model"
)

// fakeProvider serves a token endpoint plus the given profile routes.
func fakeProvider(t *testing.T, routes map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"provider-token","token_type":"bearer"}`))
	})
	for path, body := range routes {
		body := body
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer provider-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(body)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testOptions(srv *httptest.Server) Options {
	return Options{
		ClientID:     "client",
		ClientSecret: "secret",
		CallbackURL:  "http://localhost:4000/api/auth/x/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:   srv.URL + "/authorize",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		APIBaseURL: srv.URL,
		HTTPClient: srv.Client(),
	}
}

func TestGoogleExchange(t *testing.T) {
	srv := fakeProvider(t, map[string]any{
		"/v1/userinfo": map[string]any{
			"sub":            "g-123",
			"email":          "ana@gmail.com",
			"email_verified": true,
			"name":           "Ana",
			"picture":        "https://img/ana.png",
		},
	})
	p := NewGoogle(testOptions(srv))
	assert.Equal(t, model.ProviderGoogle, p.Name())

	creds, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, model.ProviderGoogle, creds.Provider)
	assert.Equal(t, "g-123", creds.ExternalID)
	assert.Equal(t, "ana@gmail.com", creds.Email)
	assert.True(t, creds.EmailVerified)
	assert.Equal(t, "Ana", creds.DisplayName)
	assert.Equal(t, "https://img/ana.png", creds.AvatarURL)
}

func TestGitHubExchangeUsesPrimaryEmail(t *testing.T) {
	srv := fakeProvider(t, map[string]any{
		"/user": map[string]any{"id": 42, "login": "octo", "name": "", "email": "", "avatar_url": "https://img/octo.png"},
		"/user/emails": []map[string]any{
			{"email": "old@example.com", "primary": false, "verified": true},
			{"email": "octo@example.com", "primary": true, "verified": true},
		},
	})
	creds, err := NewGitHub(testOptions(srv)).Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, model.ProviderGitHub, creds.Provider)
	assert.Equal(t, "42", creds.ExternalID)
	assert.Equal(t, "octo", creds.Username)
	assert.Equal(t, "octo@example.com", creds.Email)
	assert.True(t, creds.EmailVerified)
}

func TestGitHubExchangeWithoutEmails(t *testing.T) {
	srv := fakeProvider(t, map[string]any{
		"/user": map[string]any{"id": 7, "login": "ghost"},
	})
	creds, err := NewGitHub(testOptions(srv)).Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Empty(t, creds.Email)
	assert.False(t, creds.EmailVerified)
	assert.Equal(t, "ghost", creds.Username)
}

func TestExchangeRejectedCode(t *testing.T) {
	srv := fakeProvider(t, nil)
	_, err := NewGoogle(testOptions(srv)).Exchange(context.Background(), "bad-code")
	assert.ErrorIs(t, err, ErrExchange)
}

func TestAuthCodeURL(t *testing.T) {
	srv := fakeProvider(t, nil)
	raw := NewGitHub(testOptions(srv)).AuthCodeURL("state-1")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/authorize", u.Path)
	q := u.Query()
	assert.Equal(t, "client", q.Get("client_id"))
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "user:email", q.Get("scope"))
}

func TestRegistry(t *testing.T) {
	r := Registry{}
	r.Register(NewGoogle(Options{ClientID: "id", ClientSecret: "s"}))

	p, ok := r.Get("google")
	require.True(t, ok)
	assert.Equal(t, model.ProviderGoogle, p.Name())
	_, ok = r.Get("github")
	assert.False(t, ok)
}
