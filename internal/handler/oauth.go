package handler

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/session-auth/internal/auth"
	"github.com/iliyamo/session-auth/internal/oauth"
	"github.com/iliyamo/session-auth/internal/service"
)

const stateCookiePrefix = "oauth_state_"

// OAuthHandler drives the browser redirects of delegated sign-in.
type OAuthHandler struct {
	Providers   oauth.Registry
	Service     *service.SessionService
	FrontendURL string
	StateTTL    time.Duration
	// SecureCookies marks the state cookie Secure; set outside development.
	SecureCookies bool
	Logger        *slog.Logger
}

// Begin sets a one-time state cookie and redirects to the provider's
// consent page.
func (h *OAuthHandler) Begin(c echo.Context) error {
	p, ok := h.Providers.Get(c.Param("provider"))
	if !ok {
		return auth.NotFound("unknown provider")
	}

	state := uuid.NewString()
	c.SetCookie(&http.Cookie{
		Name:     stateCookiePrefix + string(p.Name()),
		Value:    state,
		Path:     "/",
		MaxAge:   int(h.StateTTL / time.Second),
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return c.Redirect(http.StatusFound, p.AuthCodeURL(state))
}

// Callback completes the handshake and hands the token pair to the
// frontend. Every outcome is a redirect.
func (h *OAuthHandler) Callback(c echo.Context) error {
	p, ok := h.Providers.Get(c.Param("provider"))
	if !ok {
		return auth.NotFound("unknown provider")
	}
	cookieName := stateCookiePrefix + string(p.Name())
	cookie, cookieErr := c.Cookie(cookieName)
	c.SetCookie(&http.Cookie{Name: cookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true, Secure: h.SecureCookies})

	if e := c.QueryParam("error"); e != "" {
		h.Logger.Info("oauth consent denied", "provider", p.Name(), "error", e)
		return h.fail(c, "auth_failed")
	}
	state, code := c.QueryParam("state"), c.QueryParam("code")
	if cookieErr != nil || state == "" || code == "" ||
		subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		h.Logger.Warn("oauth state mismatch", "provider", p.Name())
		return h.fail(c, "auth_failed")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	creds, err := p.Exchange(ctx, code)
	if err != nil {
		h.Logger.Warn("oauth exchange failed", "provider", p.Name(), "err", err)
		return h.fail(c, "auth_failed")
	}
	res, err := h.Service.CompleteDelegated(ctx, creds)
	if err != nil {
		if auth.KindOf(err) == auth.KindInternal {
			h.Logger.Error("oauth sign-in failed", "provider", p.Name(), "err", err)
			return h.fail(c, "server_error")
		}
		h.Logger.Info("oauth sign-in rejected", "provider", p.Name(), "kind", auth.KindOf(err))
		return h.fail(c, "auth_failed")
	}

	q := url.Values{}
	q.Set("accessToken", res.AccessToken)
	q.Set("refreshToken", res.RefreshToken)
	return c.Redirect(http.StatusFound, h.FrontendURL+"/auth/callback?"+q.Encode())
}

func (h *OAuthHandler) fail(c echo.Context, reason string) error {
	return c.Redirect(http.StatusFound, h.FrontendURL+"/login?error="+url.QueryEscape(reason))
}
