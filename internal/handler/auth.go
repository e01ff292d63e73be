package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/session-auth/internal/auth"
	"github.com/iliyamo/session-auth/internal/middleware"
	"github.com/iliyamo/session-auth/internal/service"
)

// dbTimeout bounds every store interaction of a request.
const dbTimeout = 5 * time.Second

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Service *service.SessionService
	Logger  *slog.Logger
}

func NewAuthHandler(s *service.SessionService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{Service: s, Logger: logger}
}

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (r *registerReq) trim() {
	r.Email = strings.TrimSpace(r.Email)
	r.Name = strings.TrimSpace(r.Name)
}

func (r registerReq) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.EmailFormat),
		validation.Field(&r.Name, validation.Required, validation.Length(2, 100)),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 72)),
	)
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *loginReq) trim() { r.Email = strings.TrimSpace(r.Email) }

func (r loginReq) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.EmailFormat),
		validation.Field(&r.Password, validation.Required),
	)
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

func (r *refreshReq) trim() { r.RefreshToken = strings.TrimSpace(r.RefreshToken) }

func (r refreshReq) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

type request interface {
	validation.Validatable
	trim()
}

// bind decodes the JSON body into dst, trims it and runs its validation
// rules.
func bind(c echo.Context, dst request) error {
	if err := c.Bind(dst); err != nil {
		return auth.Validation("invalid request body")
	}
	dst.trim()
	if err := dst.Validate(); err != nil {
		return invalid(err)
	}
	return nil
}

func requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}

// Register: create user and return tokens immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.Service.Register(ctx, service.RegisterInput{Email: req.Email, Name: req.Name, Password: req.Password})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, "user registered", res)
}

// Login: verify and return a new pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.Service.Login(ctx, service.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "login successful", res)
}

// Refresh: mint a new access token from a stored refresh token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.Service.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "token refreshed", res)
}

// Logout: revoke one refresh token.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.Service.Logout(ctx, req.RefreshToken); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "logged out", echo.Map{})
}

// LogoutAll: revoke every refresh token of the caller.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return auth.Unauthorized("authentication required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	n, err := h.Service.LogoutAll(ctx, id)
	if err != nil {
		return err
	}
	h.Logger.Info("all sessions revoked", "user_id", id.ID, "count", n)
	return respond(c, http.StatusOK, "logged out from all devices", echo.Map{})
}

// Me returns the authenticated identity.
func (h *AuthHandler) Me(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return auth.Unauthorized("authentication required")
	}
	return respond(c, http.StatusOK, "", echo.Map{"user": id})
}

// Sessions lists the caller's live sessions.
func (h *AuthHandler) Sessions(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return auth.Unauthorized("authentication required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	list, err := h.Service.Sessions(ctx, id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", echo.Map{"sessions": list})
}
