// Package router registers the HTTP routes of the service.
package router

import (
	"database/sql"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/session-auth/internal/handler"
	"github.com/iliyamo/session-auth/internal/middleware"
)

// RegisterRoutes registers routes that do not belong to the auth API.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterAuth mounts the auth API under /api/auth. limiter guards the
// credential endpoints; pass nil to disable rate limiting.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, o *handler.OAuthHandler, authn middleware.Authenticator, limiter echo.MiddlewareFunc) {
	g := e.Group("/api/auth")

	var limited []echo.MiddlewareFunc
	if limiter != nil {
		limited = append(limited, limiter)
	}
	g.POST("/register", a.Register, limited...)
	g.POST("/login", a.Login, limited...)
	g.POST("/refresh", a.Refresh, limited...)
	// logout takes the refresh token in the body; no access token required
	g.POST("/logout", a.Logout)

	// every identity route here requires a token; middleware.OptionalBearer
	// is for resource routes mounted next to these by embedding services
	bearer := middleware.BearerAuth(authn)
	g.POST("/logout-all", a.LogoutAll, bearer)
	g.GET("/me", a.Me, bearer)
	g.GET("/sessions", a.Sessions, bearer)

	if o != nil {
		g.GET("/:provider", o.Begin)
		g.GET("/:provider/callback", o.Callback)
	}
}
