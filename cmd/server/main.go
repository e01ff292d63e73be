package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/session-auth/internal/auth"
	"github.com/iliyamo/session-auth/internal/config"
	"github.com/iliyamo/session-auth/internal/database"
	"github.com/iliyamo/session-auth/internal/handler"
	"github.com/iliyamo/session-auth/internal/middleware"
	"github.com/iliyamo/session-auth/internal/oauth"
	"github.com/iliyamo/session-auth/internal/queue"
	"github.com/iliyamo/session-auth/internal/repository"
	"github.com/iliyamo/session-auth/internal/router"
	"github.com/iliyamo/session-auth/internal/service"
	"github.com/iliyamo/session-auth/internal/utils"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, warnings, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	for _, w := range warnings {
		logger.Warn("config: " + w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DatabaseOptions())
	if err != nil {
		return err
	}
	defer db.Close()

	codec, err := utils.NewTokenCodec(cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)
	if err != nil {
		return err
	}

	var publisher queue.Publisher = queue.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		p := queue.NewAMQPPublisher(cfg.RabbitMQURL)
		defer p.Close()
		publisher = p
	}

	users := repository.NewUserRepo(db)
	resolver := auth.NewResolver(users, codec)
	svc := service.NewSessionService(service.Deps{
		Users:         users,
		Sessions:      repository.NewTokenRepo(db),
		Codec:         codec,
		Resolver:      resolver,
		Publisher:     publisher,
		Logger:        logger,
		BcryptCost:    cfg.BcryptCost,
		RotateRefresh: cfg.RotateRefreshTokens,
	})
	go svc.RunSweeper(ctx, cfg.SweepInterval)

	providers := oauth.Registry{}
	if cfg.Google.Enabled() {
		providers.Register(oauth.NewGoogle(oauth.Options{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			CallbackURL:  callbackURL(cfg.Google.CallbackURL, cfg.Port, "google"),
		}))
	}
	if cfg.GitHub.Enabled() {
		providers.Register(oauth.NewGitHub(oauth.Options{
			ClientID:     cfg.GitHub.ClientID,
			ClientSecret: cfg.GitHub.ClientSecret,
			CallbackURL:  callbackURL(cfg.GitHub.CallbackURL, cfg.Port, "github"),
		}))
	}

	var limiter echo.MiddlewareFunc
	if cfg.RateLimit.Enabled {
		if rdb := config.NewRedisClient(cfg.Redis); rdb != nil {
			defer rdb.Close()
			limiter = middleware.NewTokenBucket(cfg.RateLimit, rdb, logger)
		} else {
			logger.Warn("redis unavailable, rate limiting disabled", "addr", cfg.Redis.Address())
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(logger)
	e.Use(echomw.Recover())
	e.Use(echomw.Secure())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowCredentials: true,
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURIPath:  true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "path", v.URIPath, "status", v.Status, "latency", v.Latency, "ip", v.RemoteIP}
			if v.Error != nil {
				attrs = append(attrs, "err", v.Error)
			}
			logger.Info("request", attrs...)
			return nil
		},
	}))

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e,
		handler.NewAuthHandler(svc, logger),
		&handler.OAuthHandler{
			Providers:     providers,
			Service:       svc,
			FrontendURL:   cfg.FrontendURL,
			StateTTL:      cfg.OAuthStateTTL,
			SecureCookies: cfg.IsProduction(),
			Logger:        logger,
		},
		resolver, limiter)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info("listening", "addr", addr, "env", cfg.Env, "db", cfg.DBDriver, "providers", len(providers))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newLogger(cfg config.Config) *slog.Logger {
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// callbackURL falls back to the local development callback.
func callbackURL(configured, port, provider string) string {
	if configured != "" {
		return configured
	}
	return "http://localhost:" + port + "/api/auth/" + provider + "/callback"
}
