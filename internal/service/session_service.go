// Package service orchestrates the session lifecycle: it turns verified
// credentials into an access/refresh token pair and manages the stored
// refresh tokens afterwards.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/iliyamo/session-auth/internal/auth"
	"github.com/iliyamo/session-auth/internal/model"
	"github.com/iliyamo/session-auth/internal/queue"
	"github.com/iliyamo/session-auth/internal/repository"
	"github.com/iliyamo/session-auth/internal/utils"
)

// SessionStore persists refresh tokens.
type SessionStore interface {
	Put(ctx context.Context, userID, token string, expiresAt time.Time) error
	Exists(ctx context.Context, token string) (bool, error)
	Consume(ctx context.Context, token string) (bool, error)
	DeleteOne(ctx context.Context, token string) error
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
	ListForUser(ctx context.Context, userID string) ([]model.RefreshToken, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Deps are the collaborators of SessionService. Publisher, Logger and Now
// default to a no-op publisher, slog.Default and time.Now.
type Deps struct {
	Users      auth.UserStore
	Sessions   SessionStore
	Codec      *utils.TokenCodec
	Resolver   *auth.Resolver
	Publisher  queue.Publisher
	Logger     *slog.Logger
	BcryptCost int
	// RotateRefresh makes Refresh consume the presented token and return
	// a new one alongside the access token.
	RotateRefresh bool
	Now           func() time.Time
}

// SessionService implements register, login, delegated sign-in, refresh,
// logout and logout-all.
type SessionService struct {
	d Deps
}

func NewSessionService(d Deps) *SessionService {
	if d.Publisher == nil {
		d.Publisher = queue.NopPublisher{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.BcryptCost == 0 {
		d.BcryptCost = utils.DefaultBcryptCost
	}
	return &SessionService{d: d}
}

// RegisterInput is a validated registration request.
type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

// LoginInput is a login request.
type LoginInput struct {
	Email    string
	Password string
}

// AuthResult is returned by every flow that opens a session.
type AuthResult struct {
	User         model.Identity `json:"user"`
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
}

// RefreshResult carries the new access token. RefreshToken is only set
// when rotation is enabled.
type RefreshResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Session describes one live refresh token without exposing it.
type Session struct {
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Register creates a password account and opens its first session.
func (s *SessionService) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	email := repository.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return AuthResult{}, auth.Validation("email and password are required")
	}

	if _, err := s.d.Users.GetByEmail(ctx, email); err == nil {
		return AuthResult{}, auth.Conflict("email already registered")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return AuthResult{}, auth.Internal("lookup user failed", err)
	}

	hash, err := utils.HashPassword(in.Password, s.d.BcryptCost)
	if err != nil {
		if errors.Is(err, utils.ErrPasswordTooLong) {
			return AuthResult{}, auth.Validation("password is too long")
		}
		return AuthResult{}, auth.Internal("hash password failed", err)
	}

	u, err := s.d.Users.Create(ctx, model.User{
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
	})
	if err != nil {
		// the unique index settles concurrent registrations
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return AuthResult{}, auth.Conflict("email already registered")
		case errors.Is(err, repository.ErrConflict):
			return AuthResult{}, auth.Conflict("account already exists")
		}
		return AuthResult{}, auth.Internal("create user failed", err)
	}
	s.publish(ctx, queue.SessionEvent{Type: queue.EventUserRegistered, UserID: u.ID, Email: u.Email, Method: "password"})

	return s.issue(ctx, u.Identity(), "password")
}

// Login verifies an email and password and opens a session.
func (s *SessionService) Login(ctx context.Context, in LoginInput) (AuthResult, error) {
	id, err := s.d.Resolver.Authenticate(ctx, auth.PasswordCredentials{
		Email:    repository.NormalizeEmail(in.Email),
		Password: in.Password,
	})
	if err != nil {
		return AuthResult{}, err
	}
	return s.issue(ctx, id, "password")
}

// CompleteDelegated resolves a provider identity to an account, creating or
// linking it when needed, and opens a session.
func (s *SessionService) CompleteDelegated(ctx context.Context, creds auth.DelegatedCredentials) (AuthResult, error) {
	id, err := s.d.Resolver.Authenticate(ctx, creds)
	if err != nil {
		return AuthResult{}, err
	}
	return s.issue(ctx, id, string(creds.Provider))
}

// issue signs a token pair and stores the refresh token with the expiry
// embedded in it.
func (s *SessionService) issue(ctx context.Context, id model.Identity, method string) (AuthResult, error) {
	claims := utils.ClaimSet{UserID: id.ID, Email: id.Email}
	access, err := s.d.Codec.SignAccess(claims)
	if err != nil {
		return AuthResult{}, auth.Internal("sign access token failed", err)
	}
	refresh, err := s.storeRefresh(ctx, claims)
	if err != nil {
		return AuthResult{}, err
	}

	s.publish(ctx, queue.SessionEvent{Type: queue.EventSessionCreated, UserID: id.ID, Email: id.Email, Method: method})
	return AuthResult{User: id, AccessToken: access.Token, RefreshToken: refresh}, nil
}

func (s *SessionService) storeRefresh(ctx context.Context, claims utils.ClaimSet) (string, error) {
	refresh, err := s.d.Codec.SignRefresh(claims)
	if err != nil {
		return "", auth.Internal("sign refresh token failed", err)
	}
	if err := s.d.Sessions.Put(ctx, claims.UserID, refresh.Token, refresh.Exp); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return "", auth.Conflict("refresh token already issued")
		}
		return "", auth.Internal("store refresh token failed", err)
	}
	return refresh.Token, nil
}

// Refresh exchanges a stored, valid refresh token for a new access token.
func (s *SessionService) Refresh(ctx context.Context, token string) (RefreshResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return RefreshResult{}, auth.Validation("refresh token is required")
	}

	ok, err := s.d.Sessions.Exists(ctx, token)
	if err != nil {
		return RefreshResult{}, auth.Internal("lookup refresh token failed", err)
	}
	if !ok {
		return RefreshResult{}, auth.Unauthorized("invalid refresh token")
	}
	claims, err := s.d.Codec.Verify(token, utils.RefreshKind)
	if err != nil {
		return RefreshResult{}, auth.Unauthorized("invalid refresh token")
	}

	var out RefreshResult
	if s.d.RotateRefresh {
		consumed, err := s.d.Sessions.Consume(ctx, token)
		if err != nil {
			return RefreshResult{}, auth.Internal("revoke refresh token failed", err)
		}
		if !consumed {
			return RefreshResult{}, auth.Unauthorized("invalid refresh token")
		}
		if out.RefreshToken, err = s.storeRefresh(ctx, claims); err != nil {
			return RefreshResult{}, err
		}
	}

	access, err := s.d.Codec.SignAccess(claims)
	if err != nil {
		return RefreshResult{}, auth.Internal("sign access token failed", err)
	}
	out.AccessToken = access.Token

	s.publish(ctx, queue.SessionEvent{Type: queue.EventSessionRefreshed, UserID: claims.UserID, Email: claims.Email, Method: "refresh"})
	return out, nil
}

// Logout revokes one refresh token. Unknown tokens are ignored.
func (s *SessionService) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Validation("refresh token is required")
	}
	if err := s.d.Sessions.DeleteOne(ctx, token); err != nil {
		return auth.Internal("revoke refresh token failed", err)
	}
	ev := queue.SessionEvent{Type: queue.EventSessionRevoked}
	if claims, err := s.d.Codec.Verify(token, utils.RefreshKind); err == nil {
		ev.UserID, ev.Email = claims.UserID, claims.Email
	}
	s.publish(ctx, ev)
	return nil
}

// LogoutAll revokes every refresh token of the authenticated account and
// returns how many were removed.
func (s *SessionService) LogoutAll(ctx context.Context, id model.Identity) (int64, error) {
	if id.ID == "" {
		return 0, auth.Unauthorized("authentication required")
	}
	n, err := s.d.Sessions.DeleteAllForUser(ctx, id.ID)
	if err != nil {
		return 0, auth.Internal("revoke sessions failed", err)
	}
	s.publish(ctx, queue.SessionEvent{Type: queue.EventSessionRevokedAll, UserID: id.ID, Email: id.Email, Revoked: n})
	return n, nil
}

// Sessions lists the live sessions of the authenticated account.
func (s *SessionService) Sessions(ctx context.Context, id model.Identity) ([]Session, error) {
	if id.ID == "" {
		return nil, auth.Unauthorized("authentication required")
	}
	rows, err := s.d.Sessions.ListForUser(ctx, id.ID)
	if err != nil {
		return nil, auth.Internal("list sessions failed", err)
	}
	now := s.d.Now()
	out := make([]Session, 0, len(rows))
	for _, r := range rows {
		if !r.Active(now) {
			continue
		}
		out = append(out, Session{CreatedAt: r.CreatedAt, ExpiresAt: r.ExpiresAt})
	}
	return out, nil
}

// SweepExpired deletes expired refresh tokens.
func (s *SessionService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.d.Sessions.DeleteExpired(ctx, s.d.Now())
	if err != nil {
		return 0, auth.Internal("sweep expired sessions failed", err)
	}
	return n, nil
}

// RunSweeper calls SweepExpired every interval until ctx is done. A
// non-positive interval disables it.
func (s *SessionService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.SweepExpired(ctx)
			if err != nil {
				s.d.Logger.Error("session sweep failed", "err", err)
				continue
			}
			if n > 0 {
				s.d.Logger.Info("expired sessions removed", "count", n)
			}
		}
	}
}

func (s *SessionService) publish(ctx context.Context, ev queue.SessionEvent) {
	ev.OccurredAt = s.d.Now().UTC()
	if err := s.d.Publisher.Publish(ctx, ev); err != nil {
		s.d.Logger.Warn("publish session event failed", "type", ev.Type, "err", err)
	}
}
