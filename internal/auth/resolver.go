// Package auth resolves presented credentials into an authenticated
// identity. Three closed variants exist: password, bearer access token and
// delegated provider identity.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/session-auth/internal/model"
	"github.com/iliyamo/session-auth/internal/repository"
	"github.com/iliyamo/session-auth/internal/utils"
)

// Credentials is implemented only by the variants in this package.
type Credentials interface {
	credentials()
}

// PasswordCredentials authenticate by email and password.
type PasswordCredentials struct {
	Email    string
	Password string
}

// BearerCredentials authenticate with a raw access token.
type BearerCredentials struct {
	Token string
}

// DelegatedCredentials carry an identity already verified by an external
// provider.
type DelegatedCredentials struct {
	Provider      model.Provider
	ExternalID    string
	Email         string
	EmailVerified bool
	DisplayName   string
	Username      string
	AvatarURL     string
}

func (PasswordCredentials) credentials()  {}
func (BearerCredentials) credentials()    {}
func (DelegatedCredentials) credentials() {}

// UserStore is the subset of the user repository the resolver needs.
type UserStore interface {
	Create(ctx context.Context, u model.User) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id string) (model.User, error)
	GetByProvider(ctx context.Context, p model.Provider, externalID string) (model.User, error)
	LinkProvider(ctx context.Context, userID string, p model.Provider, externalID, name, avatarURL string) (model.User, error)
	SetAvatarIfEmpty(ctx context.Context, userID, avatarURL string) error
}

// TokenVerifier verifies signed tokens.
type TokenVerifier interface {
	Verify(token string, kind utils.TokenKind) (utils.ClaimSet, error)
}

// Resolver dispatches credentials to the matching verification flow.
type Resolver struct {
	users  UserStore
	tokens TokenVerifier
}

func NewResolver(users UserStore, tokens TokenVerifier) *Resolver {
	return &Resolver{users: users, tokens: tokens}
}

const invalidCredentials = "invalid email or password"

// Authenticate verifies creds and returns the identity they prove.
func (r *Resolver) Authenticate(ctx context.Context, creds Credentials) (model.Identity, error) {
	var (
		u   model.User
		err error
	)
	switch c := creds.(type) {
	case PasswordCredentials:
		u, err = r.password(ctx, c)
	case BearerCredentials:
		u, err = r.bearer(ctx, c)
	case DelegatedCredentials:
		u, err = r.delegated(ctx, c)
	default:
		return model.Identity{}, Internal("unsupported credentials", fmt.Errorf("credentials %T", creds))
	}
	if err != nil {
		return model.Identity{}, err
	}
	return u.Identity(), nil
}

func (r *Resolver) password(ctx context.Context, c PasswordCredentials) (model.User, error) {
	u, err := r.users.GetByEmail(ctx, c.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, Unauthorized(invalidCredentials)
		}
		return model.User{}, Internal("lookup user failed", err)
	}
	if u.PasswordHash == "" || !utils.VerifyPassword(u.PasswordHash, c.Password) {
		return model.User{}, Unauthorized(invalidCredentials)
	}
	return u, nil
}

func (r *Resolver) bearer(ctx context.Context, c BearerCredentials) (model.User, error) {
	token := strings.TrimSpace(c.Token)
	if token == "" {
		return model.User{}, Unauthorized("missing bearer token")
	}
	claims, err := r.tokens.Verify(token, utils.AccessKind)
	if err != nil {
		return model.User{}, Unauthorized("invalid or expired token")
	}
	u, err := r.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, Unauthorized("invalid or expired token")
		}
		return model.User{}, Internal("lookup user failed", err)
	}
	return u, nil
}

func (r *Resolver) delegated(ctx context.Context, c DelegatedCredentials) (model.User, error) {
	if !c.Provider.Valid() || c.ExternalID == "" {
		return model.User{}, Validation("incomplete provider identity")
	}

	u, err := r.users.GetByProvider(ctx, c.Provider, c.ExternalID)
	if err == nil {
		if u.AvatarURL == "" && c.AvatarURL != "" {
			if err := r.users.SetAvatarIfEmpty(ctx, u.ID, c.AvatarURL); err != nil {
				return model.User{}, Internal("update user failed", err)
			}
			u.AvatarURL = c.AvatarURL
		}
		return u, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.User{}, Internal("lookup user failed", err)
	}

	email := c.Email
	if email == "" {
		email = FallbackEmail(c)
	}
	name := c.DisplayName
	if name == "" {
		name = fallbackName(c)
	}

	existing, err := r.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if c.Email == "" || !c.EmailVerified {
			return model.User{}, Conflict("email already registered with another sign-in method")
		}
		if linkedID := existing.ProviderID(c.Provider); linkedID != "" && linkedID != c.ExternalID {
			return model.User{}, Conflict("account is already linked to another " + string(c.Provider) + " identity")
		}
		linked, err := r.users.LinkProvider(ctx, existing.ID, c.Provider, c.ExternalID, name, c.AvatarURL)
		if err != nil {
			return model.User{}, storeError("link provider failed", err)
		}
		return linked, nil
	case !errors.Is(err, repository.ErrNotFound):
		return model.User{}, Internal("lookup user failed", err)
	}

	nu := model.User{Email: email, Name: name, AvatarURL: c.AvatarURL}
	switch c.Provider {
	case model.ProviderGoogle:
		nu.GoogleID = c.ExternalID
	case model.ProviderGitHub:
		nu.GitHubID = c.ExternalID
	}
	created, err := r.users.Create(ctx, nu)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// a concurrent callback for the same identity may have won
			if u, lookupErr := r.users.GetByProvider(ctx, c.Provider, c.ExternalID); lookupErr == nil {
				return u, nil
			}
		}
		return model.User{}, storeError("create user failed", err)
	}
	return created, nil
}

// FallbackEmail synthesizes an address for providers that do not disclose
// one.
func FallbackEmail(c DelegatedCredentials) string {
	switch c.Provider {
	case model.ProviderGitHub:
		local := c.Username
		if local == "" {
			local = c.ExternalID
		}
		return strings.ToLower(local) + "@github.com"
	default:
		return strings.ToLower(c.ExternalID) + "@" + string(c.Provider) + ".com"
	}
}

func fallbackName(c DelegatedCredentials) string {
	if c.Username != "" {
		return c.Username
	}
	switch c.Provider {
	case model.ProviderGitHub:
		return "GitHub User"
	default:
		return "Google User"
	}
}

func storeError(msg string, err error) error {
	switch {
	case errors.Is(err, repository.ErrConflict):
		return Conflict("account already exists")
	case errors.Is(err, repository.ErrNotFound):
		return NotFound("account not found")
	}
	return Internal(msg, err)
}
