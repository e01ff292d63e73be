package model

import "time"

// Provider names a delegated identity provider.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
)

// Valid reports whether p is a supported provider.
func (p Provider) Valid() bool {
	return p == ProviderGoogle || p == ProviderGitHub
}

// User mirrors the `users` table. Optional columns are empty strings when
// NULL. A user always has a PasswordHash or at least one provider id.
type User struct {
	ID           string    // users.id (uuid)
	Email        string    // users.email (unique, lower-case)
	Name         string    // users.name
	PasswordHash string    // users.password_hash (empty for provider-only accounts)
	GoogleID     string    // users.google_id (unique when set)
	GitHubID     string    // users.github_id (unique when set)
	AvatarURL    string    // users.avatar_url
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// HasAuthPath reports whether the user can authenticate at all.
func (u User) HasAuthPath() bool {
	return u.PasswordHash != "" || u.GoogleID != "" || u.GitHubID != ""
}

// ProviderID returns the linked external id for p.
func (u User) ProviderID(p Provider) string {
	switch p {
	case ProviderGoogle:
		return u.GoogleID
	case ProviderGitHub:
		return u.GitHubID
	}
	return ""
}

// Identity returns the sanitized view of u that is safe to attach to a
// request or serialize to a client.
func (u User) Identity() Identity {
	return Identity{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
		GoogleID:  u.GoogleID,
		GitHubID:  u.GitHubID,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// Identity is an authenticated user without credential material.
type Identity struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar,omitempty"`
	GoogleID  string    `json:"googleId,omitempty"`
	GitHubID  string    `json:"githubId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RefreshToken models a row in the `refresh_tokens` table. The plain token
// is not stored; only its SHA-256 hash.
type RefreshToken struct {
	TokenHash string    // refresh_tokens.token_hash
	UserID    string    // refresh_tokens.user_id
	ExpiresAt time.Time // refresh_tokens.expires_at
	CreatedAt time.Time // refresh_tokens.created_at
}

// Active reports whether the token is still usable at now.
func (t RefreshToken) Active(now time.Time) bool {
	return t.ExpiresAt.After(now)
}
