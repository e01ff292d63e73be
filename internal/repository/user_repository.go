package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/session-auth/internal/model"
)

const userColumns = "id,email,name,password_hash,google_id,github_id,avatar_url,created_at,updated_at"

// UserRepo reads and writes the `users` table.
type UserRepo struct {
	DB  *sql.DB
	Now func() time.Time
}

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db, Now: time.Now} }

// NormalizeEmail lower-cases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts u, assigning ID and timestamps, and returns the stored
// row. Duplicate emails yield ErrEmailExists (which wraps ErrConflict);
// duplicate provider ids yield ErrConflict.
func (r *UserRepo) Create(ctx context.Context, u model.User) (model.User, error) {
	u.Email = NormalizeEmail(u.Email)
	if u.Email == "" {
		return model.User{}, errors.New("user email is required")
	}
	if !u.HasAuthPath() {
		return model.User{}, errors.New("user needs a password or a linked provider")
	}
	u.ID = uuid.NewString()
	now := r.Now().UTC().Truncate(time.Millisecond)
	u.CreatedAt, u.UpdatedAt = now, now

	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?,?,?,?,?,?,?,?,?)",
		u.ID, u.Email, nullable(u.Name), nullable(u.PasswordHash), nullable(u.GoogleID),
		nullable(u.GitHubID), nullable(u.AvatarURL), now.UnixMilli(), now.UnixMilli())
	if err != nil {
		if isDuplicateKey(err) {
			if isEmailDuplicate(err) {
				return model.User{}, fmt.Errorf("%w: %w", ErrConflict, ErrEmailExists)
			}
			return model.User{}, ErrConflict
		}
		return model.User{}, err
	}
	return u, nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.getOne(ctx, "email=?", NormalizeEmail(email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	return r.getOne(ctx, "id=?", id)
}

// GetByProvider fetches the user linked to an external provider id.
func (r *UserRepo) GetByProvider(ctx context.Context, p model.Provider, externalID string) (model.User, error) {
	col, err := providerColumn(p)
	if err != nil {
		return model.User{}, err
	}
	return r.getOne(ctx, col+"=?", externalID)
}

// LinkProvider attaches an external provider id to an existing user and
// fills avatar and name when they are still empty. An existing link is
// never replaced: linking an id already owned by another user, or linking a
// user already bound to a different id of the same provider, yields
// ErrConflict.
func (r *UserRepo) LinkProvider(ctx context.Context, userID string, p model.Provider, externalID, name, avatarURL string) (model.User, error) {
	col, err := providerColumn(p)
	if err != nil {
		return model.User{}, err
	}
	now := r.Now().UTC()
	_, err = r.DB.ExecContext(ctx,
		"UPDATE users SET "+col+"=?, "+
			"avatar_url=COALESCE(NULLIF(avatar_url,''),?), "+
			"name=COALESCE(NULLIF(name,''),?), "+
			"updated_at=? WHERE id=? AND ("+col+" IS NULL OR "+col+"='' OR "+col+"=?)",
		externalID, nullable(avatarURL), nullable(name), now.UnixMilli(), userID, externalID)
	if err != nil {
		if isDuplicateKey(err) {
			return model.User{}, ErrConflict
		}
		return model.User{}, err
	}
	u, err := r.GetByID(ctx, userID)
	if err != nil {
		return model.User{}, err
	}
	if u.ProviderID(p) != externalID {
		return model.User{}, ErrConflict
	}
	return u, nil
}

// SetAvatarIfEmpty stores avatarURL when the user has none yet.
func (r *UserRepo) SetAvatarIfEmpty(ctx context.Context, userID, avatarURL string) error {
	if avatarURL == "" {
		return nil
	}
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET avatar_url=?, updated_at=? WHERE id=? AND (avatar_url IS NULL OR avatar_url='')",
		avatarURL, r.Now().UTC().UnixMilli(), userID)
	return err
}

func (r *UserRepo) getOne(ctx context.Context, where string, arg any) (model.User, error) {
	var (
		u                                      model.User
		name, hash, googleID, githubID, avatar sql.NullString
		created, updated                       int64
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE "+where+" LIMIT 1", arg).
		Scan(&u.ID, &u.Email, &name, &hash, &googleID, &githubID, &avatar, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}
	u.Name = name.String
	u.PasswordHash = hash.String
	u.GoogleID = googleID.String
	u.GitHubID = githubID.String
	u.AvatarURL = avatar.String
	u.CreatedAt = time.UnixMilli(created).UTC()
	u.UpdatedAt = time.UnixMilli(updated).UTC()
	return u, nil
}

func providerColumn(p model.Provider) (string, error) {
	switch p {
	case model.ProviderGoogle:
		return "google_id", nil
	case model.ProviderGitHub:
		return "github_id", nil
	}
	return "", fmt.Errorf("unknown provider %q", p)
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
