package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/session-auth/internal/model"
	"github.com/iliyamo/session-auth/internal/utils"
)

// TokenRepo persists refresh tokens keyed by the SHA-256 of the token
// string. Rows are never updated; rotation is delete plus insert.
type TokenRepo struct {
	DB  *sql.DB
	Now func() time.Time
}

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db, Now: time.Now} }

// Put stores a newly issued refresh token. A token that already exists
// yields ErrConflict instead of overwriting the row.
func (r *TokenRepo) Put(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (token_hash, user_id, expires_at, created_at) VALUES (?,?,?,?)",
		utils.HashRefreshRaw(token), userID, expiresAt.UTC().UnixMilli(), r.Now().UTC().UnixMilli())
	if err != nil {
		if isDuplicateKey(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// Exists reports whether token is stored and not yet expired.
func (r *TokenRepo) Exists(ctx context.Context, token string) (bool, error) {
	var expiresAt int64
	err := r.DB.QueryRowContext(ctx,
		"SELECT expires_at FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		utils.HashRefreshRaw(token)).Scan(&expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return r.Now().UTC().UnixMilli() < expiresAt, nil
}

// DeleteOne removes a single refresh token. Deleting a token that is not
// stored is a no-op.
func (r *TokenRepo) DeleteOne(ctx context.Context, token string) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE token_hash=?", utils.HashRefreshRaw(token))
	return err
}

// Consume deletes an unexpired token and reports whether this call removed
// it. Of two concurrent calls for the same token at most one gets true.
func (r *TokenRepo) Consume(ctx context.Context, token string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE token_hash=? AND expires_at>?",
		utils.HashRefreshRaw(token), r.Now().UTC().UnixMilli())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteAllForUser removes every refresh token owned by userID and returns
// how many were deleted.
func (r *TokenRepo) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE user_id=?", userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListForUser returns the user's unexpired tokens, newest first.
func (r *TokenRepo) ListForUser(ctx context.Context, userID string) ([]model.RefreshToken, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT token_hash, user_id, expires_at, created_at FROM refresh_tokens "+
			"WHERE user_id=? AND expires_at>? ORDER BY created_at DESC",
		userID, r.Now().UTC().UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RefreshToken
	for rows.Next() {
		var (
			t                  model.RefreshToken
			expires, createdAt int64
		)
		if err := rows.Scan(&t.TokenHash, &t.UserID, &expires, &createdAt); err != nil {
			return nil, err
		}
		t.ExpiresAt = time.UnixMilli(expires).UTC()
		t.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteExpired purges rows whose expiry is at or before now.
func (r *TokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at<=?", now.UTC().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
