package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/session-auth/internal/database/dbtest"
	"github.com/iliyamo/session-auth/internal/model"
)

func TestUserRepoCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	users := NewUserRepo(dbtest.Open(t))

	created, err := users.Create(ctx, model.User{Email: "  A@X.com ", Name: "A", PasswordHash: "hash"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "a@x.com", created.Email)

	byEmail, err := users.GetByEmail(ctx, "a@x.COM")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)
	assert.Equal(t, "hash", byEmail.PasswordHash)
	assert.Empty(t, byEmail.GoogleID)

	byID, err := users.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Email, byID.Email)
	assert.Equal(t, "A", byID.Name)
	assert.True(t, created.CreatedAt.Equal(byID.CreatedAt))

	_, err = users.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepoRejectsDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	users := NewUserRepo(dbtest.Open(t))

	_, err := users.Create(ctx, model.User{Email: "a@x.com", PasswordHash: "hash"})
	require.NoError(t, err)

	_, err = users.Create(ctx, model.User{Email: "A@x.com", PasswordHash: "other"})
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestUserRepoRequiresAuthPath(t *testing.T) {
	users := NewUserRepo(dbtest.Open(t))
	_, err := users.Create(context.Background(), model.User{Email: "a@x.com"})
	assert.Error(t, err)
}

func TestUserRepoProviderLinking(t *testing.T) {
	ctx := context.Background()
	users := NewUserRepo(dbtest.Open(t))

	gh, err := users.Create(ctx, model.User{Email: "octo@github.com", GitHubID: "42", Name: "Octo"})
	require.NoError(t, err)

	found, err := users.GetByProvider(ctx, model.ProviderGitHub, "42")
	require.NoError(t, err)
	assert.Equal(t, gh.ID, found.ID)

	_, err = users.GetByProvider(ctx, model.ProviderGoogle, "42")
	assert.ErrorIs(t, err, ErrNotFound)

	pw, err := users.Create(ctx, model.User{Email: "a@x.com", PasswordHash: "hash"})
	require.NoError(t, err)

	linked, err := users.LinkProvider(ctx, pw.ID, model.ProviderGoogle, "g-1", "Alice", "https://img/a.png")
	require.NoError(t, err)
	assert.Equal(t, "g-1", linked.GoogleID)
	assert.Equal(t, "Alice", linked.Name)
	assert.Equal(t, "https://img/a.png", linked.AvatarURL)
	assert.Equal(t, "hash", linked.PasswordHash)

	// another account cannot take the same external id
	_, err = users.LinkProvider(ctx, gh.ID, model.ProviderGoogle, "g-1", "", "")
	assert.ErrorIs(t, err, ErrConflict)

	// an existing link is never re-pointed
	_, err = users.LinkProvider(ctx, pw.ID, model.ProviderGoogle, "g-2", "", "")
	assert.ErrorIs(t, err, ErrConflict)
	kept, err := users.GetByProvider(ctx, model.ProviderGoogle, "g-1")
	require.NoError(t, err)
	assert.Equal(t, pw.ID, kept.ID)

	again, err := users.LinkProvider(ctx, pw.ID, model.ProviderGoogle, "g-1", "", "")
	require.NoError(t, err)
	assert.Equal(t, "g-1", again.GoogleID)

	_, err = users.LinkProvider(ctx, "missing", model.ProviderGoogle, "g-2", "", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepoSetAvatarIfEmpty(t *testing.T) {
	ctx := context.Background()
	users := NewUserRepo(dbtest.Open(t))

	u, err := users.Create(ctx, model.User{Email: "a@x.com", GoogleID: "g-1"})
	require.NoError(t, err)

	require.NoError(t, users.SetAvatarIfEmpty(ctx, u.ID, "https://img/1.png"))
	require.NoError(t, users.SetAvatarIfEmpty(ctx, u.ID, "https://img/2.png"))

	got, err := users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://img/1.png", got.AvatarURL)
}
