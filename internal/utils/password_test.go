package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("secret1", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", hash)

	assert.True(t, VerifyPassword(hash, "secret1"))
	assert.False(t, VerifyPassword(hash, "secret2"))
	assert.False(t, VerifyPassword("", "secret1"))
	assert.False(t, VerifyPassword("not-a-hash", "secret1"))
}

func TestHashPasswordIsSalted(t *testing.T) {
	a, err := HashPassword("secret1", bcrypt.MinCost)
	require.NoError(t, err)
	b, err := HashPassword("secret1", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHashPasswordTooLong(t *testing.T) {
	_, err := HashPassword(strings.Repeat("x", 73), bcrypt.MinCost)
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestValidateBcryptCost(t *testing.T) {
	assert.NoError(t, ValidateBcryptCost(DefaultBcryptCost))
	assert.NoError(t, ValidateBcryptCost(bcrypt.MinCost))
	assert.Error(t, ValidateBcryptCost(bcrypt.MinCost-1))
	assert.Error(t, ValidateBcryptCost(MaxBcryptCost+1))
}
