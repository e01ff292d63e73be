package utils

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is used when no cost is configured.
const DefaultBcryptCost = 12

// MaxBcryptCost caps the configurable cost; each step doubles hashing time.
const MaxBcryptCost = 14

// ErrPasswordTooLong is returned for secrets bcrypt cannot hash (over 72 bytes).
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// ValidateBcryptCost reports whether cost is usable as a fixed hashing cost.
func ValidateBcryptCost(cost int) error {
	if cost < bcrypt.MinCost || cost > MaxBcryptCost {
		return fmt.Errorf("bcrypt cost must be between %d and %d, got %d", bcrypt.MinCost, MaxBcryptCost, cost)
	}
	return nil
}

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
// An empty hash never matches.
func VerifyPassword(hash, plain string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
