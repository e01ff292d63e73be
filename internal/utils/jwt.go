package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidOrExpired is returned by Verify for any token that cannot be
// trusted: bad signature, wrong algorithm, malformed structure, missing
// claims or past expiry.
var ErrInvalidOrExpired = errors.New("token invalid or expired")

// TokenKind selects the signing context used to verify a token.
type TokenKind int

const (
	AccessKind TokenKind = iota
	RefreshKind
)

func (k TokenKind) String() string {
	if k == RefreshKind {
		return "refresh"
	}
	return "access"
}

// ClaimSet is the minimal payload carried by both token kinds.
type ClaimSet struct {
	UserID string
	Email  string
}

// SignedToken is a serialized JWT together with its absolute expiry.
type SignedToken struct {
	Token string
	Exp   time.Time
}

type tokenClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

type signingContext struct {
	secret []byte
	ttl    time.Duration
}

// TokenCodec signs and verifies HS256 tokens with two independent signing
// contexts so an access key can never mint or validate refresh tokens.
// It is safe for concurrent use.
type TokenCodec struct {
	access  signingContext
	refresh signingContext
	now     func() time.Time
}

// NewTokenCodec builds a codec. Secrets must be non-empty and distinct, and
// both lifetimes positive.
func NewTokenCodec(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) (*TokenCodec, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("token secrets must not be empty")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	return &TokenCodec{
		access:  signingContext{secret: []byte(accessSecret), ttl: accessTTL},
		refresh: signingContext{secret: []byte(refreshSecret), ttl: refreshTTL},
		now:     time.Now,
	}, nil
}

// WithClock returns a copy of the codec that reads time from now.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	cp := *c
	cp.now = now
	return &cp
}

// AccessTTL reports the configured access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration { return c.access.ttl }

// RefreshTTL reports the configured refresh token lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refresh.ttl }

// SignAccess issues a short-lived access token.
func (c *TokenCodec) SignAccess(claims ClaimSet) (SignedToken, error) {
	return c.sign(c.access, claims)
}

// SignRefresh issues a long-lived refresh token.
func (c *TokenCodec) SignRefresh(claims ClaimSet) (SignedToken, error) {
	return c.sign(c.refresh, claims)
}

func (c *TokenCodec) sign(sc signingContext, claims ClaimSet) (SignedToken, error) {
	if claims.UserID == "" {
		return SignedToken{}, errors.New("token subject is required")
	}
	now := c.now().UTC()
	exp := now.Add(sc.ttl).Truncate(time.Second)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		UserID: claims.UserID,
		Email:  claims.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := t.SignedString(sc.secret)
	if err != nil {
		return SignedToken{}, err
	}
	return SignedToken{Token: signed, Exp: exp}, nil
}

// Verify checks the token against the signing context selected by kind and
// returns its claims.
func (c *TokenCodec) Verify(token string, kind TokenKind) (ClaimSet, error) {
	sc := c.access
	if kind == RefreshKind {
		sc = c.refresh
	}
	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return sc.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !parsed.Valid || claims.UserID == "" {
		return ClaimSet{}, ErrInvalidOrExpired
	}
	return ClaimSet{UserID: claims.UserID, Email: claims.Email}, nil
}

// HashRefreshRaw returns the SHA-256 hash of a refresh token as a hex
// string. Only this digest is stored, so a leaked table cannot be replayed.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
