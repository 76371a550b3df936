// Package auth issues and validates the bearer tokens that guard the
// billing API. Tokens are stateless HS256 JWTs, so any instance holding the
// shared secret can validate them.
package auth

import (
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Scopes granted to API tokens.
const (
	ScopeRead  = "billing:read"
	ScopeWrite = "billing:write"
)

const issuer = "paycore"

// ErrNoSecret is returned when a token service is built without a secret.
var ErrNoSecret = errors.New("auth: signing secret is required")

// Claims are the JWT claims of an API token. Subject names the calling service.
type Claims struct {
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// Allows reports whether the token grants scope. Write implies read.
func (c *Claims) Allows(scope string) bool {
	if slices.Contains(c.Scopes, scope) {
		return true
	}
	return scope == ScopeRead && slices.Contains(c.Scopes, ScopeWrite)
}

// TokenService signs and validates API tokens. Safe for concurrent use.
type TokenService struct {
	secret     []byte
	expiration time.Duration
	now        func() time.Time
}

// NewTokenService creates a token service. expiration defaults to 30 days.
func NewTokenService(secret string, expiration time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if expiration == 0 {
		expiration = 30 * 24 * time.Hour
	}
	return &TokenService{
		secret:     []byte(secret),
		expiration: expiration,
		now:        time.Now,
	}, nil
}

// GenerateToken issues a token for service with the given scopes.
func (s *TokenService) GenerateToken(service string, scopes ...string) (string, time.Time, error) {
	if service == "" {
		return "", time.Time{}, errors.New("auth: service name is required")
	}
	if len(scopes) == 0 {
		scopes = []string{ScopeRead}
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.expiration)

	claims := Claims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   service,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a token and returns its claims.
func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
