package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/worksafe-io/be-permits/internal/errors"
)

// TokenManager signs and verifies identity tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager creates a token manager with an HS256 secret.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

type claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	Level int    `json:"level"`
	jwt.RegisteredClaims
}

// CreateToken issues a signed token for the identity.
func (m *TokenManager) CreateToken(id Identity) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: id.Email,
		Role:  id.Role,
		Level: id.Level,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	})
	return token.SignedString(m.secret)
}

// VerifyToken parses and validates a token, returning the identity it
// asserts.
func (m *TokenManager) VerifyToken(tokenString string) (Identity, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New(errors.ErrCodeUnauthorized, "unexpected token signing method")
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, errors.New(errors.ErrCodeUnauthorized, "invalid or expired token")
	}

	return Identity{
		UserID: c.Subject,
		Email:  c.Email,
		Role:   c.Role,
		Level:  c.Level,
	}, nil
}
