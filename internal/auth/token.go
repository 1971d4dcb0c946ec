package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/sla-engine/internal/clock"
	"github.com/spec-kit/sla-engine/internal/config"
)

// ErrInvalidOperatorKey is returned when the presented key does not match the
// configured hash.
var ErrInvalidOperatorKey = errors.New("invalid operator key")

// TokenManager issues and validates short-lived HS256 operator tokens for the
// ops API.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

// OperatorClaims carries the token subject.
type OperatorClaims struct {
	jwt.RegisteredClaims
}

// NewTokenManager builds a manager from config.
func NewTokenManager(cfg config.AuthConfig, clk clock.Clock) *TokenManager {
	return &TokenManager{
		secret: []byte(cfg.JWTSecret),
		ttl:    time.Duration(cfg.TokenTTLMinutes) * time.Minute,
		clock:  clk,
	}
}

// Issue creates a signed token for the given operator name.
func (m *TokenManager) Issue(operator string) (string, error) {
	now := m.clock.Now()
	claims := OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operator,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate parses the token and returns the operator name.
func (m *TokenManager) Validate(tokenString string) (string, error) {
	claims := &OperatorClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.clock.Now))
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	return claims.Subject, nil
}

// VerifyOperatorKey checks the presented key against the configured bcrypt
// hash.
func VerifyOperatorKey(hash, key string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
		return ErrInvalidOperatorKey
	}
	return nil
}

// HashOperatorKey produces a bcrypt hash suitable for AUTH_OPERATOR_KEY_HASH.
func HashOperatorKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
