package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/liftlog-io/liftlog/internal/config"
)

// ErrInvalidToken covers every validation failure: bad signature, malformed
// token, wrong algorithm, expiry, or an unusable subject.
var ErrInvalidToken = errors.New("invalid token")

// TokenManager issues and validates HMAC-signed access tokens whose subject is a user id.
type TokenManager struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// TokenOption customises a TokenManager.
type TokenOption func(*TokenManager)

// WithClock replaces time.Now for issuing and validating.
func WithClock(now func() time.Time) TokenOption {
	return func(tm *TokenManager) { tm.now = now }
}

// NewTokenManager accepts only HMAC algorithms and a positive TTL.
func NewTokenManager(cfg config.AuthConfig, opts ...TokenOption) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("token secret is empty")
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", cfg.TokenTTL)
	}
	method, ok := jwt.GetSigningMethod(cfg.Algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("signing algorithm %q is not an HMAC algorithm", cfg.Algorithm)
	}

	tm := &TokenManager{
		secret: []byte(cfg.SecretKey),
		method: method,
		ttl:    cfg.TokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(tm)
	}

	tm.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	return tm, nil
}

// TTL is the lifetime of issued tokens.
func (tm *TokenManager) TTL() time.Duration { return tm.ttl }

// Issue signs a token for userID that expires TTL from now.
func (tm *TokenManager) Issue(userID int64) (string, error) {
	now := tm.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		ExpiresAt: jwt.NewNumericDate(now.Add(tm.ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(tm.method, claims).SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate returns the user id carried by a valid, unexpired token, or ErrInvalidToken.
func (tm *TokenManager) Validate(tokenString string) (int64, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := tm.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return tm.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return id, nil
}
