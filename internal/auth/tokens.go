package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 12 * time.Hour

var (
	ErrMissingSigningSecret = errors.New("auth: signing secret required")
	ErrMissingSubject       = errors.New("auth: subject required")
	ErrExpiredToken         = errors.New("auth: token expired")
	ErrInvalidToken         = errors.New("auth: invalid token")
)

// TokenManagerConfig configures the command-layer JWT manager.
type TokenManagerConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenManager issues and validates the HS256 bearer tokens that guard the
// command API. Clients obtain one by presenting the configured API key.
type TokenManager struct {
	signingSecret []byte
	issuer        string
	audience      string
	tokenTTL      time.Duration
	clock         func() time.Time
}

// NewTokenManager constructs a TokenManager with sane defaults.
func NewTokenManager(cfg TokenManagerConfig) (*TokenManager, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningSecret
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenManager{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        cfg.Issuer,
		audience:      cfg.Audience,
		tokenTTL:      ttl,
		clock:         clock,
	}, nil
}

// Issue produces a signed JWT and its expiry in seconds for the subject.
func (m *TokenManager) Issue(subject string) (string, int64, error) {
	if subject == "" {
		return "", 0, ErrMissingSubject
	}

	now := m.clock().UTC()
	expiresAt := now.Add(m.tokenTTL)

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    m.issuer,
		Audience:  []string{m.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.signingSecret)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

// Validate ensures the bearer token is well formed and returns its subject.
func (m *TokenManager) Validate(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidToken, token.Method.Alg())
			}
			return m.signingSecret, nil
		},
		jwt.WithAudience(m.audience),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrMissingSubject
	}
	return claims.Subject, nil
}
