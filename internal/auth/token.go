package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/aimerfeng/ContribChain/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL applies when neither the caller nor the configuration sets a lifetime
const DefaultTokenTTL = 30 * time.Minute

// Issuer signs and validates HS256 session tokens
type Issuer struct {
	secret     []byte
	issuer     string
	defaultTTL time.Duration
	now        func() time.Time
}

// IssuerOption configures an Issuer
type IssuerOption func(*Issuer)

// WithClock replaces the wall clock used for issuing and expiry checks
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.now = now
	}
}

// NewIssuer creates a token issuer from JWT configuration
func NewIssuer(cfg *config.JWTConfig, opts ...IssuerOption) *Issuer {
	ttl := cfg.AccessTokenExpiry
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	i := &Issuer{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		defaultTTL: ttl,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue creates a signed token for subject. A non-positive ttl uses the default lifetime.
// The returned expiry is never earlier than now plus ttl.
func (i *Issuer) Issue(subject string, ttl time.Duration) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, fmt.Errorf("failed to sign token: empty subject")
	}
	if ttl <= 0 {
		ttl = i.defaultTTL
	}

	now := i.now()
	// exp has whole-second precision; round up
	expiresAt := now.Add(ttl)
	if whole := expiresAt.Truncate(time.Second); !whole.Equal(expiresAt) {
		expiresAt = whole.Add(time.Second)
	}

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    i.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Validate checks signature, algorithm and expiry and returns the subject
func (i *Issuer) Validate(tokenString string) (string, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	}
	if i.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(i.issuer))
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
