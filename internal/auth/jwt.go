// Package auth verifies the bearer tokens that identify a storefront customer.
// Tokens come from the account service; Issue mints the same shape for local
// development and tests.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims is the customer identity carried by an access token. Older tokens
// only carry the subject, so UserID falls back to it.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Token is a signed access token and the moment it stops being accepted
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// JWTService signs and verifies HS256 access tokens with a shared secret
type JWTService struct {
	key    []byte
	ttl    time.Duration
	issuer string
	leeway time.Duration
	now    func() time.Time
}

type Option func(*JWTService)

// WithIssuer stamps issued tokens with iss and rejects tokens from anyone else
func WithIssuer(iss string) Option {
	return func(s *JWTService) { s.issuer = iss }
}

// WithLeeway tolerates clock skew between the account service and this one
func WithLeeway(d time.Duration) Option {
	return func(s *JWTService) { s.leeway = d }
}

func NewJWTService(secret string, ttl time.Duration, opts ...Option) *JWTService {
	s := &JWTService{key: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue signs a token for the customer, valid for the configured ttl
func (s *JWTService) Issue(userID, email, name string) (Token, error) {
	if userID == "" {
		return Token{}, fmt.Errorf("%w: user id is required", ErrInvalidToken)
	}
	now := s.now()
	exp := now.Add(s.ttl)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		Email:  email,
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}).SignedString(s.key)
	if err != nil {
		return Token{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return Token{Value: signed, ExpiresAt: exp}, nil
}

// Verify checks the signature, expiry and issuer of raw and returns its
// claims. Every failure other than expiry is reported as ErrInvalidToken.
func (s *JWTService) Verify(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	var claims Claims
	_, err := jwt.NewParser(opts...).ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, ErrInvalidToken
	}

	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
