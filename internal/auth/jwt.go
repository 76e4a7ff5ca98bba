// Package auth issues and checks Waypoint session tokens, hashes passwords
// and runs the GitHub sign-in handshake.
//
// SESSION FLOW:
//  1. A client signs up, signs in, or finishes the GitHub callback
//  2. The server issues a signed token naming the user ("sub" claim)
//  3. Mobile clients send it as "Authorization: Bearer <token>", browsers
//     get it in the HttpOnly "token" cookie
//  4. RequireAuth validates it on every /api request and puts the user ID
//     into the request context
//
// Tokens are HS256 JWTs. Verification needs only the secret, so no session
// table exists. Signing out is handled client-side plus an auth-state event
// that drops the server's cached tracker for that user.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "waypoint"

// ErrTokenExpired is returned by Validate for a well-formed token past its
// expiry.
var ErrTokenExpired = errors.New("auth: token expired")

// TokenService signs and verifies session tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService whose tokens live for ttl.
// The secret should be at least 32 bytes of random data in production:
//
//	JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token lifetime must be positive")
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is how long issued tokens stay valid. Handlers use it for cookie
// MaxAge.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// claims only carries the registered fields; "sub" is the user ID.
type claims struct {
	jwt.RegisteredClaims
}

// Generate issues a token for userID that expires after the service TTL.
func (s *TokenService) Generate(userID string) (string, error) {
	return s.sign(userID, time.Now(), s.ttl)
}

func (s *TokenService) sign(userID string, now time.Time, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("auth: cannot issue a token without a user")
	}
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate checks signature, issuer and expiry and returns the user ID.
//
// WithValidMethods pins HS256 so a token claiming "alg":"none" or an RSA
// algorithm is rejected before the key function runs.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", errors.New("auth: invalid token claims")
	}
	if c.Subject == "" {
		return "", errors.New("auth: token has no subject")
	}
	return c.Subject, nil
}
