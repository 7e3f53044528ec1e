// Package auth issues and checks presenter tokens.
//
// Uploading a deck makes the uploader its presenter. The server answers the
// upload with a signed JWT whose subject is the deck's session code; only a
// holder of that token may move the slides or open the class dashboard. Students
// never need a token.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: algorithm + token type → {"alg":"HS256","typ":"JWT"}
//	- Payload: claims → {"sub":"<session code>","aud":["presenter"],"exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
//
// The server verifies the signature with the secret alone, no lookup needed.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer            = "tomato-slides"
	presenterAudience = "presenter"

	// DefaultTokenTTL covers a long lecture day.
	DefaultTokenTTL = 12 * time.Hour
)

// TokenService handles presenter token creation and validation.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: TOMATO_AUTH_JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

type claims struct {
	jwt.RegisteredClaims
}

// Generate signs a presenter token for the given session code.
func (s *TokenService) Generate(sessionCode string) (string, error) {
	return s.GenerateWithDuration(sessionCode, s.ttl)
}

// GenerateWithDuration signs a presenter token with a custom lifetime.
func (s *TokenService) GenerateWithDuration(sessionCode string, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionCode,
			Audience:  jwt.ClaimStrings{presenterAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a presenter token and returns its session code.
//
// Passing jwt.WithValidMethods rejects tokens signed with "none" or any
// algorithm other than HS256 (algorithm confusion).
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(presenterAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}

	if c.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}

	return c.Subject, nil
}

// Authorize checks that tokenStr is a valid presenter token for sessionCode.
func (s *TokenService) Authorize(tokenStr, sessionCode string) error {
	subject, err := s.Validate(tokenStr)
	if err != nil {
		return err
	}
	if subject != sessionCode {
		return fmt.Errorf("auth: token is for session %s, not %s", subject, sessionCode)
	}
	return nil
}
