// Package auth validates and mints the HS256 bearer tokens carried by
// requests to the API server and the persistence gateway. Issuing end-user
// credentials is left to an external collaborator.
package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const issuer = "chatcall-service"

// GatewayAudience scopes service tokens to the persistence gateway. Tokens
// without it, end-user tokens included, are rejected there.
const GatewayAudience = "chatcall-gateway"

// ErrInvalidToken is returned for any token that fails validation.
var ErrInvalidToken = errors.New("invalid token or expired")

// Claims are the registered claims we rely on; Subject identifies the caller.
type Claims struct {
	jwt.RegisteredClaims
}

// Signer mints and verifies tokens with a shared secret.
type Signer struct {
	secret   []byte
	ttl      time.Duration
	audience string
	now      func() time.Time
}

// NewSigner creates a Signer. ttl bounds the lifetime of minted tokens.
func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithAudience returns a copy of s that stamps aud on minted tokens and
// only accepts tokens carrying it.
func (s *Signer) WithAudience(aud string) *Signer {
	cp := *s
	cp.audience = aud
	return &cp
}

// Sign creates a token for subject.
func (s *Signer) Sign(subject string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify parses tokenString and returns its subject.
func (s *Signer) Verify(tokenString string) (string, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
