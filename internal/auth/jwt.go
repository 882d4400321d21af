// Package auth holds the authentication building blocks: the Discord OAuth
// exchange, session token signing and validation, session id handling, and
// the HTTP guards that protect routes.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. User visits /auth/discord/login → redirected to Discord
//  2. Discord calls back /auth/discord/callback with a code
//  3. Server exchanges the code for the Discord profile, upserts the user,
//     opens a server-side session and signs a token that carries the session id
//  4. The frontend hands the token to /auth/set-cookie, which stores it in an
//     HttpOnly cookie once the server has re-verified it
//  5. RequireAuth reads the cookie, checks the signature AND the session row,
//     and puts the live user into the request context
//
// The token alone is never enough: deleting the session row (logout) revokes
// it even though the signature is still valid.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultTokenTTL is the absolute lifetime of a session token.
	DefaultTokenTTL = 7 * 24 * time.Hour

	issuer = "blockhub"
)

var (
	ErrTokenExpired = errors.New("auth: token expired")
	ErrTokenInvalid = errors.New("auth: invalid token")
)

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService with the given secret and token
// lifetime. ttl <= 0 selects DefaultTokenTTL.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL is the lifetime given to tokens from Issue.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Subject is the identity snapshot embedded in a token.
type Subject struct {
	ID         string
	Username   string
	Avatar     string
	GlobalName string
}

// Claims is the JWT payload. The custom fields mirror the Discord profile
// fields the frontend needs to render a logged-in header without a round trip;
// the registered "jti" claim carries the server session id.
type Claims struct {
	UserID     string `json:"id"`
	Username   string `json:"username"`
	Avatar     string `json:"avatar"`
	GlobalName string `json:"global_name"`
	jwt.RegisteredClaims
}

// SessionID returns the server session id the token is bound to.
func (c *Claims) SessionID() string {
	return c.ID
}

// Issue signs a token for sub bound to sessionID, valid for the service TTL.
func (s *TokenService) Issue(sub Subject, sessionID string) (string, error) {
	return s.IssueWithDuration(sub, sessionID, s.ttl)
}

// IssueWithDuration signs a token with a custom lifetime. Used by tests to
// mint already-expired tokens.
func (s *TokenService) IssueWithDuration(sub Subject, sessionID string, d time.Duration) (string, error) {
	if sub.ID == "" {
		return "", errors.New("auth: token subject has no id")
	}
	if sessionID == "" {
		return "", errors.New("auth: token needs a session id")
	}

	now := s.now()
	c := Claims{
		UserID:     sub.ID,
		Username:   sub.Username,
		Avatar:     sub.Avatar,
		GlobalName: sub.GlobalName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a token string.
//
// Checks: HS256 only (no "none", no algorithm confusion), our issuer, an
// expiry that must be present and in the future, and non-empty id and jti.
// Expired tokens return ErrTokenExpired; every other failure ErrTokenInvalid.
func (s *TokenService) Validate(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if c.UserID == "" || c.ID == "" {
		return nil, fmt.Errorf("%w: missing id or session", ErrTokenInvalid)
	}

	return c, nil
}
