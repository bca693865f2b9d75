package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the identity the server embedded in the bearer token. The
// client decodes these without verifying the signature — only the server
// can verify, and the client treats the token as opaque for authorization
// purposes. Claims exist purely for display (whoami) and for warning about
// an expiry before the server reports one.
type Claims struct {
	UserID    string
	Email     string
	IsAdmin   bool
	ExpiresAt time.Time // zero when the token carries no expiry
}

// tokenClaims mirrors the server's JWT payload.
type tokenClaims struct {
	jwt.RegisteredClaims

	UserID  string `json:"id"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"isAdmin"`
}

// ParseClaims decodes the claims of a bearer token without verification.
// A token that is not a well-formed JWT returns an error; callers treat
// that as "no claims available", never as an invalid session.
func ParseClaims(token string) (*Claims, error) {
	var tc tokenClaims

	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &tc); err != nil {
		return nil, fmt.Errorf("session: decoding token claims: %w", err)
	}

	claims := &Claims{
		UserID:  tc.UserID,
		Email:   tc.Email,
		IsAdmin: tc.IsAdmin,
	}

	if tc.ExpiresAt != nil {
		claims.ExpiresAt = tc.ExpiresAt.Time
	}

	return claims, nil
}

// Expired reports whether the claims carry an expiry in the past. Tokens
// without an expiry claim never report expired — the server is the
// authority either way.
func (c *Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}
