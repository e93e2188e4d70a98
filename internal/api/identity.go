package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/1ureka/blinkchat/internal/protocol"
)

// ErrNoToken is returned by ParseIdentity for an empty token.
var ErrNoToken = errors.New("no identity token")

// Identity is what the client can learn from its access token without the
// signing key. It is only used for display and expiry hints; the backend
// remains the authority.
type Identity struct {
	UserID    string
	Username  string
	ExpiresAt time.Time
}

// Expired reports whether the token's exp claim has passed. Tokens without
// exp never expire.
func (id Identity) Expired(now time.Time) bool {
	return !id.ExpiresAt.IsZero() && now.After(id.ExpiresAt)
}

type identityClaims struct {
	UserID   protocol.LooseString `json:"user_id"`
	Username string               `json:"username"`
	jwt.RegisteredClaims
}

// ParseIdentity reads the claims of a JWT access token without verifying its
// signature.
func ParseIdentity(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrNoToken
	}

	var claims identityClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}

	id := Identity{
		UserID:   string(claims.UserID),
		Username: claims.Username,
	}
	if id.UserID == "" {
		id.UserID = claims.Subject
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}
