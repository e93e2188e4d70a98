package api

import (
	"context"
	"net/http"
)

// Account is the result of a registration.
type Account struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// Tokens is a JWT pair. Access is what the chat socket expects.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Profile is the signed-in user as the backend sees it.
type Profile struct {
	UserID      int64  `json:"user_id,omitempty"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, username, password, email string) (Account, error) {
	var out Account
	err := c.do(ctx, http.MethodPost, "/auth/register/", "", credentials{username, password, email}, &out)
	return out, err
}

// Token exchanges credentials for a JWT pair.
func (c *Client) Token(ctx context.Context, username, password string) (Tokens, error) {
	var out Tokens
	err := c.do(ctx, http.MethodPost, "/auth/token/", "", credentials{Username: username, Password: password}, &out)
	return out, err
}

// Me returns the profile the token belongs to.
func (c *Client) Me(ctx context.Context, token string) (Profile, error) {
	var out Profile
	err := c.do(ctx, http.MethodGet, "/auth/me/", token, nil, &out)
	return out, err
}
