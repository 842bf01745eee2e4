package backend

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// User is the authenticated account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Session is the result of a password sign-in.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Expiry returns when the access token expires, relative to issued.
func (s *Session) Expiry(issued time.Time) time.Time {
	return issued.Add(time.Duration(s.ExpiresIn) * time.Second)
}

// SignInWithPassword exchanges credentials for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	q := url.Values{}
	q.Set("grant_type", "password")
	var s Session
	err := c.do(ctx, request{
		service: "auth",
		method:  http.MethodPost,
		path:    "/auth/v1/token",
		query:   q,
		body:    map[string]string{"email": email, "password": password},
	}, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetUser returns the user owning the client's access token.
func (c *Client) GetUser(ctx context.Context) (*User, error) {
	if c.token == "" {
		return nil, ErrNoSession
	}
	var u User
	if err := c.do(ctx, request{
		service: "auth",
		method:  http.MethodGet,
		path:    "/auth/v1/user",
	}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// SignOut revokes the client's access token.
func (c *Client) SignOut(ctx context.Context) error {
	if c.token == "" {
		return nil
	}
	return c.do(ctx, request{
		service: "auth",
		method:  http.MethodPost,
		path:    "/auth/v1/logout",
	}, nil)
}
