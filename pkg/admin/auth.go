// Package admin authenticates dashboard users against the backend and
// checks they hold the admin role.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/teslashibe/go-wastesnap/pkg/backend"
)

var (
	ErrNoToken            = errors.New("admin: no token provided")
	ErrInvalidToken       = errors.New("admin: invalid token")
	ErrExpiredToken       = errors.New("admin: token has expired")
	ErrInvalidCredentials = errors.New("admin: invalid email or password")
	ErrNotAdmin           = errors.New("admin: you do not have admin access")
)

// DefaultRole is the role checked through the has_role function.
const DefaultRole = "admin"

// Claims are the access token claims the dashboard reads.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Session is a signed-in administrator.
type Session struct {
	Token     string    `json:"access_token"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Authenticator signs administrators in and verifies their tokens.
type Authenticator struct {
	client *backend.Client
	role   string
	secret []byte
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithRole overrides the required role.
func WithRole(role string) Option {
	return func(a *Authenticator) { a.role = role }
}

// WithJWTSecret enables local HS256 signature checks.
func WithJWTSecret(secret string) Option {
	return func(a *Authenticator) {
		if secret != "" {
			a.secret = []byte(secret)
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authenticator) { a.logger = l }
}

// NewAuthenticator creates an authenticator using the anon client.
func NewAuthenticator(client *backend.Client, opts ...Option) *Authenticator {
	a := &Authenticator{
		client: client,
		role:   DefaultRole,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "admin")
	return a
}

// Login signs in with a password and checks the admin role. Users without
// the role are signed out again.
func (a *Authenticator) Login(ctx context.Context, email, password string) (*Session, error) {
	bs, err := a.client.SignInWithPassword(ctx, email, password)
	if err != nil {
		if backend.IsUnauthorized(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("admin: sign in: %w", err)
	}

	user := a.client.WithToken(bs.AccessToken)
	userID := bs.User.ID
	if userID == "" {
		u, err := user.GetUser(ctx)
		if err != nil {
			return nil, fmt.Errorf("admin: get user: %w", err)
		}
		userID = u.ID
	}

	ok, err := a.hasRole(ctx, user, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := user.SignOut(ctx); err != nil {
			a.logger.Warn("sign out failed", "user", userID, "error", err)
		}
		a.logger.Warn("login without admin role", "email", email)
		return nil, ErrNotAdmin
	}

	expires := bs.Expiry(a.now())
	if claims, err := a.ParseClaims(bs.AccessToken); err == nil && claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	a.logger.Info("admin signed in", "user", userID)
	return &Session{
		Token:     bs.AccessToken,
		UserID:    userID,
		Email:     bs.User.Email,
		ExpiresAt: expires,
	}, nil
}

// Verify checks a token locally, then confirms the user and role with the backend.
func (a *Authenticator) Verify(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	claims, err := a.ParseClaims(token)
	if err != nil {
		return nil, err
	}

	user := a.client.WithToken(token)
	u, err := user.GetUser(ctx)
	if err != nil {
		if backend.IsUnauthorized(err) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("admin: get user: %w", err)
	}
	ok, err := a.hasRole(ctx, user, u.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAdmin
	}

	s := &Session{Token: token, UserID: u.ID, Email: u.Email}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

// Logout revokes the token.
func (a *Authenticator) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return a.client.WithToken(token).SignOut(ctx)
}

// Client returns a backend client acting as the token's user.
func (a *Authenticator) Client(token string) *backend.Client {
	return a.client.WithToken(token)
}

// ParseClaims decodes a token and checks its expiry. The signature is
// verified only when a JWT secret is configured; otherwise the backend
// verifies it on the next call.
func (a *Authenticator) ParseClaims(token string) (*Claims, error) {
	claims := &Claims{}
	var err error
	if a.secret != nil {
		parser := jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithTimeFunc(a.now),
		)
		_, err = parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
			return a.secret, nil
		})
	} else {
		_, _, err = jwt.NewParser().ParseUnverified(token, claims)
	}
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.ExpiresAt != nil && !a.now().Before(claims.ExpiresAt.Time) {
		return nil, ErrExpiredToken
	}
	return claims, nil
}

func (a *Authenticator) hasRole(ctx context.Context, user *backend.Client, userID string) (bool, error) {
	var ok bool
	args := map[string]string{"_user_id": userID, "_role": a.role}
	if err := user.RPC(ctx, "has_role", args, &ok); err != nil {
		return false, fmt.Errorf("admin: role check: %w", err)
	}
	return ok, nil
}
