package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/teslashibe/go-wastesnap/pkg/backend"
)

const secret = "test-jwt-secret"

func signToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: sub + "@example.org",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// fakeAuth serves sign-in, user, logout and has_role for two users:
// "boss" is an admin, "clerk" is not.
type fakeAuth struct {
	t        *testing.T
	mu       sync.Mutex
	tokens   map[string]string // token -> user id
	signOuts []string
}

func newFakeAuth(t *testing.T) (*backend.Client, *fakeAuth) {
	fa := &fakeAuth{t: t, tokens: map[string]string{}}
	srv := httptest.NewServer(fa)
	t.Cleanup(srv.Close)
	c, err := backend.New(srv.URL, "anon", backend.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatal(err)
	}
	return c, fa
}

func (f *fakeAuth) issue(user string) string {
	tok := signToken(f.t, user, time.Now().Add(time.Hour))
	f.mu.Lock()
	f.tokens[tok] = user
	f.mu.Unlock()
	return tok
}

func (f *fakeAuth) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	f.mu.Lock()
	user, known := f.tokens[bearer]
	f.mu.Unlock()

	switch r.URL.Path {
	case "/auth/v1/token":
		var creds map[string]string
		json.Unmarshal(body, &creds)
		if creds["password"] != "pw" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
			return
		}
		id := strings.Split(creds["email"], "@")[0]
		tok := f.issue(id)
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": tok, "expires_in": 3600,
			"user": map[string]string{"id": id, "email": creds["email"]},
		})
	case "/auth/v1/user":
		if !known {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"msg":"invalid JWT"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": user, "email": user + "@example.org"})
	case "/auth/v1/logout":
		f.mu.Lock()
		f.signOuts = append(f.signOuts, user)
		delete(f.tokens, bearer)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	case "/rest/v1/rpc/has_role":
		var args map[string]string
		json.Unmarshal(body, &args)
		ok := known && args["_user_id"] == "boss" && args["_role"] == "admin"
		json.NewEncoder(w).Encode(ok)
	default:
		http.NotFound(w, r)
	}
}

func TestLogin(t *testing.T) {
	client, fa := newFakeAuth(t)
	a := NewAuthenticator(client, WithJWTSecret(secret))
	ctx := context.Background()

	t.Run("admin", func(t *testing.T) {
		s, err := a.Login(ctx, "boss@example.org", "pw")
		if err != nil {
			t.Fatalf("Login: %v", err)
		}
		if s.UserID != "boss" || s.Token == "" {
			t.Errorf("session = %+v", s)
		}
		if time.Until(s.ExpiresAt) < 50*time.Minute {
			t.Errorf("ExpiresAt = %v, want about an hour ahead", s.ExpiresAt)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		if _, err := a.Login(ctx, "boss@example.org", "nope"); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("err = %v, want ErrInvalidCredentials", err)
		}
	})

	t.Run("not admin is signed out", func(t *testing.T) {
		_, err := a.Login(ctx, "clerk@example.org", "pw")
		if !errors.Is(err, ErrNotAdmin) {
			t.Fatalf("err = %v, want ErrNotAdmin", err)
		}
		fa.mu.Lock()
		defer fa.mu.Unlock()
		if len(fa.signOuts) != 1 || fa.signOuts[0] != "clerk" {
			t.Errorf("signOuts = %v", fa.signOuts)
		}
	})
}

func TestVerify(t *testing.T) {
	client, fa := newFakeAuth(t)
	a := NewAuthenticator(client, WithJWTSecret(secret))
	ctx := context.Background()

	if _, err := a.Verify(ctx, ""); !errors.Is(err, ErrNoToken) {
		t.Errorf("empty: err = %v", err)
	}
	if _, err := a.Verify(ctx, "not.a.jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage: err = %v", err)
	}
	expired := signToken(t, "boss", time.Now().Add(-time.Minute))
	if _, err := a.Verify(ctx, expired); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("expired: err = %v", err)
	}

	boss := fa.issue("boss")
	s, err := a.Verify(ctx, boss)
	if err != nil || s.UserID != "boss" {
		t.Fatalf("Verify = %+v, %v", s, err)
	}

	clerk := fa.issue("clerk")
	if _, err := a.Verify(ctx, clerk); !errors.Is(err, ErrNotAdmin) {
		t.Errorf("clerk: err = %v, want ErrNotAdmin", err)
	}

	if err := a.Logout(ctx, boss); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Verify(ctx, boss); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("after logout: err = %v, want ErrExpiredToken", err)
	}
}

func TestParseClaimsSignature(t *testing.T) {
	client, _ := newFakeAuth(t)
	tok := signToken(t, "boss", time.Now().Add(time.Hour))

	if _, err := NewAuthenticator(client, WithJWTSecret("other")).ParseClaims(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong secret: err = %v, want ErrInvalidToken", err)
	}
	claims, err := NewAuthenticator(client).ParseClaims(tok)
	if err != nil {
		t.Fatalf("unverified parse: %v", err)
	}
	if claims.Subject != "boss" || claims.Email != "boss@example.org" {
		t.Errorf("claims = %+v", claims)
	}
}
