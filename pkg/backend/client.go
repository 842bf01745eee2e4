// Package backend is a client for the hosted backend that stores
// submissions: password auth, PostgREST tables and RPC, and object storage.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teslashibe/go-wastesnap/internal/httpc"
)

// UploadTimeout bounds photo uploads.
const UploadTimeout = 60 * time.Second

// Client talks to one backend project. It is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client authorized with the project's anon key.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, ErrNoURL
	}
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("backend: bad URL: %w", err)
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpc.NewClient(UploadTimeout),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "backend")
	return c, nil
}

// WithToken returns a copy that acts as the user owning accessToken.
func (c *Client) WithToken(accessToken string) *Client {
	cp := *c
	cp.token = accessToken
	return &cp
}

// Token returns the user access token, or "".
func (c *Client) Token() string { return c.token }

func (c *Client) bearer() string {
	if c.token != "" {
		return c.token
	}
	return c.apiKey
}

// request describes one call; body is JSON-encoded unless raw is set.
type request struct {
	service     string
	method      string
	path        string
	query       url.Values
	body        any
	raw         []byte
	contentType string
	header      map[string]string
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var body io.Reader
	contentType := r.contentType
	switch {
	case r.raw != nil:
		body = bytes.NewReader(r.raw)
	case r.body != nil:
		data, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("backend: encode request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.bearer())
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range r.header {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("backend: read response: %w", err)
	}
	c.logger.Debug("backend call",
		"service", r.service,
		"method", r.method,
		"path", r.path,
		"status", resp.StatusCode,
		"took", time.Since(start))

	if resp.StatusCode >= 300 {
		return parseError(r.service, resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("backend: decode response: %w", err)
	}
	return nil
}
