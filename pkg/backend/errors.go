package backend

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNoURL is returned when the backend URL is missing.
	ErrNoURL = errors.New("backend: URL required")

	// ErrNoAPIKey is returned when the anon key is missing.
	ErrNoAPIKey = errors.New("backend: API key required")

	// ErrNoSession is returned by user-scoped calls without an access token.
	ErrNoSession = errors.New("backend: not signed in")
)

// APIError represents an error response from the backend.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the API.
	Message string

	// Code is the error code from the API (if provided).
	Code string

	// Service is "auth", "rest" or "storage".
	Service string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend [%s]: API error %d (%s): %s", e.Service, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("backend [%s]: API error %d: %s", e.Service, e.StatusCode, e.Message)
}

// IsUnauthorized returns true for HTTP 401, and for the auth service's
// 400 responses to bad credentials.
func (e *APIError) IsUnauthorized() bool {
	if e.StatusCode == 401 {
		return true
	}
	return e.Service == "auth" && (e.Code == "invalid_grant" || e.Code == "invalid_credentials")
}

// IsForbidden returns true if this is a permission error (HTTP 403).
func (e *APIError) IsForbidden() bool {
	return e.StatusCode == 403
}

// IsNotFound returns true if the resource was not found (HTTP 404).
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == 404
}

// IsConflict returns true if the object already exists (HTTP 409).
func (e *APIError) IsConflict() bool {
	return e.StatusCode == 409
}

// IsRetryable returns true for rate limits and server errors.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || (e.StatusCode >= 500 && e.StatusCode < 600)
}

// IsUnauthorized reports whether err is an *APIError for bad credentials.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsUnauthorized()
}

// IsNotFound reports whether err is an *APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsNotFound()
}

// parseError builds an APIError from the differing body shapes of the
// auth, rest and storage services.
func parseError(service string, status int, body []byte) *APIError {
	var raw struct {
		Message          string          `json:"message"`
		Msg              string          `json:"msg"`
		Error            string          `json:"error"`
		ErrorDescription string          `json:"error_description"`
		Code             json.RawMessage `json:"code"`
		ErrorCode        string          `json:"error_code"`
	}
	apiErr := &APIError{StatusCode: status, Service: service}
	if err := json.Unmarshal(body, &raw); err != nil {
		apiErr.Message = truncate(string(body), 200)
		return apiErr
	}

	switch {
	case raw.Message != "":
		apiErr.Message = raw.Message
	case raw.Msg != "":
		apiErr.Message = raw.Msg
	case raw.ErrorDescription != "":
		apiErr.Message = raw.ErrorDescription
	default:
		apiErr.Message = raw.Error
	}

	// PostgREST sends a string code, auth sometimes a number.
	var code string
	if json.Unmarshal(raw.Code, &code) == nil && code != "" {
		apiErr.Code = code
	} else if raw.ErrorCode != "" {
		apiErr.Code = raw.ErrorCode
	} else if raw.Error != "" && raw.Error != apiErr.Message {
		apiErr.Code = raw.Error
	}
	return apiErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
