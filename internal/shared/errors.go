package shared

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExpired     = fmt.Errorf("access token expired")
	ErrMissingVerifier  = fmt.Errorf("missing verifier")
	ErrInvalidState     = fmt.Errorf("invalid state parameter")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrPlaylistNotFound   = fmt.Errorf("playlist not found")

	// Storage errors
	ErrRecordNotFound = fmt.Errorf("record not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// AuthError reports missing, expired or rejected credentials for either provider.
//
// The user recovers by authenticating again; callers never retry it automatically.
type AuthError struct {
	Reason string
	Err    error
}

// NewAuthError creates an [AuthError] with an optional cause.
func NewAuthError(reason string, cause error) *AuthError {
	return &AuthError{Reason: reason, Err: cause}
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrNotAuthenticated, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrNotAuthenticated, e.Reason)
}

// Unwrap returns the cause, falling back to [ErrNotAuthenticated].
func (e *AuthError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrNotAuthenticated, e.Err}
	}
	return []error{ErrNotAuthenticated}
}

// UpstreamError is a non-success response from a provider API.
type UpstreamError struct {
	Provider string
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("%s: %s returned status %d: %s", ErrAPIRequest, e.Provider, e.Status, body)
}

func (e *UpstreamError) Unwrap() error { return ErrAPIRequest }

// Transient reports whether the status is a server-side failure worth retrying for idempotent calls.
func (e *UpstreamError) Transient() bool {
	return e.Status >= 500
}

// ValidationError is malformed caller input, rejected before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidInput, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// HTTPStatus maps an error from the conversion pipeline to the status code reported to web clients.
func HTTPStatus(err error) int {
	var (
		authErr       *AuthError
		upstreamErr   *UpstreamError
		validationErr *ValidationError
	)

	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &upstreamErr):
		if upstreamErr.Status == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrMissingArgument):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrRecordNotFound), errors.Is(err, ErrPlaylistNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAPIRequest), errors.Is(err, ErrServiceUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
