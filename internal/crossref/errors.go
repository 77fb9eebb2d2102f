package crossref

import (
	"errors"
	"fmt"
)

// Common errors returned by the registry client.
var (
	// ErrNotFound indicates the identifier does not resolve.
	ErrNotFound = errors.New("not found in registry")

	// ErrRateLimited indicates the registry rate limit has been exceeded.
	ErrRateLimited = errors.New("registry rate limit exceeded")

	// ErrUnavailable indicates a server-side registry failure.
	ErrUnavailable = errors.New("registry unavailable")

	// ErrNetworkError indicates a network connectivity issue.
	ErrNetworkError = errors.New("network error communicating with registry")

	// ErrInvalidResponse indicates an unexpected registry response.
	ErrInvalidResponse = errors.New("invalid response from registry")
)

// APIError represents an HTTP-level error from the registry.
type APIError struct {
	StatusCode int
	Message    string
	DOI        string // for context in resolve errors
}

func (e *APIError) Error() string {
	if e.DOI != "" {
		return fmt.Sprintf("registry error (status %d): %s (doi: %s)", e.StatusCode, e.Message, e.DOI)
	}
	return fmt.Sprintf("registry error (status %d): %s", e.StatusCode, e.Message)
}

// IsNotFound returns true if the error indicates an unresolvable identifier.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 404
	}
	return false
}

// IsTransient returns true for failures worth retrying: network errors,
// throttling, and server-side outages. Content-level failures (not
// found, malformed responses) are never transient.
func IsTransient(err error) bool {
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable) || errors.Is(err, ErrNetworkError) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
