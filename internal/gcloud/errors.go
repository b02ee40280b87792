// Package gcloud provides a typed client for the Google Cloud IAM and Drive
// APIs with automatic retry of transient faults and error classification.
// Response field presence is validated here, once, so workflow code never
// re-checks payload shapes.
package gcloud

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for classification. Use errors.Is(err, gcloud.ErrConflict)
// to check.
var (
	ErrBadRequest   = errors.New("gcloud: bad request")
	ErrUnauthorized = errors.New("gcloud: unauthorized")
	ErrForbidden    = errors.New("gcloud: forbidden")
	ErrNotFound     = errors.New("gcloud: not found")
	ErrConflict     = errors.New("gcloud: already exists")
	ErrThrottled    = errors.New("gcloud: throttled")
	ErrServerError  = errors.New("gcloud: server error")

	// ErrInvalidResponse marks a well-formed API success that lacks a field
	// the workflow depends on (e.g. a key response without privateKeyData).
	ErrInvalidResponse = errors.New("gcloud: invalid API response")

	// ErrAuthExchange marks a failed authorization code exchange. Codes are
	// single-use, so this is fatal; the user must restart `authorize`.
	ErrAuthExchange = errors.New("gcloud: authorization code exchange failed")

	// ErrNotAuthorized is returned when no saved credential exists.
	ErrNotAuthorized = errors.New("gcloud: not authorized (run 'samaker authorize' first)")
)

// APIError wraps a sentinel error with the HTTP status code and the raw API
// error body for operator diagnosis.
type APIError struct {
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gcloud: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
// Mutating calls are only retried on statuses where the server has not
// processed the request; a 409 on account creation is surfaced immediately.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
