package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"lingo/internal/chat"
)

// APIError represents an API error with HTTP status code.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// Is lets callers test a 404 against chat.ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == chat.ErrNotFound && e.StatusCode == http.StatusNotFound
}

// newAPIError builds an APIError from a non-2xx response body. The backend
// reports failures as {"detail": "..."}.
func newAPIError(status int, body []byte) *APIError {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil {
			msg = s
		} else {
			msg = string(payload.Detail)
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Message: msg}
}

// IsRetryableAPIError returns true if the API error has a retryable status code.
func IsRetryableAPIError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 502, 503, 504:
			return true
		}
	}
	return false
}

// IsRetryableError checks if an error is retryable using proper type checks.
// Caller cancellation is never retryable.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Network errors
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if IsRetryableAPIError(err) {
		return true
	}

	// String fallback only for untyped errors
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"connection reset", "eof", "tls handshake", "no such host"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// isServerFault reports whether err says the backend itself is unhealthy.
// Client errors (4xx other than 429) do not trip the circuit breaker.
func isServerFault(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}
