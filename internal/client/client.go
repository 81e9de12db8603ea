// Package client talks to the lingo HTTP backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lingo/internal/logging"
	"lingo/internal/robustness"
)

const maxErrorBody = 64 << 10

// Config holds configuration for the backend client.
type Config struct {
	BaseURL string        // e.g. http://127.0.0.1:8000
	Timeout time.Duration // HTTP request timeout (default: 60s)
	Retry   RetryConfig

	BreakerThreshold int
	BreakerReset     time.Duration

	// Token returns the bearer token of the signed-in user, if any.
	Token func() string

	// HTTPClient overrides the transport. Mostly for tests.
	HTTPClient *http.Client
}

// Client implements chat.Backend, lookup.Favorites and auth.Authenticator
// over the backend's REST API.
type Client struct {
	base    *url.URL
	http    *http.Client
	retry   RetryConfig
	breaker *robustness.CircuitBreaker
}

// authTransport adds the Authorization header when a token is available.
type authTransport struct {
	base  http.RoundTripper
	token func() string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok := t.token()
	if tok == "" {
		return t.base.RoundTrip(req)
	}
	// Clone the request to avoid modifying the original
	reqClone := req.Clone(req.Context())
	reqClone.Header.Set("Authorization", "Bearer "+tok)
	return t.base.RoundTrip(reqClone)
}

// New creates a backend client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host required", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerReset <= 0 {
		cfg.BreakerReset = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Token != nil {
		transport := httpClient.Transport
		if transport == nil {
			transport = http.DefaultTransport
		}
		wrapped := *httpClient
		wrapped.Transport = &authTransport{base: transport, token: cfg.Token}
		httpClient = &wrapped
	}

	breaker := robustness.NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerReset)
	breaker.IsFailure = isServerFault

	return &Client{
		base:    base,
		http:    httpClient,
		retry:   cfg.Retry,
		breaker: breaker,
	}, nil
}

// BreakerState reports the backend circuit breaker state.
func (c *Client) BreakerState() robustness.State {
	return c.breaker.GetState()
}

// request describes one API call.
type request struct {
	method string
	path   string
	query  url.Values
	body   any        // JSON encoded when set
	form   url.Values // form encoded when set
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do sends req and decodes a 2xx response into out (if non-nil). GET
// requests are retried with backoff on retryable errors; writes are not,
// since the backend has no idempotency keys.
func (c *Client) do(ctx context.Context, req request, out any) error {
	attempts := 1
	if req.method == http.MethodGet && c.retry.MaxRetries > 0 {
		attempts += c.retry.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := CalculateBackoff(c.retry.RetryDelay, attempt-1, c.retry.MaxDelay)
			logging.Warn("retrying backend request",
				"method", req.method,
				"path", req.path,
				"attempt", attempt,
				"delay", delay,
				"error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = c.breaker.Execute(ctx, func() error {
			return c.send(ctx, req, out)
		})
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, robustness.ErrCircuitOpen) || !IsRetryableError(lastErr) || ctx.Err() != nil {
			break
		}
	}
	return lastErr
}

func (c *Client) send(ctx context.Context, req request, out any) error {
	var (
		body        io.Reader
		contentType string
	)
	switch {
	case req.form != nil:
		body = strings.NewReader(req.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.body != nil:
		data, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.endpoint(req.path, req.query), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	logging.FromContext(ctx).Debug("backend request",
		"method", req.method,
		"path", req.path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newAPIError(resp.StatusCode, data)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", req.method, req.path, err)
	}
	return nil
}
