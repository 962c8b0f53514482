// Package clients provides the outbound HTTP clients for cross-service
// calls. Every client carries its own deadline, a retry budget with short
// exponential backoff, a circuit breaker, and propagates X-Request-ID.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/pagerd/pagerd/pkg/requestid"
	"github.com/pagerd/pagerd/pkg/version"
)

const (
	maxAttempts    = 3
	initialBackoff = 100 * time.Millisecond
)

// client is the shared HTTP plumbing behind the typed service clients.
type client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

func newClient(name, baseURL string, timeout time.Duration, logger *slog.Logger) *client {
	return &client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		logger: logger,
	}
}

// retryableError marks transport failures and 5xx responses, which consume
// the retry budget. 4xx responses are terminal.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// do performs one JSON exchange with retries. out may be nil when the
// response body is not needed.
func (c *client) do(ctx context.Context, method, path string, body, out any, wantStatus int) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = c.doOnce(ctx, method, path, payload, out, wantStatus)
		if lastErr == nil {
			return nil
		}
		var re *retryableError
		if !errors.As(lastErr, &re) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return lastErr
}

func (c *client) doOnce(ctx context.Context, method, path string, payload []byte, out any, wantStatus int) error {
	_, err := c.breaker.Execute(func() (any, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("User-Agent", version.Full())
		if id := requestid.FromContext(ctx); id != "" {
			req.Header.Set(requestid.Header, id)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, &retryableError{err: err}
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 500 {
			return nil, &retryableError{err: fmt.Errorf("%s %s returned status %d", method, path, resp.StatusCode)}
		}
		if resp.StatusCode != wantStatus {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, fmt.Errorf("%s %s returned status %d: %s", method, path, resp.StatusCode, detail)
		}
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return nil, fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil, nil
	})
	if err != nil {
		// Breaker-open errors consume the retry budget like any other
		// transport failure.
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return &retryableError{err: err}
		}
		return err
	}
	return nil
}
