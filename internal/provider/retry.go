package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// RetryPolicy bounds how often a transient backend failure is retried.
// The zero value never retries.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// DefaultRetryPolicy retries once after one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 1, Delay: time.Second}
}

// transientStatusError is a 5xx or 429 response that may be retried.
type transientStatusError struct {
	statusCode int
	body       string
}

func (e *transientStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.statusCode, e.body)
}

func isTransientStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

// doWithRetry executes an HTTP request, retrying transport errors and
// transient statuses up to policy.MaxRetries times with a fixed delay.
// Non-transient responses (including 4xx) are returned to the caller as-is.
func doWithRetry(ctx context.Context, client *http.Client, policy RetryPolicy, buildReq func() (*http.Request, error), logger *slog.Logger) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			logger.Warn("retrying backend request", "attempt", attempt+1, "delay", policy.Delay, "err", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(policy.Delay):
			}
		}

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if isTransientStatus(resp.StatusCode) {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			lastErr = &transientStatusError{statusCode: resp.StatusCode, body: string(body)}
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("giving up after %d attempt(s): %w", policy.MaxRetries+1, lastErr)
}
