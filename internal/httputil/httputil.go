// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared by outbound clients.
//
// Requests are paced by an optional token-bucket limiter and are never
// retried: a failed request is returned to the caller, and retrying is left
// to whatever triggered the job.
package httputil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

// maxErrorBody caps how much of a failed response body is kept for the error.
const maxErrorBody = 4096

// StatusError reports a response whose status was not 200.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// NewLimiter returns a limiter allowing rps requests per second with a burst
// of one. A non-positive rps returns nil, which disables pacing.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// Do waits for limiter (when non-nil) and then sends req with ctx.
// If ctx is cancelled while waiting, the context error is returned and no
// request is sent.
func Do(ctx context.Context, client *http.Client, limiter *rate.Limiter, req *http.Request) (*http.Response, error) {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return client.Do(req.WithContext(ctx))
}

// ReadJSON decodes a 200 response body into v and closes the body.
// Any other status yields a *StatusError carrying the (truncated) body.
func ReadJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
