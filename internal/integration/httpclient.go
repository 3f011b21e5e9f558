package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/remediarr/remediarr/internal/clock"
	"github.com/remediarr/remediarr/internal/logger"
)

// RateLimiter implements a token bucket rate limiter for API calls
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewRateLimiter creates a rate limiter with specified RPS and burst size
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: rps,
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available or context is cancelled
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		// Refill tokens based on elapsed time
		now := time.Now()
		elapsed := now.Sub(r.lastRefill).Seconds()
		r.tokens += elapsed * r.refillRate
		if r.tokens > r.maxTokens {
			r.tokens = r.maxTokens
		}
		r.lastRefill = now

		if r.tokens >= 1 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}

		// Calculate wait time for next token
		waitTime := time.Duration((1 - r.tokens) / r.refillRate * float64(time.Second))
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
			// Continue to next iteration
		}
	}
}

// isRetryableError checks if an error is a transient network error worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if os.IsTimeout(err) {
		return true
	}

	errStr := err.Error()
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network is unreachable",
		"i/o timeout",
		"EOF",
		"connection timed out",
		"temporary failure",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(strings.ToLower(errStr), strings.ToLower(pattern)) {
			return true
		}
	}

	return false
}

// RetryPolicy retries an operation with linearly increasing backoff. The
// clock is injected so tests can drive the delays without real sleeps.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Clock       clock.Clock
	// Retryable decides whether an error is worth another attempt.
	// Defaults to isTransientError.
	Retryable func(error) bool
}

// DefaultRetryPolicy returns the retry policy used for downstream API calls.
func DefaultRetryPolicy(maxAttempts int, baseDelay time.Duration, clk clock.Clock) RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		Clock:       clk,
		Retryable:   isTransientError,
	}
}

// Do runs op, retrying retryable errors until the attempt budget or the
// context runs out.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = isTransientError
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}

		if attempt < p.MaxAttempts-1 {
			delay := time.Duration(attempt+1) * p.BaseDelay
			if err := sleepCtx(ctx, p.Clock, delay); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", p.MaxAttempts, lastErr)
}

// sleepCtx waits for d on the given clock, aborting early when ctx is done.
func sleepCtx(ctx context.Context, clk clock.Clock, d time.Duration) error {
	fired := make(chan struct{})
	timer := clk.AfterFunc(d, func() { close(fired) })
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-fired:
		return nil
	}
}

// httpService bundles the shared plumbing every downstream client goes
// through: rate limiting, circuit breaking, transient-error retries.
type httpService struct {
	name        string
	baseURL     string
	apiKey      string
	authHeader  string // header carrying the API key, default X-Api-Key
	sendBearer  bool   // additionally send Authorization: Bearer <key>
	client      *http.Client
	limiter     *RateLimiter
	breakers    *CircuitBreakerRegistry
	retryPolicy RetryPolicy
}

func (s *httpService) configured() bool {
	return s.baseURL != ""
}

// doRequest performs an HTTP request against the service with retry for
// transient errors and 5xx responses. The caller owns the response body.
func (s *httpService) doRequest(ctx context.Context, method, endpoint string, bodyData interface{}) (*http.Response, error) {
	if !s.configured() {
		return nil, fmt.Errorf("%s is not configured", s.name)
	}

	// Check circuit breaker before making any requests
	cb := s.breakers.Get(s.name)
	if !cb.Allow() {
		logger.Warnf("Circuit breaker OPEN for %s - rejecting request to %s", s.name, endpoint)
		return nil, fmt.Errorf("%w: %s is unhealthy", ErrCircuitOpen, s.name)
	}

	var jsonBody []byte
	if bodyData != nil {
		var err error
		jsonBody, err = json.Marshal(bodyData)
		if err != nil {
			return nil, err
		}
	}

	apiURL := strings.TrimRight(s.baseURL, "/") + endpoint

	var resp *http.Response
	err := s.retryPolicy.Do(ctx, func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait: %w", err)
		}

		var body io.Reader
		if jsonBody != nil {
			body = bytes.NewReader(jsonBody)
		}

		req, err := http.NewRequestWithContext(ctx, method, apiURL, body)
		if err != nil {
			return err
		}

		authHeader := s.authHeader
		if authHeader == "" {
			authHeader = "X-Api-Key"
		}
		if s.apiKey != "" {
			req.Header.Set(authHeader, s.apiKey)
			if s.sendBearer {
				req.Header.Set("Authorization", "Bearer "+s.apiKey)
			}
		}
		if jsonBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		r, err := s.client.Do(req)
		if err != nil {
			return err
		}

		// 5xx responses are treated like transient transport errors
		if r.StatusCode >= 500 && r.StatusCode < 600 {
			drainAndClose(r)
			return &transientStatusError{service: s.name, statusCode: r.StatusCode}
		}

		resp = r
		return nil
	})
	if err != nil {
		cb.RecordFailure()
		return nil, err
	}

	cb.RecordSuccess()
	return resp, nil
}

// doJSON performs a request and decodes the JSON response body into out.
// Pass nil out to discard the body. Non-2xx responses are returned as errors.
func (s *httpService) doJSON(ctx context.Context, method, endpoint string, bodyData, out interface{}) error {
	resp, err := s.doRequest(ctx, method, endpoint, bodyData)
	if err != nil {
		return err
	}
	defer drainAndClose(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Service: s.name, Method: method, Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: failed to decode %s %s response: %w", s.name, method, endpoint, err)
	}
	return nil
}

// StatusError reports a non-2xx response from a downstream service.
type StatusError struct {
	Service    string
	Method     string
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s %s returned %d", e.Service, e.Method, e.Endpoint, e.StatusCode)
}

// transientStatusError marks a 5xx response as retryable.
type transientStatusError struct {
	service    string
	statusCode int
}

func (e *transientStatusError) Error() string {
	return fmt.Sprintf("%s returned %d", e.service, e.statusCode)
}

// isTransientError extends isRetryableError with 5xx responses.
func isTransientError(err error) bool {
	var tse *transientStatusError
	if errors.As(err, &tse) {
		return true
	}
	return isRetryableError(err)
}

// IsNotFound reports whether err is a 404 from a downstream service.
func IsNotFound(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusNotFound
	}
	return false
}

// drainAndClose drains and closes a response body so the underlying
// connection can be reused.
func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		logger.Debugf("Failed to drain response body: %v", err)
	}
	if err := resp.Body.Close(); err != nil {
		logger.Debugf("Failed to close response body: %v", err)
	}
}

// extractRecords pulls the record list out of a paginated Arr-style response.
// Different server versions use different envelope keys, and some endpoints
// return a bare array.
func extractRecords(doc interface{}) []map[string]interface{} {
	switch t := doc.(type) {
	case []interface{}:
		return toRecordSlice(t)
	case map[string]interface{}:
		for _, key := range []string{"records", "results", "items"} {
			if list, ok := t[key].([]interface{}); ok {
				return toRecordSlice(list)
			}
		}
	}
	return nil
}

func toRecordSlice(list []interface{}) []map[string]interface{} {
	records := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			records = append(records, m)
		}
	}
	return records
}
