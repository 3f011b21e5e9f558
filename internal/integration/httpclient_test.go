package integration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/remediarr/remediarr/internal/config"
)

func init() {
	config.SetForTesting(config.NewTestConfig())
}

func testRetryPolicy() RetryPolicy {
	// Short delays keep the retry paths fast under test.
	return DefaultRetryPolicy(3, time.Millisecond, nil)
}

func newTestBreakers() *CircuitBreakerRegistry {
	return NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig())
}

// =============================================================================
// RateLimiter tests
// =============================================================================

func TestNewRateLimiter(t *testing.T) {
	rl := NewRateLimiter(10.0, 5)

	if rl.maxTokens != 5 {
		t.Errorf("Expected maxTokens=5, got %f", rl.maxTokens)
	}
	if rl.refillRate != 10.0 {
		t.Errorf("Expected refillRate=10.0, got %f", rl.refillRate)
	}
	if rl.tokens != 5 {
		t.Errorf("Expected initial tokens=5, got %f", rl.tokens)
	}
}

func TestRateLimiter_Wait_Immediate(t *testing.T) {
	rl := NewRateLimiter(100.0, 10)

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := rl.Wait(t.Context()); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	}
	elapsed := time.Since(start)

	if elapsed > 100*time.Millisecond {
		t.Errorf("Expected fast completion, took %v", elapsed)
	}
}

func TestRateLimiter_Wait_Throttle(t *testing.T) {
	rl := NewRateLimiter(10.0, 1)

	start := time.Now()
	if err := rl.Wait(t.Context()); err != nil {
		t.Fatalf("First wait failed: %v", err)
	}
	if err := rl.Wait(t.Context()); err != nil {
		t.Fatalf("Second wait failed: %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < 90*time.Millisecond {
		t.Errorf("Expected throttling delay, got only %v", elapsed)
	}
}

func TestRateLimiter_Wait_ContextCancelled(t *testing.T) {
	rl := NewRateLimiter(0.1, 1)

	if err := rl.Wait(t.Context()); err != nil {
		t.Fatalf("First wait failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	if err := rl.Wait(ctx); err == nil {
		t.Error("Expected context error while throttled, got nil")
	}
}

// =============================================================================
// error classification tests
// =============================================================================

type testError struct {
	msg string
}

func (e *testError) Error() string {
	return e.msg
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", &testError{"connection refused"}, true},
		{"connection reset", &testError{"connection reset by peer"}, true},
		{"i/o timeout", &testError{"i/o timeout"}, true},
		{"EOF", &testError{"unexpected EOF"}, true},
		{"network unreachable", &testError{"network is unreachable"}, true},
		{"regular error", &testError{"something went wrong"}, false},
		{"not found error", &testError{"not found"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isRetryableError(tt.err)
			if result != tt.expected {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestIsTransientError_ServerStatus(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &transientStatusError{service: "radarr", statusCode: 503})
	if !isTransientError(err) {
		t.Error("Expected 5xx status to be transient")
	}

	notFound := &StatusError{Service: "radarr", Method: "GET", Endpoint: "/x", StatusCode: 404}
	if isTransientError(notFound) {
		t.Error("Expected 404 status not to be transient")
	}
}

func TestIsNotFound(t *testing.T) {
	err := fmt.Errorf("call failed: %w", &StatusError{Service: "sonarr", Method: "GET", Endpoint: "/x", StatusCode: 404})
	if !IsNotFound(err) {
		t.Error("Expected wrapped 404 to be detected")
	}
	if IsNotFound(&StatusError{StatusCode: 500}) {
		t.Error("Expected 500 not to be a not-found error")
	}
	if IsNotFound(errors.New("plain")) {
		t.Error("Expected plain error not to be a not-found error")
	}
}

// =============================================================================
// RetryPolicy tests
// =============================================================================

func TestRetryPolicy_SucceedsAfterTransientFailures(t *testing.T) {
	policy := testRetryPolicy()

	attempts := 0
	err := policy.Do(t.Context(), func() error {
		attempts++
		if attempts < 3 {
			return &testError{"connection refused"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetryPolicy_GivesUp(t *testing.T) {
	policy := testRetryPolicy()

	attempts := 0
	err := policy.Do(t.Context(), func() error {
		attempts++
		return &testError{"i/o timeout"}
	})
	if err == nil {
		t.Fatal("Expected error after exhausting attempts")
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetryPolicy_NonRetryableFailsFast(t *testing.T) {
	policy := testRetryPolicy()

	attempts := 0
	err := policy.Do(t.Context(), func() error {
		attempts++
		return &testError{"bad request"}
	})
	if err == nil {
		t.Fatal("Expected error")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt for non-retryable error, got %d", attempts)
	}
}

func TestRetryPolicy_ContextCancelled(t *testing.T) {
	policy := DefaultRetryPolicy(5, 10*time.Second, nil)

	ctx, cancel := context.WithCancel(t.Context())
	attempts := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := policy.Do(ctx, func() error {
		attempts++
		return &testError{"connection refused"}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected cancellation during first backoff, got %d attempts", attempts)
	}
}

// =============================================================================
// httpService tests
// =============================================================================

func newTestService(name, baseURL string) httpService {
	return httpService{
		name:        name,
		baseURL:     baseURL,
		apiKey:      "test-api-key",
		client:      &http.Client{Timeout: 5 * time.Second},
		limiter:     NewRateLimiter(1000, 1000),
		breakers:    newTestBreakers(),
		retryPolicy: testRetryPolicy(),
	}
}

func TestHTTPService_NotConfigured(t *testing.T) {
	svc := newTestService("bazarr", "")
	if err := svc.doJSON(t.Context(), http.MethodGet, "/api/system/status", nil, nil); err == nil {
		t.Fatal("Expected error for unconfigured service")
	}
}

func TestHTTPService_Retries5xx(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	svc := newTestService("radarr", server.URL)
	var out map[string]interface{}
	if err := svc.doJSON(t.Context(), http.MethodGet, "/api/v3/system/status", nil, &out); err != nil {
		t.Fatalf("Expected eventual success, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 calls, got %d", calls.Load())
	}
}

func TestHTTPService_4xxNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	svc := newTestService("sonarr", server.URL)
	err := svc.doJSON(t.Context(), http.MethodGet, "/api/v3/series", nil, nil)
	if !IsNotFound(err) {
		t.Fatalf("Expected not-found error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected 1 call for 404, got %d", calls.Load())
	}
}

func TestHTTPService_SendsAuthHeaders(t *testing.T) {
	var gotAPIKey, gotCustom, gotBearer string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("X-Api-Key")
		gotCustom = r.Header.Get("X-API-KEY")
		gotBearer = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	svc := newTestService("jellyseerr", server.URL)
	svc.sendBearer = true
	if err := svc.doJSON(t.Context(), http.MethodGet, "/api/v1/status", nil, nil); err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if gotAPIKey != "test-api-key" {
		t.Errorf("Expected X-Api-Key header, got %q", gotAPIKey)
	}
	if gotBearer != "Bearer test-api-key" {
		t.Errorf("Expected bearer token, got %q", gotBearer)
	}

	svc = newTestService("bazarr", server.URL)
	svc.authHeader = "X-API-KEY"
	if err := svc.doJSON(t.Context(), http.MethodGet, "/api/system/status", nil, nil); err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if gotCustom != "test-api-key" {
		t.Errorf("Expected X-API-KEY header, got %q", gotCustom)
	}
}

func TestHTTPService_CircuitBreakerOpens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	svc := newTestService("radarr", server.URL)
	svc.breakers = NewCircuitBreakerRegistry(CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
		SuccessThreshold: 1,
	})

	for i := 0; i < 2; i++ {
		if err := svc.doJSON(t.Context(), http.MethodGet, "/x", nil, nil); err == nil {
			t.Fatal("Expected failure")
		}
	}

	err := svc.doJSON(t.Context(), http.MethodGet, "/x", nil, nil)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Expected circuit-open error, got %v", err)
	}
}

// =============================================================================
// extractRecords tests
// =============================================================================

func TestExtractRecords(t *testing.T) {
	rec := map[string]interface{}{"id": float64(1)}

	tests := []struct {
		name string
		doc  interface{}
		want int
	}{
		{"bare array", []interface{}{rec, rec}, 2},
		{"records envelope", map[string]interface{}{"records": []interface{}{rec}}, 1},
		{"results envelope", map[string]interface{}{"results": []interface{}{rec, rec, rec}}, 3},
		{"items envelope", map[string]interface{}{"items": []interface{}{rec}}, 1},
		{"no records", map[string]interface{}{"page": float64(1)}, 0},
		{"nil document", nil, 0},
		{"non-map entries skipped", []interface{}{rec, "noise", float64(3)}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractRecords(tt.doc)
			if len(got) != tt.want {
				t.Errorf("extractRecords() returned %d records, want %d", len(got), tt.want)
			}
		})
	}
}

func TestGrabRecords(t *testing.T) {
	records := []map[string]interface{}{
		{"id": float64(1), "eventType": "grabbed", "date": "2026-01-02T03:04:05Z"},
		{"id": float64(2), "eventType": "downloadFolderImported", "date": "2026-01-02T04:00:00Z"},
		{"eventType": "grabbed"},
		{"id": float64(3), "eventType": "grabbed", "date": "not-a-date"},
	}

	grabs := grabRecords(records)
	if len(grabs) != 2 {
		t.Fatalf("Expected 2 grab records, got %d", len(grabs))
	}
	if grabs[0].ID != 1 {
		t.Errorf("Expected first grab id 1, got %d", grabs[0].ID)
	}
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if !grabs[0].Date.Equal(want) {
		t.Errorf("Expected parsed date %v, got %v", want, grabs[0].Date)
	}
	if !grabs[1].Date.IsZero() {
		t.Errorf("Expected zero date for unparseable value, got %v", grabs[1].Date)
	}
}
