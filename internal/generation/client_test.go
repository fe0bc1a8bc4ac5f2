package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"craefto/internal/services"
	"craefto/internal/stage"
)

func TestGeneratePostsKindEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/generate/social" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}
		if r.Header.Get("X-Request-ID") != "req-1" {
			t.Errorf("expected request id header, got %q", r.Header.Get("X-Request-ID"))
		}
		var body generateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Topic != "SaaS Growth Strategies" || body.ContentType != "social" || body.IncludeHeroImage {
			t.Errorf("unexpected body %+v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":    true,
			"message":    "Social content generated successfully",
			"request_id": "req-1",
			"data":       map[string]any{"twitter": map[string]any{"tweets": []string{"one"}}},
		})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL + "/", APIKey: "secret"})
	ctx := services.WithRequestID(context.Background(), "req-1")
	result, err := client.Generate(ctx, "  SaaS Growth Strategies ", stage.KindSocial)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if !result.Success || result.RequestID != "req-1" || result.Attempts != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	var data struct {
		Twitter struct {
			Tweets []string `json:"tweets"`
		} `json:"twitter"`
	}
	if err := result.Decode(&data); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(data.Twitter.Tweets) != 1 {
		t.Fatalf("unexpected data %+v", data)
	}
}

func TestGenerateSurfacesBackendFailureVerbatim(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"message": "Request failed",
			"errors":  []string{"rate limited"},
		})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	result, err := client.Generate(context.Background(), "topic", stage.KindBlog)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if result.Success || result.Error != "rate limited" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestGenerateRetriesRateLimitThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "rate limited"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": map[string]any{}})
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(Config{BaseURL: server.URL},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
	)
	result, err := client.Generate(context.Background(), "topic", stage.KindEmail)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if !result.Success || result.Attempts != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(slept) != 1 || slept[0] != 7*time.Second {
		t.Fatalf("expected Retry-After sleep of 7s, got %v", slept)
	}
}

func TestGenerateExhaustedRetriesReturnsRejectedResult(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "rate limited"})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL},
		WithRetryMaxAttempts(3),
		WithSleeper(func(time.Duration) {}),
	)
	result, err := client.Generate(context.Background(), "topic", stage.KindBlog)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
	if result.Success || result.Error != "rate limited" || result.Attempts != 3 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestGenerateDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("nope"))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, WithSleeper(func(time.Duration) {}))
	result, err := client.Generate(context.Background(), "topic", stage.KindBlog)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
	if !strings.Contains(result.Error, "http 401") {
		t.Fatalf("expected status in error, got %q", result.Error)
	}
}

func TestGenerateMalformedResponseIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>gateway</html>"))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	_, err := client.Generate(context.Background(), "topic", stage.KindBlog)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestGenerateUnreachableBackend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := server.URL
	server.Close()

	client := NewClient(Config{BaseURL: addr}, WithRetryMaxAttempts(2), WithSleeper(func(time.Duration) {}))
	_, err := client.Generate(context.Background(), "topic", stage.KindBlog)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestGenerateValidatesInput(t *testing.T) {
	client := NewClient(Config{})
	if _, err := client.Generate(context.Background(), "   ", stage.KindBlog); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty topic, got %v", err)
	}
	if _, err := client.Generate(context.Background(), "topic", stage.Kind("video")); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown kind, got %v", err)
	}
}

func TestGenerateHonorsCancellationDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(Config{BaseURL: server.URL}, WithSleeper(func(time.Duration) { cancel() }))
	_, err := client.Generate(ctx, "topic", stage.KindBlog)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDetailStringHandlesValidationList(t *testing.T) {
	raw := json.RawMessage(`[{"loc":["body","topic"],"msg":"field required"},{"msg":"too short"}]`)
	if got := detailString(raw); got != "field required; too short" {
		t.Fatalf("detailString = %q", got)
	}
}

func TestBackoffDelayCapsAtMax(t *testing.T) {
	client := NewClient(Config{}, WithRetryBackoff(time.Second, 5*time.Second))
	cases := map[int]time.Duration{1: time.Second, 2: 2 * time.Second, 3: 4 * time.Second, 4: 5 * time.Second}
	for attempt, want := range cases {
		if got := client.backoffDelay(attempt); got != want {
			t.Fatalf("attempt %d: delay = %v, want %v", attempt, got, want)
		}
	}
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "healthy", "version": "1.0.0"})
	}))
	defer server.Close()

	if err := NewClient(Config{BaseURL: server.URL}).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestHealthCheckDegraded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "degraded"})
	}))
	defer server.Close()

	if err := NewClient(Config{BaseURL: server.URL}).HealthCheck(context.Background()); err == nil {
		t.Fatal("expected degraded backend to fail health check")
	}
}
