package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"craefto/internal/api"
)

func TestNewClientEmptyBind(t *testing.T) {
	client, err := api.NewClient("", "")
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	if client != nil {
		t.Fatal("expected nil client for empty bind")
	}
	if _, err := client.State(context.Background()); !errors.Is(err, api.ErrAPIUnavailable) {
		t.Fatalf("expected ErrAPIUnavailable from nil client, got %v", err)
	}
}

func TestStartRunSendsBodyAndToken(t *testing.T) {
	var got api.StartRunRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/runs" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(api.StateResponse{State: api.RunState{RunID: "r1", Running: true}})
	}))
	defer srv.Close()

	client, err := api.NewClient(srv.URL, "secret")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	state, err := client.StartRun(context.Background(), "SaaS Growth", "blog")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if state.RunID != "r1" || !state.Running {
		t.Fatalf("unexpected state %+v", state)
	}
	if got.Topic != "SaaS Growth" || got.Kind != "blog" {
		t.Fatalf("unexpected body %+v", got)
	}
	if auth != "Bearer secret" {
		t.Fatalf("authorization = %q", auth)
	}
}

func TestStartRunConflictReturnsActiveState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{
			Error: "pipeline run already active",
			State: &api.RunState{RunID: "active", Running: true},
		})
	}))
	defer srv.Close()

	client, _ := api.NewClient(srv.URL, "")
	state, err := client.StartRun(context.Background(), "other", "social")
	if !errors.Is(err, api.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if state.RunID != "active" {
		t.Fatalf("expected active state, got %+v", state)
	}
	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) || statusErr.Message != "pipeline run already active" {
		t.Fatalf("unexpected status error %v", err)
	}
}

func TestLogsBuildsQuery(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_ = json.NewEncoder(w).Encode(api.LogStreamResponse{
			Events: []api.LogEvent{{Sequence: 4, Level: "info", Message: "hello"}},
			Next:   4,
		})
	}))
	defer srv.Close()

	client, _ := api.NewClient(srv.URL, "")
	resp, err := client.Logs(context.Background(), api.LogQuery{
		Since:  3,
		Limit:  50,
		Follow: true,
		Tail:   true,
		Level:  "error",
		Source: "Content",
	})
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if resp.Next != 4 || len(resp.Events) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	want := map[string]string{"since": "3", "limit": "50", "follow": "1", "tail": "1", "level": "error", "source": "Content"}
	for key, value := range want {
		if gotQuery.Get(key) != value {
			t.Fatalf("query %s = %q, want %q", key, gotQuery.Get(key), value)
		}
	}
}

func TestContentItemNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/content/abc" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "content not found"})
	}))
	defer srv.Close()

	client, _ := api.NewClient(srv.URL, "")
	if _, err := client.ContentItem(context.Background(), "abc"); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIsAPIUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	bind := srv.Listener.Addr().String()
	srv.Close()

	client, err := api.NewClient(bind, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.Status(context.Background())
	if !api.IsAPIUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if api.IsAPIUnavailable(&api.StatusError{Code: 500}) {
		t.Fatal("status errors are not unavailability")
	}
}
