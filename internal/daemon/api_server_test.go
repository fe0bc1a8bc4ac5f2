package daemon

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"craefto/internal/eventlog"
)

func TestParseLogFilter(t *testing.T) {
	filter, err := parseLogFilter("error, warn", " Content ")
	if err != nil {
		t.Fatalf("parseLogFilter: %v", err)
	}
	if len(filter.Levels) != 2 || filter.Levels[0] != eventlog.LevelError || filter.Levels[1] != eventlog.LevelWarning {
		t.Fatalf("unexpected levels %v", filter.Levels)
	}
	if filter.Source != "Content" {
		t.Fatalf("source = %q", filter.Source)
	}
	if _, err := parseLogFilter("loud", ""); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if filter, err := parseLogFilter("", ""); err != nil || len(filter.Levels) != 0 {
		t.Fatalf("empty filter = %+v, %v", filter, err)
	}
}

func TestAuthMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name   string
		token  string
		header string
		want   int
	}{
		{name: "no token configured", token: "", header: "", want: http.StatusNoContent},
		{name: "missing header", token: "secret", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", token: "secret", header: "Basic secret", want: http.StatusUnauthorized},
		{name: "wrong token", token: "secret", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid token", token: "secret", header: "Bearer secret", want: http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			authMiddleware(tc.token, ok).ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestQueryFlag(t *testing.T) {
	for value, want := range map[string]bool{"1": true, "true": true, "TRUE": true, "0": false, "": false, "yes": false} {
		if got := queryFlag(value); got != want {
			t.Fatalf("queryFlag(%q) = %v", value, got)
		}
	}
}
