package services_test

import (
	"errors"
	"strings"
	"testing"

	"craefto/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrPersistence, "save", "insert", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrPersistence) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"save", "insert", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestEventTypeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{services.Wrap(services.ErrValidation, "validate", "", "topic required", nil), "validation_failed"},
		{services.Wrap(services.ErrRejected, "content", "", "rate limited", nil), "generation_rejected"},
		{services.Wrap(services.ErrTransport, "content", "", "dial", errors.New("refused")), "generation_unreachable"},
		{errors.New("other"), "stage_failed"},
	}
	for _, tc := range cases {
		if got := services.EventType(tc.err); got != tc.want {
			t.Fatalf("EventType(%v) = %q, want %q", tc.err, got, tc.want)
		}
		if services.ErrorHint(tc.err) == "" {
			t.Fatalf("expected hint for %v", tc.err)
		}
	}
	if services.ErrorHint(nil) != "" {
		t.Fatal("expected empty hint for nil error")
	}
}
