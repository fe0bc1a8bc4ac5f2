package daemonrun

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"craefto/internal/contentstore"
	"craefto/internal/generation"
	"craefto/internal/logging"
	"craefto/internal/stage"
	"craefto/internal/testsupport"
)

func TestBuildRecordsFailedRunHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	app, err := build(cfg, logging.NewNop(), store)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := app.bus.Start(context.Background()); err != nil {
		t.Fatalf("bus start: %v", err)
	}

	handle, err := app.manager.Start(context.Background(), "SaaS Growth", stage.KindSocial)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	snap, runErr := handle.Wait(ctx)
	if !errors.Is(runErr, generation.ErrTransport) {
		t.Fatalf("expected transport failure against unreachable backend, got %v", runErr)
	}
	app.bus.Close()

	run, err := store.GetRun(context.Background(), snap.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != contentstore.RunFailed || run.FailedStage != "content" {
		t.Fatalf("unexpected history record %+v", run)
	}
	if app.log.Len() == 0 {
		t.Fatal("expected event log entries")
	}
}

func TestNewGeneratorUsesConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBackend("http://backend.example:8000"))
	if got := NewGenerator(cfg).BaseURL(); got != "http://backend.example:8000" {
		t.Fatalf("BaseURL = %q", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg, Options{LogLevel: "error", Stdout: io.Discard})
	}()

	pidPath := cfg.PIDPath()
	deadline := time.Now().Add(10 * time.Second)
	for {
		if _, err := os.Stat(pidPath); err == nil {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("daemon did not write pid file")
		}
		time.Sleep(10 * time.Millisecond)
	}
	// Give the API server time to bind before shutting down.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Fatalf("pid file should be removed, stat err = %v", err)
	}
	if _, err := os.Lstat(cfg.DaemonLogPath()); err != nil {
		t.Fatalf("expected daemon log pointer: %v", err)
	}
}
