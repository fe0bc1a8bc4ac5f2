package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"craefto/internal/config"
	"craefto/internal/contentstore"
	"craefto/internal/eventlog"
	"craefto/internal/logging"
	"craefto/internal/notifications"
	"craefto/internal/preflight"
	"craefto/internal/stage"
	"craefto/internal/workflow"
)

// Deps are the collaborators the daemon hosts. Manager, Log, and Store are required.
type Deps struct {
	Manager  *workflow.Manager
	Log      *eventlog.Log
	Store    *contentstore.Store
	Notifier notifications.Service
	// Checks overrides the preflight checks reported by Status.
	Checks func(context.Context) []preflight.Result
}

// Daemon hosts the pipeline orchestrator behind the HTTP API and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	manager  *workflow.Manager
	eventLog *eventlog.Log
	store    *contentstore.Store
	notifier notifications.Service
	checks   func(context.Context) []preflight.Result

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	mu        sync.Mutex
	running   atomic.Bool
	startedAt time.Time
	cancel    context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	StartedAt    time.Time
	DatabasePath string
	LockFilePath string
	LogPath      string
	BackendURL   string
	Run          workflow.Snapshot
	LastError    string
	StageHealth  []stage.Health
	Checks       []preflight.Result
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, deps Deps) (*Daemon, error) {
	if cfg == nil || deps.Manager == nil || deps.Log == nil || deps.Store == nil {
		return nil, errors.New("daemon requires config, workflow manager, event log, and content store")
	}
	logger = logging.NewComponentLogger(logger, "daemon")
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	checks := deps.Checks
	if checks == nil {
		checks = func(ctx context.Context) []preflight.Result { return preflight.RunAll(ctx, cfg) }
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		manager:  deps.Manager,
		eventLog: deps.Log,
		store:    deps.Store,
		notifier: notifier,
		checks:   checks,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another craefto daemon instance is already running")
	}

	apiCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(apiCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api server: %w", err)
	}

	d.cancel = cancel
	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("craefto daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api_bind", d.Addr()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop abandons any in-flight run, stops the API server, and releases the
// daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	if d.manager.Running() && d.manager.Discard() {
		logging.WarnWithContext(d.logger, "active run discarded on shutdown", "run_discarded",
			logging.String(logging.FieldErrorHint, "start the run again once the daemon is back"),
			logging.String(logging.FieldImpact, "in-flight run will not complete"),
		)
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.String("lock", d.lockPath),
			logging.Error(err),
		)
	}
	d.running.Store(false)
	d.logger.Info("craefto daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the daemon is serving.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Addr returns the address the API server listens on, or the configured bind
// before Start.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// StartRun begins a pipeline run. See workflow.Manager.Start.
func (d *Daemon) StartRun(ctx context.Context, topic string, kind stage.Kind) (*workflow.RunHandle, error) {
	return d.manager.Start(ctx, topic, kind)
}

// Reset clears the terminal run. It reports false while a run is active.
func (d *Daemon) Reset() bool {
	return d.manager.Reset()
}

// Discard abandons the active run, if any.
func (d *Daemon) Discard() bool {
	return d.manager.Discard()
}

// Snapshot returns the current run state.
func (d *Daemon) Snapshot() workflow.Snapshot {
	return d.manager.Snapshot()
}

// EventLog exposes the live event log.
func (d *Daemon) EventLog() *eventlog.Log {
	return d.eventLog
}

// Store exposes the content store.
func (d *Daemon) Store() *contentstore.Store {
	return d.store
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.Lock()
	startedAt := d.startedAt
	d.mu.Unlock()

	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StartedAt:    startedAt,
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		LogPath:      d.cfg.DaemonLogPath(),
		BackendURL:   d.cfg.Generation.BaseURL,
		Run:          d.manager.Snapshot(),
		StageHealth:  d.manager.Health(ctx),
		Checks:       d.checks(ctx),
	}
	if err := d.manager.LastError(); err != nil {
		status.LastError = err.Error()
	}
	return status
}
