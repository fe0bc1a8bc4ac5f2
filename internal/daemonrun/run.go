package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"craefto/internal/config"
	"craefto/internal/contentstore"
	"craefto/internal/daemon"
	"craefto/internal/eventlog"
	"craefto/internal/events"
	"craefto/internal/generation"
	"craefto/internal/logging"
	"craefto/internal/notifications"
	"craefto/internal/preflight"
	"craefto/internal/stages"
	"craefto/internal/workflow"
)

const retentionInterval = 24 * time.Hour

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Stdout receives console logs in addition to the daemon log file. Nil uses os.Stdout.
	Stdout io.Writer
}

// Run starts the craefto daemon runtime loop and blocks until the context
// ends or a SIGINT/SIGTERM arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runStamp := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("craefto-%s.log", runStamp))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{logPath},
		Writer:      stdout,
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.DaemonLogPath(), logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update craefto.log link: %v\n", err)
	}
	pruneLogs(logger, cfg, logPath)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	logConfigSnapshot(logger, cfg)
	reportPreflight(signalCtx, logger, cfg)

	store, err := contentstore.Open(cfg)
	if err != nil {
		logging.ErrorWithContext(logger, "open content store", "store_open_failed",
			logging.String("path", cfg.DatabasePath()),
			logging.String(logging.FieldErrorHint, "check paths.data_dir permissions or remove a database from a newer version"),
			logging.Error(err),
		)
		return err
	}

	app, err := build(cfg, logger, store)
	if err != nil {
		_ = store.Close()
		return err
	}
	defer app.daemon.Close()

	group, groupCtx := errgroup.WithContext(signalCtx)
	if err := app.bus.Start(groupCtx); err != nil {
		return fmt.Errorf("start event bus: %w", err)
	}
	if err := app.daemon.Start(groupCtx); err != nil {
		app.bus.Close()
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.String(logging.FieldErrorHint, "check paths.api_bind and that no other daemon holds the lock"),
			logging.String(logging.FieldImpact, "pipeline runs cannot be submitted"),
			logging.Error(err),
		)
		return err
	}

	group.Go(func() error {
		ticker := time.NewTicker(retentionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				pruneLogs(logger, cfg, logPath)
				if removed, err := store.PruneRuns(groupCtx, cfg.Pipeline.HistoryLimit); err != nil && !errors.Is(err, context.Canceled) {
					logging.WarnWithContext(logger, "run history pruning failed", "history_prune_failed", logging.Error(err))
				} else if removed > 0 {
					logger.Debug("run history pruned", logging.Int64("removed", removed))
				}
			}
		}
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("craefto daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
		app.daemon.Stop()
		app.bus.Close()
		return nil
	})
	return group.Wait()
}

type runtimeDeps struct {
	bus     *events.Bus
	log     *eventlog.Log
	manager *workflow.Manager
	daemon  *daemon.Daemon
}

// build wires the event log, bus subscribers, stage catalog, orchestrator, and
// daemon around an open store.
func build(cfg *config.Config, logger *slog.Logger, store *contentstore.Store) (*runtimeDeps, error) {
	eventLog := eventlog.New(cfg.Pipeline.LogCapacity)
	eventLog.AddSink(eventlog.NewSlogSink(logging.NewComponentLogger(logger, "eventlog")))

	bus := events.NewBus(logger, cfg.Pipeline.EventBuffer)
	notifier := notifications.NewService(cfg)
	if err := bus.Subscribe("notifications", notifications.EventHandler(notifier, cfg.Notifications, logger)); err != nil {
		return nil, fmt.Errorf("subscribe notifications: %w", err)
	}
	recorder := contentstore.NewHistoryRecorder(store, logger, cfg.Pipeline.HistoryLimit)
	if err := bus.Subscribe("history", recorder.Handle); err != nil {
		return nil, fmt.Errorf("subscribe history: %w", err)
	}

	registry, err := stages.NewRegistry(stages.Deps{
		Generator: NewGenerator(cfg),
		Saver:     store,
		Library:   store,
		Delay:     time.Duration(cfg.Pipeline.SimulatedDelayMS) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("build stage registry: %w", err)
	}
	manager := workflow.NewManager(registry, eventLog, logger, workflow.WithPublisher(bus))

	d, err := daemon.New(cfg, logger, daemon.Deps{
		Manager:  manager,
		Log:      eventLog,
		Store:    store,
		Notifier: notifier,
	})
	if err != nil {
		return nil, fmt.Errorf("create daemon: %w", err)
	}
	return &runtimeDeps{bus: bus, log: eventLog, manager: manager, daemon: d}, nil
}

// NewGenerator builds the generation backend client from config.
func NewGenerator(cfg *config.Config) *generation.Client {
	backoff := time.Duration(cfg.Generation.RetryBackoffSeconds) * time.Second
	return generation.NewClient(generation.Config{
		BaseURL:        cfg.Generation.BaseURL,
		APIKey:         cfg.Generation.APIKey,
		TimeoutSeconds: cfg.Generation.TimeoutSeconds,
	},
		generation.WithRetryMaxAttempts(cfg.Generation.RetryAttempts),
		generation.WithRetryBackoff(backoff, 15*backoff),
	)
}

func reportPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.RunAll(ctx, cfg) {
		if result.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run craefto status for details"),
			logging.String(logging.FieldImpact, "runs depending on this check may fail"),
		)
	}
}

func pruneLogs(logger *slog.Logger, cfg *config.Config, active string) {
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "craefto-*.log", Keep: []string{active}},
	)
}

func ensureCurrentLogPointer(current, target string) error {
	if current == "" || target == "" {
		return nil
	}
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("data_dir", cfg.Paths.DataDir),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.Bool("api_token_set", cfg.Paths.APIToken != ""),
		logging.String("backend_url", cfg.Generation.BaseURL),
		logging.Bool("backend_key_present", strings.TrimSpace(cfg.Generation.APIKey) != ""),
		logging.Int("retry_attempts", cfg.Generation.RetryAttempts),
		logging.Int("simulated_delay_ms", cfg.Pipeline.SimulatedDelayMS),
		logging.Int("log_capacity", cfg.Pipeline.LogCapacity),
		logging.Bool("notifications_enabled", cfg.Notifications.NtfyTopic != ""),
	)
}
