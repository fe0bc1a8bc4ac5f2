package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"craefto/internal/eventlog"
	"craefto/internal/events"
	"craefto/internal/logging"
	"craefto/internal/progress"
	"craefto/internal/stage"
)

// PipelineSource tags event log entries written by the orchestrator itself.
const PipelineSource = "Pipeline"

// Manager drives one Pipeline Run at a time through the stage registry.
type Manager struct {
	registry  *stage.Registry
	reporter  eventlog.Reporter
	logger    *slog.Logger
	publisher events.Publisher
	now       func() time.Time

	mu         sync.RWMutex
	run        *Snapshot
	handle     *RunHandle
	cancel     context.CancelFunc
	generation uint64
	tracker    progress.Tracker
	lastErr    error
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithPublisher forwards run lifecycle events to publisher.
func WithPublisher(publisher events.Publisher) ManagerOption {
	return func(m *Manager) {
		m.publisher = publisher
	}
}

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager constructs a workflow manager. The reporter receives every run
// log entry; when it also implements Clear (as *eventlog.Log does), Reset and
// Discard empty it.
func NewManager(registry *stage.Registry, reporter eventlog.Reporter, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if reporter == nil {
		reporter = eventlog.Nop
	}
	m := &Manager{
		registry: registry,
		reporter: reporter,
		logger:   logging.NewComponentLogger(logger, "workflow"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins a run for topic and kind. While a run is active it returns the
// active handle together with ErrAlreadyRunning and leaves state untouched.
// The run does not inherit cancellation from ctx; use Discard to abandon it.
func (m *Manager) Start(ctx context.Context, topic string, kind stage.Kind) (*RunHandle, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	job := stage.Job{Topic: topic, Kind: stage.Kind(strings.ToLower(strings.TrimSpace(string(kind))))}

	m.mu.Lock()
	if m.run != nil && m.run.Running {
		handle := m.handle
		m.mu.Unlock()
		return handle, ErrAlreadyRunning
	}
	stages, err := m.registry.Build(job)
	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("build stages: %w", err)
	}

	m.generation++
	gen := m.generation
	runID := uuid.NewString()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	startedAt := m.now()
	m.tracker.Reset()
	m.run = &Snapshot{
		RunID:     runID,
		Job:       job,
		Stages:    stages,
		Running:   true,
		StartedAt: startedAt,
		Outputs:   make(map[string]any, len(stages)),
	}
	m.cancel = cancel
	m.lastErr = nil
	handle := newRunHandle(runID, job)
	m.handle = handle

	ids := make([]string, len(stages))
	for i, st := range stages {
		ids[i] = st.ID
	}
	m.reporter.Info(PipelineSource, fmt.Sprintf("Starting %s pipeline for %q", job.Kind, strings.TrimSpace(job.Topic)), map[string]any{
		"run_id": runID,
		"topic":  job.Topic,
		"kind":   string(job.Kind),
		"stages": ids,
	})
	m.publishLocked(events.Event{Type: events.RunStarted, StageCount: len(stages)})
	m.mu.Unlock()

	m.runLogger(runID).Info("pipeline run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("topic", job.Topic),
		logging.String("kind", string(job.Kind)),
		logging.Int("stage_count", len(stages)),
	)

	go m.execute(runCtx, gen, handle)
	return handle, nil
}

// Reset clears a terminal run and the event log. It returns false, changing
// nothing, while a run is active.
func (m *Manager) Reset() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.run != nil && m.run.Running {
		return false
	}
	m.clearLocked()
	return true
}

// Discard abandons the current run, active or not. The in-flight stage is
// cancelled on a best-effort basis; its later updates are never observed.
// Discard reports whether there was a run to discard.
func (m *Manager) Discard() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.run == nil {
		m.clearLogLocked()
		return false
	}
	wasRunning := m.run.Running
	snapshot := m.run.clone()
	if wasRunning {
		snapshot.Running = false
		snapshot.CurrentStage = ""
		snapshot.Error = ErrDiscarded.Error()
		snapshot.FinishedAt = m.now()
		m.publishLocked(events.Event{Type: events.RunDiscarded, Error: ErrDiscarded.Error()})
	}
	handle := m.handle
	if m.cancel != nil {
		m.cancel()
	}
	m.clearLocked()
	if handle != nil {
		handle.resolve(snapshot, ErrDiscarded)
	}
	if wasRunning {
		m.runLogger(snapshot.RunID).Info("pipeline run discarded",
			logging.String(logging.FieldEventType, "run_discarded"),
			logging.String("topic", snapshot.Job.Topic),
		)
	}
	return true
}

// Snapshot returns a deep copy of the current run.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.run == nil {
		return Snapshot{}
	}
	return m.run.clone()
}

// Running reports whether a run is active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.run != nil && m.run.Running
}

// LastError returns the terminal error of the most recent run, if any.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Health runs the readiness checks of every registered stage.
func (m *Manager) Health(ctx context.Context) []stage.Health {
	defs := m.registry.Definitions()
	health := make([]stage.Health, 0, len(defs))
	for _, def := range defs {
		if def.Check == nil {
			health = append(health, stage.Healthy(def.ID))
			continue
		}
		h := def.Check(ctx)
		if h.Name == "" {
			h.Name = def.ID
		}
		health = append(health, h)
	}
	return health
}

func (m *Manager) clearLocked() {
	m.generation++
	m.run = nil
	m.handle = nil
	m.cancel = nil
	m.tracker.Reset()
	m.clearLogLocked()
}

func (m *Manager) clearLogLocked() {
	if clearer, ok := m.reporter.(interface{ Clear() }); ok {
		clearer.Clear()
	}
}

// publishLocked stamps evt with the current run and forwards it. Publishers
// must not block, so calling it with m.mu held keeps events ordered with state.
func (m *Manager) publishLocked(evt events.Event) {
	if m.publisher == nil || m.run == nil {
		return
	}
	evt.RunID = m.run.RunID
	evt.Topic = m.run.Job.Topic
	evt.Kind = string(m.run.Job.Kind)
	if evt.Progress == 0 {
		evt.Progress = m.run.Progress
	}
	if evt.Time.IsZero() {
		evt.Time = m.now()
	}
	m.publisher.Publish(evt)
}

func (m *Manager) runLogger(runID string) *slog.Logger {
	return m.logger.With(logging.String(logging.FieldRunID, runID))
}
