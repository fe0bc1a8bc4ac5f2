package workflow

import (
	"context"
	"fmt"
	"time"

	"craefto/internal/events"
	"craefto/internal/logging"
	"craefto/internal/progress"
	"craefto/internal/services"
	"craefto/internal/stage"
)

// execute walks the run's stages in order. Every state mutation re-checks gen
// under the lock so a discarded run can no longer touch orchestrator state.
func (m *Manager) execute(ctx context.Context, gen uint64, handle *RunHandle) {
	m.mu.RLock()
	if m.generation != gen || m.run == nil {
		m.mu.RUnlock()
		return
	}
	runID := m.run.RunID
	stageIDs := make([]string, len(m.run.Stages))
	for i, st := range m.run.Stages {
		stageIDs[i] = st.ID
	}
	m.mu.RUnlock()

	ctx = services.WithRunID(ctx, runID)
	for i, id := range stageIDs {
		if !m.beginStage(gen, i) {
			return
		}
		def, ok := m.registry.Lookup(id)
		if !ok {
			m.failStage(ctx, gen, handle, i, fmt.Errorf("stage %s is not registered", id))
			return
		}
		stageCtx := services.WithSource(services.WithStage(ctx, def.ID), def.Source)
		env := &stageEnv{manager: m, gen: gen, index: i, source: def.Source}
		output, err := invoke(stageCtx, def, env)
		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		if err != nil {
			m.failStage(stageCtx, gen, handle, i, err)
			return
		}
		if !m.completeStage(stageCtx, gen, i, output) {
			return
		}
	}
	m.completeRun(gen, handle)
}

// invoke runs the work function, converting a panic into an error so a stage
// is never left running.
func invoke(ctx context.Context, def stage.Definition, env stage.Env) (output any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			output = nil
			err = panicError{value: recovered}
		}
	}()
	if def.Work == nil {
		return nil, fmt.Errorf("stage %s has no work function", def.ID)
	}
	return def.Work(ctx, env)
}

func (m *Manager) beginStage(gen uint64, index int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.activeLocked(gen) {
		return false
	}
	st := &m.run.Stages[index]
	st.Status = stage.StatusRunning
	st.Progress = 0
	st.StartedAt = m.now()
	m.run.CurrentStage = st.ID

	m.reporter.Info(st.Source, fmt.Sprintf("%s started", st.Title), map[string]any{
		"stage":       st.ID,
		"description": st.Description,
		"weight":      st.Weight,
	})
	m.publishLocked(events.Event{Type: events.StageStarted, StageID: st.ID, StageTitle: st.Title})
	return true
}

func (m *Manager) completeStage(ctx context.Context, gen uint64, index int, output any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.activeLocked(gen) {
		return false
	}
	st := &m.run.Stages[index]
	st.Status = stage.StatusCompleted
	st.Progress = 100
	st.FinishedAt = m.now()
	if output != nil {
		m.run.Outputs[st.ID] = output
	}
	m.run.Progress = m.tracker.Observe(progress.Compute(m.run.Stages))
	duration := st.Duration()

	m.reporter.Success(st.Source, fmt.Sprintf("%s completed", st.Title), map[string]any{
		"stage":       st.ID,
		"duration_ms": duration.Milliseconds(),
		"progress":    m.run.Progress,
	})
	m.publishLocked(events.Event{Type: events.StageCompleted, StageID: st.ID, StageTitle: st.Title, Duration: duration})

	logging.WithContext(ctx, m.logger).Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", duration),
		logging.Int("progress", m.run.Progress),
	)
	return true
}

func (m *Manager) failStage(ctx context.Context, gen uint64, handle *RunHandle, index int, stageErr error) {
	m.mu.Lock()
	if !m.activeLocked(gen) {
		m.mu.Unlock()
		return
	}
	st := &m.run.Stages[index]
	failure := &StageFailure{Stage: st.ID, Err: stageErr}
	st.Status = stage.StatusError
	st.FinishedAt = m.now()
	st.Error = stageErr.Error()
	m.run.CurrentStage = ""
	m.run.Running = false
	m.run.Error = stageErr.Error()
	m.run.FinishedAt = st.FinishedAt
	m.lastErr = failure

	m.reporter.Error(st.Source, fmt.Sprintf("%s failed: %s", st.Title, stageErr.Error()), map[string]any{
		"stage":      st.ID,
		"error":      stageErr.Error(),
		"event_type": services.EventType(stageErr),
		"error_hint": services.ErrorHint(stageErr),
	})
	m.publishLocked(events.Event{Type: events.StageFailed, StageID: st.ID, StageTitle: st.Title, Error: stageErr.Error(), Duration: st.Duration()})
	m.publishLocked(events.Event{Type: events.RunFailed, StageID: st.ID, StageTitle: st.Title, Error: stageErr.Error(), Duration: m.run.Duration()})
	snapshot := m.run.clone()
	m.releaseLocked()
	m.mu.Unlock()

	logging.ErrorWithContext(logging.WithContext(ctx, m.logger), "stage failed", services.EventType(stageErr),
		logging.String(logging.FieldErrorHint, services.ErrorHint(stageErr)),
		logging.String(logging.FieldImpact, "pipeline run aborted; remaining stages skipped"),
		logging.Alert("stage_failure"),
		logging.Error(stageErr),
	)
	handle.resolve(snapshot, failure)
}

func (m *Manager) completeRun(gen uint64, handle *RunHandle) {
	m.mu.Lock()
	if !m.activeLocked(gen) {
		m.mu.Unlock()
		return
	}
	m.run.CurrentStage = ""
	m.run.Progress = m.tracker.Complete()
	m.run.Running = false
	m.run.FinishedAt = m.now()
	duration := m.run.Duration()

	m.reporter.Success(PipelineSource, fmt.Sprintf("Pipeline completed: %d stages in %s", len(m.run.Stages), duration.Round(time.Millisecond)), map[string]any{
		"run_id":      m.run.RunID,
		"stage_count": len(m.run.Stages),
		"duration_ms": duration.Milliseconds(),
		"progress":    m.run.Progress,
	})
	m.publishLocked(events.Event{Type: events.RunCompleted, StageCount: len(m.run.Stages), Duration: duration})
	snapshot := m.run.clone()
	m.releaseLocked()
	m.mu.Unlock()

	m.runLogger(snapshot.RunID).Info("pipeline run completed",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Duration("run_duration", duration),
		logging.Int("stage_count", len(snapshot.Stages)),
	)
	handle.resolve(snapshot, nil)
}

func (m *Manager) activeLocked(gen uint64) bool {
	return m.generation == gen && m.run != nil && m.run.Running
}

func (m *Manager) releaseLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}
