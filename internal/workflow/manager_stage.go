package workflow

import (
	"craefto/internal/eventlog"
	"craefto/internal/progress"
	"craefto/internal/stage"
)

// stageEnv is the stage.Env handed to a running work function. Every method
// is bound to the run generation it was created for and turns into a no-op
// once that run is discarded.
type stageEnv struct {
	manager *Manager
	gen     uint64
	index   int
	source  string
}

func (e *stageEnv) Job() stage.Job {
	m := e.manager
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.generation != e.gen || m.run == nil {
		return stage.Job{}
	}
	return m.run.Job
}

func (e *stageEnv) RunID() string {
	m := e.manager
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.generation != e.gen || m.run == nil {
		return ""
	}
	return m.run.RunID
}

func (e *stageEnv) Source() string {
	return e.source
}

func (e *stageEnv) SetProgress(percent int) {
	m := e.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.activeLocked(e.gen) {
		return
	}
	st := &m.run.Stages[e.index]
	if st.Status != stage.StatusRunning {
		return
	}
	switch {
	case percent < 0:
		percent = 0
	case percent > 100:
		percent = 100
	}
	if percent < st.Progress {
		return
	}
	st.Progress = percent
	m.run.Progress = m.tracker.Observe(progress.Compute(m.run.Stages))
}

func (e *stageEnv) Output(stageID string) (any, bool) {
	m := e.manager
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.generation != e.gen || m.run == nil {
		return nil, false
	}
	out, ok := m.run.Outputs[stageID]
	return out, ok
}

func (e *stageEnv) Log() eventlog.Reporter {
	return runReporter{env: e}
}

// runReporter forwards stage log entries to the manager's reporter while the
// run is still current.
type runReporter struct {
	env *stageEnv
}

func (r runReporter) emit(write func(eventlog.Reporter)) {
	m := r.env.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != r.env.gen || m.run == nil {
		return
	}
	write(m.reporter)
}

func (r runReporter) Info(source, message string, payload any) {
	r.emit(func(rep eventlog.Reporter) { rep.Info(r.source(source), message, payload) })
}

func (r runReporter) Success(source, message string, payload any) {
	r.emit(func(rep eventlog.Reporter) { rep.Success(r.source(source), message, payload) })
}

func (r runReporter) Warning(source, message string, payload any) {
	r.emit(func(rep eventlog.Reporter) { rep.Warning(r.source(source), message, payload) })
}

func (r runReporter) Error(source, message string, payload any) {
	r.emit(func(rep eventlog.Reporter) { rep.Error(r.source(source), message, payload) })
}

func (r runReporter) Debug(source, message string, payload any) {
	r.emit(func(rep eventlog.Reporter) { rep.Debug(r.source(source), message, payload) })
}

func (r runReporter) source(source string) string {
	if source == "" {
		return r.env.source
	}
	return source
}
