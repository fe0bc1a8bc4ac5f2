package workflow

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"craefto/internal/stage"
)

// Snapshot is a read-only copy of the current Pipeline Run. The zero value
// describes an idle orchestrator with no run.
type Snapshot struct {
	RunID        string         `json:"run_id,omitempty"`
	Job          stage.Job      `json:"job"`
	Stages       []stage.Stage  `json:"stages"`
	CurrentStage string         `json:"current_stage,omitempty"`
	Progress     int            `json:"progress"`
	Error        string         `json:"error,omitempty"`
	Running      bool           `json:"running"`
	StartedAt    time.Time      `json:"started_at,omitzero"`
	FinishedAt   time.Time      `json:"finished_at,omitzero"`
	Outputs      map[string]any `json:"outputs,omitempty"`
}

// Empty reports whether the snapshot carries no run.
func (s Snapshot) Empty() bool {
	return s.RunID == ""
}

// Succeeded reports whether the run finished without error.
func (s Snapshot) Succeeded() bool {
	return !s.Empty() && !s.Running && s.Error == "" && !s.FinishedAt.IsZero()
}

// Duration reports how long the run has taken so far.
func (s Snapshot) Duration() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	end := s.FinishedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.StartedAt)
}

// Stage returns the stage with id.
func (s Snapshot) Stage(id string) (stage.Stage, bool) {
	for _, st := range s.Stages {
		if st.ID == id {
			return st, true
		}
	}
	return stage.Stage{}, false
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Stages = slices.Clone(s.Stages)
	if s.Outputs != nil {
		out.Outputs = maps.Clone(s.Outputs)
	}
	return out
}

// RunHandle resolves when its run reaches a terminal state or is discarded.
type RunHandle struct {
	id   string
	job  stage.Job
	done chan struct{}
	once sync.Once

	snapshot Snapshot
	err      error
}

func newRunHandle(id string, job stage.Job) *RunHandle {
	return &RunHandle{id: id, job: job, done: make(chan struct{})}
}

// ID returns the run identifier.
func (h *RunHandle) ID() string {
	if h == nil {
		return ""
	}
	return h.id
}

// Job returns the run input.
func (h *RunHandle) Job() stage.Job {
	if h == nil {
		return stage.Job{}
	}
	return h.job
}

// Done is closed once the run is terminal.
func (h *RunHandle) Done() <-chan struct{} {
	return h.done
}

// Result returns the terminal snapshot and error. It must only be called
// after Done is closed; before that it returns the zero snapshot.
func (h *RunHandle) Result() (Snapshot, error) {
	select {
	case <-h.done:
		return h.snapshot.clone(), h.err
	default:
		return Snapshot{}, nil
	}
}

// Wait blocks until the run is terminal or ctx ends.
func (h *RunHandle) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-h.done:
		return h.Result()
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (h *RunHandle) resolve(snapshot Snapshot, err error) {
	h.once.Do(func() {
		h.snapshot = snapshot
		h.err = err
		close(h.done)
	})
}
