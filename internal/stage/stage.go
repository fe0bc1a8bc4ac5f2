package stage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"craefto/internal/eventlog"
)

// Status is the lifecycle state of a single stage.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Kind is the content type requested for a run.
type Kind string

const (
	KindBlog   Kind = "blog"
	KindSocial Kind = "social"
	KindEmail  Kind = "email"
)

// Kinds lists every supported content kind.
func Kinds() []Kind {
	return []Kind{KindBlog, KindSocial, KindEmail}
}

// Valid reports whether k is a supported content kind.
func (k Kind) Valid() bool {
	switch k {
	case KindBlog, KindSocial, KindEmail:
		return true
	default:
		return false
	}
}

// ParseKind converts user input into a Kind.
func ParseKind(value string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(value)))
	if !kind.Valid() {
		return "", fmt.Errorf("unsupported content kind %q (expected blog, social, or email)", value)
	}
	return kind, nil
}

// Job is the immutable input of a run.
type Job struct {
	Topic string `json:"topic"`
	Kind  Kind   `json:"kind"`
}

// Env is the view of the running pipeline handed to a stage work function.
type Env interface {
	Job() Job
	RunID() string
	// Source is the log source tag of the running stage.
	Source() string
	// SetProgress records stage-local progress in the range 0-100.
	SetProgress(percent int)
	// Output returns the result produced by an earlier stage of the same run.
	Output(stageID string) (any, bool)
	Log() eventlog.Reporter
}

// WorkFunc performs the work of a stage. Its result becomes the stage output.
type WorkFunc func(ctx context.Context, env Env) (any, error)

// Definition is a catalog entry in the stage registry.
type Definition struct {
	ID          string
	Title       string
	Description string
	Source      string
	Weight      int
	// Include selects the stage for a job. Nil means always included.
	Include func(Job) bool
	Work    WorkFunc
	// Check reports readiness of the stage's dependencies. Nil means always ready.
	Check func(context.Context) Health
}

// Stage is the runtime state of one step of a run.
type Stage struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Source      string    `json:"source"`
	Weight      int       `json:"weight"`
	Status      Status    `json:"status"`
	Progress    int       `json:"progress"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
	Error       string    `json:"error,omitempty"`
}

// Duration reports how long the stage ran. Running stages report elapsed time.
func (s Stage) Duration() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	end := s.FinishedAt
	if end.IsZero() {
		end = time.Now()
	}
	if end.Before(s.StartedAt) {
		return 0
	}
	return end.Sub(s.StartedAt)
}

// OnlyFor returns an Include predicate matching the listed kinds.
func OnlyFor(kinds ...Kind) func(Job) bool {
	return func(job Job) bool {
		for _, k := range kinds {
			if job.Kind == k {
				return true
			}
		}
		return false
	}
}
