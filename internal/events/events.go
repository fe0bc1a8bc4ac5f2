package events

import "time"

// Type names a run lifecycle event.
type Type string

const (
	RunStarted     Type = "run_started"
	StageStarted   Type = "stage_started"
	StageCompleted Type = "stage_completed"
	StageFailed    Type = "stage_failed"
	RunCompleted   Type = "run_completed"
	RunFailed      Type = "run_failed"
	RunDiscarded   Type = "run_discarded"
)

// Terminal reports whether the event closes a run.
func (t Type) Terminal() bool {
	return t == RunCompleted || t == RunFailed || t == RunDiscarded
}

// Event describes a transition of the active run.
type Event struct {
	Type       Type          `json:"type"`
	RunID      string        `json:"run_id"`
	Topic      string        `json:"topic"`
	Kind       string        `json:"kind"`
	StageID    string        `json:"stage_id,omitempty"`
	StageTitle string        `json:"stage_title,omitempty"`
	StageCount int           `json:"stage_count,omitempty"`
	Progress   int           `json:"progress"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Time       time.Time     `json:"time"`
}

// Publisher accepts lifecycle events. Implementations must not block the caller.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

// Publish implements Publisher.
func (f PublisherFunc) Publish(evt Event) {
	if f != nil {
		f(evt)
	}
}
