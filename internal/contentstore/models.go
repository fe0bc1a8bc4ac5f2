package contentstore

import (
	"encoding/json"
	"time"
)

// Package is a generated content package saved at the end of a run.
type Package struct {
	ID        string          `json:"id"`
	RunID     string          `json:"run_id"`
	Topic     string          `json:"topic"`
	Kind      string          `json:"kind"`
	Title     string          `json:"title,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Body      json.RawMessage `json:"body"`
	WordCount int             `json:"word_count"`
	CreatedAt time.Time       `json:"created_at"`
}

// RunStatus is the recorded outcome of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunDiscarded RunStatus = "discarded"
)

// Run is one row of run history.
type Run struct {
	RunID       string        `json:"run_id"`
	Topic       string        `json:"topic"`
	Kind        string        `json:"kind"`
	Status      RunStatus     `json:"status"`
	Error       string        `json:"error,omitempty"`
	FailedStage string        `json:"failed_stage,omitempty"`
	StageCount  int           `json:"stage_count"`
	Progress    int           `json:"progress"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at,omitzero"`
	Duration    time.Duration `json:"duration"`
}
