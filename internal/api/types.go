package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Stage describes one pipeline stage in a transport-friendly format.
type Stage struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Source      string `json:"source"`
	Weight      int    `json:"weight"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	StartedAt   string `json:"startedAt,omitempty"`
	FinishedAt  string `json:"finishedAt,omitempty"`
	DurationMS  int64  `json:"durationMs,omitempty"`
	Error       string `json:"error,omitempty"`
}

// RunState is the snapshot of the current or most recent pipeline run.
type RunState struct {
	RunID        string                     `json:"runId,omitempty"`
	Topic        string                     `json:"topic,omitempty"`
	Kind         string                     `json:"kind,omitempty"`
	Running      bool                       `json:"running"`
	Progress     int                        `json:"progress"`
	CurrentStage string                     `json:"currentStage,omitempty"`
	Error        string                     `json:"error,omitempty"`
	StartedAt    string                     `json:"startedAt,omitempty"`
	FinishedAt   string                     `json:"finishedAt,omitempty"`
	DurationMS   int64                      `json:"durationMs,omitempty"`
	Stages       []Stage                    `json:"stages"`
	Outputs      map[string]json.RawMessage `json:"outputs,omitempty"`
}

// Empty reports whether the state carries no run.
func (s RunState) Empty() bool {
	return s.RunID == ""
}

// Finished reports whether the run reached a terminal state.
func (s RunState) Finished() bool {
	return !s.Empty() && !s.Running
}

// StartRunRequest is the body of POST /api/runs.
type StartRunRequest struct {
	Topic string `json:"topic"`
	Kind  string `json:"kind"`
}

// StateResponse wraps a run snapshot.
type StateResponse struct {
	State RunState `json:"state"`
}

// ActionResponse reports the outcome of reset and discard.
type ActionResponse struct {
	OK      bool     `json:"ok"`
	Message string   `json:"message,omitempty"`
	State   RunState `json:"state"`
}

// ErrorResponse is returned for every non-2xx status. State is set on 409
// so callers can render the run that blocked the request.
type ErrorResponse struct {
	Error string    `json:"error"`
	State *RunState `json:"state,omitempty"`
}

// LogEvent is a single event log entry.
type LogEvent struct {
	ID        string          `json:"id"`
	Sequence  uint64          `json:"seq"`
	Timestamp string          `json:"ts"`
	Level     string          `json:"level"`
	Source    string          `json:"source"`
	Message   string          `json:"message"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// LogStreamResponse carries a page of log events and the cursor for the next request.
type LogStreamResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}

// ContentPackage is a saved generation result.
type ContentPackage struct {
	ID        string          `json:"id"`
	RunID     string          `json:"runId,omitempty"`
	Topic     string          `json:"topic"`
	Kind      string          `json:"kind"`
	Title     string          `json:"title,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	WordCount int             `json:"wordCount"`
	CreatedAt string          `json:"createdAt,omitempty"`
	Body      json.RawMessage `json:"body,omitempty"`
}

// ContentListResponse wraps saved content packages, newest first.
type ContentListResponse struct {
	Items []ContentPackage `json:"items"`
}

// RunRecord is a recorded run in the history table.
type RunRecord struct {
	RunID       string `json:"runId"`
	Topic       string `json:"topic"`
	Kind        string `json:"kind"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	FailedStage string `json:"failedStage,omitempty"`
	StageCount  int    `json:"stageCount"`
	Progress    int    `json:"progress"`
	StartedAt   string `json:"startedAt,omitempty"`
	FinishedAt  string `json:"finishedAt,omitempty"`
	DurationMS  int64  `json:"durationMs,omitempty"`
}

// RunHistoryResponse wraps recorded runs, newest first.
type RunHistoryResponse struct {
	Runs []RunRecord `json:"runs"`
}

// StageHealth mirrors readiness reporting for pipeline stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// CheckResult mirrors a preflight check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// PipelineStatus summarizes orchestrator state.
type PipelineStatus struct {
	Running     bool          `json:"running"`
	LastError   string        `json:"lastError,omitempty"`
	Current     *RunState     `json:"current,omitempty"`
	StageHealth []StageHealth `json:"stageHealth"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	StartedAt    string         `json:"startedAt,omitempty"`
	DatabasePath string         `json:"databasePath"`
	LockFilePath string         `json:"lockFilePath"`
	LogPath      string         `json:"logPath,omitempty"`
	BackendURL   string         `json:"backendUrl"`
	Pipeline     PipelineStatus `json:"pipeline"`
	Checks       []CheckResult  `json:"checks"`
}
