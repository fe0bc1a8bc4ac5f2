package api

import (
	"encoding/json"
	"time"

	"craefto/internal/contentstore"
	"craefto/internal/eventlog"
	"craefto/internal/preflight"
	"craefto/internal/stage"
	"craefto/internal/workflow"
)

// FromSnapshot converts an orchestrator snapshot to its API representation.
// Outputs that cannot be encoded are omitted.
func FromSnapshot(snap workflow.Snapshot) RunState {
	state := RunState{
		RunID:        snap.RunID,
		Topic:        snap.Job.Topic,
		Kind:         string(snap.Job.Kind),
		Running:      snap.Running,
		Progress:     snap.Progress,
		CurrentStage: snap.CurrentStage,
		Error:        snap.Error,
		StartedAt:    FormatTime(snap.StartedAt),
		FinishedAt:   FormatTime(snap.FinishedAt),
		Stages:       FromStages(snap.Stages),
	}
	if !snap.Empty() {
		state.DurationMS = snap.Duration().Milliseconds()
	}
	if len(snap.Outputs) > 0 {
		state.Outputs = make(map[string]json.RawMessage, len(snap.Outputs))
		for id, output := range snap.Outputs {
			raw, err := json.Marshal(output)
			if err != nil {
				continue
			}
			state.Outputs[id] = raw
		}
	}
	return state
}

// FromStages converts stage records, preserving order. The result is never nil
// so idle snapshots encode an empty list.
func FromStages(stages []stage.Stage) []Stage {
	out := make([]Stage, 0, len(stages))
	for _, st := range stages {
		dto := Stage{
			ID:          st.ID,
			Title:       st.Title,
			Description: st.Description,
			Source:      st.Source,
			Weight:      st.Weight,
			Status:      string(st.Status),
			Progress:    st.Progress,
			StartedAt:   FormatTime(st.StartedAt),
			FinishedAt:  FormatTime(st.FinishedAt),
			Error:       st.Error,
		}
		if !st.StartedAt.IsZero() {
			dto.DurationMS = st.Duration().Milliseconds()
		}
		out = append(out, dto)
	}
	return out
}

// FromLogEntry converts an event log entry. Payloads that cannot be encoded are dropped.
func FromLogEntry(entry eventlog.Entry) LogEvent {
	evt := LogEvent{
		ID:        entry.ID,
		Sequence:  entry.Sequence,
		Timestamp: FormatTime(entry.Timestamp),
		Level:     string(entry.Level),
		Source:    entry.Source,
		Message:   entry.Message,
	}
	if entry.Payload != nil {
		if raw, err := json.Marshal(entry.Payload); err == nil {
			evt.Payload = raw
		}
	}
	return evt
}

// FromLogEntries converts a slice of log entries.
func FromLogEntries(entries []eventlog.Entry) []LogEvent {
	out := make([]LogEvent, 0, len(entries))
	for _, entry := range entries {
		out = append(out, FromLogEntry(entry))
	}
	return out
}

// FromPackage converts a stored content package. The body is included only when withBody is set.
func FromPackage(pkg contentstore.Package, withBody bool) ContentPackage {
	dto := ContentPackage{
		ID:        pkg.ID,
		RunID:     pkg.RunID,
		Topic:     pkg.Topic,
		Kind:      pkg.Kind,
		Title:     pkg.Title,
		RequestID: pkg.RequestID,
		WordCount: pkg.WordCount,
		CreatedAt: FormatTime(pkg.CreatedAt),
	}
	if withBody && len(pkg.Body) > 0 {
		dto.Body = pkg.Body
	}
	return dto
}

// FromPackages converts stored content packages.
func FromPackages(pkgs []contentstore.Package, withBody bool) []ContentPackage {
	out := make([]ContentPackage, 0, len(pkgs))
	for _, pkg := range pkgs {
		out = append(out, FromPackage(pkg, withBody))
	}
	return out
}

// FromRun converts a run history record.
func FromRun(run contentstore.Run) RunRecord {
	return RunRecord{
		RunID:       run.RunID,
		Topic:       run.Topic,
		Kind:        run.Kind,
		Status:      string(run.Status),
		Error:       run.Error,
		FailedStage: run.FailedStage,
		StageCount:  run.StageCount,
		Progress:    run.Progress,
		StartedAt:   FormatTime(run.StartedAt),
		FinishedAt:  FormatTime(run.FinishedAt),
		DurationMS:  run.Duration.Milliseconds(),
	}
}

// FromRuns converts run history records.
func FromRuns(runs []contentstore.Run) []RunRecord {
	out := make([]RunRecord, 0, len(runs))
	for _, run := range runs {
		out = append(out, FromRun(run))
	}
	return out
}

// FromHealth converts stage readiness, preserving catalog order.
func FromHealth(health []stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(health))
	for _, h := range health {
		out = append(out, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FromChecks converts preflight results.
func FromChecks(results []preflight.Result) []CheckResult {
	out := make([]CheckResult, 0, len(results))
	for _, r := range results {
		out = append(out, CheckResult{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// ParseTime parses an API timestamp, returning the zero time for empty or invalid input.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateTimeFormat, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
