package api

import (
	"encoding/json"
	"testing"
	"time"

	"craefto/internal/contentstore"
	"craefto/internal/eventlog"
	"craefto/internal/stage"
	"craefto/internal/workflow"
)

func TestFromSnapshotConvertsStagesAndOutputs(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := workflow.Snapshot{
		RunID:      "run-1",
		Job:        stage.Job{Topic: "SaaS Growth", Kind: stage.KindBlog},
		Progress:   100,
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Stages: []stage.Stage{
			{ID: "validate", Title: "Validate request", Status: stage.StatusCompleted, Progress: 100, Weight: 5, StartedAt: start, FinishedAt: start.Add(time.Second)},
			{ID: "save", Title: "Save content", Status: stage.StatusPending, Weight: 5},
		},
		Outputs: map[string]any{
			"validate": map[string]string{"text": "SaaS Growth"},
			"broken":   func() {},
		},
	}

	state := FromSnapshot(snap)
	if state.RunID != "run-1" || state.Kind != "blog" || state.Topic != "SaaS Growth" {
		t.Fatalf("unexpected identity %+v", state)
	}
	if state.DurationMS != 1500 {
		t.Fatalf("durationMs = %d", state.DurationMS)
	}
	if state.StartedAt != "2026-03-01T12:00:00.000Z" {
		t.Fatalf("startedAt = %q", state.StartedAt)
	}
	if len(state.Stages) != 2 || state.Stages[0].DurationMS != 1000 || state.Stages[1].StartedAt != "" {
		t.Fatalf("unexpected stages %+v", state.Stages)
	}
	if _, ok := state.Outputs["broken"]; ok {
		t.Fatal("unencodable output should be dropped")
	}
	var out map[string]string
	if err := json.Unmarshal(state.Outputs["validate"], &out); err != nil || out["text"] != "SaaS Growth" {
		t.Fatalf("unexpected validate output %s (%v)", state.Outputs["validate"], err)
	}
	if !state.Finished() {
		t.Fatal("expected finished state")
	}
}

func TestFromSnapshotEmpty(t *testing.T) {
	state := FromSnapshot(workflow.Snapshot{})
	if !state.Empty() || state.Stages == nil || len(state.Stages) != 0 {
		t.Fatalf("unexpected idle state %+v", state)
	}
	encoded, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(encoded) != `{"running":false,"progress":0,"stages":[]}` {
		t.Fatalf("unexpected encoding %s", encoded)
	}
}

func TestFromLogEntryEncodesPayload(t *testing.T) {
	evt := FromLogEntry(eventlog.Entry{
		ID:        "e1",
		Sequence:  7,
		Timestamp: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Level:     eventlog.LevelError,
		Message:   "Generate content failed: rate limited",
		Source:    "Content",
		Payload:   map[string]any{"stage": "content"},
	})
	if evt.Sequence != 7 || evt.Level != "error" || evt.Source != "Content" {
		t.Fatalf("unexpected event %+v", evt)
	}
	if string(evt.Payload) != `{"stage":"content"}` {
		t.Fatalf("payload = %s", evt.Payload)
	}
	if FromLogEntry(eventlog.Entry{}).Payload != nil {
		t.Fatal("nil payload should stay empty")
	}
}

func TestFromPackageBodyToggle(t *testing.T) {
	pkg := contentstore.Package{ID: "p1", Kind: "social", Body: json.RawMessage(`{"a":1}`), WordCount: 3}
	if FromPackage(pkg, false).Body != nil {
		t.Fatal("body should be omitted")
	}
	if string(FromPackage(pkg, true).Body) != `{"a":1}` {
		t.Fatal("body should be included")
	}
}

func TestFromRun(t *testing.T) {
	rec := FromRun(contentstore.Run{
		RunID:       "r1",
		Status:      contentstore.RunFailed,
		FailedStage: "content",
		Duration:    2 * time.Second,
	})
	if rec.Status != "failed" || rec.FailedStage != "content" || rec.DurationMS != 2000 || rec.FinishedAt != "" {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestParseTimeRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 30, 15, 123_000_000, time.UTC)
	if got := ParseTime(FormatTime(now)); !got.Equal(now) {
		t.Fatalf("round trip = %v", got)
	}
	if !ParseTime("garbage").IsZero() || !ParseTime("").IsZero() {
		t.Fatal("invalid input should yield zero time")
	}
}
