package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"craefto/internal/eventlog"
	"craefto/internal/events"
	"craefto/internal/logging"
	"craefto/internal/services"
	"craefto/internal/stage"
	"craefto/internal/workflow"
)

type workOverrides map[string]stage.WorkFunc

func succeed(context.Context, stage.Env) (any, error) { return nil, nil }

func validateTopic(_ context.Context, env stage.Env) (any, error) {
	topic := strings.TrimSpace(env.Job().Topic)
	if topic == "" {
		return nil, services.Wrap(services.ErrValidation, "validate", "check topic", "Topic is required", nil)
	}
	return topic, nil
}

func newRegistry(t *testing.T, overrides workOverrides) *stage.Registry {
	t.Helper()
	work := func(id string, fallback stage.WorkFunc) stage.WorkFunc {
		if fn, ok := overrides[id]; ok {
			return fn
		}
		return fallback
	}
	blogOnly := stage.OnlyFor(stage.KindBlog)
	reg, err := stage.NewRegistry(
		stage.Definition{ID: "validate", Title: "Validate", Source: "Validation", Weight: 5, Work: work("validate", validateTopic)},
		stage.Definition{ID: "research", Title: "Research", Source: "Research", Weight: 15, Work: work("research", succeed)},
		stage.Definition{ID: "content", Title: "Content", Source: "Content", Weight: 40, Work: work("content", succeed)},
		stage.Definition{ID: "visual", Title: "Visual", Source: "Visual", Weight: 15, Include: blogOnly, Work: work("visual", succeed)},
		stage.Definition{ID: "social", Title: "Social", Source: "Social", Weight: 10, Include: blogOnly, Work: work("social", succeed)},
		stage.Definition{ID: "email", Title: "Email", Source: "Email", Weight: 10, Include: blogOnly, Work: work("email", succeed)},
		stage.Definition{ID: "save", Title: "Save", Source: "Database", Weight: 5, Work: work("save", succeed)},
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(evt events.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func newManager(t *testing.T, overrides workOverrides) (*workflow.Manager, *eventlog.Log, *recorder) {
	t.Helper()
	log := eventlog.New(0)
	rec := &recorder{}
	m := workflow.NewManager(newRegistry(t, overrides), log, logging.NewNop(), workflow.WithPublisher(rec))
	return m, log, rec
}

func wait(t *testing.T, handle *workflow.RunHandle) (workflow.Snapshot, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := handle.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("timed out waiting for run")
	}
	return snap, err
}

func stageIDs(stages []stage.Stage) []string {
	ids := make([]string, len(stages))
	for i, st := range stages {
		ids[i] = st.ID
	}
	return ids
}

func countLevel(entries []eventlog.Entry, level eventlog.Level) int {
	n := 0
	for _, e := range entries {
		if e.Level == level {
			n++
		}
	}
	return n
}

func TestSocialRunCompletes(t *testing.T) {
	m, log, rec := newManager(t, nil)
	handle, err := m.Start(context.Background(), "SaaS Growth Strategies", stage.KindSocial)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap, err := wait(t, handle)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if got := strings.Join(stageIDs(snap.Stages), ","); got != "validate,research,content,save" {
		t.Fatalf("stage ids = %s", got)
	}
	if snap.Progress != 100 || snap.Running || snap.CurrentStage != "" || snap.Error != "" {
		t.Fatalf("unexpected terminal snapshot %+v", snap)
	}
	if !snap.Succeeded() {
		t.Fatal("expected Succeeded")
	}
	for _, st := range snap.Stages {
		if st.Status != stage.StatusCompleted || st.StartedAt.IsZero() || st.FinishedAt.IsZero() {
			t.Fatalf("stage %s not completed: %+v", st.ID, st)
		}
	}
	if snap.Outputs["validate"] != "SaaS Growth Strategies" {
		t.Fatalf("expected validate output, got %v", snap.Outputs)
	}

	entries := log.Entries()
	if countLevel(entries, eventlog.LevelError) != 0 {
		t.Fatalf("expected no error entries, got %+v", entries)
	}
	last := entries[len(entries)-1]
	if last.Level != eventlog.LevelSuccess || last.Source != workflow.PipelineSource || !strings.Contains(last.Message, "4 stages") {
		t.Fatalf("unexpected terminal entry %+v", last)
	}

	progress := -1
	for _, evt := range rec.snapshot() {
		if evt.Progress < progress {
			t.Fatalf("progress regressed: %d after %d", evt.Progress, progress)
		}
		progress = evt.Progress
	}
	if progress != 100 {
		t.Fatalf("final published progress = %d", progress)
	}
	published := rec.snapshot()
	if published[0].Type != events.RunStarted || published[len(published)-1].Type != events.RunCompleted {
		t.Fatalf("unexpected event order %+v", published)
	}
}

func TestBlogRunIncludesOptionalStages(t *testing.T) {
	m, _, _ := newManager(t, nil)
	handle, err := m.Start(context.Background(), "Pricing pages", stage.KindBlog)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap, err := wait(t, handle)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := strings.Join(stageIDs(snap.Stages), ","); got != "validate,research,content,visual,social,email,save" {
		t.Fatalf("stage ids = %s", got)
	}
	if snap.Progress != 100 {
		t.Fatalf("progress = %d", snap.Progress)
	}
}

func TestEmptyTopicFailsAtValidate(t *testing.T) {
	var later []string
	track := func(id string) stage.WorkFunc {
		return func(context.Context, stage.Env) (any, error) {
			later = append(later, id)
			return nil, nil
		}
	}
	m, log, _ := newManager(t, workOverrides{"research": track("research"), "content": track("content"), "save": track("save")})
	handle, err := m.Start(context.Background(), "   ", stage.KindBlog)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap, runErr := wait(t, handle)

	var failure *workflow.StageFailure
	if !errors.As(runErr, &failure) || failure.Stage != "validate" {
		t.Fatalf("expected validate StageFailure, got %v", runErr)
	}
	if !errors.Is(runErr, services.ErrValidation) {
		t.Fatalf("expected validation marker, got %v", runErr)
	}
	if len(later) != 0 {
		t.Fatalf("stages after validate executed: %v", later)
	}
	if snap.Progress >= 100 || snap.Running || snap.Error == "" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if st, _ := snap.Stage("validate"); st.Status != stage.StatusError {
		t.Fatalf("validate status = %s", st.Status)
	}
	for _, st := range snap.Stages[1:] {
		if st.Status != stage.StatusPending {
			t.Fatalf("stage %s status = %s, want pending", st.ID, st.Status)
		}
	}
	if countLevel(log.Entries(), eventlog.LevelError) != 1 {
		t.Fatalf("expected exactly one error entry, got %+v", log.Entries())
	}
	if !errors.Is(m.LastError(), services.ErrValidation) {
		t.Fatalf("LastError = %v", m.LastError())
	}
}

func TestContentRejectionStopsPipeline(t *testing.T) {
	rejected := func(context.Context, stage.Env) (any, error) {
		return nil, fmt.Errorf("%w: %s", services.ErrRejected, "rate limited")
	}
	m, log, rec := newManager(t, workOverrides{"content": rejected})
	handle, err := m.Start(context.Background(), "SaaS Growth Strategies", stage.KindBlog)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap, runErr := wait(t, handle)
	if runErr == nil || snap.Error == "" {
		t.Fatal("expected terminal error")
	}

	entries := log.Entries()
	last := entries[len(entries)-1]
	if last.Level != eventlog.LevelError || !strings.Contains(last.Message, "rate limited") {
		t.Fatalf("unexpected last entry %+v", last)
	}
	payload, ok := last.Payload.(map[string]any)
	if !ok || !strings.Contains(fmt.Sprint(payload["error"]), "rate limited") || payload["event_type"] != "generation_rejected" {
		t.Fatalf("unexpected payload %+v", last.Payload)
	}
	if countLevel(entries, eventlog.LevelError) != 1 {
		t.Fatalf("expected exactly one error entry, got %d", countLevel(entries, eventlog.LevelError))
	}
	for _, id := range []string{"visual", "social", "email", "save"} {
		if st, _ := snap.Stage(id); st.Status != stage.StatusPending {
			t.Fatalf("stage %s status = %s, want pending", id, st.Status)
		}
	}
	published := rec.snapshot()
	if published[len(published)-1].Type != events.RunFailed {
		t.Fatalf("expected run_failed last, got %+v", published[len(published)-1])
	}
}

func TestSecondStartHasNoEffect(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	blocking := func(ctx context.Context, env stage.Env) (any, error) {
		close(entered)
		<-release
		return nil, nil
	}
	m, _, _ := newManager(t, workOverrides{"research": blocking})
	first, err := m.Start(context.Background(), "first", stage.KindSocial)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-entered
	before := m.Snapshot()

	second, err := m.Start(context.Background(), "second", stage.KindBlog)
	if !errors.Is(err, workflow.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if second != first {
		t.Fatal("expected the active handle to be returned")
	}
	after := m.Snapshot()
	if after.RunID != before.RunID || after.Job != before.Job || len(after.Stages) != len(before.Stages) {
		t.Fatalf("second start changed state: before %+v after %+v", before, after)
	}
	for i := range before.Stages {
		if before.Stages[i].Status != after.Stages[i].Status {
			t.Fatalf("stage %s status changed", before.Stages[i].ID)
		}
	}

	close(release)
	snap, err := wait(t, first)
	if err != nil || snap.Job.Topic != "first" {
		t.Fatalf("unexpected result %+v %v", snap, err)
	}
}

func TestResetAfterTerminalRun(t *testing.T) {
	m, log, _ := newManager(t, nil)
	handle, _ := m.Start(context.Background(), "topic", stage.KindEmail)
	if _, err := wait(t, handle); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !m.Reset() {
		t.Fatal("Reset returned false after terminal run")
	}
	snap := m.Snapshot()
	if !snap.Empty() || len(snap.Stages) != 0 || snap.Running {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
	if log.Len() != 0 {
		t.Fatalf("expected empty log, got %d entries", log.Len())
	}
}

func TestResetIsIgnoredWhileRunning(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	m, log, _ := newManager(t, workOverrides{"content": func(context.Context, stage.Env) (any, error) {
		close(entered)
		<-release
		return nil, nil
	}})
	handle, _ := m.Start(context.Background(), "topic", stage.KindSocial)
	<-entered
	entriesBefore := log.Len()
	if m.Reset() {
		t.Fatal("Reset succeeded mid-run")
	}
	if !m.Running() || log.Len() != entriesBefore {
		t.Fatal("Reset mid-run changed state")
	}
	close(release)
	if _, err := wait(t, handle); err != nil {
		t.Fatalf("run failed: %v", err)
	}
}

func TestDiscardOrphansInFlightRun(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	finished := make(chan struct{})
	var blocked sync.Once
	m, log, rec := newManager(t, workOverrides{"content": func(ctx context.Context, env stage.Env) (any, error) {
		first := false
		blocked.Do(func() { first = true })
		if !first {
			return nil, nil
		}
		defer close(finished)
		close(entered)
		<-release
		env.SetProgress(50)
		env.Log().Info("", "late line", nil)
		return nil, ctx.Err()
	}})
	handle, _ := m.Start(context.Background(), "topic", stage.KindBlog)
	<-entered

	if !m.Discard() {
		t.Fatal("Discard reported no run")
	}
	snap, err := wait(t, handle)
	if !errors.Is(err, workflow.ErrDiscarded) || snap.Running {
		t.Fatalf("unexpected discarded result %+v %v", snap, err)
	}
	close(release)
	<-finished

	if got := m.Snapshot(); !got.Empty() {
		t.Fatalf("expected empty snapshot after discard, got %+v", got)
	}
	if log.Len() != 0 {
		t.Fatalf("late updates reached the log: %+v", log.Entries())
	}
	published := rec.snapshot()
	if published[len(published)-1].Type != events.RunDiscarded {
		t.Fatalf("expected run_discarded last, got %+v", published[len(published)-1])
	}

	next, err := m.Start(context.Background(), "again", stage.KindSocial)
	if err != nil {
		t.Fatalf("Start after discard: %v", err)
	}
	snap, err = wait(t, next)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if !snap.Succeeded() || snap.RunID == handle.ID() || snap.Job.Topic != "again" {
		t.Fatalf("unexpected second run %+v", snap)
	}
	for _, entry := range log.Entries() {
		if entry.Message == "late line" {
			t.Fatalf("discarded run wrote into the next run's log: %+v", entry)
		}
	}
}

func TestPanicBecomesStageFailure(t *testing.T) {
	m, log, _ := newManager(t, workOverrides{"research": func(context.Context, stage.Env) (any, error) {
		panic("boom")
	}})
	handle, _ := m.Start(context.Background(), "topic", stage.KindSocial)
	snap, err := wait(t, handle)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected panic error, got %v", err)
	}
	if st, _ := snap.Stage("research"); st.Status != stage.StatusError {
		t.Fatalf("research status = %s", st.Status)
	}
	if countLevel(log.Entries(), eventlog.LevelError) != 1 {
		t.Fatal("expected exactly one error entry")
	}
}

func TestAtMostOneStageRunning(t *testing.T) {
	var m *workflow.Manager
	var violations []string
	observe := func(context.Context, stage.Env) (any, error) {
		running := 0
		for _, st := range m.Snapshot().Stages {
			if st.Status == stage.StatusRunning {
				running++
			}
		}
		if running != 1 {
			violations = append(violations, fmt.Sprintf("%d running", running))
		}
		return nil, nil
	}
	overrides := workOverrides{}
	for _, id := range []string{"validate", "research", "content", "visual", "social", "email", "save"} {
		overrides[id] = observe
	}
	m = workflow.NewManager(newRegistry(t, overrides), eventlog.New(0), logging.NewNop())
	handle, _ := m.Start(context.Background(), "topic", stage.KindBlog)
	if _, err := wait(t, handle); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("observed violations: %v", violations)
	}
	for _, st := range m.Snapshot().Stages {
		if st.Status == stage.StatusRunning {
			t.Fatalf("stage %s left running", st.ID)
		}
	}
}

func TestSetProgressReportsPartialProgress(t *testing.T) {
	var m *workflow.Manager
	var seen []int
	content := func(_ context.Context, env stage.Env) (any, error) {
		for _, p := range []int{25, 10, 50, 100} {
			env.SetProgress(p)
			seen = append(seen, m.Snapshot().Progress)
		}
		return "draft", nil
	}
	save := func(_ context.Context, env stage.Env) (any, error) {
		draft, ok := env.Output("content")
		if !ok || draft != "draft" {
			return nil, errors.New("missing content output")
		}
		return nil, nil
	}
	m = workflow.NewManager(newRegistry(t, workOverrides{"content": content, "save": save}), eventlog.New(0), logging.NewNop())
	handle, _ := m.Start(context.Background(), "topic", stage.KindSocial)
	if _, err := wait(t, handle); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	// social weights apportion to validate 8, research 23, content 61, save 8.
	want := []int{31 + 15, 31 + 15, 31 + 30, 31 + 61}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("progress samples = %v, want %v", seen, want)
		}
	}
}

func TestHealthReportsStageChecks(t *testing.T) {
	reg, err := stage.NewRegistry(
		stage.Definition{ID: "content", Weight: 50, Work: succeed, Check: func(context.Context) stage.Health {
			return stage.Unhealthy("", "backend unreachable")
		}},
		stage.Definition{ID: "save", Weight: 50, Work: succeed},
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	m := workflow.NewManager(reg, nil, nil)
	health := m.Health(context.Background())
	if len(health) != 2 || health[0].Name != "content" || health[0].Ready || !health[1].Ready {
		t.Fatalf("unexpected health %+v", health)
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	m, _, _ := newManager(t, nil)
	handle, _ := m.Start(context.Background(), "topic", stage.KindSocial)
	if _, err := wait(t, handle); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	snap := m.Snapshot()
	snap.Stages[0].Status = stage.StatusError
	snap.Outputs["validate"] = "mutated"
	again := m.Snapshot()
	if again.Stages[0].Status != stage.StatusCompleted || again.Outputs["validate"] != "topic" {
		t.Fatalf("snapshot mutation leaked: %+v", again)
	}
}
