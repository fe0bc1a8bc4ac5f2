package contentstore

import (
	"context"
	"log/slog"

	"craefto/internal/events"
	"craefto/internal/logging"
)

// HistoryRecorder mirrors run lifecycle events into run_history.
type HistoryRecorder struct {
	store  *Store
	logger *slog.Logger
	keep   int
}

// NewHistoryRecorder builds a recorder that keeps the newest keep runs.
func NewHistoryRecorder(store *Store, logger *slog.Logger, keep int) *HistoryRecorder {
	return &HistoryRecorder{
		store:  store,
		logger: logging.NewComponentLogger(logger, "history"),
		keep:   keep,
	}
}

// Handle is an events.Handler.
func (r *HistoryRecorder) Handle(ctx context.Context, evt events.Event) {
	if r == nil || r.store == nil || evt.RunID == "" {
		return
	}
	run := Run{
		RunID:      evt.RunID,
		Topic:      evt.Topic,
		Kind:       evt.Kind,
		StageCount: evt.StageCount,
		Progress:   evt.Progress,
	}
	switch evt.Type {
	case events.RunStarted:
		run.Status = RunRunning
		run.StartedAt = evt.Time
	case events.RunCompleted, events.RunFailed, events.RunDiscarded:
		run.Status = terminalStatus(evt.Type)
		run.Error = evt.Error
		if evt.Type == events.RunFailed {
			run.FailedStage = evt.StageID
		}
		run.FinishedAt = evt.Time
		run.Duration = evt.Duration
		run.StartedAt = evt.Time.Add(-evt.Duration)
	default:
		return
	}

	logger := r.logger.With(logging.String(logging.FieldRunID, evt.RunID))
	if err := r.store.RecordRun(ctx, run); err != nil {
		logging.WarnWithContext(logger, "run history not recorded", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check data_dir permissions and free space"),
			logging.String(logging.FieldImpact, "run is missing from craefto history"),
		)
		return
	}
	if !evt.Type.Terminal() {
		return
	}
	logger.Debug("run history recorded", logging.String("status", string(run.Status)))
	if removed, err := r.store.PruneRuns(ctx, r.keep); err != nil {
		logging.WarnWithContext(logger, "run history prune failed", "history_prune_failed", logging.Error(err))
	} else if removed > 0 {
		logger.Info("run history pruned",
			logging.Int64("removed", removed),
			logging.String(logging.FieldEventType, "history_pruned"),
		)
	}
}

func terminalStatus(t events.Type) RunStatus {
	switch t {
	case events.RunCompleted:
		return RunCompleted
	case events.RunDiscarded:
		return RunDiscarded
	default:
		return RunFailed
	}
}
