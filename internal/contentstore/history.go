package contentstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const defaultHistoryLimit = 50

// RecordRun inserts or updates the history row for run.RunID.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	if strings.TrimSpace(run.RunID) == "" {
		return persistenceError("record run", errors.New("run id required"))
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO run_history (
            run_id, topic, kind, status, error, failed_stage, stage_count, progress,
            started_at, finished_at, duration_ms
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(run_id) DO UPDATE SET
            status = excluded.status,
            error = excluded.error,
            failed_stage = excluded.failed_stage,
            stage_count = CASE WHEN excluded.stage_count > 0 THEN excluded.stage_count ELSE run_history.stage_count END,
            progress = MAX(run_history.progress, excluded.progress),
            finished_at = excluded.finished_at,
            duration_ms = excluded.duration_ms`,
		run.RunID,
		run.Topic,
		run.Kind,
		string(run.Status),
		nullableString(run.Error),
		nullableString(run.FailedStage),
		run.StageCount,
		run.Progress,
		formatTime(run.StartedAt),
		nullableString(formatTime(run.FinishedAt)),
		run.Duration.Milliseconds(),
	)
	if err != nil {
		return persistenceError("record run", err)
	}
	return nil
}

// GetRun returns the history row for runID.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT run_id, topic, kind, status, error, failed_stage, stage_count, progress,
                started_at, finished_at, duration_ms
         FROM run_history WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, persistenceError("get run", err)
	}
	return &run, nil
}

// RecentRuns lists the newest history rows.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT run_id, topic, kind, status, error, failed_stage, stage_count, progress,
                started_at, finished_at, duration_ms
         FROM run_history ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, persistenceError("list runs", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, persistenceError("scan run", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("list runs", err)
	}
	return runs, nil
}

// PruneRuns keeps the newest keep rows of run history and returns how many
// were removed.
func (s *Store) PruneRuns(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.execWithRetry(ctx,
		`DELETE FROM run_history WHERE run_id NOT IN (
            SELECT run_id FROM run_history ORDER BY started_at DESC, rowid DESC LIMIT ?
        )`, keep)
	if err != nil {
		return 0, persistenceError("prune runs", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, persistenceError("prune runs", err)
	}
	return removed, nil
}

func scanRun(row scanner) (Run, error) {
	var (
		run         Run
		status      string
		errMsg      sql.NullString
		failedStage sql.NullString
		startedAt   sql.NullString
		finishedAt  sql.NullString
		durationMS  int64
	)
	if err := row.Scan(&run.RunID, &run.Topic, &run.Kind, &status, &errMsg, &failedStage,
		&run.StageCount, &run.Progress, &startedAt, &finishedAt, &durationMS); err != nil {
		return Run{}, err
	}
	run.Status = RunStatus(status)
	run.Error = errMsg.String
	run.FailedStage = failedStage.String
	run.StartedAt = parseTime(startedAt)
	run.FinishedAt = parseTime(finishedAt)
	run.Duration = time.Duration(durationMS) * time.Millisecond
	return run, nil
}
