package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/vvebeheer/internal/services/worker/storage"
)

// RecordJobRun persists one worker job execution.
func (s *Store) RecordJobRun(ctx context.Context, run storage.JobRun) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	run.Job = strings.TrimSpace(run.Job)
	run.Worker = strings.TrimSpace(run.Worker)
	run.Outcome = strings.TrimSpace(run.Outcome)
	run.LastError = strings.TrimSpace(run.LastError)
	if run.Job == "" {
		return fmt.Errorf("job name is required")
	}
	if run.Worker == "" {
		return fmt.Errorf("worker is required")
	}
	if run.Outcome == "" {
		return fmt.Errorf("outcome is required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO job_runs (
	job,
	worker,
	outcome,
	processed,
	failed,
	detail,
	last_error,
	started_at,
	duration_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		run.Job,
		run.Worker,
		run.Outcome,
		run.Processed,
		run.Failed,
		run.Detail,
		run.LastError,
		toMillis(run.StartedAt),
		run.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record job run: %w", err)
	}
	return nil
}

// ListJobRuns lists newest-first runs, optionally for one job.
func (s *Store) ListJobRuns(ctx context.Context, job string, limit int) ([]storage.JobRun, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	id,
	job,
	worker,
	outcome,
	processed,
	failed,
	detail,
	last_error,
	started_at,
	duration_ms
FROM job_runs
WHERE ? = '' OR job = ?
ORDER BY started_at DESC, id DESC
LIMIT ?
`, strings.TrimSpace(job), strings.TrimSpace(job), limit)
	if err != nil {
		return nil, fmt.Errorf("list job runs: %w", err)
	}
	defer rows.Close()

	runs := make([]storage.JobRun, 0, limit)
	for rows.Next() {
		var run storage.JobRun
		var startedAt, durationMillis int64
		if err := rows.Scan(
			&run.ID,
			&run.Job,
			&run.Worker,
			&run.Outcome,
			&run.Processed,
			&run.Failed,
			&run.Detail,
			&run.LastError,
			&startedAt,
			&durationMillis,
		); err != nil {
			return nil, fmt.Errorf("scan job run: %w", err)
		}
		run.StartedAt = fromMillis(startedAt)
		run.Duration = time.Duration(durationMillis) * time.Millisecond
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job runs: %w", err)
	}
	return runs, nil
}

var _ storage.JobRunStore = (*Store)(nil)
