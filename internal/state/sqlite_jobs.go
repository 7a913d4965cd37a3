package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/metricgrid-labs/metricgrid/pkg/core"
)

// CreateJob inserts a pending refresh job.
func (s *SQLiteStore) CreateJob(ctx context.Context, modelID string, incremental bool) (*core.RefreshJob, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	job := &core.RefreshJob{
		ID:          generateID(),
		ModelID:     modelID,
		Status:      core.JobStatusPending,
		Incremental: incremental,
		CreatedAt:   time.Now().UTC(),
	}

	s.logger.Debug("creating refresh job", "job_id", job.ID, "model_id", modelID, "incremental", incremental)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_jobs (id, model_id, status, incremental, created_at) VALUES (?, ?, ?, ?, ?)`,
		job.ID, job.ModelID, string(job.Status), job.Incremental, job.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// MarkJobRunning transitions a pending job to running. The guard on the
// current status keeps terminal states final.
func (s *SQLiteStore) MarkJobRunning(ctx context.Context, id string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE refresh_jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
		string(core.JobStatusRunning), now, id, string(core.JobStatusPending),
	)
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s is not pending", id)
	}
	return nil
}

// CompleteJob transitions a running job to success.
func (s *SQLiteStore) CompleteJob(ctx context.Context, id string, rowsProcessed int64) error {
	return s.finishJob(ctx, id, core.JobStatusSuccess, rowsProcessed, "")
}

// FailJob transitions a running job to error with a message.
func (s *SQLiteStore) FailJob(ctx context.Context, id, errorMessage string) error {
	return s.finishJob(ctx, id, core.JobStatusError, 0, errorMessage)
}

func (s *SQLiteStore) finishJob(ctx context.Context, id string, status core.JobStatus, rowsProcessed int64, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	var errorPtr *string
	if errMsg != "" {
		errorPtr = &errMsg
	}
	now := time.Now().UTC()

	result, err := s.db.ExecContext(ctx,
		`UPDATE refresh_jobs SET status = ?, rows_processed = ?, error_message = ?, completed_at = ?
		 WHERE id = ? AND status = ?`,
		string(status), rowsProcessed, errorPtr, now, id, string(core.JobStatusRunning),
	)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s is not running", id)
	}
	return nil
}

// GetJob is a pure read of the job record.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*core.RefreshJob, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, model_id, status, incremental, rows_processed, error_message, created_at, started_at, completed_at
		 FROM refresh_jobs WHERE id = ?`, id)

	job, err := scanJob(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs retrieves the most recent jobs up to limit.
func (s *SQLiteStore) ListJobs(ctx context.Context, limit int) ([]*core.RefreshJob, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, model_id, status, incremental, rows_processed, error_message, created_at, started_at, completed_at
		 FROM refresh_jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*core.RefreshJob
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(scan func(...any) error) (*core.RefreshJob, error) {
	job := &core.RefreshJob{}
	var status string
	var errMsg sql.NullString
	var startedAt, completedAt sql.NullTime

	err := scan(&job.ID, &job.ModelID, &status, &job.Incremental, &job.RowsProcessed, &errMsg, &job.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	job.Status = core.JobStatus(status)
	if errMsg.Valid {
		job.ErrorMessage = errMsg.String
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return job, nil
}
