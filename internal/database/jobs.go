package database

import (
	"context"
	"database/sql"
	"fmt"

	"fieldsync/internal/models"
)

// UpsertCachedJob overwrites the snapshot for a job wholesale. There is no
// partial patch path, so a row never mixes fields from two server states.
func (db *DB) UpsertCachedJob(ctx context.Context, job *models.CachedJob) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO cached_jobs (id, job_number, status, description, customer_name, due_date, fetched_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
            job_number = excluded.job_number,
            status = excluded.status,
            description = excluded.description,
            customer_name = excluded.customer_name,
            due_date = excluded.due_date,
            fetched_at = excluded.fetched_at`,
		job.ID, job.JobNumber, job.Status, job.Description, job.CustomerName, job.DueDate, job.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cached job %d: %w", job.ID, err)
	}
	return nil
}

// GetCachedJob returns the snapshot for a job, or nil when absent.
func (db *DB) GetCachedJob(ctx context.Context, id int64) (*models.CachedJob, error) {
	var job models.CachedJob
	err := db.QueryRowContext(ctx,
		`SELECT id, job_number, status, description, customer_name, due_date, fetched_at FROM cached_jobs WHERE id = ?`,
		id,
	).Scan(&job.ID, &job.JobNumber, &job.Status, &job.Description, &job.CustomerName, &job.DueDate, &job.FetchedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached job %d: %w", id, err)
	}
	return &job, nil
}

// ListCachedJobs returns all snapshots ordered by job number.
func (db *DB) ListCachedJobs(ctx context.Context) ([]models.CachedJob, error) {
	return db.queryCachedJobs(ctx,
		`SELECT id, job_number, status, description, customer_name, due_date, fetched_at FROM cached_jobs ORDER BY job_number`)
}

// ListCachedJobsByStatus returns snapshots with the given status.
func (db *DB) ListCachedJobsByStatus(ctx context.Context, status string) ([]models.CachedJob, error) {
	return db.queryCachedJobs(ctx,
		`SELECT id, job_number, status, description, customer_name, due_date, fetched_at FROM cached_jobs WHERE status = ? ORDER BY job_number`,
		status)
}

// ScanCachedJobsByNumberPrefix returns snapshots whose job number starts with
// the prefix, ordered by job number.
func (db *DB) ScanCachedJobsByNumberPrefix(ctx context.Context, prefix string) ([]models.CachedJob, error) {
	return db.queryCachedJobs(ctx,
		`SELECT id, job_number, status, description, customer_name, due_date, fetched_at
         FROM cached_jobs WHERE job_number LIKE ? || '%' ORDER BY job_number`,
		prefix)
}

func (db *DB) queryCachedJobs(ctx context.Context, query string, args ...interface{}) ([]models.CachedJob, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cached jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.CachedJob
	for rows.Next() {
		var job models.CachedJob
		err := rows.Scan(&job.ID, &job.JobNumber, &job.Status, &job.Description, &job.CustomerName, &job.DueDate, &job.FetchedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cached job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ClearCachedJobs drops every snapshot. Used after the server-side bulk-clear
// so stale rows are never trusted.
func (db *DB) ClearCachedJobs(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM cached_jobs`); err != nil {
		return fmt.Errorf("failed to clear cached jobs: %w", err)
	}
	return nil
}
