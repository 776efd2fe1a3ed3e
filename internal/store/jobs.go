package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const jobColumns = `id, installation_id, owner, repo, repo_id, owner_id, hybrid, status, attempts, max_attempts, run_after, last_error, created_at`

// InsertJob persists a new indexing job in pending state.
func (d *DB) InsertJob(job *IndexJob) error {
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = 3
	}
	runAfter := job.RunAfter
	if runAfter.IsZero() {
		runAfter = time.Now()
	}

	_, err := d.db.Exec(
		`INSERT INTO index_jobs (id, installation_id, owner, repo, repo_id, owner_id, hybrid, status, max_attempts, run_after)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?)`,
		job.ID, job.InstallationID, job.Owner, job.Repo, job.RepoID, job.OwnerID,
		boolToInt(job.Hybrid), job.MaxAttempts, runAfter.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

// ClaimJob atomically picks the oldest runnable pending job and marks it
// running, incrementing its attempt counter. Returns ErrNotFound when the
// queue is empty.
func (d *DB) ClaimJob(now time.Time) (*IndexJob, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(
		`SELECT `+jobColumns+` FROM index_jobs
		 WHERE status = 'pending' AND run_after <= ?
		 ORDER BY created_at LIMIT 1`,
		now.UTC().Format(time.RFC3339),
	)
	job, err := scanJob(row)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(
		`UPDATE index_jobs SET status = 'running', attempts = attempts + 1, updated_at = ? WHERE id = ?`,
		now.UTC().Format(time.RFC3339), job.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("claiming job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	job.Status = JobRunning
	job.Attempts++
	return job, nil
}

// ReclaimStaleJobs returns running jobs whose lease expired to the pending
// queue and reports how many were reclaimed. A worker that dies mid-run
// leaves its job stuck in running, which would block every future enqueue
// for that repository; reclaiming lets another worker pick it up. The
// datetime() normalization covers both timestamp formats updated_at is
// written in.
func (d *DB) ReclaimStaleJobs(now time.Time, lease time.Duration) (int, error) {
	res, err := d.db.Exec(
		`UPDATE index_jobs SET status = 'pending', updated_at = ?
		 WHERE status = 'running' AND datetime(updated_at) <= datetime(?)`,
		now.UTC().Format(time.RFC3339), now.Add(-lease).UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaiming stale jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking reclaimed jobs: %w", err)
	}
	return int(n), nil
}

// CompleteJob marks a job done.
func (d *DB) CompleteJob(id string) error {
	return d.setJobStatus(id, JobDone, "")
}

// RescheduleJob returns a failed job to the pending queue with a new earliest
// run time, preserving the error for inspection.
func (d *DB) RescheduleJob(id string, runAfter time.Time, lastError string) error {
	_, err := d.db.Exec(
		`UPDATE index_jobs SET status = 'pending', run_after = ?, last_error = ?, updated_at = datetime('now') WHERE id = ?`,
		runAfter.UTC().Format(time.RFC3339), lastError, id,
	)
	if err != nil {
		return fmt.Errorf("rescheduling job: %w", err)
	}
	return nil
}

// DeadLetterJob marks a job dead after its retry ceiling is exhausted. Dead
// jobs are kept for manual inspection, never silently discarded.
func (d *DB) DeadLetterJob(id string, lastError string) error {
	return d.setJobStatus(id, JobDead, lastError)
}

func (d *DB) setJobStatus(id string, status JobStatus, lastError string) error {
	res, err := d.db.Exec(
		`UPDATE index_jobs SET status = ?, last_error = ?, updated_at = datetime('now') WHERE id = ?`,
		string(status), lastError, id,
	)
	if err != nil {
		return fmt.Errorf("updating job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking job update: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// HasActiveJob reports whether a pending or running job exists for a repository.
func (d *DB) HasActiveJob(repoID int64) (bool, error) {
	var n int
	err := d.db.QueryRow(
		`SELECT COUNT(1) FROM index_jobs WHERE repo_id = ? AND status IN ('pending', 'running')`,
		repoID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking active jobs: %w", err)
	}
	return n > 0, nil
}

// ListJobs returns all jobs with the given status, oldest first.
func (d *DB) ListJobs(status JobStatus) ([]IndexJob, error) {
	rows, err := d.db.Query(
		`SELECT `+jobColumns+` FROM index_jobs WHERE status = ? ORDER BY created_at`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []IndexJob
	for rows.Next() {
		j, err := scanJobRows(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func scanJob(row *sql.Row) (*IndexJob, error) {
	var j IndexJob
	var hybrid int
	var status string
	var lastError sql.NullString
	var runAfter, createdAt string

	err := row.Scan(&j.ID, &j.InstallationID, &j.Owner, &j.Repo, &j.RepoID, &j.OwnerID,
		&hybrid, &status, &j.Attempts, &j.MaxAttempts, &runAfter, &lastError, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning job: %w", err)
	}

	j.Hybrid = hybrid != 0
	j.Status = JobStatus(status)
	j.LastError = lastError.String
	j.RunAfter = parseStoredTime(runAfter)
	j.CreatedAt = parseStoredTime(createdAt)

	return &j, nil
}

func scanJobRows(rows *sql.Rows) (*IndexJob, error) {
	var j IndexJob
	var hybrid int
	var status string
	var lastError sql.NullString
	var runAfter, createdAt string

	err := rows.Scan(&j.ID, &j.InstallationID, &j.Owner, &j.Repo, &j.RepoID, &j.OwnerID,
		&hybrid, &status, &j.Attempts, &j.MaxAttempts, &runAfter, &lastError, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("scanning job: %w", err)
	}

	j.Hybrid = hybrid != 0
	j.Status = JobStatus(status)
	j.LastError = lastError.String
	j.RunAfter = parseStoredTime(runAfter)
	j.CreatedAt = parseStoredTime(createdAt)

	return &j, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
