package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	defaultMaxAttempts = 3
	maxBackoff         = 5 * time.Minute
)

const jobColumns = `id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error`

// retryDelay is the wait before attempt n+1 after n failed attempts: one
// second after the first failure, doubling up to maxBackoff.
func retryDelay(n int) time.Duration {
	switch {
	case n <= 1:
		return time.Second
	case n > 9:
		return maxBackoff
	}
	return min(time.Second<<(n-1), maxBackoff)
}

// EnqueueJob stores job as pending. A zero MaxAttempts means three attempts
// and a zero RunAfter makes the job due immediately.
func (s *Store) EnqueueJob(job Job) error {
	created := s.now()
	due := job.RunAfter
	if due.IsZero() {
		due = created
	}
	attempts := job.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	if _, err := s.db.Exec(`INSERT INTO jobs (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.PayloadJSON, JobPending, attempts,
		formatTime(due), formatTime(created), formatTime(created),
	); err != nil {
		return fmt.Errorf("enqueueing job %s: %w", job.ID, err)
	}
	return nil
}

func (s *Store) GetJob(id string) (Job, error) {
	j, err := scanJob(s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	return j, err
}

// ClaimJob moves the oldest due pending job of the given type to running and
// returns it, or returns nil when none is due. The select and the status
// change happen in one statement so two workers never claim the same job.
func (s *Store) ClaimJob(jobType string) (*Job, error) {
	now := formatTime(s.now())
	j, err := scanJob(s.db.QueryRow(`UPDATE jobs SET status = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = ? AND type = ? AND run_after <= ?
			ORDER BY run_after, created_at
			LIMIT 1
		)
		RETURNING `+jobColumns,
		JobRunning, now, JobPending, jobType, now,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claiming %s job: %w", jobType, err)
	}
	return &j, nil
}

// CompleteJob marks a job as done.
func (s *Store) CompleteJob(id string) error {
	return s.settleJob(id, JobCompleted, "")
}

// AbandonJob marks a job failed without further attempts.
func (s *Store) AbandonJob(id, cause string) error {
	return s.settleJob(id, JobFailed, cause)
}

func (s *Store) settleJob(id, status, cause string) error {
	res, err := s.db.Exec(`UPDATE jobs SET status = ?, last_error = NULLIF(?, ''), updated_at = ? WHERE id = ?`,
		status, cause, formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("settling job %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RetryJob records a failed attempt. The job goes back to pending after
// retryDelay, or to failed once its attempts are used up.
func (s *Store) RetryJob(id, cause string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var used, allowed int
	switch err := tx.QueryRow(`SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id).Scan(&used, &allowed); {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("reading attempts of job %s: %w", id, err)
	}

	used++
	now := s.now()
	status, due := JobPending, now.Add(retryDelay(used))
	if used >= allowed {
		status, due = JobFailed, now
	}
	if _, err := tx.Exec(`UPDATE jobs SET status = ?, attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
		status, used, cause, formatTime(due), formatTime(now), id); err != nil {
		return fmt.Errorf("rescheduling job %s: %w", id, err)
	}
	return tx.Commit()
}

func scanJob(row scanner) (Job, error) {
	var (
		j                     Job
		due, created, updated string
		cause                 sql.NullString
	)
	if err := row.Scan(&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&due, &created, &updated, &cause); err != nil {
		return Job{}, err
	}
	j.LastError = cause.String
	for _, f := range []struct {
		name string
		raw  string
		dst  *time.Time
	}{
		{"run_after", due, &j.RunAfter},
		{"created_at", created, &j.CreatedAt},
		{"updated_at", updated, &j.UpdatedAt},
	} {
		t, err := parseTime(f.name, f.raw)
		if err != nil {
			return Job{}, err
		}
		*f.dst = t
	}
	return j, nil
}
