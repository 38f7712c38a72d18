package queue

import (
	"database/sql"
	"time"

	"github.com/gigboard/dispatch/errors"
)

// Store handles persistence of queue jobs
type Store struct {
	db *sql.DB
}

// NewStore creates a new job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateJob inserts a new job into the database
func (s *Store) CreateJob(job *Job) error {
	query := `
		INSERT INTO jobs (
			id, type, payload, state, progress, error,
			remove_on_complete, remove_on_fail,
			ready_at, created_at, started_at, completed_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	payload := sql.NullString{String: string(job.Payload), Valid: len(job.Payload) > 0}
	errMsg := sql.NullString{String: job.Error, Valid: job.Error != ""}

	_, err := s.db.Exec(query,
		job.ID,
		job.Type,
		payload,
		job.State,
		job.Progress,
		errMsg,
		job.RemoveOnComplete,
		job.RemoveOnFail,
		job.ReadyAt,
		job.CreatedAt,
		job.StartedAt,
		job.CompletedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create job")
	}

	return nil
}

// GetJob retrieves a job by ID
func (s *Store) GetJob(id string) (*Job, error) {
	query := `SELECT ` + StandardJobSelectColumns() + ` FROM jobs WHERE id = ?`

	var job Job
	args := GetJobScanArgs()
	targets := GetJobScanTargets(&job, args)

	err := s.db.QueryRow(query, id).Scan(targets...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("job not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}

	ProcessJobScanArgs(&job, args)
	return &job, nil
}

// UpdateJob updates an existing job in the database
func (s *Store) UpdateJob(job *Job) error {
	query := `
		UPDATE jobs
		SET payload = ?,
		    state = ?,
		    progress = ?,
		    error = ?,
		    ready_at = ?,
		    started_at = ?,
		    completed_at = ?,
		    updated_at = ?
		WHERE id = ?
	`

	payload := sql.NullString{String: string(job.Payload), Valid: len(job.Payload) > 0}
	errMsg := sql.NullString{String: job.Error, Valid: job.Error != ""}

	_, err := s.db.Exec(query,
		payload,
		job.State,
		job.Progress,
		errMsg,
		job.ReadyAt,
		job.StartedAt,
		job.CompletedAt,
		job.UpdatedAt,
		job.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update job")
	}

	return nil
}

// UpdateProgress persists a job's progress value without touching other fields
func (s *Store) UpdateProgress(id string, progress int) error {
	query := `UPDATE jobs SET progress = ?, updated_at = ? WHERE id = ?`

	result, err := s.db.Exec(query, progress, time.Now(), id)
	if err != nil {
		return errors.Wrap(err, "failed to update progress")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("job not found: %s", id)
	}

	return nil
}

// ListByState returns jobs in the given state, newest first
func (s *Store) ListByState(state JobState, limit int) ([]*Job, error) {
	query := `SELECT ` + StandardJobSelectColumns() + `
		FROM jobs
		WHERE state = ?
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := s.db.Query(query, state, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s jobs", state)
	}
	defer rows.Close()

	return scanJobs(rows, string(state)+" jobs")
}

// NextWaiting returns the oldest waiting job, or nil when the queue is empty
func (s *Store) NextWaiting() (*Job, error) {
	query := `SELECT ` + StandardJobSelectColumns() + `
		FROM jobs
		WHERE state = 'waiting'
		ORDER BY created_at ASC
		LIMIT 1`

	var job Job
	args := GetJobScanArgs()
	targets := GetJobScanTargets(&job, args)

	err := s.db.QueryRow(query).Scan(targets...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get next waiting job")
	}

	ProcessJobScanArgs(&job, args)
	return &job, nil
}

// CountOutstanding returns the number of jobs in the waiting, active, or
// delayed states - the store's live notion of outstanding work.
func (s *Store) CountOutstanding() (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM jobs WHERE state IN ('waiting', 'active', 'delayed')`,
	).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count outstanding jobs")
	}
	return count, nil
}

// PromoteDue moves delayed jobs whose ready_at has passed into the waiting
// state. Returns the promoted jobs.
func (s *Store) PromoteDue(now time.Time) ([]*Job, error) {
	query := `SELECT ` + StandardJobSelectColumns() + `
		FROM jobs
		WHERE state = 'delayed' AND ready_at <= ?
		ORDER BY ready_at ASC`

	rows, err := s.db.Query(query, now)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list due delayed jobs")
	}
	defer rows.Close()

	due, err := scanJobs(rows, "delayed jobs")
	if err != nil {
		return nil, err
	}

	for _, job := range due {
		job.State = JobStateWaiting
		job.ReadyAt = nil
		job.UpdatedAt = now
		if err := s.UpdateJob(job); err != nil {
			return nil, errors.Wrapf(err, "failed to promote delayed job %s", job.ID)
		}
	}

	return due, nil
}

// ListStalled returns active jobs that started before the cutoff.
func (s *Store) ListStalled(cutoff time.Time) ([]*Job, error) {
	query := `SELECT ` + StandardJobSelectColumns() + `
		FROM jobs
		WHERE state = 'active' AND started_at < ?
		ORDER BY started_at ASC`

	rows, err := s.db.Query(query, cutoff)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list stalled jobs")
	}
	defer rows.Close()

	return scanJobs(rows, "stalled jobs")
}

// DeleteJob removes a job from the database
func (s *Store) DeleteJob(id string) error {
	result, err := s.db.Exec(`DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete job")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("job not found: %s", id)
	}

	return nil
}

// PurgeCompleted removes completed-job records from the store.
// Returns the number of rows removed.
func (s *Store) PurgeCompleted() (int, error) {
	result, err := s.db.Exec(`DELETE FROM jobs WHERE state = 'completed'`)
	if err != nil {
		return 0, errors.Wrap(err, "failed to purge completed jobs")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	return int(rows), nil
}

// scanJobs is a helper that scans multiple jobs from query rows
func scanJobs(rows *sql.Rows, context string) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		var job Job
		if err := ScanJobFromRows(rows, &job); err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, &job)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error iterating %s", context)
	}

	return jobs, nil
}
