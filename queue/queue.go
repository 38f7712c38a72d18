package queue

import (
	"database/sql"
	"sync"
	"time"

	"github.com/gigboard/dispatch/errors"
)

const (
	// MaxJobsLimit is the maximum number of jobs returned by state listings
	MaxJobsLimit = 10000
)

// Hook is a queue-level callback fired on store-wide job transitions.
// Hooks run after the transition is persisted and must not block.
type Hook func(job *Job)

// Queue is the process-facing surface of the persistent store: enqueue,
// fetch-by-id, per-state listing, progress and removal primitives, plus
// subscription hooks for store-wide completed/failed/stalled notifications.
type Queue struct {
	store *Store

	mu        sync.Mutex
	completed []Hook
	failed    []Hook
	stalled   []Hook
}

// NewQueue creates a new job queue over the given database
func NewQueue(db *sql.DB) *Queue {
	return &Queue{store: NewStore(db)}
}

// OnCompleted registers a hook fired whenever any job completes.
func (q *Queue) OnCompleted(h Hook) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, h)
}

// OnFailed registers a hook fired whenever any job fails.
func (q *Queue) OnFailed(h Hook) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed = append(q.failed, h)
}

// OnStalled registers a hook fired whenever an active job is detected as
// stalled and returned to the waiting state.
func (q *Queue) OnStalled(h Hook) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stalled = append(q.stalled, h)
}

// Enqueue creates a job of the given type and adds it to the queue.
func (q *Queue) Enqueue(jobType string, payload []byte, opts EnqueueOptions) (*Job, error) {
	job := NewJob(jobType, payload, opts)

	if err := q.store.CreateJob(job); err != nil {
		err = errors.Wrap(err, "failed to enqueue job")
		err = errors.WithDetailf(err, "Job ID: %s", job.ID)
		err = errors.WithDetailf(err, "Type: %s", job.Type)
		return nil, err
	}

	return job, nil
}

// GetJob retrieves a job by its opaque store identifier.
func (q *Queue) GetJob(id string) (*Job, error) {
	return q.store.GetJob(id)
}

// Dequeue promotes due delayed jobs, then takes the oldest waiting job and
// marks it active. Returns nil when no job is runnable.
func (q *Queue) Dequeue() (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, err := q.store.PromoteDue(time.Now()); err != nil {
		return nil, errors.Wrap(err, "failed to promote delayed jobs")
	}

	job, err := q.store.NextWaiting()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get next waiting job")
	}
	if job == nil {
		return nil, nil
	}

	job.Start()
	if err := q.store.UpdateJob(job); err != nil {
		err = errors.Wrap(err, "failed to mark job as active")
		err = errors.WithDetailf(err, "Job ID: %s", job.ID)
		return nil, err
	}

	return job, nil
}

// UpdateProgress persists a progress value for a running job.
func (q *Queue) UpdateProgress(id string, progress int) error {
	return q.store.UpdateProgress(id, progress)
}

// CompleteJob marks a job as completed and fires the completed hooks. A job
// already in a terminal state is left untouched so hooks never fire twice
// for it.
func (q *Queue) CompleteJob(id string) error {
	job, err := q.store.GetJob(id)
	if err != nil {
		return errors.Wrapf(err, "failed to complete job %s", id)
	}
	if job.IsTerminal() {
		return nil
	}

	job.Complete()
	if err := q.store.UpdateJob(job); err != nil {
		err = errors.Wrap(err, "failed to mark job as completed")
		err = errors.WithDetailf(err, "Job ID: %s", job.ID)
		return err
	}

	q.fire(q.snapshotHooks(&q.completed), job)
	return nil
}

// FailJob marks a job as failed and fires the failed hooks. Like CompleteJob
// it leaves jobs already in a terminal state untouched.
func (q *Queue) FailJob(id string, jobErr error) error {
	job, err := q.store.GetJob(id)
	if err != nil {
		return errors.Wrapf(err, "failed to mark job %s as failed", id)
	}
	if job.IsTerminal() {
		return nil
	}

	job.Fail(jobErr)
	if err := q.store.UpdateJob(job); err != nil {
		err = errors.Wrap(err, "failed to mark job as failed")
		err = errors.WithDetailf(err, "Job ID: %s", job.ID)
		err = errors.WithDetailf(err, "Job error: %s", jobErr.Error())
		return err
	}

	q.fire(q.snapshotHooks(&q.failed), job)
	return nil
}

// RequeueStalled returns active jobs older than the cutoff to the waiting
// state and fires the stalled hooks for each. Returns the stalled jobs.
func (q *Queue) RequeueStalled(olderThan time.Duration) ([]*Job, error) {
	cutoff := time.Now().Add(-olderThan)
	stalled, err := q.store.ListStalled(cutoff)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list stalled jobs")
	}

	hooks := q.snapshotHooks(&q.stalled)
	for _, job := range stalled {
		job.Requeue()
		if err := q.store.UpdateJob(job); err != nil {
			return nil, errors.Wrapf(err, "failed to requeue stalled job %s", job.ID)
		}
		q.fire(hooks, job)
	}

	return stalled, nil
}

// GetWaiting returns waiting jobs, newest first.
func (q *Queue) GetWaiting() ([]*Job, error) { return q.store.ListByState(JobStateWaiting, MaxJobsLimit) }

// GetActive returns active jobs, newest first.
func (q *Queue) GetActive() ([]*Job, error) { return q.store.ListByState(JobStateActive, MaxJobsLimit) }

// GetDelayed returns delayed jobs, newest first.
func (q *Queue) GetDelayed() ([]*Job, error) { return q.store.ListByState(JobStateDelayed, MaxJobsLimit) }

// GetCompleted returns completed jobs, newest first.
func (q *Queue) GetCompleted() ([]*Job, error) {
	return q.store.ListByState(JobStateCompleted, MaxJobsLimit)
}

// GetFailed returns failed jobs, newest first.
func (q *Queue) GetFailed() ([]*Job, error) { return q.store.ListByState(JobStateFailed, MaxJobsLimit) }

// CountOutstanding returns the store's live count of waiting+active+delayed jobs.
func (q *Queue) CountOutstanding() (int, error) {
	return q.store.CountOutstanding()
}

// Remove deletes a job from the store regardless of state.
func (q *Queue) Remove(id string) error {
	return q.store.DeleteJob(id)
}

// PurgeCompleted removes all completed-job records. Returns the number removed.
func (q *Queue) PurgeCompleted() (int, error) {
	return q.store.PurgeCompleted()
}

// snapshotHooks copies a hook slice under the queue lock so hooks fire
// without holding it.
func (q *Queue) snapshotHooks(src *[]Hook) []Hook {
	q.mu.Lock()
	defer q.mu.Unlock()
	hooks := make([]Hook, len(*src))
	copy(hooks, *src)
	return hooks
}

func (q *Queue) fire(hooks []Hook, job *Job) {
	for _, h := range hooks {
		h(job)
	}
}
