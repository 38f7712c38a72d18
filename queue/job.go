// Package queue provides the durable SQLite-backed job queue: persistence,
// state transitions, hooks, and the worker pool that executes jobs through
// registered handlers.
package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobState represents the current state of a job as reported by the store.
type JobState string

const (
	JobStateWaiting   JobState = "waiting"
	JobStateActive    JobState = "active"
	JobStateDelayed   JobState = "delayed"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// Job represents one unit of deferred work.
//
// The queue is domain-agnostic: Type identifies which handler executes the
// job and Payload carries handler-specific data the queue never inspects.
type Job struct {
	ID               string          `json:"id"`
	Type             string          `json:"type"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	State            JobState        `json:"state"`
	Progress         int             `json:"progress"` // 0-100, mutated only by the handler
	Error            string          `json:"error,omitempty"`
	RemoveOnComplete bool            `json:"remove_on_complete,omitempty"`
	RemoveOnFail     bool            `json:"remove_on_fail,omitempty"`
	ReadyAt          *time.Time      `json:"ready_at,omitempty"` // Set for delayed jobs
	CreatedAt        time.Time       `json:"created_at"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// EnqueueOptions control job scheduling and record the caller's retention
// intent.
type EnqueueOptions struct {
	// RemoveOnComplete records that the caller does not need the row once
	// the job succeeds. The completed-job sweep clears every completed row
	// regardless of the flag, so it is informational.
	RemoveOnComplete bool
	// RemoveOnFail records the same intent for failed jobs. Failed rows are
	// always retained for inspection; no sweep removes them.
	RemoveOnFail bool
	// Delay holds the job in the delayed state until the duration elapses.
	Delay time.Duration
}

// NewJob creates a new job in the waiting (or delayed) state with a
// store-assigned opaque identifier.
func NewJob(jobType string, payload json.RawMessage, opts EnqueueOptions) *Job {
	now := time.Now()
	job := &Job{
		ID:               uuid.NewString(),
		Type:             jobType,
		Payload:          payload,
		State:            JobStateWaiting,
		RemoveOnComplete: opts.RemoveOnComplete,
		RemoveOnFail:     opts.RemoveOnFail,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if opts.Delay > 0 {
		ready := now.Add(opts.Delay)
		job.State = JobStateDelayed
		job.ReadyAt = &ready
	}
	return job
}

// Start marks the job as active
func (j *Job) Start() {
	now := time.Now()
	j.State = JobStateActive
	j.StartedAt = &now
	j.UpdatedAt = now
}

// Complete marks the job as completed
func (j *Job) Complete() {
	now := time.Now()
	j.State = JobStateCompleted
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Fail marks the job as failed with an error message
func (j *Job) Fail(err error) {
	now := time.Now()
	j.State = JobStateFailed
	j.Error = err.Error()
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Requeue returns an active job to the waiting state, clearing any stale
// execution bookkeeping. Used for stalled-job recovery.
func (j *Job) Requeue() {
	j.State = JobStateWaiting
	j.StartedAt = nil
	j.Error = ""
	j.UpdatedAt = time.Now()
}

// IsTerminal reports whether the job reached a terminal state.
func (j *Job) IsTerminal() bool {
	return j.State == JobStateCompleted || j.State == JobStateFailed
}
