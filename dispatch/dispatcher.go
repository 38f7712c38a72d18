// Package dispatch is the single entry point for enqueueing background work
// and querying its status. The Dispatcher owns the mapping between
// human-facing sequential logical job ids and the store's opaque physical
// ids, the in-process active-job counter, and the periodic completed-job
// sweep.
package dispatch

import (
	"encoding/json"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/gigboard/dispatch/bus"
	"github.com/gigboard/dispatch/errors"
	"github.com/gigboard/dispatch/queue"
)

// Payload is the structured data enqueued with a job. Metadata is an open
// string-keyed map for genuinely optional, processor-opaque data; the
// dispatcher injects the assigned logical id into it before enqueue.
type Payload struct {
	UserID   int64                  `json:"userId"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// EnqueueResult carries both identifiers of a newly enqueued job.
type EnqueueResult struct {
	ID        string `json:"id"`
	LogicalID int64  `json:"logicalId"`
}

// StatusResult is the structured answer to a status query. Status is a job
// state or "not_found"; LogicalID is the resolved id rendered as a decimal
// string, or "unknown" when no mapping exists (e.g. after a reset).
type StatusResult struct {
	Status    string          `json:"status"`
	Message   string          `json:"message,omitempty"`
	ID        string          `json:"id,omitempty"`
	LogicalID string          `json:"logicalId,omitempty"`
	Progress  int             `json:"progress"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// JobSummary is one annotated entry in an Overview bucket.
type JobSummary struct {
	ID        string          `json:"id"`
	LogicalID string          `json:"logicalId"`
	Type      string          `json:"type"`
	State     string          `json:"state"`
	Progress  int             `json:"progress"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Bucket holds the jobs of one store state.
type Bucket struct {
	Count int          `json:"count"`
	Jobs  []JobSummary `json:"jobs"`
}

// Overview is the full queue listing returned by ListAll.
type Overview struct {
	Waiting   Bucket `json:"waiting"`
	Active    Bucket `json:"active"`
	Delayed   Bucket `json:"delayed"`
	Completed Bucket `json:"completed"`
	Failed    Bucket `json:"failed"`
	Total     int    `json:"total"`
	// ActiveJobCount is the in-process counter. It may diverge from the
	// store's live total under enqueue/complete races; callers treat it
	// as an approximation.
	ActiveJobCount int64 `json:"activeJobCount"`
}

// Dispatcher assigns logical ids, maintains the id mapping and active-job
// counter, and publishes job.added events. Construct once per process with
// New, then call Attach before use.
type Dispatcher struct {
	queue  *queue.Queue
	bus    *bus.Bus
	logger *zap.SugaredLogger

	// enqueueMu serializes the outstanding-count check, reset decision, id
	// assignment, store insert, and mapping record. Without it two enqueues
	// on a drained queue can both observe zero outstanding jobs and re-issue
	// the same logical id.
	enqueueMu sync.Mutex

	mu                sync.Mutex
	nextLogical       int64
	activeJobs        int64
	logicalToPhysical map[int64]string
	physicalToLogical map[string]int64
}

// New creates a Dispatcher over the given queue and event bus.
func New(q *queue.Queue, b *bus.Bus, logger *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		queue:             q,
		bus:               b,
		logger:            logger.Named("dispatch"),
		logicalToPhysical: make(map[int64]string),
		physicalToLogical: make(map[string]int64),
	}
}

// Attach performs the one-time startup work: purge already-completed jobs,
// reconcile the active-job counter against the store's live outstanding
// count, and register the store hooks that maintain the counter. A live
// count avoids undercounting after a restart.
func (d *Dispatcher) Attach() error {
	purged, err := d.queue.PurgeCompleted()
	if err != nil {
		return errors.Wrap(err, "failed to purge completed jobs on attach")
	}
	if purged > 0 {
		d.logger.Infow("Purged completed jobs on attach", "purged", purged)
	}

	outstanding, err := d.queue.CountOutstanding()
	if err != nil {
		return errors.Wrap(err, "failed to reconcile active job count")
	}

	d.mu.Lock()
	d.activeJobs = int64(outstanding)
	d.mu.Unlock()

	d.queue.OnCompleted(func(job *queue.Job) { d.onTerminal(job, "completed") })
	d.queue.OnFailed(func(job *queue.Job) { d.onTerminal(job, "failed") })
	d.queue.OnStalled(func(job *queue.Job) {
		// Store-default requeue applies; this layer only observes.
		d.logger.Warnw("Job stalled", "job_id", job.ID, "type", job.Type)
	})

	d.logger.Infow("Dispatcher attached", "active_jobs", outstanding)
	return nil
}

// Enqueue assigns a logical id, records the id mapping, submits the job to
// the store (auto-remove on success, retain on failure), and publishes a
// job.added event. It never blocks on job execution.
func (d *Dispatcher) Enqueue(jobType string, payload Payload) (*EnqueueResult, error) {
	d.enqueueMu.Lock()

	// Lazy reset: once the store reports zero outstanding jobs, the next
	// assigned logical id is always 1 regardless of history. The count is
	// only trustworthy while enqueueMu is held: it must include every job
	// a concurrent enqueue has already inserted.
	outstanding, err := d.queue.CountOutstanding()
	if err != nil {
		d.enqueueMu.Unlock()
		return nil, errors.Wrap(err, "failed to check outstanding jobs")
	}

	d.mu.Lock()
	if outstanding == 0 && d.nextLogical > 0 {
		d.reset()
	}
	d.nextLogical++
	logical := d.nextLogical
	d.mu.Unlock()

	if payload.Metadata == nil {
		payload.Metadata = make(map[string]interface{})
	}
	payload.Metadata["logicalId"] = logical

	data, err := json.Marshal(payload)
	if err != nil {
		d.enqueueMu.Unlock()
		return nil, errors.Wrap(err, "failed to marshal job payload")
	}

	job, err := d.queue.Enqueue(jobType, data, queue.EnqueueOptions{
		RemoveOnComplete: true,
		RemoveOnFail:     false,
	})
	if err != nil {
		d.enqueueMu.Unlock()
		return nil, err
	}

	d.mu.Lock()
	d.logicalToPhysical[logical] = job.ID
	d.physicalToLogical[job.ID] = logical
	d.activeJobs++
	d.mu.Unlock()

	d.enqueueMu.Unlock()

	d.logger.Infow("Job enqueued",
		"job_id", job.ID,
		"logical_id", logical,
		"type", jobType,
		"user_id", payload.UserID,
	)

	d.bus.Publish(bus.EventJobAdded, bus.JobEvent{
		JobID:     job.ID,
		LogicalID: logical,
		Type:      jobType,
		UserID:    payload.UserID,
	})

	return &EnqueueResult{ID: job.ID, LogicalID: logical}, nil
}

// Status answers a status query for either a logical or a physical id.
// Numeric input resolves through the logical mapping first; unmapped numeric
// input falls through to the store as a physical id. Unresolvable ids yield
// a structured not-found result, never an error.
func (d *Dispatcher) Status(idOrLogical string) (*StatusResult, error) {
	physical := idOrLogical
	numeric := false

	if n, err := strconv.ParseInt(idOrLogical, 10, 64); err == nil {
		numeric = true
		d.mu.Lock()
		if mapped, ok := d.logicalToPhysical[n]; ok {
			physical = mapped
		}
		d.mu.Unlock()
	}

	job, err := d.queue.GetJob(physical)
	if err != nil {
		if errors.IsNotFoundError(err) {
			return d.notFound(idOrLogical, numeric), nil
		}
		return nil, err
	}

	return &StatusResult{
		Status:    string(job.State),
		ID:        job.ID,
		LogicalID: d.logicalLabel(job.ID),
		Progress:  job.Progress,
		Data:      job.Payload,
	}, nil
}

// ListAll returns every state bucket with logical-id annotations, a grand
// total, and the in-process active counter. A failed bucket query degrades
// to an empty bucket rather than aborting the whole response.
func (d *Dispatcher) ListAll() (*Overview, error) {
	overview := &Overview{
		Waiting:   d.bucket("waiting", d.queue.GetWaiting),
		Active:    d.bucket("active", d.queue.GetActive),
		Delayed:   d.bucket("delayed", d.queue.GetDelayed),
		Completed: d.bucket("completed", d.queue.GetCompleted),
		Failed:    d.bucket("failed", d.queue.GetFailed),
	}
	overview.Total = overview.Waiting.Count + overview.Active.Count +
		overview.Delayed.Count + overview.Completed.Count + overview.Failed.Count

	d.mu.Lock()
	overview.ActiveJobCount = d.activeJobs
	d.mu.Unlock()

	return overview, nil
}

// ActiveJobCount returns the in-process active-job counter.
func (d *Dispatcher) ActiveJobCount() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activeJobs
}

// LogicalID resolves a physical id to its logical id, if mapped.
func (d *Dispatcher) LogicalID(physical string) (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	logical, ok := d.physicalToLogical[physical]
	return logical, ok
}

// onTerminal maintains the counter on completed/failed store hooks. The id
// mapping is kept until the lazy reset so terminal jobs stay resolvable by
// logical id until the store purges them.
func (d *Dispatcher) onTerminal(job *queue.Job, phase string) {
	d.mu.Lock()
	if d.activeJobs > 0 {
		d.activeJobs--
	}
	remaining := d.activeJobs
	d.mu.Unlock()

	d.logger.Debugw("Job reached terminal state",
		"job_id", job.ID,
		"phase", phase,
		"active_jobs", remaining,
	)
}

// reset clears the id mapping and counters.
// REQUIRES: d.mu must be held by caller.
func (d *Dispatcher) reset() {
	d.nextLogical = 0
	d.activeJobs = 0
	d.logicalToPhysical = make(map[int64]string)
	d.physicalToLogical = make(map[string]int64)
	d.logger.Debugw("Logical id counter reset")
}

func (d *Dispatcher) notFound(input string, numeric bool) *StatusResult {
	// The original input is embedded verbatim; numeric inputs are reported
	// as logical ids since that is how they were interpreted first.
	var msg string
	if numeric {
		msg = "No job found with logical ID " + input
	} else {
		msg = "No job found with ID " + input
	}
	return &StatusResult{Status: "not_found", Message: msg}
}

func (d *Dispatcher) logicalLabel(physical string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if logical, ok := d.physicalToLogical[physical]; ok {
		return strconv.FormatInt(logical, 10)
	}
	return "unknown"
}

func (d *Dispatcher) bucket(name string, list func() ([]*queue.Job, error)) Bucket {
	jobs, err := list()
	if err != nil {
		d.logger.Warnw("Bucket listing failed, returning empty bucket",
			"bucket", name,
			"error", err,
		)
		return Bucket{Jobs: []JobSummary{}}
	}

	summaries := make([]JobSummary, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, JobSummary{
			ID:        job.ID,
			LogicalID: d.logicalLabel(job.ID),
			Type:      job.Type,
			State:     string(job.State),
			Progress:  job.Progress,
			Data:      job.Payload,
		})
	}
	return Bucket{Count: len(summaries), Jobs: summaries}
}
