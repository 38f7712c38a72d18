package bus

import "encoding/json"

// Lifecycle event names published on the bus. Per-type variants follow the
// pattern "job.<type>.<phase>" and are derived with TypedEvent.
const (
	EventJobAdded     = "job.added"
	EventJobStarted   = "job.started"
	EventJobCompleted = "job.completed"
	EventJobFailed    = "job.failed"

	EventNotificationCreated = "notification.created"

	// Domain transition consumed by the chaining listener
	EventAccountPublished = "account.published"
)

// TypedEvent returns the per-type variant of a lifecycle phase,
// e.g. TypedEvent("skillfolio", "completed") == "job.skillfolio.completed".
func TypedEvent(jobType, phase string) string {
	return "job." + jobType + "." + phase
}

// JobEvent carries the identifiers every lifecycle event is tagged with.
// Listeners must treat each event as self-contained; there is no ordering
// guarantee across jobs.
type JobEvent struct {
	JobID     string `json:"jobId"`
	LogicalID int64  `json:"logicalId"`
	Type      string `json:"type"`
	UserID    int64  `json:"userId"`
	Progress  int    `json:"progress"`
}

// JobResultEvent is a JobEvent carrying the full result payload of a
// completed job.
type JobResultEvent struct {
	JobEvent
	Result json.RawMessage `json:"result"`
}

// JobFailureEvent is a JobEvent carrying the failure message of a failed job.
type JobFailureEvent struct {
	JobEvent
	Message string `json:"message"`
}

// NotificationEvent announces a persisted notification.
type NotificationEvent struct {
	NotificationID int64  `json:"notificationId"`
	UserID         int64  `json:"userId"`
	Event          string `json:"event"`
	Message        string `json:"message"`
}

// AccountEvent carries a domain-level account transition.
type AccountEvent struct {
	UserID int64 `json:"userId"`
}
