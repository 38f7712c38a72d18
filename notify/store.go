// Package notify persists user notifications and hosts the listeners that
// create them from bus events.
package notify

import (
	"database/sql"
	"time"

	"github.com/gigboard/dispatch/errors"
)

// Notification is a persisted per-user message tied to a named event.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Event     string    `json:"event"`
	Message   string    `json:"message"`
	JobID     string    `json:"jobId,omitempty"`
	LogicalID int64     `json:"logicalId,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists notifications in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a notification store over the given database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create persists a notification and fills in its row id.
func (s *Store) Create(n *Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	result, err := s.db.Exec(
		`INSERT INTO notifications (user_id, event, message, job_id, logical_id, read, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.UserID, n.Event, n.Message, n.JobID, n.LogicalID, n.Read, n.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create notification")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to get notification id")
	}
	n.ID = id

	return nil
}

// ListByUser returns a user's notifications, newest first.
func (s *Store) ListByUser(userID int64, limit int) ([]*Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT id, user_id, event, message, job_id, logical_id, read, created_at
		 FROM notifications
		 WHERE user_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list notifications")
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		var n Notification
		var jobID sql.NullString
		var logicalID sql.NullInt64
		if err := rows.Scan(&n.ID, &n.UserID, &n.Event, &n.Message, &jobID, &logicalID, &n.Read, &n.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan notification")
		}
		n.JobID = jobID.String
		n.LogicalID = logicalID.Int64
		notifications = append(notifications, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate notifications")
	}

	return notifications, nil
}

// MarkRead flags a notification as read.
func (s *Store) MarkRead(id int64) error {
	result, err := s.db.Exec(`UPDATE notifications SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to mark notification read")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check notification update")
	}
	if affected == 0 {
		return errors.NewNotFoundError("notification")
	}

	return nil
}
