package notify

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/gigboard/dispatch/bus"
	"github.com/gigboard/dispatch/dispatch"
	"github.com/gigboard/dispatch/skillfolio"
)

// Notification event names. Only explicitly named events are persisted;
// generic lifecycle events pass through the live channel untouched.
const (
	EventSkillfolioInitiated = "skillfolio_initiated"
	EventSkillfolioStarted   = "skillfolio_started"
	EventSkillfolioCompleted = "skillfolio_completed"
	EventSkillfolioFailed    = "skillfolio_failed"
)

// Enqueuer is the dispatcher surface the chaining step needs.
type Enqueuer interface {
	Enqueue(jobType string, payload dispatch.Payload) (*dispatch.EnqueueResult, error)
}

// Listener persists notifications for skillfolio lifecycle events and chains
// a skillfolio job off the account.published domain event. Every handler
// body logs and swallows its own failures so a persistence error never
// reaches the publisher or sibling subscribers.
type Listener struct {
	store      *Store
	dispatcher Enqueuer
	bus        *bus.Bus
	logger     *zap.SugaredLogger
}

// NewListener creates the notification listener. Call Register to attach it
// to the bus.
func NewListener(store *Store, dispatcher Enqueuer, b *bus.Bus, logger *zap.SugaredLogger) *Listener {
	return &Listener{
		store:      store,
		dispatcher: dispatcher,
		bus:        b,
		logger:     logger.Named("notify"),
	}
}

// Register subscribes the listener to its events.
func (l *Listener) Register() {
	l.bus.Subscribe(bus.EventAccountPublished, l.onAccountPublished)
	l.bus.Subscribe(bus.TypedEvent(skillfolio.JobType, "started"), l.onStarted)
	l.bus.Subscribe(bus.TypedEvent(skillfolio.JobType, "completed"), l.onCompleted)
	l.bus.Subscribe(bus.TypedEvent(skillfolio.JobType, "failed"), l.onFailed)
}

// onAccountPublished chains a skillfolio generation job off the account
// transition and records the initiated notification.
func (l *Listener) onAccountPublished(payload interface{}) {
	evt, ok := payload.(bus.AccountEvent)
	if !ok {
		l.logger.Warnw("Unexpected payload for account.published", "payload", payload)
		return
	}

	result, err := l.dispatcher.Enqueue(skillfolio.JobType, dispatch.Payload{UserID: evt.UserID})
	if err != nil {
		l.logger.Errorw("Failed to chain skillfolio job",
			"user_id", evt.UserID,
			"error", err,
		)
		return
	}

	l.persist(&Notification{
		UserID:    evt.UserID,
		Event:     EventSkillfolioInitiated,
		Message:   fmt.Sprintf("Skillfolio generation initiated (job #%d)", result.LogicalID),
		JobID:     result.ID,
		LogicalID: result.LogicalID,
	})
}

func (l *Listener) onStarted(payload interface{}) {
	evt, ok := payload.(bus.JobEvent)
	if !ok {
		l.logger.Warnw("Unexpected payload for skillfolio started event", "payload", payload)
		return
	}

	l.persist(&Notification{
		UserID:    evt.UserID,
		Event:     EventSkillfolioStarted,
		Message:   "Skillfolio generation started",
		JobID:     evt.JobID,
		LogicalID: evt.LogicalID,
	})
}

func (l *Listener) onCompleted(payload interface{}) {
	evt, ok := payload.(bus.JobResultEvent)
	if !ok {
		l.logger.Warnw("Unexpected payload for skillfolio completed event", "payload", payload)
		return
	}

	l.persist(&Notification{
		UserID:    evt.UserID,
		Event:     EventSkillfolioCompleted,
		Message:   "Your skillfolio is ready",
		JobID:     evt.JobID,
		LogicalID: evt.LogicalID,
	})
}

func (l *Listener) onFailed(payload interface{}) {
	evt, ok := payload.(bus.JobFailureEvent)
	if !ok {
		l.logger.Warnw("Unexpected payload for skillfolio failed event", "payload", payload)
		return
	}

	l.persist(&Notification{
		UserID:    evt.UserID,
		Event:     EventSkillfolioFailed,
		Message:   fmt.Sprintf("Skillfolio generation failed: %s", evt.Message),
		JobID:     evt.JobID,
		LogicalID: evt.LogicalID,
	})
}

// persist writes the notification and announces it on the bus.
func (l *Listener) persist(n *Notification) {
	if err := l.store.Create(n); err != nil {
		l.logger.Errorw("Failed to persist notification",
			"user_id", n.UserID,
			"event", n.Event,
			"error", err,
		)
		return
	}

	l.bus.Publish(bus.EventNotificationCreated, bus.NotificationEvent{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Event:          n.Event,
		Message:        n.Message,
	})
}
