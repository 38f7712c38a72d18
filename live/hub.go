package live

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gigboard/dispatch/bus"
)

// Hub tracks at most one live channel per user and fans bus events out to
// them.
type Hub struct {
	mu       sync.Mutex
	channels map[int64]*Channel
	logger   *zap.SugaredLogger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		channels: make(map[int64]*Channel),
		logger:   logger.Named("live"),
	}
}

// Open registers a new channel for the user and blocks serving it until the
// connection closes. A reconnect replaces the previous channel, which is
// closed.
func (h *Hub) Open(userID int64, conn *websocket.Conn) {
	ch := &Channel{
		userID: userID,
		conn:   conn,
		send:   make(chan Update, sendBuffer),
		hub:    h,
		logger: h.logger,
	}

	h.mu.Lock()
	if previous, ok := h.channels[userID]; ok {
		previous.close()
		h.logger.Debugw("Replaced live channel on reconnect", "user_id", userID)
	}
	h.channels[userID] = ch
	h.mu.Unlock()

	h.logger.Infow("Live channel opened", "user_id", userID)
	ch.run()
}

// Push queues an update for the user. Users without an open channel, or with
// a full send buffer, silently miss the update.
func (h *Hub) Push(userID int64, update Update) {
	h.mu.Lock()
	ch, ok := h.channels[userID]
	h.mu.Unlock()
	if !ok {
		return
	}

	if !ch.enqueue(update) {
		h.logger.Debugw("Live channel closed or full, dropping update",
			"user_id", userID,
			"event", update.Event,
		)
	}
}

// Close tears down the user's channel if one is open.
func (h *Hub) Close(userID int64) {
	h.mu.Lock()
	ch, ok := h.channels[userID]
	if ok {
		delete(h.channels, userID)
	}
	h.mu.Unlock()
	if ok {
		ch.close()
	}
}

// Connected reports whether the user currently has an open channel.
func (h *Hub) Connected(userID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.channels[userID]
	return ok
}

// CloseAll tears down every open channel, typically at shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	channels := h.channels
	h.channels = make(map[int64]*Channel)
	h.mu.Unlock()

	for _, ch := range channels {
		ch.close()
	}
}

// remove drops the channel if it is still the user's current one. A channel
// replaced by a reconnect must not evict its successor.
func (h *Hub) remove(c *Channel) {
	h.mu.Lock()
	if current, ok := h.channels[c.userID]; ok && current == c {
		delete(h.channels, c.userID)
	}
	h.mu.Unlock()
	h.logger.Infow("Live channel closed", "user_id", c.userID)
}

// Forward subscribes the hub to the lifecycle events of the given job types,
// the generic lifecycle events, and notification.created, pushing each to the
// affected user.
func (h *Hub) Forward(b *bus.Bus, jobTypes ...string) {
	events := []string{
		bus.EventJobAdded,
		bus.EventJobStarted,
		bus.EventJobCompleted,
		bus.EventJobFailed,
	}
	for _, jobType := range jobTypes {
		events = append(events,
			bus.TypedEvent(jobType, "started"),
			bus.TypedEvent(jobType, "completed"),
			bus.TypedEvent(jobType, "failed"),
		)
	}
	for _, name := range events {
		event := name
		b.Subscribe(event, func(payload interface{}) {
			if userID, ok := eventUser(payload); ok {
				h.Push(userID, Update{Event: event, Data: payload})
			}
		})
	}

	b.Subscribe(bus.EventNotificationCreated, func(payload interface{}) {
		evt, ok := payload.(bus.NotificationEvent)
		if !ok {
			return
		}
		h.Push(evt.UserID, Update{Event: bus.EventNotificationCreated, Data: evt})
	})
}

// eventUser extracts the addressed user from a lifecycle payload.
func eventUser(payload interface{}) (int64, bool) {
	switch evt := payload.(type) {
	case bus.JobEvent:
		return evt.UserID, true
	case bus.JobResultEvent:
		return evt.UserID, true
	case bus.JobFailureEvent:
		return evt.UserID, true
	default:
		return 0, false
	}
}
