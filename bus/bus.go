// Package bus provides the in-process publish/subscribe facility that
// decouples the job dispatcher and processors from their consumers.
//
// Dispatch is fire-and-forget: handlers run synchronously on the publishing
// goroutine, but each handler body runs inside its own failure boundary, so a
// panicking or misbehaving subscriber never reaches the publisher or prevents
// sibling subscribers from observing the same event.
package bus

import (
	"sync"

	"go.uber.org/zap"
)

// Handler processes a single published event payload.
type Handler func(payload interface{})

// Bus routes named events to subscribed handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *zap.SugaredLogger
}

// New creates an event bus.
func New(logger *zap.SugaredLogger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger.Named("bus"),
	}
}

// Subscribe registers a handler for the named event.
// Handlers for the same event run in subscription order.
func (b *Bus) Subscribe(name string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], fn)
}

// Publish delivers payload to every handler subscribed to name.
// Events with no subscribers are dropped silently - there is no delivery
// guarantee beyond in-process dispatch.
func (b *Bus) Publish(name string, payload interface{}) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[name]))
	copy(handlers, b.handlers[name])
	b.mu.RUnlock()

	for _, fn := range handlers {
		b.dispatch(name, fn, payload)
	}
}

// dispatch runs one handler inside a recover boundary.
func (b *Bus) dispatch(name string, fn Handler, payload interface{}) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorw("Event handler panicked",
				"event", name,
				"panic", r,
			)
		}
	}()
	fn(payload)
}
