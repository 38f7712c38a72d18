package queue

import (
	"context"
	"sync"

	"github.com/gigboard/dispatch/errors"
)

// JobHandler defines the interface for executing a specific job type.
// Domain packages implement this interface to handle their job types,
// allowing the queue infrastructure to remain decoupled from domain logic.
type JobHandler interface {
	// Execute runs the job and returns any error encountered.
	// The handler should decode job.Payload into its own payload struct,
	// report progress through the queue, and return nil on success.
	//
	// Handlers must check ctx.Done() periodically on long operations and
	// exit cleanly when cancelled.
	Execute(ctx context.Context, job *Job) error

	// Name returns the job type this handler executes.
	Name() string
}

// HandlerRegistry manages job handlers by job type.
// Thread-safe for concurrent handler registration and lookup.
type HandlerRegistry struct {
	handlers map[string]JobHandler
	mu       sync.RWMutex
}

// NewHandlerRegistry creates an empty handler registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string]JobHandler),
	}
}

// Register adds a handler using its name.
// Panics if a handler is already registered with that name.
func (r *HandlerRegistry) Register(handler JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := handler.Name()
	if _, exists := r.handlers[name]; exists {
		panic("handler already registered for job type: " + name)
	}
	r.handlers[name] = handler
}

// Get retrieves the handler for a job type.
// Returns nil if no handler is registered.
func (r *HandlerRegistry) Get(jobType string) JobHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[jobType]
}

// Has checks if a handler is registered for a job type.
func (r *HandlerRegistry) Has(jobType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[jobType]
	return exists
}

// Names returns all registered job types.
func (r *HandlerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// Execute dispatches a job to its registered handler.
func (r *HandlerRegistry) Execute(ctx context.Context, job *Job) error {
	if job.Type == "" {
		return errors.New("job missing type")
	}

	handler := r.Get(job.Type)
	if handler == nil {
		return errors.Newf("no handler registered for job type: %s", job.Type)
	}

	return handler.Execute(ctx, job)
}
