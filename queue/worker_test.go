package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	dispatchtest "github.com/gigboard/dispatch/internal/testing"
	"github.com/gigboard/dispatch/errors"
)

type countingHandler struct {
	name     string
	executed atomic.Int64
	fail     bool
}

func (h *countingHandler) Name() string { return h.name }

func (h *countingHandler) Execute(ctx context.Context, job *Job) error {
	h.executed.Add(1)
	if h.fail {
		return errors.New("handler exploded")
	}
	return nil
}

func testWorkerPool(t *testing.T) (*WorkerPool, *Queue) {
	t.Helper()

	db := dispatchtest.CreateTestDB(t)
	q := NewQueue(db)
	pool := NewWorkerPool(context.Background(), q, WorkerPoolConfig{
		Workers:      1,
		PollInterval: 10 * time.Millisecond,
		StalledAfter: time.Minute,
	}, zap.NewNop().Sugar())
	return pool, q
}

func TestWorkerPool_ExecutesJobToCompletion(t *testing.T) {
	pool, q := testWorkerPool(t)

	handler := &countingHandler{name: "skillfolio"}
	pool.Registry().Register(handler)

	job, err := q.Enqueue("skillfolio", nil, EnqueueOptions{})
	require.NoError(t, err)

	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		loaded, err := q.GetJob(job.ID)
		return err == nil && loaded.State == JobStateCompleted
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, int64(1), handler.executed.Load())
}

func TestWorkerPool_MarksJobFailedOnHandlerError(t *testing.T) {
	pool, q := testWorkerPool(t)

	pool.Registry().Register(&countingHandler{name: "skillfolio", fail: true})

	job, err := q.Enqueue("skillfolio", nil, EnqueueOptions{})
	require.NoError(t, err)

	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		loaded, err := q.GetJob(job.ID)
		return err == nil && loaded.State == JobStateFailed
	}, 2*time.Second, 10*time.Millisecond)

	loaded, err := q.GetJob(job.ID)
	require.NoError(t, err)
	assert.Contains(t, loaded.Error, "handler exploded")
}

func TestWorkerPool_UnknownJobTypeFails(t *testing.T) {
	pool, q := testWorkerPool(t)

	pool.Registry().Register(&countingHandler{name: "skillfolio"})

	job, err := q.Enqueue("unregistered", nil, EnqueueOptions{})
	require.NoError(t, err)

	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		loaded, err := q.GetJob(job.ID)
		return err == nil && loaded.State == JobStateFailed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorkerPool_StopAndRestart(t *testing.T) {
	pool, q := testWorkerPool(t)

	handler := &countingHandler{name: "skillfolio"}
	pool.Registry().Register(handler)

	pool.Start()
	pool.Stop()

	// Work enqueued while stopped runs after a restart
	job, err := q.Enqueue("skillfolio", nil, EnqueueOptions{})
	require.NoError(t, err)

	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		loaded, err := q.GetJob(job.ID)
		return err == nil && loaded.State == JobStateCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandlerRegistry_Register(t *testing.T) {
	registry := NewHandlerRegistry()

	handler := &countingHandler{name: "skillfolio"}
	registry.Register(handler)

	assert.True(t, registry.Has("skillfolio"))
	assert.False(t, registry.Has("unknown"))

	assert.Equal(t, handler, registry.Get("skillfolio"))
	assert.Nil(t, registry.Get("unknown"))

	assert.Panics(t, func() { registry.Register(&countingHandler{name: "skillfolio"}) })
}

func TestHandlerRegistry_ExecuteDispatchesByType(t *testing.T) {
	registry := NewHandlerRegistry()
	handler := &countingHandler{name: "skillfolio"}
	registry.Register(handler)

	job := NewJob("skillfolio", nil, EnqueueOptions{})
	require.NoError(t, registry.Execute(context.Background(), job))
	assert.Equal(t, int64(1), handler.executed.Load())

	unknown := NewJob("unregistered", nil, EnqueueOptions{})
	err := registry.Execute(context.Background(), unknown)
	require.Error(t, err)
}
