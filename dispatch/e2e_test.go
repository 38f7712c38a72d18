package dispatch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gigboard/dispatch/bus"
	"github.com/gigboard/dispatch/dispatch"
	dispatchtest "github.com/gigboard/dispatch/internal/testing"
	"github.com/gigboard/dispatch/notify"
	"github.com/gigboard/dispatch/queue"
	"github.com/gigboard/dispatch/skillfolio"
)

// eventRecorder captures bus events across goroutines in publish order.
type eventRecorder struct {
	mu    sync.Mutex
	names []string
}

func (r *eventRecorder) record(name string) bus.Handler {
	return func(payload interface{}) {
		r.mu.Lock()
		r.names = append(r.names, name)
		r.mu.Unlock()
	}
}

func (r *eventRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

// TestAccountPublishedToCompletedSkillfolio drives the full pipeline: a
// domain event chains a job, the worker executes it, and every listener
// observes the lifecycle in order.
func TestAccountPublishedToCompletedSkillfolio(t *testing.T) {
	db := dispatchtest.CreateTestDB(t)
	log := zap.NewNop().Sugar()

	q := queue.NewQueue(db)
	b := bus.New(log)
	d := dispatch.New(q, b, log)
	require.NoError(t, d.Attach())

	recorder := &eventRecorder{}
	for _, name := range []string{
		bus.EventJobAdded,
		bus.EventJobStarted,
		bus.EventJobCompleted,
		bus.EventJobFailed,
		bus.TypedEvent(skillfolio.JobType, "started"),
		bus.TypedEvent(skillfolio.JobType, "completed"),
		bus.TypedEvent(skillfolio.JobType, "failed"),
	} {
		b.Subscribe(name, recorder.record(name))
	}

	notifications := notify.NewStore(db)
	notify.NewListener(notifications, d, b, log).Register()

	pool := queue.NewWorkerPool(context.Background(), q, queue.WorkerPoolConfig{
		Workers:      1,
		PollInterval: 10 * time.Millisecond,
		StalledAfter: time.Minute,
	}, log)
	pool.Registry().Register(skillfolio.NewHandler(
		q,
		skillfolio.NewArtifactStore(db),
		skillfolio.LocalGenerator{},
		b,
		10*time.Millisecond,
		log,
	))
	pool.Start()
	defer pool.Stop()

	// The domain event chains exactly one skillfolio job
	b.Publish(bus.EventAccountPublished, bus.AccountEvent{UserID: 42})

	require.Eventually(t, func() bool {
		status, err := d.Status("1")
		return err == nil && status.Status == "completed"
	}, 5*time.Second, 10*time.Millisecond)

	status, err := d.Status("1")
	require.NoError(t, err)
	assert.Equal(t, "completed", status.Status)
	assert.Equal(t, 100, status.Progress)
	assert.Equal(t, "1", status.LogicalID)

	assert.Equal(t, []string{
		"job.added",
		"job.skillfolio.started",
		"job.started",
		"job.skillfolio.completed",
		"job.completed",
	}, recorder.snapshot())

	// The notification trail covers initiation through completion
	trail, err := notifications.ListByUser(42, 0)
	require.NoError(t, err)
	events := make(map[string]bool, len(trail))
	for _, n := range trail {
		events[n.Event] = true
	}
	assert.True(t, events[notify.EventSkillfolioInitiated])
	assert.True(t, events[notify.EventSkillfolioStarted])
	assert.True(t, events[notify.EventSkillfolioCompleted])
	assert.False(t, events[notify.EventSkillfolioFailed])

	// The artifact landed in the store
	artifact, err := skillfolio.NewArtifactStore(db).Latest(42)
	require.NoError(t, err)
	require.NotNil(t, artifact)
	assert.Equal(t, int64(42), artifact.UserID)
}
