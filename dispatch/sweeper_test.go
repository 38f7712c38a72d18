package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	dispatchtest "github.com/gigboard/dispatch/internal/testing"
	"github.com/gigboard/dispatch/queue"
)

func TestNewSweeper_RejectsNonPositiveInterval(t *testing.T) {
	db := dispatchtest.CreateTestDB(t)
	q := queue.NewQueue(db)

	_, err := NewSweeper(q, 0, zap.NewNop().Sugar())
	require.Error(t, err)

	_, err = NewSweeper(q, -time.Second, zap.NewNop().Sugar())
	require.Error(t, err)
}

func TestSweeper_SweepPurgesCompletedJobs(t *testing.T) {
	db := dispatchtest.CreateTestDB(t)
	q := queue.NewQueue(db)

	job, err := q.Enqueue("skillfolio", nil, queue.EnqueueOptions{RemoveOnComplete: true})
	require.NoError(t, err)
	_, err = q.Dequeue()
	require.NoError(t, err)
	require.NoError(t, q.CompleteJob(job.ID))

	waiting, err := q.Enqueue("skillfolio", nil, queue.EnqueueOptions{})
	require.NoError(t, err)

	s, err := NewSweeper(q, time.Minute, zap.NewNop().Sugar())
	require.NoError(t, err)

	s.sweep()

	_, err = q.GetJob(job.ID)
	require.Error(t, err)

	// Outstanding work is untouched
	loaded, err := q.GetJob(waiting.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.JobStateWaiting, loaded.State)
}

func TestSweeper_StartStop(t *testing.T) {
	db := dispatchtest.CreateTestDB(t)
	q := queue.NewQueue(db)

	s, err := NewSweeper(q, time.Hour, zap.NewNop().Sugar())
	require.NoError(t, err)

	s.Start()
	s.Stop()
}
