package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBus_PublishReachesAllSubscribers(t *testing.T) {
	b := New(zap.NewNop().Sugar())

	var first, second []interface{}
	b.Subscribe("job.added", func(payload interface{}) { first = append(first, payload) })
	b.Subscribe("job.added", func(payload interface{}) { second = append(second, payload) })

	evt := JobEvent{JobID: "abc", LogicalID: 1, Type: "skillfolio", UserID: 42}
	b.Publish("job.added", evt)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, evt, first[0])
	assert.Equal(t, evt, second[0])
}

func TestBus_PublishWithoutSubscribersIsSilent(t *testing.T) {
	b := New(zap.NewNop().Sugar())

	assert.NotPanics(t, func() {
		b.Publish("job.completed", JobEvent{JobID: "abc"})
	})
}

func TestBus_SubscribersOnlyReceiveTheirEvent(t *testing.T) {
	b := New(zap.NewNop().Sugar())

	var got []interface{}
	b.Subscribe("job.started", func(payload interface{}) { got = append(got, payload) })

	b.Publish("job.added", JobEvent{JobID: "abc"})
	b.Publish("job.completed", JobEvent{JobID: "abc"})

	assert.Empty(t, got)
}

func TestBus_PanickingHandlerDoesNotBreakSiblings(t *testing.T) {
	b := New(zap.NewNop().Sugar())

	var delivered int
	b.Subscribe("job.failed", func(payload interface{}) { panic("bad consumer") })
	b.Subscribe("job.failed", func(payload interface{}) { delivered++ })

	assert.NotPanics(t, func() {
		b.Publish("job.failed", JobFailureEvent{Message: "boom"})
	})
	assert.Equal(t, 1, delivered)
}

func TestBus_HandlersRunInSubscriptionOrder(t *testing.T) {
	b := New(zap.NewNop().Sugar())

	var order []string
	b.Subscribe("job.added", func(payload interface{}) { order = append(order, "first") })
	b.Subscribe("job.added", func(payload interface{}) { order = append(order, "second") })

	b.Publish("job.added", JobEvent{})

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestTypedEvent(t *testing.T) {
	assert.Equal(t, "job.skillfolio.started", TypedEvent("skillfolio", "started"))
	assert.Equal(t, "job.skillfolio.completed", TypedEvent("skillfolio", "completed"))
	assert.Equal(t, "job.skillfolio.failed", TypedEvent("skillfolio", "failed"))
}
