package eventbus

import (
	"testing"
	"time"

	"github.com/elee1766/threadagent/src/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ev(requestID string, seq int64) events.Event {
	return events.Event{Seq: seq, Type: events.TypeTextDelta, RequestID: requestID}
}

func seqs(evs []events.Event) []int64 {
	out := make([]int64, 0, len(evs))
	for _, e := range evs {
		out = append(out, e.Seq)
	}
	return out
}

func TestBufferEvictsOldestFirst(t *testing.T) {
	bus := New(Config{BufferSize: 3})
	for i := int64(1); i <= 5; i++ {
		bus.Publish(ev("r1", i))
	}
	assert.Equal(t, []int64{3, 4, 5}, seqs(bus.Backlog("r1")))
	assert.Nil(t, bus.Backlog("unknown"))
}

func TestSubscribeWithBacklogMissesNothing(t *testing.T) {
	bus := New(Config{BufferSize: 10, SubscriberBuffer: 10})
	bus.Publish(ev("r1", 1))
	bus.Publish(ev("r1", 2))

	backlog, sub := bus.SubscribeWithBacklog("r1")
	defer sub.Close()
	bus.Publish(ev("r1", 3))

	got := seqs(backlog)
	got = append(got, (<-sub.C).Seq)
	assert.Equal(t, []int64{1, 2, 3}, got)
}

func TestTopicsAreIsolated(t *testing.T) {
	bus := New(Config{})
	sub := bus.Subscribe("r1")
	defer sub.Close()

	bus.Publish(ev("r2", 1))
	select {
	case e := <-sub.C:
		t.Fatalf("received event for another request: %+v", e)
	default:
	}
	assert.Equal(t, 2, bus.Topics())
}

func TestCompleteClosesSubscribersAndRetainsBuffer(t *testing.T) {
	bus := New(Config{Retention: 50 * time.Millisecond})
	sub := bus.Subscribe("r1")
	bus.Publish(ev("r1", 1))
	bus.Complete("r1")

	e, ok := <-sub.C
	require.True(t, ok)
	assert.Equal(t, int64(1), e.Seq)
	_, ok = <-sub.C
	assert.False(t, ok, "subscription closes on completion")

	backlog, late := bus.SubscribeWithBacklog("r1")
	assert.Equal(t, []int64{1}, seqs(backlog))
	_, ok = <-late.C
	assert.False(t, ok, "late subscription to a completed request is already closed")
	late.Close()

	assert.Eventually(t, func() bool { return bus.Topics() == 0 }, time.Second, 10*time.Millisecond)
}

func TestPublishReopensCompletedTopic(t *testing.T) {
	bus := New(Config{Retention: time.Hour})
	bus.Publish(ev("r1", 1))
	bus.Complete("r1")

	bus.Publish(ev("r1", 2))
	sub := bus.Subscribe("r1")
	defer sub.Close()
	bus.Publish(ev("r1", 3))
	assert.Equal(t, int64(3), (<-sub.C).Seq)
	assert.Equal(t, []int64{1, 2, 3}, seqs(bus.Backlog("r1")))
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := New(Config{SubscriberBuffer: 1})
	sub := bus.Subscribe("r1")
	defer sub.Close()

	bus.Publish(ev("r1", 1))
	bus.Publish(ev("r1", 2))
	assert.Equal(t, int64(1), sub.Dropped())
	assert.Equal(t, int64(1), (<-sub.C).Seq)
}

func TestClear(t *testing.T) {
	bus := New(Config{})
	sub := bus.Subscribe("r1")
	bus.Clear("r1")
	_, ok := <-sub.C
	assert.False(t, ok)
	sub.Close()
	assert.Equal(t, 0, bus.Topics())
}
