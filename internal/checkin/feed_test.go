package checkin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/logger"
)

func TestFeedDropsWhenSubscriberIsFull(t *testing.T) {
	f := NewFeed(logger.Discard())
	events, unsubscribe := f.Subscribe(1)

	f.Publish(Event{Type: EventStarted, SessionID: "a"})
	f.Publish(Event{Type: EventUpdated, SessionID: "a"})

	ev := <-events
	assert.Equal(t, EventStarted, ev.Type)
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %v", ev.Type)
	default:
	}

	unsubscribe()
	unsubscribe()
	_, open := <-events
	assert.False(t, open)
	assert.Zero(t, f.Subscribers())
}

func TestFeedFansOut(t *testing.T) {
	f := NewFeed(logger.Discard())
	a, stopA := f.Subscribe(4)
	defer stopA()
	b, stopB := f.Subscribe(4)
	defer stopB()
	require.Equal(t, 2, f.Subscribers())

	f.Publish(Event{Type: EventCycle, SessionID: "s"})
	assert.Equal(t, EventCycle, (<-a).Type)
	assert.Equal(t, EventCycle, (<-b).Type)
}
