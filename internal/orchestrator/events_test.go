package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_ReplayAndClose(t *testing.T) {
	b := NewBroadcaster(4)
	b.Publish(Event{Type: EventRunStart, RunID: "r1"})

	past, ch, cancel := b.Subscribe()
	defer cancel()
	require.Len(t, past, 1)
	assert.Equal(t, EventRunStart, past[0].Type)

	b.Publish(Event{Type: EventLayerStart})
	b.Publish(Event{Type: EventRunEnd})
	b.Publish(Event{Type: EventLog}) // after close, dropped

	var got []EventType
	for e := range ch {
		got = append(got, e.Type)
	}
	assert.Equal(t, []EventType{EventLayerStart, EventRunEnd}, got)
	assert.True(t, b.Done())

	past, late, _ := b.Subscribe()
	assert.Len(t, past, 3)
	_, open := <-late
	assert.False(t, open)
}

func TestBroadcaster_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroadcaster(1)
	_, ch, cancel := b.Subscribe()

	for i := 0; i < 10; i++ {
		b.Publish(Event{Type: EventLog})
	}
	assert.Len(t, ch, 1)

	cancel()
	cancel()
	_, open := <-ch
	assert.True(t, open) // buffered event still readable
	_, open = <-ch
	assert.False(t, open)
}
