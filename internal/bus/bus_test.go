package bus

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscriber(t *testing.T) {
	b := New()
	runID := uuid.New()

	ch, cancel := b.Subscribe(runID)
	defer cancel()

	b.Publish(Event{Type: EventStageEvent, RunID: runID, Payload: "hello"})

	ev := <-ch
	assert.Equal(t, EventStageEvent, ev.Type)
	assert.Equal(t, runID, ev.RunID)
	assert.Equal(t, "hello", ev.Payload)
	assert.False(t, ev.At.IsZero())
}

func TestPublishIsScopedToRun(t *testing.T) {
	b := New()
	mine := uuid.New()
	other := uuid.New()

	ch, cancel := b.Subscribe(mine)
	defer cancel()

	b.Publish(Event{Type: EventCompleted, RunID: other})

	select {
	case ev := <-ch:
		t.Fatalf("received event for a different run: %+v", ev)
	default:
	}
}

func TestMultipleSubscribers(t *testing.T) {
	b := New()
	runID := uuid.New()

	ch1, cancel1 := b.Subscribe(runID)
	defer cancel1()
	ch2, cancel2 := b.Subscribe(runID)
	defer cancel2()

	b.Publish(Event{Type: EventFinalAnswer, RunID: runID})

	assert.Equal(t, EventFinalAnswer, (<-ch1).Type)
	assert.Equal(t, EventFinalAnswer, (<-ch2).Type)
}

func TestCancelClosesChannel(t *testing.T) {
	b := New()
	runID := uuid.New()

	ch, cancel := b.Subscribe(runID)
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after cancel must not panic or block.
	b.Publish(Event{Type: EventCompleted, RunID: runID})

	// Double cancel is safe.
	cancel()
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	b := New()
	runID := uuid.New()

	ch, cancel := b.Subscribe(runID)
	defer cancel()

	// Overfill the subscriber buffer; extra events are dropped, not queued.
	for i := 0; i < subscriberBuffer+16; i++ {
		b.Publish(Event{Type: EventStageEvent, RunID: runID})
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			require.Equal(t, subscriberBuffer, received)
			return
		}
	}
}
