package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscribers(t *testing.T) {
	bus := NewEventBus()

	var received []UpdateEventPayload
	bus.Subscribe(EventUpdateSynced, func(event *Event) error {
		var p UpdateEventPayload
		require.NoError(t, json.Unmarshal(event.Payload, &p))
		received = append(received, p)
		return nil
	})

	require.NoError(t, bus.PublishJSON(EventUpdateSynced, UpdateEventPayload{UpdateID: 1, JobID: 7, State: "synced"}))
	require.NoError(t, bus.PublishJSON(EventUpdateFailed, UpdateEventPayload{UpdateID: 2, JobID: 8, State: "failed"}))

	// Only the subscribed type was delivered.
	require.Len(t, received, 1)
	assert.Equal(t, int64(7), received[0].JobID)
}

func TestMultipleSubscribersAllRun(t *testing.T) {
	bus := NewEventBus()

	calls := 0
	for i := 0; i < 3; i++ {
		bus.Subscribe(EventCacheCleared, func(*Event) error {
			calls++
			return nil
		})
	}

	require.NoError(t, bus.PublishJSON(EventCacheCleared, struct{}{}))
	assert.Equal(t, 3, calls)
}

func TestHandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := NewEventBus()

	second := false
	bus.Subscribe(EventUpdateStalled, func(*Event) error { return errors.New("boom") })
	bus.Subscribe(EventUpdateStalled, func(*Event) error {
		second = true
		return nil
	})

	require.NoError(t, bus.PublishJSON(EventUpdateStalled, UpdateEventPayload{UpdateID: 1}))
	assert.True(t, second)
}

func TestPublishOnNilBusIsNoop(t *testing.T) {
	var bus *EventBus
	assert.NoError(t, bus.PublishJSON(EventUpdateQueued, struct{}{}))
}
