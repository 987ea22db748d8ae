package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubSubscribeAndDispatch(t *testing.T) {
	hub := NewHub()

	ch1, cancel1 := hub.Subscribe(1)
	defer cancel1()
	ch2, cancel2 := hub.Subscribe(1)
	defer cancel2()
	other, cancelOther := hub.Subscribe(2)
	defer cancelOther()

	assert.Equal(t, 2, hub.Subscribers(1))
	assert.Equal(t, 1, hub.Subscribers(2))

	ev := Event{
		Type:      "inventory-changed",
		StoreID:   1,
		Payload:   json.RawMessage(`{"productId":7}`),
		Timestamp: time.Now().UTC(),
	}
	hub.Dispatch(ev)

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, "inventory-changed", got.Type)
			assert.Equal(t, int64(1), got.StoreID)
		case <-time.After(time.Second):
			t.Fatal("room member never received the event")
		}
	}

	select {
	case <-other:
		t.Fatal("event leaked into another store's room")
	default:
	}
}

func TestHubCancelLeavesRoom(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.Subscribe(1)
	require.Equal(t, 1, hub.Subscribers(1))

	cancel()
	assert.Equal(t, 0, hub.Subscribers(1))

	// Channel is closed so a streaming loop can terminate.
	_, open := <-ch
	assert.False(t, open)

	// Dispatch after cancel must not panic.
	hub.Dispatch(Event{Type: "inventory-changed", StoreID: 1})
}

func TestHubSkipsSlowSubscriber(t *testing.T) {
	hub := NewHub()

	slow, cancelSlow := hub.Subscribe(1)
	defer cancelSlow()

	// Fill the subscriber's buffer without draining it.
	for i := 0; i < 32; i++ {
		hub.Dispatch(Event{Type: "inventory-changed", StoreID: 1})
	}

	// Dispatch returned instead of blocking; the buffer holds what fit.
	assert.Equal(t, 16, len(slow))
}
