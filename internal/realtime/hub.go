package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"stock-service/internal/redisclient"
	"stock-service/internal/util"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Event is one room broadcast. Clients must treat each event as the latest
// known value for its subject, not as a delta to replay in order.
type Event struct {
	Type      string          `json:"type"`
	StoreID   int64           `json:"store_id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Broadcaster publishes an event to every subscriber of a store's room.
// It is injected wherever notifications are emitted; nothing in this codebase
// reaches for a process-wide broadcast handle.
type Broadcaster interface {
	Publish(ctx context.Context, storeID int64, eventType string, payload any) error
}

// RedisBroadcaster fans events out through Redis pub/sub so rooms span
// every running instance. Delivery is at-most-once, no replay.
type RedisBroadcaster struct {
	redis  *redisclient.Client
	logger *zap.Logger
}

// NewRedisBroadcaster creates a broadcaster backed by Redis pub/sub.
func NewRedisBroadcaster(client *redisclient.Client) *RedisBroadcaster {
	return &RedisBroadcaster{
		redis:  client,
		logger: util.NamedLogger("broadcast"),
	}
}

// Publish serializes the event and pushes it onto the store's channel.
func (b *RedisBroadcaster) Publish(ctx context.Context, storeID int64, eventType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	ev := Event{
		Type:      eventType,
		StoreID:   storeID,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	util.BroadcastsTotal.WithLabelValues(eventType).Inc()
	return b.redis.PublishRoomEvent(ctx, storeID, data)
}

// Hub holds this instance's local room membership: the set of connected
// clients per store. Membership is mutated on connect/disconnect and read by
// every dispatch, so access goes through a lock.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[int64]map[chan Event]struct{}
	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:  make(map[int64]map[chan Event]struct{}),
		logger: util.NamedLogger("hub"),
	}
}

// Subscribe joins a store's room. The returned cancel func leaves the room
// and must be called when the client disconnects.
func (h *Hub) Subscribe(storeID int64) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	h.mu.Lock()
	room, ok := h.rooms[storeID]
	if !ok {
		room = make(map[chan Event]struct{})
		h.rooms[storeID] = room
	}
	room[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if room, ok := h.rooms[storeID]; ok {
			delete(room, ch)
			if len(room) == 0 {
				delete(h.rooms, storeID)
			}
		}
		h.mu.Unlock()
		close(ch)
	}
	return ch, cancel
}

// Subscribers reports how many clients are in a store's room.
func (h *Hub) Subscribers(storeID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[storeID])
}

// Dispatch delivers the event to every local room member. Slow consumers are
// skipped rather than blocking dispatch; delivery is best-effort.
func (h *Hub) Dispatch(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.rooms[ev.StoreID] {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("dropping event for slow subscriber",
				zap.Int64("store_id", ev.StoreID),
				zap.String("event", ev.Type))
		}
	}
}

// Run consumes the Redis room subscription and feeds local subscribers until
// the context is cancelled.
func (h *Hub) Run(ctx context.Context, pubsub *redis.PubSub) {
	defer pubsub.Close()
	msgs := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				h.logger.Warn("malformed room event", zap.Error(err))
				continue
			}
			h.Dispatch(ev)
		}
	}
}
