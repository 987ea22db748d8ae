package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stock-service/internal/models"
	"stock-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SnapshotSource supplies current product quantities for the pull stream.
type SnapshotSource interface {
	GetProductSnapshots(ctx context.Context, ids []int64) ([]models.ProductSnapshot, error)
}

// StreamMessage is one frame on the pull channel.
type StreamMessage struct {
	Type      string                   `json:"type"` // initial | update | heartbeat
	Updates   []models.ProductSnapshot `json:"updates,omitempty"`
	Timestamp time.Time                `json:"timestamp"`
}

// Stream message types
const (
	StreamTypeInitial   = "initial"
	StreamTypeUpdate    = "update"
	StreamTypeHeartbeat = "heartbeat"
)

// StreamHandler serves the fallback pull channel: a long-lived SSE stream of
// quantity snapshots, and the push channel: per-store room events. Clients
// reconnect with backoff; repeated failure means stale data, never fatal.
type StreamHandler struct {
	Source            SnapshotSource
	Hub               *Hub
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	logger            *zap.Logger
}

// NewStreamHandler wires the stream endpoints.
func NewStreamHandler(source SnapshotSource, hub *Hub, poll, heartbeat time.Duration) *StreamHandler {
	if poll <= 0 {
		poll = 5 * time.Second
	}
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &StreamHandler{
		Source:            source,
		Hub:               hub,
		PollInterval:      poll,
		HeartbeatInterval: heartbeat,
		logger:            util.NamedLogger("stream"),
	}
}

// Snapshots handles GET /stream?products=id1,id2,... It sends a full
// snapshot immediately, then periodic snapshots and heartbeats until the
// client goes away.
func (h *StreamHandler) Snapshots(c *gin.Context) {
	ids, err := ParseProductIDs(c.Query("products"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid products parameter"})
		return
	}
	if len(ids) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "products parameter required"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}
	setSSEHeaders(c.Writer)

	util.StreamClients.Inc()
	defer util.StreamClients.Dec()

	ctx := c.Request.Context()
	if err := h.sendSnapshot(ctx, c.Writer, flusher, ids, StreamTypeInitial); err != nil {
		return
	}

	poll := time.NewTicker(h.PollInterval)
	defer poll.Stop()
	heartbeat := time.NewTicker(h.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			if err := h.sendSnapshot(ctx, c.Writer, flusher, ids, StreamTypeUpdate); err != nil {
				return
			}
		case <-heartbeat.C:
			msg := StreamMessage{Type: StreamTypeHeartbeat, Timestamp: time.Now().UTC()}
			if err := writeSSE(c.Writer, flusher, StreamTypeHeartbeat, msg); err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) sendSnapshot(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, ids []int64, msgType string) error {
	snapshots, err := h.Source.GetProductSnapshots(ctx, ids)
	if err != nil {
		h.logger.Warn("snapshot read failed", zap.Error(err))
		// keep the stream alive; the client sees the next heartbeat
		return nil
	}

	msg := StreamMessage{
		Type:      msgType,
		Updates:   snapshots,
		Timestamp: time.Now().UTC(),
	}
	return writeSSE(w, flusher, msgType, msg)
}

// RoomEvents handles GET /stores/:id/events, the push channel: every event
// broadcast to the store's room streams to this client until it disconnects.
func (h *StreamHandler) RoomEvents(c *gin.Context) {
	storeID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid store id"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}
	setSSEHeaders(c.Writer)

	events, cancel := h.Hub.Subscribe(storeID)
	defer cancel()

	heartbeat := time.NewTicker(h.HeartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSE(c.Writer, flusher, ev.Type, ev); err != nil {
				return
			}
		case <-heartbeat.C:
			msg := StreamMessage{Type: StreamTypeHeartbeat, Timestamp: time.Now().UTC()}
			if err := writeSSE(c.Writer, flusher, StreamTypeHeartbeat, msg); err != nil {
				return
			}
		}
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// ParseProductIDs parses the comma-separated products query parameter.
func ParseProductIDs(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid product id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
