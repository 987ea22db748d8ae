package realtime

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stock-service/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	snapshots []models.ProductSnapshot
}

func (f *fakeSource) GetProductSnapshots(_ context.Context, ids []int64) ([]models.ProductSnapshot, error) {
	return f.snapshots, nil
}

func TestParseProductIDs(t *testing.T) {
	ids, err := ParseProductIDs("1,2,3")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	ids, err = ParseProductIDs(" 4 , 5 ,")
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5}, ids)

	ids, err = ParseProductIDs("")
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = ParseProductIDs("1,abc")
	assert.Error(t, err)
}

func newStreamRouter(h *StreamHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/stream", h.Snapshots)
	router.GET("/stores/:id/events", h.RoomEvents)
	return router
}

func TestSnapshotsRequiresProducts(t *testing.T) {
	h := NewStreamHandler(&fakeSource{}, NewHub(), time.Second, time.Second)
	router := newStreamRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/stream?products=1,bogus", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSnapshotsStreamsInitialFrame(t *testing.T) {
	source := &fakeSource{snapshots: []models.ProductSnapshot{
		{ProductID: 1, TotalQuantity: 10, AvailableQuantity: 7, ReservedQuantity: 3},
	}}
	h := NewStreamHandler(source, NewHub(), time.Minute, time.Minute)
	srv := httptest.NewServer(newStreamRouter(h))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream?products=1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	eventType, data := readSSEFrame(t, bufio.NewReader(resp.Body))
	assert.Equal(t, StreamTypeInitial, eventType)

	var msg StreamMessage
	require.NoError(t, json.Unmarshal([]byte(data), &msg))
	assert.Equal(t, StreamTypeInitial, msg.Type)
	require.Len(t, msg.Updates, 1)
	assert.Equal(t, int64(1), msg.Updates[0].ProductID)
	assert.Equal(t, 7, msg.Updates[0].AvailableQuantity)
}

func TestRoomEventsStreamsBroadcasts(t *testing.T) {
	hub := NewHub()
	h := NewStreamHandler(&fakeSource{}, hub, time.Minute, time.Minute)
	srv := httptest.NewServer(newStreamRouter(h))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stores/1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	// Wait for the handler to join the room before dispatching.
	require.Eventually(t, func() bool { return hub.Subscribers(1) == 1 },
		2*time.Second, 10*time.Millisecond)

	hub.Dispatch(Event{
		Type:      models.RoomEventInventoryChanged,
		StoreID:   1,
		Payload:   json.RawMessage(`{"productId":5,"availableQuantity":2}`),
		Timestamp: time.Now().UTC(),
	})

	eventType, data := readSSEFrame(t, bufio.NewReader(resp.Body))
	assert.Equal(t, models.RoomEventInventoryChanged, eventType)

	var ev Event
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, int64(1), ev.StoreID)
	assert.Contains(t, string(ev.Payload), `"productId":5`)
}

// readSSEFrame reads one "event:"/"data:" pair off the stream.
func readSSEFrame(t *testing.T, r *bufio.Reader) (eventType, data string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")

		switch {
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && data != "":
			return eventType, data
		}
	}
}
