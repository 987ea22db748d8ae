package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"stock-service/internal/models"
	"stock-service/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	entries chan models.AuditLogEntry
	err     error
}

func newCaptureSink() *captureSink {
	return &captureSink{entries: make(chan models.AuditLogEntry, 8)}
}

func (s *captureSink) InsertAuditEntry(_ context.Context, entry *models.AuditLogEntry) error {
	if s.err != nil {
		return s.err
	}
	s.entries <- *entry
	return nil
}

func TestAsyncRecorderDeliversEntry(t *testing.T) {
	require.NoError(t, util.InitLogger("test"))

	sink := newCaptureSink()
	recorder := NewAsyncRecorder(sink)

	recorder.Record(context.Background(), models.AuditLogEntry{
		ProductID:      7,
		Action:         models.AuditActionReservation,
		QuantityChange: -2,
		Reason:         "cart hold placed",
	})

	select {
	case entry := <-sink.entries:
		assert.Equal(t, int64(7), entry.ProductID)
		assert.Equal(t, models.AuditActionReservation, entry.Action)
		assert.Equal(t, -2, entry.QuantityChange)
	case <-time.After(2 * time.Second):
		t.Fatal("audit entry never reached the sink")
	}
}

func TestAsyncRecorderSwallowsSinkFailure(t *testing.T) {
	require.NoError(t, util.InitLogger("test"))

	sink := newCaptureSink()
	sink.err = errors.New("sink down")
	recorder := NewAsyncRecorder(sink)

	// Must not panic or block the caller in any way.
	recorder.Record(context.Background(), models.AuditLogEntry{ProductID: 1})
	time.Sleep(50 * time.Millisecond)

	assert.Empty(t, sink.entries)
}
